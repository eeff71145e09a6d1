package modes

import (
	"context"
	"testing"

	"github.com/ensemble-chat/ensemble/internal/chat"
	"github.com/ensemble-chat/ensemble/internal/testutil"
)

// -----------------------------------------------------------------------------
// Self-Assessment Tests
// -----------------------------------------------------------------------------

func TestConfidenceHighestWins(t *testing.T) {
	responder := testutil.NewScriptedResponder("").
		AddRule(testutil.Rule{PromptContains: "How confident", InstanceID: "inst-a", Content: "60"}).
		AddRule(testutil.Rule{PromptContains: "How confident", InstanceID: "inst-b", Content: "85, I checked twice"}).
		AddRule(testutil.Rule{InstanceID: "inst-a", Content: "answer a"}).
		AddRule(testutil.Rule{InstanceID: "inst-b", Content: "answer b"})

	mc := testContext(roster(2), responder)

	results, err := SendConfidence(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendConfidence() error = %v", err)
	}

	if results[1] == nil || results[1].Content != "answer b" {
		t.Fatalf("winner slot = %+v", results[1])
	}
	if results[0] != nil {
		t.Error("loser slot must stay nil")
	}

	meta := results[1].Metadata.(ConfidenceMetadata)
	if meta.Winner != "inst-b" {
		t.Errorf("winner = %q", meta.Winner)
	}
	if len(meta.Scores) != 2 {
		t.Errorf("scores = %d, want 2", len(meta.Scores))
	}
}

func TestConfidenceTieBreaksAlphabetically(t *testing.T) {
	responder := testutil.NewScriptedResponder("answer").
		AddRule(testutil.Rule{PromptContains: "How confident", Content: "70"})

	mc := testContext(roster(3), responder)

	results, err := SendConfidence(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendConfidence() error = %v", err)
	}
	if results[0] == nil {
		t.Fatal("expected inst-a to win the three-way tie")
	}
}

func TestConfidenceUnparseableScoresZero(t *testing.T) {
	responder := testutil.NewScriptedResponder("").
		AddRule(testutil.Rule{PromptContains: "How confident", InstanceID: "inst-a", Content: "extremely confident"}).
		AddRule(testutil.Rule{PromptContains: "How confident", InstanceID: "inst-b", Content: "15"}).
		AddRule(testutil.Rule{Content: "answer"})

	mc := testContext(roster(2), responder)

	results, err := SendConfidence(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendConfidence() error = %v", err)
	}
	// inst-a's unparseable rating counts as 0, so inst-b's 15 wins.
	if results[1] == nil {
		t.Fatal("expected inst-b to win")
	}
	meta := results[1].Metadata.(ConfidenceMetadata)
	for _, score := range meta.Scores {
		if score.InstanceID == "inst-a" && score.Confidence != 0 {
			t.Errorf("inst-a confidence = %d, want 0", score.Confidence)
		}
	}
}

func TestConfidenceOutOfRangeScoresZero(t *testing.T) {
	responder := testutil.NewScriptedResponder("").
		AddRule(testutil.Rule{PromptContains: "How confident", InstanceID: "inst-a", Content: "150"}).
		AddRule(testutil.Rule{PromptContains: "How confident", InstanceID: "inst-b", Content: "10"}).
		AddRule(testutil.Rule{Content: "answer"})

	mc := testContext(roster(2), responder)

	results, err := SendConfidence(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendConfidence() error = %v", err)
	}
	if results[1] == nil {
		t.Fatal("expected inst-b to win over an out-of-range rating")
	}
}

func TestConfidenceBelowThresholdStillWins(t *testing.T) {
	responder := testutil.NewScriptedResponder("").
		AddRule(testutil.Rule{PromptContains: "How confident", Content: "30"}).
		AddRule(testutil.Rule{Content: "answer"})

	mc := testContext(roster(2), responder)
	mc.Config.Confidence.Threshold = 50

	results, err := SendConfidence(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendConfidence() error = %v", err)
	}
	if results[0] == nil {
		t.Fatal("winner must stand even below the threshold")
	}
	meta := results[0].Metadata.(ConfidenceMetadata)
	if !meta.BelowThreshold {
		t.Error("BelowThreshold = false, want true")
	}
}
