package modes

import (
	"context"
	"testing"

	"github.com/ensemble-chat/ensemble/internal/chat"
	"github.com/ensemble-chat/ensemble/internal/testutil"
)

// -----------------------------------------------------------------------------
// Debate Flow Tests
// -----------------------------------------------------------------------------

func TestDebatedWinnerTakesSlot(t *testing.T) {
	responder := testutil.NewScriptedResponder("").
		AddRule(testutil.Rule{PromptContains: "opening argument", InstanceID: "inst-a", Content: "A opens"}).
		AddRule(testutil.Rule{PromptContains: "opening argument", InstanceID: "inst-b", Content: "B opens"}).
		AddRule(testutil.Rule{PromptContains: "Rebut", InstanceID: "inst-a", Content: "A rebuts"}).
		AddRule(testutil.Rule{PromptContains: "Rebut", InstanceID: "inst-b", Content: "B rebuts"}).
		AddRule(testutil.Rule{PromptContains: "stronger case", Content: "B, clearly sharper"})

	mc := testContext(roster(3), responder)

	results, err := SendDebated(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendDebated() error = %v", err)
	}

	if results[1] == nil || results[1].Content != "B rebuts" {
		t.Fatalf("winner slot = %+v", results[1])
	}
	if results[0] != nil || results[2] != nil {
		t.Error("only the winner's slot may be populated")
	}

	meta := results[1].Metadata.(DebatedMetadata)
	if meta.Winner != "inst-b" || meta.Judge != "inst-c" {
		t.Errorf("metadata = %+v", meta)
	}
	// Two openings plus one rebuttal each.
	if len(meta.Transcript) != 4 {
		t.Errorf("transcript turns = %d, want 4", len(meta.Transcript))
	}
}

func TestDebatedTwoInstancesJudgeIsDebaterA(t *testing.T) {
	responder := testutil.NewScriptedResponder("statement").
		AddRule(testutil.Rule{PromptContains: "stronger case", Content: "A"})

	mc := testContext(roster(2), responder)

	results, err := SendDebated(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendDebated() error = %v", err)
	}
	if results[0] == nil {
		t.Fatal("winner slot not populated")
	}
	meta := results[0].Metadata.(DebatedMetadata)
	if meta.Judge != "inst-a" {
		t.Errorf("judge = %q, want inst-a (debater A judges with no third instance)", meta.Judge)
	}
}

func TestDebatedUnparseableVerdictDefaultsToA(t *testing.T) {
	responder := testutil.NewScriptedResponder("statement").
		AddRule(testutil.Rule{PromptContains: "stronger case", Content: "both did well"})

	mc := testContext(roster(2), responder)

	results, err := SendDebated(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendDebated() error = %v", err)
	}
	if results[0] == nil {
		t.Fatal("expected debater A to win the default verdict")
	}
}

func TestDebatedSingleOpeningWinsByDefault(t *testing.T) {
	responder := testutil.NewScriptedResponder("").
		AddRule(testutil.Rule{PromptContains: "opening argument", InstanceID: "inst-b", Content: "B opens"})

	mc := testContext(roster(2), responder)

	results, err := SendDebated(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendDebated() error = %v", err)
	}
	if results[1] == nil || results[1].Content != "B opens" {
		t.Fatalf("surviving debater slot = %+v", results[1])
	}
	// No rebuttals, no verdict.
	if responder.CallCount() != 2 {
		t.Errorf("transport calls = %d, want 2", responder.CallCount())
	}
}

func TestDebatedRebuttalOrdering(t *testing.T) {
	responder := testutil.NewScriptedResponder("").
		AddRule(testutil.Rule{PromptContains: "opening argument", InstanceID: "inst-a", Content: "A-open"}).
		AddRule(testutil.Rule{PromptContains: "opening argument", InstanceID: "inst-b", Content: "B-open"}).
		AddRule(testutil.Rule{PromptContains: "B-open", InstanceID: "inst-a", Content: "A-rebut"}).
		AddRule(testutil.Rule{PromptContains: "A-rebut", InstanceID: "inst-b", Content: "B-rebut"}).
		AddRule(testutil.Rule{PromptContains: "stronger case", Content: "A"})

	mc := testContext(roster(2), responder)

	results, err := SendDebated(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendDebated() error = %v", err)
	}
	// B's rebuttal saw A's rebuttal, proving A-then-B sequencing.
	meta := results[0].Metadata.(DebatedMetadata)
	last := meta.Transcript[len(meta.Transcript)-1]
	if last.InstanceID != "inst-b" || last.Content != "B-rebut" {
		t.Errorf("final turn = %+v", last)
	}
}
