package modes

import (
	"context"
	"strings"
	"testing"

	"github.com/ensemble-chat/ensemble/internal/chat"
	"github.com/ensemble-chat/ensemble/internal/testutil"
)

// -----------------------------------------------------------------------------
// Council Flow Tests
// -----------------------------------------------------------------------------

func TestCouncilChairSummarizes(t *testing.T) {
	responder := testutil.NewScriptedResponder("round one answer").
		AddRule(testutil.Rule{PromptContains: "fellow council members", Content: "final position"}).
		AddRule(testutil.Rule{PromptContains: "As chair", Content: "the council verdict"})

	mc := testContext(roster(3), responder)

	results, err := SendCouncil(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendCouncil() error = %v", err)
	}

	if results[0] == nil || results[0].Content != "the council verdict" {
		t.Fatalf("chair slot = %+v", results[0])
	}
	if results[1] != nil || results[2] != nil {
		t.Error("only the chair slot may be populated")
	}

	meta := results[0].Metadata.(CouncilMetadata)
	if len(meta.Answers) != 3 || len(meta.Positions) != 3 {
		t.Errorf("answers = %d, positions = %d, want 3 each", len(meta.Answers), len(meta.Positions))
	}
}

func TestCouncilDeliberationSeesOtherMembers(t *testing.T) {
	responder := testutil.NewScriptedResponder("").
		AddRule(testutil.Rule{InstanceID: "inst-a", PromptContains: "fellow council members", Content: "pos"}).
		AddRule(testutil.Rule{InstanceID: "inst-b", PromptContains: "fellow council members", Content: "pos"}).
		AddRule(testutil.Rule{InstanceID: "inst-c", PromptContains: "fellow council members", Content: "pos"}).
		AddRule(testutil.Rule{PromptContains: "As chair", Content: "verdict"}).
		AddRule(testutil.Rule{InstanceID: "inst-a", Content: "answer from a"}).
		AddRule(testutil.Rule{InstanceID: "inst-b", Content: "answer from b"}).
		AddRule(testutil.Rule{InstanceID: "inst-c", Content: "answer from c"})

	mc := testContext(roster(3), responder)

	if _, err := SendCouncil(context.Background(), chat.TextContent("q"), mc, nil); err != nil {
		t.Fatalf("SendCouncil() error = %v", err)
	}

	for _, call := range responder.Calls() {
		if !strings.Contains(call.Prompt(), "fellow council members") {
			continue
		}
		// Members are labeled by seat and the deliberator's own answer is
		// excluded.
		own := map[string]string{"inst-a": "answer from a", "inst-b": "answer from b", "inst-c": "answer from c"}
		if strings.Contains(call.Prompt(), own[call.InstanceID]) {
			t.Errorf("%s sees its own answer in deliberation", call.InstanceID)
		}
		if !strings.Contains(call.Prompt(), "Member ") {
			t.Errorf("%s deliberation prompt lacks member labels", call.InstanceID)
		}
	}
}

func TestCouncilDeliberationFailureReusesAnswer(t *testing.T) {
	responder := testutil.NewScriptedResponder("first answer").
		AddRule(testutil.Rule{InstanceID: "inst-b", PromptContains: "fellow council members", Fail: true}).
		AddRule(testutil.Rule{PromptContains: "fellow council members", Content: "deliberated"}).
		AddRule(testutil.Rule{PromptContains: "As chair", Content: "verdict"})

	mc := testContext(roster(3), responder)

	results, err := SendCouncil(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendCouncil() error = %v", err)
	}
	meta := results[0].Metadata.(CouncilMetadata)
	if meta.Positions["inst-b"].Content != "first answer" {
		t.Errorf("inst-b position = %q, want its round-one answer", meta.Positions["inst-b"].Content)
	}
	if meta.Positions["inst-a"].Content != "deliberated" {
		t.Errorf("inst-a position = %q, want deliberated", meta.Positions["inst-a"].Content)
	}
}

func TestCouncilConfiguredChair(t *testing.T) {
	responder := testutil.NewScriptedResponder("answer").
		AddRule(testutil.Rule{PromptContains: "As chair", Content: "verdict"})

	mc := testContext(roster(3), responder)
	mc.Config.Council.ChairInstance = "inst-b"

	results, err := SendCouncil(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendCouncil() error = %v", err)
	}
	if results[1] == nil || results[1].Content != "verdict" {
		t.Fatalf("configured chair slot = %+v", results[1])
	}
}

func TestCouncilChairFailureConcatenates(t *testing.T) {
	responder := testutil.NewScriptedResponder("member position").
		AddRule(testutil.Rule{PromptContains: "As chair", Fail: true})

	mc := testContext(roster(3), responder)

	results, err := SendCouncil(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendCouncil() error = %v", err)
	}
	if results[0] == nil {
		t.Fatal("chair slot not populated")
	}
	if !strings.Contains(results[0].Content, "member position") {
		t.Errorf("degraded summary = %q", results[0].Content)
	}
}
