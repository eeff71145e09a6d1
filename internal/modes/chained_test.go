package modes

import (
	"context"
	"testing"

	"github.com/ensemble-chat/ensemble/internal/chat"
	"github.com/ensemble-chat/ensemble/internal/testutil"
)

// -----------------------------------------------------------------------------
// Pipeline Tests
// -----------------------------------------------------------------------------

func TestChainedSequentialImprovement(t *testing.T) {
	responder := testutil.NewScriptedResponder("").
		AddRule(testutil.Rule{InstanceID: "inst-a", Content: "v1"}).
		AddRule(testutil.Rule{InstanceID: "inst-b", PromptContains: "v1", Content: "v2"}).
		AddRule(testutil.Rule{InstanceID: "inst-c", PromptContains: "v2", Content: "v3"})

	mc := testContext(roster(3), responder)

	results, err := SendChained(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendChained() error = %v", err)
	}

	// Only the final contributor's slot is populated.
	if results[2] == nil || results[2].Content != "v3" {
		t.Fatalf("final slot = %+v", results[2])
	}
	if results[0] != nil || results[1] != nil {
		t.Error("intermediate slots must stay nil")
	}

	meta := results[2].Metadata.(ChainedMetadata)
	if len(meta.Steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(meta.Steps))
	}
	for i, want := range []string{"v1", "v2", "v3"} {
		if meta.Steps[i].Output != want {
			t.Errorf("step %d output = %q, want %q", i, meta.Steps[i].Output, want)
		}
	}
}

func TestChainedFailedStepSkipped(t *testing.T) {
	responder := testutil.NewScriptedResponder("").
		AddRule(testutil.Rule{InstanceID: "inst-a", Content: "v1"}).
		AddRule(testutil.Rule{InstanceID: "inst-b", Fail: true}).
		AddRule(testutil.Rule{InstanceID: "inst-c", PromptContains: "v1", Content: "v2"})

	mc := testContext(roster(3), responder)

	results, err := SendChained(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendChained() error = %v", err)
	}
	// inst-c continues from inst-a's output.
	if results[2] == nil || results[2].Content != "v2" {
		t.Fatalf("final slot = %+v", results[2])
	}
	meta := results[2].Metadata.(ChainedMetadata)
	if !meta.Steps[1].Skipped {
		t.Error("failed step not marked skipped")
	}
}

func TestChainedTrailingFailureFallsToLastContributor(t *testing.T) {
	responder := testutil.NewScriptedResponder("").
		AddRule(testutil.Rule{InstanceID: "inst-a", Content: "v1"}).
		AddRule(testutil.Rule{InstanceID: "inst-b", Content: "v2"}).
		AddRule(testutil.Rule{InstanceID: "inst-c", Fail: true})

	mc := testContext(roster(3), responder)

	results, err := SendChained(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendChained() error = %v", err)
	}
	if results[1] == nil || results[1].Content != "v2" {
		t.Fatalf("last contributor slot = %+v", results[1])
	}
	if results[2] != nil {
		t.Error("failed final step must not own the result")
	}
}

func TestChainedFirstStepAnswersDirectly(t *testing.T) {
	responder := testutil.NewScriptedResponder("x")
	mc := testContext(roster(2), responder)

	if _, err := SendChained(context.Background(), chat.TextContent("the question"), mc, nil); err != nil {
		t.Fatalf("SendChained() error = %v", err)
	}

	calls := responder.Calls()
	if calls[0].Prompt() != "the question" {
		t.Errorf("first step prompt = %q, want the raw question", calls[0].Prompt())
	}
	// Later steps work from the chain prompt, not the bare question.
	if calls[1].Prompt() == "the question" {
		t.Error("second step should receive the chain prompt")
	}
}
