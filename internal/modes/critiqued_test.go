package modes

import (
	"context"
	"strings"
	"testing"

	"github.com/ensemble-chat/ensemble/internal/chat"
	"github.com/ensemble-chat/ensemble/internal/testutil"
)

// -----------------------------------------------------------------------------
// Critique Ring Tests
// -----------------------------------------------------------------------------

func TestCritiquedRingAssignment(t *testing.T) {
	responder := testutil.NewScriptedResponder("").
		AddRule(testutil.Rule{PromptContains: "Write a concise, specific critique", Content: "too vague"}).
		AddRule(testutil.Rule{PromptContains: "Revise your answer", Content: "revised"}).
		AddRule(testutil.Rule{Content: "initial"})

	mc := testContext(roster(3), responder)

	results, err := SendCritiqued(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendCritiqued() error = %v", err)
	}

	wantCritics := map[string]string{
		"inst-a": "inst-b",
		"inst-b": "inst-c",
		"inst-c": "inst-a",
	}
	for i, instID := range []string{"inst-a", "inst-b", "inst-c"} {
		if results[i] == nil {
			t.Fatalf("results[%d] = nil", i)
		}
		meta := results[i].Metadata.(CritiquedMetadata)
		if meta.Critic != wantCritics[instID] {
			t.Errorf("%s critic = %q, want %q", instID, meta.Critic, wantCritics[instID])
		}
		if !meta.Revised {
			t.Errorf("%s should be revised", instID)
		}
		if results[i].Content != "revised" {
			t.Errorf("%s content = %q, want revised", instID, results[i].Content)
		}
		if meta.InitialAnswer != "initial" {
			t.Errorf("%s initial answer = %q", instID, meta.InitialAnswer)
		}
	}
}

func TestCritiquedTwoAuthorsCritiqueEachOther(t *testing.T) {
	responder := testutil.NewScriptedResponder("").
		AddRule(testutil.Rule{PromptContains: "Write a concise, specific critique", Content: "weak"}).
		AddRule(testutil.Rule{PromptContains: "Revise your answer", Content: "fixed"}).
		AddRule(testutil.Rule{Content: "first draft"})

	mc := testContext(roster(2), responder)

	results, err := SendCritiqued(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendCritiqued() error = %v", err)
	}
	if results[0].Metadata.(CritiquedMetadata).Critic != "inst-b" {
		t.Error("inst-a should be critiqued by inst-b")
	}
	if results[1].Metadata.(CritiquedMetadata).Critic != "inst-a" {
		t.Error("inst-b should be critiqued by inst-a")
	}
}

// -----------------------------------------------------------------------------
// Failure Handling Tests
// -----------------------------------------------------------------------------

func TestCritiquedFailedCritiqueKeepsInitial(t *testing.T) {
	responder := testutil.NewScriptedResponder("").
		AddRule(testutil.Rule{PromptContains: "Write a concise, specific critique", Fail: true}).
		AddRule(testutil.Rule{Content: "initial"})

	mc := testContext(roster(2), responder)

	results, err := SendCritiqued(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendCritiqued() error = %v", err)
	}
	for i, res := range results {
		if res == nil || res.Content != "initial" {
			t.Fatalf("results[%d] = %+v, want the initial answer", i, res)
		}
		if res.Metadata.(CritiquedMetadata).Revised {
			t.Errorf("results[%d] marked revised without a critique", i)
		}
	}
}

func TestCritiquedFailedRevisionKeepsInitial(t *testing.T) {
	responder := testutil.NewScriptedResponder("").
		AddRule(testutil.Rule{PromptContains: "Write a concise, specific critique", Content: "critique text"}).
		AddRule(testutil.Rule{PromptContains: "Revise your answer", Fail: true}).
		AddRule(testutil.Rule{Content: "initial"})

	mc := testContext(roster(2), responder)

	results, err := SendCritiqued(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendCritiqued() error = %v", err)
	}
	for i, res := range results {
		if res == nil || res.Content != "initial" {
			t.Fatalf("results[%d] = %+v", i, res)
		}
		meta := res.Metadata.(CritiquedMetadata)
		if meta.Revised {
			t.Errorf("results[%d] marked revised after a failed revision", i)
		}
		// The critique itself still surfaces in metadata.
		if !strings.Contains(meta.Critique, "critique text") {
			t.Errorf("results[%d] critique = %q", i, meta.Critique)
		}
	}
}
