package modes

import (
	"context"
	"testing"

	"github.com/ensemble-chat/ensemble/internal/chat"
	"github.com/ensemble-chat/ensemble/internal/testutil"
)

// -----------------------------------------------------------------------------
// Routing Tests
// -----------------------------------------------------------------------------

func TestRoutedSelectsByNumber(t *testing.T) {
	responder := testutil.NewScriptedResponder("routed answer").
		AddRule(testutil.Rule{PromptContains: "routing this question", Content: "3, it handles reasoning best"})

	mc := testContext(roster(3), responder)

	results, err := SendRouted(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendRouted() error = %v", err)
	}

	if results[2] == nil || results[2].Content != "routed answer" {
		t.Fatalf("selected slot = %+v", results[2])
	}
	if results[0] != nil || results[1] != nil {
		t.Error("unselected slots must stay nil")
	}

	meta := results[2].Metadata.(RoutedMetadata)
	if meta.Router != "inst-a" || meta.SelectedInstance != "inst-c" {
		t.Errorf("metadata = %+v", meta)
	}
	if meta.RoutingRationale == "" {
		t.Error("routing rationale not recorded")
	}
	// Routing call plus one answer call.
	if responder.CallCount() != 2 {
		t.Errorf("transport calls = %d, want 2", responder.CallCount())
	}
}

func TestRoutedOutOfRangeDefaultsToFirstNonRouter(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{name: "out of range", reply: "9"},
		{name: "zero", reply: "0"},
		{name: "no number", reply: "the clever one"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			responder := testutil.NewScriptedResponder("answer").
				AddRule(testutil.Rule{PromptContains: "routing this question", Content: tt.reply})

			mc := testContext(roster(3), responder)

			results, err := SendRouted(context.Background(), chat.TextContent("q"), mc, nil)
			if err != nil {
				t.Fatalf("SendRouted() error = %v", err)
			}
			if results[1] == nil {
				t.Fatal("expected fallback to inst-b, the first non-router instance")
			}
		})
	}
}

func TestRoutedRouterFailureDefaults(t *testing.T) {
	responder := testutil.NewScriptedResponder("answer").
		AddRule(testutil.Rule{PromptContains: "routing this question", Fail: true})

	mc := testContext(roster(2), responder)

	results, err := SendRouted(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendRouted() error = %v", err)
	}
	if results[1] == nil || results[1].Content != "answer" {
		t.Fatalf("default slot = %+v", results[1])
	}
}

func TestRoutedConfiguredRouter(t *testing.T) {
	responder := testutil.NewScriptedResponder("answer").
		AddRule(testutil.Rule{PromptContains: "routing this question", Content: "1"})

	mc := testContext(roster(3), responder)
	mc.Config.Route.RouterInstance = "inst-c"

	results, err := SendRouted(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendRouted() error = %v", err)
	}
	if results[0] == nil {
		t.Fatal("routed target slot not populated")
	}
	meta := results[0].Metadata.(RoutedMetadata)
	if meta.Router != "inst-c" {
		t.Errorf("router = %q, want inst-c", meta.Router)
	}
	if calls := responder.CallsForInstance("inst-c"); len(calls) != 1 {
		t.Errorf("router calls = %d, want 1", len(calls))
	}
}

func TestRoutedSelectedAnswerFailure(t *testing.T) {
	responder := testutil.NewScriptedResponder("").
		AddRule(testutil.Rule{PromptContains: "routing this question", Content: "2"})

	mc := testContext(roster(2), responder)

	results, err := SendRouted(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendRouted() error = %v", err)
	}
	for i, res := range results {
		if res != nil {
			t.Errorf("results[%d] populated after the answer call failed", i)
		}
	}
}
