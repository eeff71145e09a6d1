package modes

import (
	"context"
	"testing"

	"github.com/ensemble-chat/ensemble/internal/chat"
	"github.com/ensemble-chat/ensemble/internal/progress"
	"github.com/ensemble-chat/ensemble/internal/testutil"
)

// -----------------------------------------------------------------------------
// Parallel Response Tests
// -----------------------------------------------------------------------------

func TestMultipleFillsEverySlot(t *testing.T) {
	responder := testutil.NewScriptedResponder("").
		AddRule(testutil.Rule{InstanceID: "inst-a", Content: "from a", Usage: &chat.Usage{TotalTokens: 5}}).
		AddRule(testutil.Rule{InstanceID: "inst-b", Content: "from b"}).
		AddRule(testutil.Rule{InstanceID: "inst-c", Fail: true})

	mc := testContext(roster(3), responder)

	results, err := SendMultiple(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendMultiple() error = %v", err)
	}

	if results[0] == nil || results[0].Content != "from a" {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[0].Usage == nil || results[0].Usage.TotalTokens != 5 {
		t.Errorf("results[0].Usage = %+v", results[0].Usage)
	}
	if results[1] == nil || results[1].Content != "from b" {
		t.Errorf("results[1] = %+v", results[1])
	}
	if results[2] != nil {
		t.Errorf("results[2] = %+v, want nil for the failed branch", results[2])
	}
}

func TestMultipleAsFallback(t *testing.T) {
	// Tournament below its minimum delegates to the multiple fallback,
	// which runs with the same roster and transport.
	responder := testutil.NewScriptedResponder("fallback answer")
	mc := testContext(roster(2), responder)

	results, err := SendTournament(context.Background(), chat.TextContent("q"), mc, MultipleFallback(mc))
	if err != nil {
		t.Fatalf("SendTournament() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	for i, res := range results {
		if res == nil || res.Content != "fallback answer" {
			t.Errorf("results[%d] = %+v", i, res)
		}
	}
}

// -----------------------------------------------------------------------------
// Live Progress Tests
// -----------------------------------------------------------------------------

func TestMultiplePublishesProgress(t *testing.T) {
	responder := testutil.NewScriptedResponder("answer")
	mc := testContext(roster(2), responder)
	mc.Store = progress.NewStore()

	states, cancel := mc.Store.Subscribe()
	defer cancel()

	if _, err := SendMultiple(context.Background(), chat.TextContent("q"), mc, nil); err != nil {
		t.Fatalf("SendMultiple() error = %v", err)
	}

	var last MultipleState
	seen := 0
drain:
	for {
		select {
		case state := <-states:
			ms, ok := state.(MultipleState)
			if !ok {
				t.Fatalf("state type = %T", state)
			}
			last = ms
			seen++
		default:
			break drain
		}
	}

	if seen == 0 {
		t.Fatal("no states published")
	}
	if last.Phase != MultipleDone {
		t.Errorf("final phase = %q, want %q", last.Phase, MultipleDone)
	}
	for _, id := range []string{"inst-a", "inst-b"} {
		if last.Statuses[id] != StatusComplete {
			t.Errorf("%s status = %q, want complete", id, last.Statuses[id])
		}
	}
}
