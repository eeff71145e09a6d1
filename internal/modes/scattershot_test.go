package modes

import (
	"context"
	"testing"

	"github.com/ensemble-chat/ensemble/internal/chat"
	"github.com/ensemble-chat/ensemble/internal/testutil"
	"github.com/ensemble-chat/ensemble/internal/transport"
)

// -----------------------------------------------------------------------------
// Variation Tests
// -----------------------------------------------------------------------------

func TestScattershotDefaultVariations(t *testing.T) {
	responder := testutil.NewScriptedResponder("swept answer")
	mc := testContext(roster(1), responder)

	results, err := SendScattershot(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendScattershot() error = %v", err)
	}

	// Cardinality is the variation count, not the roster size.
	if len(results) != 4 {
		t.Fatalf("len(results) = %d, want 4", len(results))
	}
	if responder.CallCount() != 4 {
		t.Errorf("transport calls = %d, want 4", responder.CallCount())
	}

	meta, ok := results[0].Metadata.(ScattershotMetadata)
	if !ok {
		t.Fatalf("metadata type = %T", results[0].Metadata)
	}
	wantLabels := []string{"temp=0", "temp=0.5", "temp=1", "temp=1.5, top_p=0.9"}
	for i, want := range wantLabels {
		if meta.Variations[i].Label != want {
			t.Errorf("variation %d label = %q, want %q", i, meta.Variations[i].Label, want)
		}
	}

	// Only the first populated result carries the sweep summary.
	for i, res := range results[1:] {
		if res.Metadata != nil {
			t.Errorf("results[%d] carries metadata, want only the first", i+1)
		}
	}
}

func TestScattershotVariationIdentity(t *testing.T) {
	responder := testutil.NewScriptedResponder("answer")
	mc := testContext([]Instance{inst("inst-x", "model-x")}, responder)

	results, err := SendScattershot(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendScattershot() error = %v", err)
	}

	meta := results[0].Metadata.(ScattershotMetadata)
	if meta.Variations[2].ID != "inst-x__variation_2" {
		t.Errorf("variation id = %q, want inst-x__variation_2", meta.Variations[2].ID)
	}
	// All calls target the single instance's model.
	for _, call := range responder.Calls() {
		if call.ModelID != "model-x" {
			t.Errorf("call model = %q, want model-x", call.ModelID)
		}
	}
}

// -----------------------------------------------------------------------------
// Parameter Precedence Tests
// -----------------------------------------------------------------------------

func TestScattershotParamPrecedence(t *testing.T) {
	responder := testutil.NewScriptedResponder("answer")
	target := Instance{
		ID:      "inst-a",
		ModelID: "model-a",
		Params:  transport.Params{Temperature: transport.Float(0.2)},
	}
	mc := testContext([]Instance{target}, responder)
	mc.Settings = transport.Params{TopP: transport.Float(0.5), MaxTokens: transport.Int(256)}
	mc.Config.Scattershot.Variations = []transport.Params{
		{Temperature: transport.Float(1.0)},
		{},
	}

	results, err := SendScattershot(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendScattershot() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}

	for _, call := range responder.Calls() {
		// Base settings survive where no layer overrides them.
		if call.Params.MaxTokens == nil || *call.Params.MaxTokens != 256 {
			t.Errorf("max tokens = %v, want 256", call.Params.MaxTokens)
		}
		if call.Params.TopP == nil || *call.Params.TopP != 0.5 {
			t.Errorf("top_p = %v, want 0.5", call.Params.TopP)
		}
		switch call.InstanceID {
		case "inst-a__variation_0":
			// Variation params beat instance params.
			if *call.Params.Temperature != 1.0 {
				t.Errorf("variation 0 temperature = %v, want 1.0", *call.Params.Temperature)
			}
		case "inst-a__variation_1":
			// Empty variation: instance params stand.
			if *call.Params.Temperature != 0.2 {
				t.Errorf("variation 1 temperature = %v, want 0.2", *call.Params.Temperature)
			}
		default:
			t.Errorf("unexpected call instance %q", call.InstanceID)
		}
	}
}

func TestScattershotEmptyVariationLabel(t *testing.T) {
	responder := testutil.NewScriptedResponder("answer")
	mc := testContext(roster(1), responder)
	mc.Config.Scattershot.Variations = []transport.Params{{}}

	results, err := SendScattershot(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendScattershot() error = %v", err)
	}
	meta := results[0].Metadata.(ScattershotMetadata)
	if meta.Variations[0].Label != "Variation 1" {
		t.Errorf("label = %q, want \"Variation 1\"", meta.Variations[0].Label)
	}
}

func TestScattershotPartialFailure(t *testing.T) {
	responder := testutil.NewScriptedResponder("").
		AddRule(testutil.Rule{InstanceID: "inst-a__variation_1", Content: "survivor"})

	mc := testContext(roster(1), responder)

	results, err := SendScattershot(context.Background(), chat.TextContent("q"), mc, nil)
	if err != nil {
		t.Fatalf("SendScattershot() error = %v", err)
	}
	if results[0] != nil || results[2] != nil || results[3] != nil {
		t.Error("failed variations must stay nil")
	}
	if results[1] == nil || results[1].Content != "survivor" {
		t.Fatalf("surviving variation = %+v", results[1])
	}
	// The summary attaches to the first populated slot.
	if _, ok := results[1].Metadata.(ScattershotMetadata); !ok {
		t.Errorf("metadata type = %T", results[1].Metadata)
	}
}
