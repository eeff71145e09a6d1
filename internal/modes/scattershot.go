package modes

import (
	"context"
	"fmt"

	"github.com/ensemble-chat/ensemble/internal/chat"
	"github.com/ensemble-chat/ensemble/internal/transport"
)

// ModeScattershot sweeps sampling parameters over a single model: the same
// prompt runs once per parameter variation, concurrently, and every
// variation gets its own result slot. This is the one mode whose result
// cardinality is the variation count, not the instance count.
const ModeScattershot = "scattershot"

// ScattershotPhase enumerates the scattershot mode's phases.
type ScattershotPhase string

const (
	ScattershotGenerating ScattershotPhase = "generating"
	ScattershotDone       ScattershotPhase = "done"
)

// ScattershotVariation is one parameter preset and its outcome.
type ScattershotVariation struct {
	ID      string           `json:"id"`
	Label   string           `json:"label"`
	Params  transport.Params `json:"params"`
	Status  Status           `json:"status"`
	Content string           `json:"content,omitempty"`
	Usage   *chat.Usage      `json:"usage,omitempty"`
}

// ScattershotState is the live state for the scattershot mode.
type ScattershotState struct {
	Phase      ScattershotPhase       `json:"phase"`
	Target     string                 `json:"target"`
	Variations []ScattershotVariation `json:"variations"`
}

// Mode implements progress.State.
func (ScattershotState) Mode() string { return ModeScattershot }

// ScattershotMetadata is attached to the first populated result only, so
// the sweep summary is not duplicated on every card.
type ScattershotMetadata struct {
	Mode           string                 `json:"mode"`
	Target         string                 `json:"target"`
	Variations     []ScattershotVariation `json:"variations"`
	AggregateUsage *chat.Usage            `json:"aggregate_usage,omitempty"`
}

// DefaultVariations returns the built-in temperature/top-p sweep.
func DefaultVariations() []transport.Params {
	return []transport.Params{
		{Temperature: transport.Float(0)},
		{Temperature: transport.Float(0.5)},
		{Temperature: transport.Float(1)},
		{Temperature: transport.Float(1.5), TopP: transport.Float(0.9)},
	}
}

var scattershotSpec = defineSpec(Spec[ScattershotState]{
	Name:      ModeScattershot,
	MinModels: 1,
	Initialize: func(mc *Context) ScattershotState {
		target := mc.Instances[0]
		params := mc.Config.Scattershot.Variations
		if len(params) == 0 {
			params = DefaultVariations()
		}

		variations := make([]ScattershotVariation, len(params))
		for i, p := range params {
			label := p.Label()
			if p.IsZero() {
				label = fmt.Sprintf("Variation %d", i+1)
			}
			variations[i] = ScattershotVariation{
				ID:     fmt.Sprintf("%s__variation_%d", target.ID, i),
				Label:  label,
				Params: p,
				Status: StatusPending,
			}
		}
		return ScattershotState{Phase: ScattershotGenerating, Target: target.ID, Variations: variations}
	},
	Execute:  executeScattershot,
	Finalize: finalizeScattershot,
})

func executeScattershot(ctx context.Context, mc *Context, r *Runner[ScattershotState]) (ScattershotState, error) {
	target := mc.Instances[0]
	state := r.State()

	// Each variation runs as a branch against the same model. Synthetic
	// instances give every branch its own identity so abort and progress
	// reporting stay per-variation.
	branches := make([]Instance, len(state.Variations))
	byVariation := make(map[string]int, len(state.Variations))
	for i, v := range state.Variations {
		branches[i] = Instance{
			ID:      v.ID,
			ModelID: target.ModelID,
			Label:   v.Label,
			Params:  target.Params.Merge(v.Params),
		}
		byVariation[v.ID] = i
	}

	r.SetState(state)

	r.GatherInstances(ctx, GatherRequest{
		Instances: branches,
		BuildInput: func(inst Instance) []chat.InputItem {
			return r.BuildConversationInput(inst.ModelID, mc.Content)
		},
		OnComplete: func(inst Instance, resp *transport.Response) {
			i := byVariation[inst.ID]
			r.UpdateState(func(s ScattershotState) ScattershotState {
				return s.withVariation(i, resp)
			})
		},
	})

	state = r.State()
	state.Phase = ScattershotDone
	r.SetState(state)
	return state, nil
}

// withVariation returns a copy of s with one variation's outcome recorded.
func (s ScattershotState) withVariation(index int, resp *transport.Response) ScattershotState {
	variations := append([]ScattershotVariation(nil), s.Variations...)
	if resp == nil {
		variations[index].Status = StatusFailed
	} else {
		variations[index].Status = StatusComplete
		variations[index].Content = resp.Content
		variations[index].Usage = resp.Usage
	}
	s.Variations = variations
	return s
}

func finalizeScattershot(state ScattershotState, mc *Context) []*Result {
	results := nullResults(len(state.Variations))

	usages := make([]*chat.Usage, 0, len(state.Variations))
	for _, v := range state.Variations {
		usages = append(usages, v.Usage)
	}
	aggregate := chat.AggregateUsage(usages...)

	attached := false
	for i, v := range state.Variations {
		if v.Status != StatusComplete {
			continue
		}
		results[i] = &Result{Content: v.Content, Usage: v.Usage}
		if !attached {
			results[i].Metadata = ScattershotMetadata{
				Mode:           ModeScattershot,
				Target:         state.Target,
				Variations:     state.Variations,
				AggregateUsage: aggregate,
			}
			attached = true
		}
	}
	return results
}

// SendScattershot runs the parameter-sweep mode.
func SendScattershot(ctx context.Context, content chat.Content, mc *Context, fallback Fallback) ([]*Result, error) {
	return Run(ctx, scattershotSpec, content, mc, fallback)
}
