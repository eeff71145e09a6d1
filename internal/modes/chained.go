package modes

import (
	"context"

	"github.com/ensemble-chat/ensemble/internal/chat"
)

// ModeChained runs the instances as a pipeline: the first answers the
// question and each later instance improves the running answer in turn.
const ModeChained = "chained"

// ChainedPhase enumerates the chained mode's phases.
type ChainedPhase string

const (
	ChainedResponding ChainedPhase = "responding"
	ChainedDone       ChainedPhase = "done"
)

// ChainStep records one link of the pipeline.
type ChainStep struct {
	InstanceID string      `json:"instance_id"`
	Label      string      `json:"label"`
	Output     string      `json:"output,omitempty"`
	Usage      *chat.Usage `json:"usage,omitempty"`
	// Skipped marks a failed step; the chain continued from the prior
	// good output.
	Skipped bool `json:"skipped"`
}

// ChainedState is the live state for the chained mode.
type ChainedState struct {
	Phase   ChainedPhase `json:"phase"`
	Current string       `json:"current,omitempty"`
	Steps   []ChainStep  `json:"steps"`
	// Final is the last contributing instance, empty if every step failed.
	Final string `json:"final,omitempty"`
}

// Mode implements progress.State.
func (ChainedState) Mode() string { return ModeChained }

// ChainedMetadata is attached to the final contributor's result.
type ChainedMetadata struct {
	Mode           string      `json:"mode"`
	Steps          []ChainStep `json:"steps"`
	AggregateUsage *chat.Usage `json:"aggregate_usage,omitempty"`
}

var chainedSpec = defineSpec(Spec[ChainedState]{
	Name:      ModeChained,
	MinModels: 2,
	Initialize: func(mc *Context) ChainedState {
		return ChainedState{Phase: ChainedResponding}
	},
	Execute:  executeChained,
	Finalize: finalizeChained,
})

func executeChained(ctx context.Context, mc *Context, r *Runner[ChainedState]) (ChainedState, error) {
	state := r.State()
	chainPrompt := orDefault(mc.Config.Chain.ChainPrompt, defaultChainPrompt)

	current := ""
	for _, inst := range mc.Instances {
		state.Current = inst.ID
		r.SetState(state)

		var input []chat.InputItem
		if current == "" {
			// Nothing to build on yet: this step (the first, or every
			// earlier step failed) answers the question directly.
			input = r.BuildConversationInput(inst.ModelID, mc.Content)
		} else {
			input = r.PromptInput(interpolate(chainPrompt, map[string]string{
				"question": mc.Question(),
				"previous": current,
			}))
		}

		resp := r.StreamInstance(ctx, inst, input)
		step := ChainStep{InstanceID: inst.ID, Label: inst.DisplayLabel()}
		if resp == nil {
			step.Skipped = true
		} else {
			step.Output = resp.Content
			step.Usage = resp.Usage
			current = resp.Content
			state.Final = inst.ID
		}
		state.Steps = appendRound(state.Steps, step)
		r.SetState(state)
	}

	state.Current = ""
	state.Phase = ChainedDone
	r.SetState(state)
	return state, nil
}

func finalizeChained(state ChainedState, mc *Context) []*Result {
	results := nullResults(len(mc.Instances))
	if state.Final == "" {
		return results
	}

	slot := indexByID(mc.Instances, state.Final)
	if slot < 0 {
		return results
	}

	var content string
	usages := make([]*chat.Usage, 0, len(state.Steps))
	for _, step := range state.Steps {
		if !step.Skipped {
			content = step.Output
		}
		usages = append(usages, step.Usage)
	}

	results[slot] = &Result{
		Content: content,
		Usage:   stepUsage(state.Steps, state.Final),
		Metadata: ChainedMetadata{
			Mode:           ModeChained,
			Steps:          state.Steps,
			AggregateUsage: chat.AggregateUsage(usages...),
		},
	}
	return results
}

func stepUsage(steps []ChainStep, instanceID string) *chat.Usage {
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].InstanceID == instanceID && !steps[i].Skipped {
			return steps[i].Usage
		}
	}
	return nil
}

// SendChained runs the sequential pipeline mode.
func SendChained(ctx context.Context, content chat.Content, mc *Context, fallback Fallback) ([]*Result, error) {
	return Run(ctx, chainedSpec, content, mc, fallback)
}
