package modes

import (
	"context"

	"github.com/ensemble-chat/ensemble/internal/chat"
)

// ModeExplainer has the first instance answer and every other instance
// re-render that answer for a different audience level. Unlike the
// selection modes it deliberately populates multiple slots.
const ModeExplainer = "explainer"

// ExplainerPhase enumerates the explainer mode's phases.
type ExplainerPhase string

const (
	ExplainerAnswering  ExplainerPhase = "answering"
	ExplainerExplaining ExplainerPhase = "explaining"
	ExplainerDone       ExplainerPhase = "done"
)

// Explanation is one audience-level rendering of the primary answer.
type Explanation struct {
	InstanceID string      `json:"instance_id"`
	Label      string      `json:"label"`
	Level      string      `json:"level"`
	Content    string      `json:"content"`
	Usage      *chat.Usage `json:"usage,omitempty"`
}

// ExplainerState is the live state for the explainer mode.
type ExplainerState struct {
	Phase        ExplainerPhase `json:"phase"`
	Primary      string         `json:"primary"`
	Answer       string         `json:"answer,omitempty"`
	Explanations []Explanation  `json:"explanations"`

	answerUsage *chat.Usage
	answered    bool
}

// Mode implements progress.State.
func (ExplainerState) Mode() string { return ModeExplainer }

// ExplainerMetadata is attached to every populated slot.
type ExplainerMetadata struct {
	Mode          string `json:"mode"`
	Level         string `json:"level,omitempty"`
	IsExplanation bool   `json:"is_explanation"`
}

var explainerSpec = defineSpec(Spec[ExplainerState]{
	Name:      ModeExplainer,
	MinModels: 2,
	Initialize: func(mc *Context) ExplainerState {
		return ExplainerState{Phase: ExplainerAnswering, Primary: mc.Instances[0].ID}
	},
	Execute:  executeExplainer,
	Finalize: finalizeExplainer,
})

func executeExplainer(ctx context.Context, mc *Context, r *Runner[ExplainerState]) (ExplainerState, error) {
	state := r.State()
	primary := mc.Instances[0]

	resp := r.StreamInstance(ctx, primary, r.BuildConversationInput(primary.ModelID, mc.Content))
	if resp == nil {
		// Nothing to explain without a primary answer.
		state.Phase = ExplainerDone
		r.SetState(state)
		return state, nil
	}
	state.Answer = resp.Content
	state.answerUsage = resp.Usage
	state.answered = true

	state.Phase = ExplainerExplaining
	r.SetState(state)

	levels := mc.Config.Explain.Levels
	if len(levels) == 0 {
		levels = DefaultExplainLevels()
	}
	explainPrompt := orDefault(mc.Config.Explain.ExplainPrompt, defaultExplainPrompt)

	explainers := mc.Instances[1:]
	assigned := make(map[string]string, len(explainers)) // instance -> level
	prompts := make(map[string]string, len(explainers))
	for i, inst := range explainers {
		level := levels[i%len(levels)]
		assigned[inst.ID] = level
		prompts[inst.ID] = interpolate(explainPrompt, map[string]string{
			"question": mc.Question(),
			"previous": state.Answer,
			"audience": level,
		})
	}

	outcome := r.GatherInstances(ctx, GatherRequest{
		Instances: explainers,
		BuildInput: func(inst Instance) []chat.InputItem {
			return r.PromptInput(prompts[inst.ID])
		},
	})

	for _, res := range outcome.Successful {
		state.Explanations = appendRound(state.Explanations, Explanation{
			InstanceID: res.Instance.ID,
			Label:      res.Instance.DisplayLabel(),
			Level:      assigned[res.Instance.ID],
			Content:    res.Content,
			Usage:      res.Usage,
		})
	}

	state.Phase = ExplainerDone
	r.SetState(state)
	return state, nil
}

func finalizeExplainer(state ExplainerState, mc *Context) []*Result {
	results := nullResults(len(mc.Instances))
	if !state.answered {
		return results
	}

	results[0] = &Result{
		Content:  state.Answer,
		Usage:    state.answerUsage,
		Metadata: ExplainerMetadata{Mode: ModeExplainer},
	}

	for _, expl := range state.Explanations {
		slot := indexByID(mc.Instances, expl.InstanceID)
		if slot < 0 {
			continue
		}
		results[slot] = &Result{
			Content: expl.Content,
			Usage:   expl.Usage,
			Metadata: ExplainerMetadata{
				Mode:          ModeExplainer,
				Level:         expl.Level,
				IsExplanation: true,
			},
		}
	}
	return results
}

// SendExplainer runs the multi-audience explanation mode.
func SendExplainer(ctx context.Context, content chat.Content, mc *Context, fallback Fallback) ([]*Result, error) {
	return Run(ctx, explainerSpec, content, mc, fallback)
}
