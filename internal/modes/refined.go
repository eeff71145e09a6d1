package modes

import (
	"context"

	"github.com/ensemble-chat/ensemble/internal/chat"
)

// ModeRefined runs iterative self-refinement: every instance answers, then
// improves its own prior answer over a fixed number of rounds.
const ModeRefined = "refined"

// RefinedPhase enumerates the refined mode's phases.
type RefinedPhase string

const (
	RefinedResponding RefinedPhase = "responding"
	RefinedRefining   RefinedPhase = "refining"
	RefinedDone       RefinedPhase = "done"
)

// RefinedState is the live state for the refined mode.
type RefinedState struct {
	Phase RefinedPhase `json:"phase"`
	// Round is 0 during the initial response, then the refinement round.
	Round    int               `json:"round"`
	Statuses map[string]Status `json:"statuses"`
	Answers  map[string]Answer `json:"answers"`
	// History holds each instance's answer text per completed round.
	History map[string][]string `json:"history"`

	usage map[string][]*chat.Usage
}

// Mode implements progress.State.
func (RefinedState) Mode() string { return ModeRefined }

// RefinedMetadata is attached to each populated slot.
type RefinedMetadata struct {
	Mode           string      `json:"mode"`
	Rounds         []string    `json:"rounds"`
	AggregateUsage *chat.Usage `json:"aggregate_usage,omitempty"`
}

var refinedSpec = defineSpec(Spec[RefinedState]{
	Name:      ModeRefined,
	MinModels: 2,
	Initialize: func(mc *Context) RefinedState {
		statuses := make(map[string]Status, len(mc.Instances))
		for _, inst := range mc.Instances {
			statuses[inst.ID] = StatusGenerating
		}
		return RefinedState{
			Phase:    RefinedResponding,
			Statuses: statuses,
			Answers:  make(map[string]Answer),
			History:  make(map[string][]string),
			usage:    make(map[string][]*chat.Usage),
		}
	},
	Execute:  executeRefined,
	Finalize: finalizeRefined,
})

// clone returns a copy of s safe to mutate while subscribers hold earlier
// snapshots.
func (s RefinedState) clone() RefinedState {
	s.Statuses = cloneMap(s.Statuses)
	s.Answers = cloneMap(s.Answers)
	s.History = cloneMap(s.History)
	s.usage = cloneMap(s.usage)
	return s
}

func executeRefined(ctx context.Context, mc *Context, r *Runner[RefinedState]) (RefinedState, error) {
	state := r.State().clone()

	outcome := r.GatherInstances(ctx, GatherRequest{
		Instances: mc.Instances,
		BuildInput: func(inst Instance) []chat.InputItem {
			return r.BuildConversationInput(inst.ModelID, mc.Content)
		},
	})

	for _, res := range outcome.Successful {
		state.Answers[res.Instance.ID] = Answer{
			InstanceID: res.Instance.ID,
			Label:      res.Instance.DisplayLabel(),
			Content:    res.Content,
			Usage:      res.Usage,
		}
		state.History[res.Instance.ID] = []string{res.Content}
		state.usage[res.Instance.ID] = []*chat.Usage{res.Usage}
		state.Statuses[res.Instance.ID] = StatusComplete
	}
	for _, inst := range outcome.Failed {
		state.Statuses[inst.ID] = StatusFailed
	}

	if len(state.Answers) == 0 {
		state.Phase = RefinedDone
		r.SetState(state)
		return state, nil
	}

	rounds := mc.Config.Refine.Rounds
	if rounds <= 0 {
		rounds = DefaultRefineRounds
	}
	refinePrompt := orDefault(mc.Config.Refine.RefinePrompt, defaultRefinePrompt)

	for round := 1; round <= rounds; round++ {
		state = state.clone()
		var participants []Instance
		for _, inst := range mc.Instances {
			if _, ok := state.Answers[inst.ID]; ok {
				participants = append(participants, inst)
				state.Statuses[inst.ID] = StatusInProgress
			}
		}

		state.Phase = RefinedRefining
		state.Round = round
		r.SetState(state)

		// Snapshot the prompts before the fan-out so every branch refines
		// against the same prior round.
		prompts := make(map[string]string, len(participants))
		for _, inst := range participants {
			prompts[inst.ID] = interpolate(refinePrompt, map[string]string{
				"question": mc.Question(),
				"previous": state.Answers[inst.ID].Content,
			})
		}

		outcome := r.GatherInstances(ctx, GatherRequest{
			Instances: participants,
			BuildInput: func(inst Instance) []chat.InputItem {
				return r.PromptInput(prompts[inst.ID])
			},
		})

		state = state.clone()
		for _, res := range outcome.Successful {
			answer := state.Answers[res.Instance.ID]
			answer.Content = res.Content
			answer.Usage = res.Usage
			state.Answers[res.Instance.ID] = answer
			state.usage[res.Instance.ID] = append(state.usage[res.Instance.ID], res.Usage)
			state.Statuses[res.Instance.ID] = StatusComplete
		}
		// A failed refinement keeps the prior round's text.
		for _, inst := range outcome.Failed {
			state.Statuses[inst.ID] = StatusComplete
		}
		for _, inst := range participants {
			state.History[inst.ID] = append(state.History[inst.ID], state.Answers[inst.ID].Content)
		}
		r.SetState(state)
	}

	state = state.clone()
	state.Phase = RefinedDone
	r.SetState(state)
	return state, nil
}

func finalizeRefined(state RefinedState, mc *Context) []*Result {
	results := nullResults(len(mc.Instances))
	for i, inst := range mc.Instances {
		answer, ok := state.Answers[inst.ID]
		if !ok {
			continue
		}
		results[i] = &Result{
			Content: answer.Content,
			Usage:   answer.Usage,
			Metadata: RefinedMetadata{
				Mode:           ModeRefined,
				Rounds:         state.History[inst.ID],
				AggregateUsage: chat.AggregateUsage(state.usage[inst.ID]...),
			},
		}
	}
	return results
}

// SendRefined runs the iterative self-refinement mode.
func SendRefined(ctx context.Context, content chat.Content, mc *Context, fallback Fallback) ([]*Result, error) {
	return Run(ctx, refinedSpec, content, mc, fallback)
}
