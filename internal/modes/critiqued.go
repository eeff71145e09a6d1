package modes

import (
	"context"

	"github.com/ensemble-chat/ensemble/internal/chat"
)

// ModeCritiqued runs peer review in a ring: every instance answers, each
// answer is critiqued by the next successful author, and authors revise
// their own answer against the critique they received.
const ModeCritiqued = "critiqued"

// CritiquedPhase enumerates the critiqued mode's phases.
type CritiquedPhase string

const (
	CritiquedResponding CritiquedPhase = "responding"
	CritiquedCritiquing CritiquedPhase = "critiquing"
	CritiquedRevising   CritiquedPhase = "revising"
	CritiquedDone       CritiquedPhase = "done"
)

// Critique is one peer review of an author's answer.
type Critique struct {
	CriticID string      `json:"critic_id"`
	Content  string      `json:"content"`
	Usage    *chat.Usage `json:"usage,omitempty"`
}

// CritiquedState is the live state for the critiqued mode.
type CritiquedState struct {
	Phase    CritiquedPhase    `json:"phase"`
	Statuses map[string]Status `json:"statuses"`
	// Answers holds each author's current text, revised in place.
	Answers map[string]Answer `json:"answers"`
	// Critiques is keyed by the author whose answer was reviewed.
	Critiques map[string]Critique `json:"critiques"`
	Revised   map[string]bool     `json:"revised"`

	initial map[string]string
}

// Mode implements progress.State.
func (CritiquedState) Mode() string { return ModeCritiqued }

func (s CritiquedState) clone() CritiquedState {
	s.Statuses = cloneMap(s.Statuses)
	s.Answers = cloneMap(s.Answers)
	s.Critiques = cloneMap(s.Critiques)
	s.Revised = cloneMap(s.Revised)
	s.initial = cloneMap(s.initial)
	return s
}

// CritiquedMetadata is attached to each populated slot.
type CritiquedMetadata struct {
	Mode          string `json:"mode"`
	Critic        string `json:"critic,omitempty"`
	Critique      string `json:"critique,omitempty"`
	Revised       bool   `json:"revised"`
	InitialAnswer string `json:"initial_answer"`
}

var critiquedSpec = defineSpec(Spec[CritiquedState]{
	Name:      ModeCritiqued,
	MinModels: 2,
	Initialize: func(mc *Context) CritiquedState {
		statuses := make(map[string]Status, len(mc.Instances))
		for _, inst := range mc.Instances {
			statuses[inst.ID] = StatusGenerating
		}
		return CritiquedState{
			Phase:     CritiquedResponding,
			Statuses:  statuses,
			Answers:   make(map[string]Answer),
			Critiques: make(map[string]Critique),
			Revised:   make(map[string]bool),
			initial:   make(map[string]string),
		}
	},
	Execute:  executeCritiqued,
	Finalize: finalizeCritiqued,
})

func executeCritiqued(ctx context.Context, mc *Context, r *Runner[CritiquedState]) (CritiquedState, error) {
	state := r.State().clone()

	outcome := r.GatherInstances(ctx, GatherRequest{
		Instances: mc.Instances,
		BuildInput: func(inst Instance) []chat.InputItem {
			return r.BuildConversationInput(inst.ModelID, mc.Content)
		},
	})

	authors := make([]Instance, 0, len(outcome.Successful))
	for _, res := range outcome.Successful {
		authors = append(authors, res.Instance)
		state.Answers[res.Instance.ID] = Answer{
			InstanceID: res.Instance.ID,
			Label:      res.Instance.DisplayLabel(),
			Content:    res.Content,
			Usage:      res.Usage,
		}
		state.initial[res.Instance.ID] = res.Content
		state.Statuses[res.Instance.ID] = StatusComplete
	}
	for _, inst := range outcome.Failed {
		state.Statuses[inst.ID] = StatusFailed
	}

	if len(authors) == 0 {
		state.Phase = CritiquedDone
		r.SetState(state)
		return state, nil
	}

	// Critique ring: author i is reviewed by author i+1 (mod N), so with
	// two authors they critique each other. A lone author reviews itself.
	state.Phase = CritiquedCritiquing
	r.SetState(state)

	critiquePrompt := orDefault(mc.Config.Critique.CritiquePrompt, defaultCritiquePrompt)
	prompts := make(map[string]string, len(authors))
	reviewedBy := make(map[string]string, len(authors)) // author -> critic
	for i, author := range authors {
		critic := authors[(i+1)%len(authors)]
		reviewedBy[author.ID] = critic.ID
		prompts[critic.ID] = interpolate(critiquePrompt, map[string]string{
			"question": mc.Question(),
			"previous": state.Answers[author.ID].Content,
		})
	}

	critiqueOutcome := r.GatherInstances(ctx, GatherRequest{
		Instances: authors,
		BuildInput: func(inst Instance) []chat.InputItem {
			return r.PromptInput(prompts[inst.ID])
		},
	})

	critiqued := make(map[string]Critique, len(critiqueOutcome.Successful)) // critic -> critique
	for _, res := range critiqueOutcome.Successful {
		critiqued[res.Instance.ID] = Critique{
			CriticID: res.Instance.ID,
			Content:  res.Content,
			Usage:    res.Usage,
		}
	}

	state = state.clone()
	var revisers []Instance
	for _, author := range authors {
		critique, ok := critiqued[reviewedBy[author.ID]]
		if !ok {
			// Failed critique: the author keeps its initial answer.
			continue
		}
		state.Critiques[author.ID] = critique
		revisers = append(revisers, author)
	}

	if len(revisers) == 0 {
		state.Phase = CritiquedDone
		r.SetState(state)
		return state, nil
	}

	state.Phase = CritiquedRevising
	r.SetState(state)

	revisePrompt := orDefault(mc.Config.Critique.RevisePrompt, defaultRevisePrompt)
	revisionPrompts := make(map[string]string, len(revisers))
	for _, author := range revisers {
		revisionPrompts[author.ID] = interpolate(revisePrompt, map[string]string{
			"question": mc.Question(),
			"previous": state.Answers[author.ID].Content,
			"context":  state.Critiques[author.ID].Content,
		})
	}

	reviseOutcome := r.GatherInstances(ctx, GatherRequest{
		Instances: revisers,
		BuildInput: func(inst Instance) []chat.InputItem {
			return r.PromptInput(revisionPrompts[inst.ID])
		},
	})

	state = state.clone()
	for _, res := range reviseOutcome.Successful {
		answer := state.Answers[res.Instance.ID]
		answer.Content = res.Content
		answer.Usage = res.Usage
		state.Answers[res.Instance.ID] = answer
		state.Revised[res.Instance.ID] = true
	}

	state.Phase = CritiquedDone
	r.SetState(state)
	return state, nil
}

func finalizeCritiqued(state CritiquedState, mc *Context) []*Result {
	results := nullResults(len(mc.Instances))
	for i, inst := range mc.Instances {
		answer, ok := state.Answers[inst.ID]
		if !ok {
			continue
		}
		critique := state.Critiques[inst.ID]
		results[i] = &Result{
			Content: answer.Content,
			Usage:   answer.Usage,
			Metadata: CritiquedMetadata{
				Mode:          ModeCritiqued,
				Critic:        critique.CriticID,
				Critique:      critique.Content,
				Revised:       state.Revised[inst.ID],
				InitialAnswer: state.initial[inst.ID],
			},
		}
	}
	return results
}

// SendCritiqued runs the ring peer-review mode.
func SendCritiqued(ctx context.Context, content chat.Content, mc *Context, fallback Fallback) ([]*Result, error) {
	return Run(ctx, critiquedSpec, content, mc, fallback)
}
