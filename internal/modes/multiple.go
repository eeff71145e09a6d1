package modes

import (
	"context"

	"github.com/ensemble-chat/ensemble/internal/chat"
	"github.com/ensemble-chat/ensemble/internal/transport"
)

// Status tracks one unit of work inside a mode's live state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusGenerating Status = "generating"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// Answer is a completed response captured in live state: who produced it,
// the text, and the usage if reported.
type Answer struct {
	InstanceID string      `json:"instance_id"`
	Label      string      `json:"label"`
	Content    string      `json:"content"`
	Usage      *chat.Usage `json:"usage,omitempty"`
}

func answerFrom(inst Instance, resp *transport.Response) Answer {
	return Answer{
		InstanceID: inst.ID,
		Label:      inst.DisplayLabel(),
		Content:    resp.Content,
		Usage:      resp.Usage,
	}
}

// answersFrom converts the successful half of a fan-out into Answers,
// preserving roster order.
func answersFrom(results []InstanceResult) []Answer {
	answers := make([]Answer, len(results))
	for i, res := range results {
		answers[i] = Answer{
			InstanceID: res.Instance.ID,
			Label:      res.Instance.DisplayLabel(),
			Content:    res.Content,
			Usage:      res.Usage,
		}
	}
	return answers
}

// usageOf collects the usage pointers from a list of answers.
func usageOf(answers []Answer) []*chat.Usage {
	usages := make([]*chat.Usage, len(answers))
	for i, a := range answers {
		usages[i] = a.Usage
	}
	return usages
}

// ModeMultiple is the simple independent-responses strategy. It doubles as
// the fallback every other mode degrades to below its minimum roster.
const ModeMultiple = "multiple"

// MultiplePhase enumerates the multiple mode's phases.
type MultiplePhase string

const (
	MultipleResponding MultiplePhase = "responding"
	MultipleDone       MultiplePhase = "done"
)

// MultipleState is the live state for the multiple mode. Answers
// accumulate as branches settle.
type MultipleState struct {
	Phase    MultiplePhase     `json:"phase"`
	Statuses map[string]Status `json:"statuses"` // instance ID -> status
	Answers  map[string]Answer `json:"answers"`  // instance ID -> answer
}

// Mode implements progress.State.
func (MultipleState) Mode() string { return ModeMultiple }

func (s MultipleState) withAnswer(inst Instance, resp *transport.Response) MultipleState {
	next := s
	next.Statuses = cloneMap(s.Statuses)
	next.Answers = cloneMap(s.Answers)
	if resp == nil {
		next.Statuses[inst.ID] = StatusFailed
		return next
	}
	next.Statuses[inst.ID] = StatusComplete
	next.Answers[inst.ID] = answerFrom(inst, resp)
	return next
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var multipleSpec = defineSpec(Spec[MultipleState]{
	Name:      ModeMultiple,
	MinModels: 1,
	Initialize: func(mc *Context) MultipleState {
		statuses := make(map[string]Status, len(mc.Instances))
		for _, inst := range mc.Instances {
			statuses[inst.ID] = StatusGenerating
		}
		return MultipleState{
			Phase:    MultipleResponding,
			Statuses: statuses,
			Answers:  make(map[string]Answer),
		}
	},
	Execute: func(ctx context.Context, mc *Context, r *Runner[MultipleState]) (MultipleState, error) {
		r.GatherInstances(ctx, GatherRequest{
			Instances: mc.Instances,
			BuildInput: func(inst Instance) []chat.InputItem {
				return r.BuildConversationInput(inst.ModelID, mc.Content)
			},
			OnComplete: func(inst Instance, resp *transport.Response) {
				r.UpdateState(func(s MultipleState) MultipleState {
					return s.withAnswer(inst, resp)
				})
			},
		})

		r.UpdateState(func(s MultipleState) MultipleState {
			next := s
			next.Phase = MultipleDone
			return next
		})
		return r.State(), nil
	},
	Finalize: func(state MultipleState, mc *Context) []*Result {
		results := nullResults(len(mc.Instances))
		for i, inst := range mc.Instances {
			if answer, ok := state.Answers[inst.ID]; ok {
				results[i] = &Result{Content: answer.Content, Usage: answer.Usage}
			}
		}
		return results
	},
})

// SendMultiple runs every instance against the prompt independently, one
// result slot per instance. With zero instances it delegates to fallback.
func SendMultiple(ctx context.Context, content chat.Content, mc *Context, fallback Fallback) ([]*Result, error) {
	return Run(ctx, multipleSpec, content, mc, fallback)
}

// MultipleFallback adapts SendMultiple into the Fallback shape the other
// modes expect.
func MultipleFallback(mc *Context) Fallback {
	return func(ctx context.Context, content chat.Content) ([]*Result, error) {
		return SendMultiple(ctx, content, mc, nil)
	}
}
