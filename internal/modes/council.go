package modes

import (
	"context"
	"fmt"
	"strings"

	"github.com/ensemble-chat/ensemble/internal/chat"
)

// ModeCouncil runs a three-stage council: every member answers, each
// deliberates over the others' answers, and a chair summarizes the final
// positions into a verdict.
const ModeCouncil = "council"

// CouncilPhase enumerates the council mode's phases.
type CouncilPhase string

const (
	CouncilResponding   CouncilPhase = "responding"
	CouncilDeliberating CouncilPhase = "deliberating"
	CouncilSummarizing  CouncilPhase = "summarizing"
	CouncilDone         CouncilPhase = "done"
)

// CouncilState is the live state for the council mode.
type CouncilState struct {
	Phase CouncilPhase `json:"phase"`
	Chair string       `json:"chair"`
	// Answers holds the first-round answers, Positions the deliberated
	// final positions. A member whose deliberation failed reuses its
	// first-round answer as its position.
	Answers   map[string]Answer `json:"answers"`
	Positions map[string]Answer `json:"positions"`
	Summary   string            `json:"summary,omitempty"`

	summaryUsage *chat.Usage
}

// Mode implements progress.State.
func (CouncilState) Mode() string { return ModeCouncil }

func (s CouncilState) clone() CouncilState {
	s.Answers = cloneMap(s.Answers)
	s.Positions = cloneMap(s.Positions)
	return s
}

// CouncilMetadata is attached to the chair slot's result.
type CouncilMetadata struct {
	Mode         string            `json:"mode"`
	Chair        string            `json:"chair"`
	Answers      map[string]Answer `json:"answers"`
	Positions    map[string]Answer `json:"positions"`
	SummaryUsage *chat.Usage       `json:"summary_usage,omitempty"`
}

var councilSpec = defineSpec(Spec[CouncilState]{
	Name:      ModeCouncil,
	MinModels: 3,
	Initialize: func(mc *Context) CouncilState {
		chair := selectInstance(mc.Instances, mc.Config.Council.ChairInstance)
		return CouncilState{
			Phase:     CouncilResponding,
			Chair:     chair.ID,
			Answers:   make(map[string]Answer),
			Positions: make(map[string]Answer),
		}
	},
	Execute:  executeCouncil,
	Finalize: finalizeCouncil,
})

func executeCouncil(ctx context.Context, mc *Context, r *Runner[CouncilState]) (CouncilState, error) {
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
	}

	if len(state.Answers) == 0 {
		state.Phase = CouncilDone
		r.SetState(state)
		return state, nil
	}

	state.Phase = CouncilDeliberating
	r.SetState(state)

	// Each member deliberates over the other members' answers, labeled by
	// council seat in roster order.
	deliberatePrompt := orDefault(mc.Config.Council.DeliberatePrompt, defaultDeliberatePrompt)
	var members []Instance
	prompts := make(map[string]string)
	for _, inst := range mc.Instances {
		if _, ok := state.Answers[inst.ID]; !ok {
			continue
		}
		members = append(members, inst)
		prompts[inst.ID] = interpolate(deliberatePrompt, map[string]string{
			"question": mc.Question(),
			"context":  memberAnswers(mc, state.Answers, inst.ID),
		})
	}

	deliberation := r.GatherInstances(ctx, GatherRequest{
		Instances: members,
		BuildInput: func(inst Instance) []chat.InputItem {
			return r.PromptInput(prompts[inst.ID])
		},
	})

	state = state.clone()
	for _, res := range deliberation.Successful {
		state.Positions[res.Instance.ID] = Answer{
			InstanceID: res.Instance.ID,
			Label:      res.Instance.DisplayLabel(),
			Content:    res.Content,
			Usage:      res.Usage,
		}
	}
	// Deliberation failures fall back to the first-round answer.
	for _, inst := range members {
		if _, ok := state.Positions[inst.ID]; !ok {
			state.Positions[inst.ID] = state.Answers[inst.ID]
		}
	}

	state.Phase = CouncilSummarizing
	r.SetState(state)

	chair := selectInstance(mc.Instances, mc.Config.Council.ChairInstance)
	positions := memberAnswers(mc, state.Positions, "")
	prompt := interpolate(orDefault(mc.Config.Council.SummarizePrompt, defaultSummarizePrompt), map[string]string{
		"question": mc.Question(),
		"context":  positions,
	})

	resp := r.StreamInstance(ctx, chair, r.PromptInput(prompt))
	if resp != nil {
		state.Summary = resp.Content
		state.summaryUsage = resp.Usage
	} else {
		mc.logger().WithMode(ModeCouncil).Warn("chair summary failed, concatenating positions")
		state.Summary = positions
	}

	state.Phase = CouncilDone
	r.SetState(state)
	return state, nil
}

// memberAnswers renders answers labeled Member 1..N by roster seat,
// excluding the given instance (empty string excludes no one).
func memberAnswers(mc *Context, answers map[string]Answer, exclude string) string {
	var b strings.Builder
	for i, inst := range mc.Instances {
		a, ok := answers[inst.ID]
		if !ok || inst.ID == exclude {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Member %d:\n%s", i+1, a.Content)
	}
	return b.String()
}

func finalizeCouncil(state CouncilState, mc *Context) []*Result {
	results := nullResults(len(mc.Instances))
	if state.Summary == "" {
		return results
	}

	slot := indexByID(mc.Instances, state.Chair)
	if slot < 0 {
		slot = 0
	}

	results[slot] = &Result{
		Content: state.Summary,
		Usage:   state.summaryUsage,
		Metadata: CouncilMetadata{
			Mode:         ModeCouncil,
			Chair:        state.Chair,
			Answers:      state.Answers,
			Positions:    state.Positions,
			SummaryUsage: state.summaryUsage,
		},
	}
	return results
}

// SendCouncil runs the three-stage council mode.
func SendCouncil(ctx context.Context, content chat.Content, mc *Context, fallback Fallback) ([]*Result, error) {
	return Run(ctx, councilSpec, content, mc, fallback)
}
