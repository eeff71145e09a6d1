package modes

import (
	"context"
	"fmt"
	"strings"

	"github.com/ensemble-chat/ensemble/internal/chat"
)

// ModeSynthesized fans out to every instance and merges the answers into a
// single response through a designated synthesizer instance.
const ModeSynthesized = "synthesized"

// SynthesizedPhase enumerates the synthesized mode's phases.
type SynthesizedPhase string

const (
	SynthesizedResponding   SynthesizedPhase = "responding"
	SynthesizedSynthesizing SynthesizedPhase = "synthesizing"
	SynthesizedDone         SynthesizedPhase = "done"
)

// SynthesizedState is the live state for the synthesized mode.
type SynthesizedState struct {
	Phase       SynthesizedPhase `json:"phase"`
	Synthesizer string           `json:"synthesizer"`
	Answers     []Answer         `json:"answers"`
	Synthesis   string           `json:"synthesis,omitempty"`
	// Merged reports whether the synthesizer produced the final text;
	// false means it failed and the answers were concatenated instead.
	Merged bool `json:"merged"`

	synthesisUsage *chat.Usage
}

// Mode implements progress.State.
func (SynthesizedState) Mode() string { return ModeSynthesized }

// SynthesizedMetadata is attached to the synthesizer slot's result.
type SynthesizedMetadata struct {
	Mode           string      `json:"mode"`
	Synthesizer    string      `json:"synthesizer"`
	Sources        []Answer    `json:"sources"`
	Merged         bool        `json:"merged"`
	SynthesisUsage *chat.Usage `json:"synthesis_usage,omitempty"`
	AggregateUsage *chat.Usage `json:"aggregate_usage,omitempty"`
}

var synthesizedSpec = defineSpec(Spec[SynthesizedState]{
	Name:      ModeSynthesized,
	MinModels: 2,
	Initialize: func(mc *Context) SynthesizedState {
		synthesizer := selectInstance(mc.Instances, mc.Config.Synthesize.SynthesizerInstance)
		return SynthesizedState{Phase: SynthesizedResponding, Synthesizer: synthesizer.ID}
	},
	Execute:  executeSynthesized,
	Finalize: finalizeSynthesized,
})

func executeSynthesized(ctx context.Context, mc *Context, r *Runner[SynthesizedState]) (SynthesizedState, error) {
	state := r.State()

	outcome := r.GatherInstances(ctx, GatherRequest{
		Instances: mc.Instances,
		BuildInput: func(inst Instance) []chat.InputItem {
			return r.BuildConversationInput(inst.ModelID, mc.Content)
		},
	})

	state.Answers = answersFrom(outcome.Successful)
	if len(state.Answers) == 0 {
		state.Phase = SynthesizedDone
		r.SetState(state)
		return state, nil
	}

	state.Phase = SynthesizedSynthesizing
	r.SetState(state)

	synthesizer := selectInstance(mc.Instances, mc.Config.Synthesize.SynthesizerInstance)
	prompt := interpolate(orDefault(mc.Config.Synthesize.MergePrompt, defaultMergePrompt), map[string]string{
		"question": mc.Question(),
		"context":  labeledAnswers(state.Answers),
	})

	resp := r.StreamInstance(ctx, synthesizer, r.PromptInput(prompt))
	if resp != nil {
		state.Synthesis = resp.Content
		state.Merged = true
		state.synthesisUsage = resp.Usage
	} else {
		mc.logger().WithMode(ModeSynthesized).Warn("synthesis failed, concatenating answers")
		state.Synthesis = labeledAnswers(state.Answers)
	}

	state.Phase = SynthesizedDone
	r.SetState(state)
	return state, nil
}

// labeledAnswers renders answers under per-model headings, both for the
// merge prompt and as the degraded output when the merge call fails.
func labeledAnswers(answers []Answer) string {
	var b strings.Builder
	for i, a := range answers {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s\n\n%s", a.Label, a.Content)
	}
	return b.String()
}

func finalizeSynthesized(state SynthesizedState, mc *Context) []*Result {
	results := nullResults(len(mc.Instances))
	if state.Synthesis == "" {
		return results
	}

	slot := indexByID(mc.Instances, state.Synthesizer)
	if slot < 0 {
		slot = 0
	}

	usages := []*chat.Usage{state.synthesisUsage}
	for _, a := range state.Answers {
		usages = append(usages, a.Usage)
	}

	results[slot] = &Result{
		Content: state.Synthesis,
		Usage:   state.synthesisUsage,
		Metadata: SynthesizedMetadata{
			Mode:           ModeSynthesized,
			Synthesizer:    state.Synthesizer,
			Sources:        state.Answers,
			Merged:         state.Merged,
			SynthesisUsage: state.synthesisUsage,
			AggregateUsage: chat.AggregateUsage(usages...),
		},
	}
	return results
}

// SendSynthesized runs the merge-into-one mode.
func SendSynthesized(ctx context.Context, content chat.Content, mc *Context, fallback Fallback) ([]*Result, error) {
	return Run(ctx, synthesizedSpec, content, mc, fallback)
}
