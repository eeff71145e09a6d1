package modes

import (
	"context"

	"github.com/ensemble-chat/ensemble/internal/chat"
)

// ModeDebated pits the first two instances against each other: parallel
// opening arguments, alternating rebuttals, then a judge picks the winner.
const ModeDebated = "debated"

// DebatedPhase enumerates the debated mode's phases.
type DebatedPhase string

const (
	DebatedOpening  DebatedPhase = "opening"
	DebatedRebuttal DebatedPhase = "rebuttal"
	DebatedVerdict  DebatedPhase = "verdict"
	DebatedDone     DebatedPhase = "done"
)

// DebateTurn is one statement in the transcript.
type DebateTurn struct {
	InstanceID string      `json:"instance_id"`
	Label      string      `json:"label"`
	Kind       string      `json:"kind"` // "opening" or "rebuttal"
	Round      int         `json:"round"`
	Content    string      `json:"content"`
	Usage      *chat.Usage `json:"usage,omitempty"`
}

// DebatedState is the live state for the debated mode.
type DebatedState struct {
	Phase      DebatedPhase `json:"phase"`
	DebaterA   string       `json:"debater_a"`
	DebaterB   string       `json:"debater_b"`
	Judge      string       `json:"judge,omitempty"`
	Transcript []DebateTurn `json:"transcript"`
	Winner     string       `json:"winner,omitempty"`
	Reasoning  string       `json:"reasoning,omitempty"`

	finalA, finalB string
	usageA, usageB *chat.Usage
	judgeUsage     *chat.Usage
}

// Mode implements progress.State.
func (DebatedState) Mode() string { return ModeDebated }

// DebatedMetadata is attached to the winner's result.
type DebatedMetadata struct {
	Mode       string       `json:"mode"`
	Winner     string       `json:"winner"`
	Judge      string       `json:"judge"`
	Reasoning  string       `json:"reasoning,omitempty"`
	Transcript []DebateTurn `json:"transcript"`
	JudgeUsage *chat.Usage  `json:"judge_usage,omitempty"`
}

var debatedSpec = defineSpec(Spec[DebatedState]{
	Name:      ModeDebated,
	MinModels: 2,
	Initialize: func(mc *Context) DebatedState {
		return DebatedState{
			Phase:    DebatedOpening,
			DebaterA: mc.Instances[0].ID,
			DebaterB: mc.Instances[1].ID,
		}
	},
	Execute:  executeDebated,
	Finalize: finalizeDebated,
})

func executeDebated(ctx context.Context, mc *Context, r *Runner[DebatedState]) (DebatedState, error) {
	state := r.State()
	a, b := mc.Instances[0], mc.Instances[1]

	opening := interpolate(orDefault(mc.Config.Debate.OpeningPrompt, defaultOpeningPrompt), map[string]string{
		"question": mc.Question(),
	})
	outcome := r.GatherInstances(ctx, GatherRequest{
		Instances: []Instance{a, b},
		BuildInput: func(inst Instance) []chat.InputItem {
			return r.PromptInput(opening)
		},
	})

	for _, res := range outcome.Successful {
		turn := DebateTurn{
			InstanceID: res.Instance.ID,
			Label:      res.Instance.DisplayLabel(),
			Kind:       "opening",
			Content:    res.Content,
			Usage:      res.Usage,
		}
		state.Transcript = appendRound(state.Transcript, turn)
		if res.Instance.ID == a.ID {
			state.finalA, state.usageA = res.Content, res.Usage
		} else {
			state.finalB, state.usageB = res.Content, res.Usage
		}
	}

	// A debate needs two openings. With one, the surviving debater wins by
	// default; with none, there is no result.
	if state.finalA == "" || state.finalB == "" {
		if state.finalA != "" {
			state.Winner = a.ID
		} else if state.finalB != "" {
			state.Winner = b.ID
		}
		state.Phase = DebatedDone
		r.SetState(state)
		return state, nil
	}

	rounds := mc.Config.Debate.Rounds
	if rounds <= 0 {
		rounds = DefaultDebateRounds
	}
	rebuttalPrompt := orDefault(mc.Config.Debate.RebuttalPrompt, defaultRebuttalPrompt)

	state.Phase = DebatedRebuttal
	r.SetState(state)

	for round := 1; round <= rounds; round++ {
		// A rebuts B's latest statement, then B rebuts A's.
		if resp := r.StreamInstance(ctx, a, r.PromptInput(interpolate(rebuttalPrompt, map[string]string{
			"question": mc.Question(),
			"previous": state.finalB,
		}))); resp != nil {
			state.finalA, state.usageA = resp.Content, resp.Usage
			state.Transcript = appendRound(state.Transcript, DebateTurn{
				InstanceID: a.ID, Label: a.DisplayLabel(), Kind: "rebuttal", Round: round,
				Content: resp.Content, Usage: resp.Usage,
			})
			r.SetState(state)
		}

		if resp := r.StreamInstance(ctx, b, r.PromptInput(interpolate(rebuttalPrompt, map[string]string{
			"question": mc.Question(),
			"previous": state.finalA,
		}))); resp != nil {
			state.finalB, state.usageB = resp.Content, resp.Usage
			state.Transcript = appendRound(state.Transcript, DebateTurn{
				InstanceID: b.ID, Label: b.DisplayLabel(), Kind: "rebuttal", Round: round,
				Content: resp.Content, Usage: resp.Usage,
			})
			r.SetState(state)
		}
	}

	judge := mc.Instances[0]
	if len(mc.Instances) > 2 {
		judge = mc.Instances[2]
	}
	state.Judge = judge.ID
	state.Phase = DebatedVerdict
	r.SetState(state)

	verdict := interpolate(orDefault(mc.Config.Debate.VerdictPrompt, defaultVerdictPrompt), map[string]string{
		"question":  mc.Question(),
		"labelA":    a.DisplayLabel(),
		"responseA": state.finalA,
		"labelB":    b.DisplayLabel(),
		"responseB": state.finalB,
	})

	state.Winner = a.ID
	if resp := r.StreamInstance(ctx, judge, r.PromptInput(verdict)); resp != nil {
		state.Reasoning = resp.Content
		state.judgeUsage = resp.Usage
		if parseChoiceAB(resp.Content) == 1 {
			state.Winner = b.ID
		}
	}

	state.Phase = DebatedDone
	r.SetState(state)
	return state, nil
}

func finalizeDebated(state DebatedState, mc *Context) []*Result {
	results := nullResults(len(mc.Instances))
	if state.Winner == "" {
		return results
	}

	content, usage := state.finalA, state.usageA
	if state.Winner == state.DebaterB {
		content, usage = state.finalB, state.usageB
	}

	slot := indexByID(mc.Instances, state.Winner)
	if slot < 0 {
		return results
	}

	results[slot] = &Result{
		Content: content,
		Usage:   usage,
		Metadata: DebatedMetadata{
			Mode:       ModeDebated,
			Winner:     state.Winner,
			Judge:      state.Judge,
			Reasoning:  state.Reasoning,
			Transcript: state.Transcript,
			JudgeUsage: state.judgeUsage,
		},
	}
	return results
}

// SendDebated runs the two-debater adversarial mode.
func SendDebated(ctx context.Context, content chat.Content, mc *Context, fallback Fallback) ([]*Result, error) {
	return Run(ctx, debatedSpec, content, mc, fallback)
}
