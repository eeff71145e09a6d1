package modes

import (
	"context"

	"github.com/ensemble-chat/ensemble/internal/chat"
)

// ModeTournament runs a single-elimination bracket: all instances answer,
// then pairs are judged until one answer survives.
const ModeTournament = "tournament"

// TournamentPhase enumerates the tournament mode's phases.
type TournamentPhase string

const (
	TournamentGenerating TournamentPhase = "generating"
	TournamentCompeting  TournamentPhase = "competing"
	TournamentDone       TournamentPhase = "done"
)

// TournamentMatch records one judged pairing.
type TournamentMatch struct {
	Round       int         `json:"round"`
	CompetitorA Answer      `json:"competitor_a"`
	CompetitorB Answer      `json:"competitor_b"`
	JudgeID     string      `json:"judge_id"`
	WinnerID    string      `json:"winner_id"`
	Reasoning   string      `json:"reasoning,omitempty"`
	JudgeUsage  *chat.Usage `json:"judge_usage,omitempty"`
}

// TournamentState is the live state for the tournament mode.
type TournamentState struct {
	Phase TournamentPhase `json:"phase"`
	// Bracket lists each round's competitors by display label.
	Bracket [][]string        `json:"bracket"`
	Matches []TournamentMatch `json:"matches"`
	// Eliminated lists the instance IDs knocked out in each round.
	Eliminated [][]string `json:"eliminated"`
	Winner     string     `json:"winner,omitempty"`

	survivors []Answer
}

// Mode implements progress.State.
func (TournamentState) Mode() string { return ModeTournament }

// TournamentMetadata is attached to the winning slot's result.
type TournamentMetadata struct {
	Mode               string            `json:"mode"`
	Bracket            [][]string        `json:"bracket"`
	Matches            []TournamentMatch `json:"matches"`
	EliminatedPerRound [][]string        `json:"eliminated_per_round"`
	TournamentWinner   string            `json:"tournament_winner"`
}

var tournamentSpec = defineSpec(Spec[TournamentState]{
	Name:      ModeTournament,
	MinModels: 4,
	Initialize: func(mc *Context) TournamentState {
		return TournamentState{Phase: TournamentGenerating}
	},
	Execute:  executeTournament,
	Finalize: finalizeTournament,
})

func executeTournament(ctx context.Context, mc *Context, r *Runner[TournamentState]) (TournamentState, error) {
	outcome := r.GatherInstances(ctx, GatherRequest{
		Instances: mc.Instances,
		BuildInput: func(inst Instance) []chat.InputItem {
			return r.BuildConversationInput(inst.ModelID, mc.Content)
		},
	})

	competitors := answersFrom(outcome.Successful)

	state := r.State()
	state.survivors = competitors

	// Fewer than two survivors means no bracket: a lone survivor wins
	// outright with no matches, zero survivors yields no winner at all.
	if len(competitors) < 2 {
		state.Phase = TournamentDone
		if len(competitors) == 1 {
			state.Winner = competitors[0].InstanceID
		}
		r.SetState(state)
		return state, nil
	}

	state.Phase = TournamentCompeting
	r.SetState(state)

	logger := mc.logger().WithMode(ModeTournament)
	round := 0
	for len(competitors) > 1 {
		state = r.State()
		state.Bracket = appendRound(state.Bracket, labelsOf(competitors))
		r.SetState(state)

		var advancing []Answer
		var eliminated []string

		pairStart := 0
		if len(competitors)%2 == 1 {
			// Odd field: the first competitor takes a bye this round.
			advancing = append(advancing, competitors[0])
			pairStart = 1
		}

		for i := pairStart; i+1 < len(competitors); i += 2 {
			a, b := competitors[i], competitors[i+1]
			match := judgeMatch(ctx, mc, r, round, a, b)

			state = r.State()
			state.Matches = append(append([]TournamentMatch(nil), state.Matches...), match)
			r.SetState(state)

			if match.WinnerID == a.InstanceID {
				advancing = append(advancing, a)
				eliminated = append(eliminated, b.InstanceID)
			} else {
				advancing = append(advancing, b)
				eliminated = append(eliminated, a.InstanceID)
			}
		}

		state = r.State()
		state.Eliminated = appendRound(state.Eliminated, eliminated)
		r.SetState(state)

		logger.Info("round complete", "round", round, "advancing", len(advancing))
		competitors = advancing
		round++
	}

	state = r.State()
	state.Phase = TournamentDone
	state.Winner = competitors[0].InstanceID
	state.survivors = competitors
	r.SetState(state)
	return r.State(), nil
}

// judgeMatch picks a judge, prompts it to choose between a and b, and
// returns the decided match. Unparseable verdicts and judge failures both
// default to competitor A winning; a match can never error.
func judgeMatch(ctx context.Context, mc *Context, r *Runner[TournamentState], round int, a, b Answer) TournamentMatch {
	judge := selectJudge(mc, a.InstanceID, b.InstanceID)

	prompt := interpolate(orDefault(mc.Config.Tournament.JudgePrompt, defaultJudgePrompt), map[string]string{
		"question":  mc.Question(),
		"labelA":    a.Label,
		"responseA": a.Content,
		"labelB":    b.Label,
		"responseB": b.Content,
	})

	match := TournamentMatch{
		Round:       round,
		CompetitorA: a,
		CompetitorB: b,
		JudgeID:     judge.ID,
		WinnerID:    a.InstanceID,
	}

	resp := r.StreamInstance(ctx, judge, r.PromptInput(prompt))
	if resp == nil {
		return match
	}

	match.Reasoning = resp.Content
	match.JudgeUsage = resp.Usage
	if parseChoiceAB(resp.Content) == 1 {
		match.WinnerID = b.InstanceID
	}
	return match
}

// selectJudge prefers the configured primary model, then the first
// instance not competing in this match, then the first instance overall.
func selectJudge(mc *Context, competitorA, competitorB string) Instance {
	if ref := mc.Config.Tournament.PrimaryModel; ref != "" {
		for _, inst := range mc.Instances {
			if inst.ID == ref || inst.ModelID == ref {
				return inst
			}
		}
	}
	for _, inst := range mc.Instances {
		if inst.ID != competitorA && inst.ID != competitorB {
			return inst
		}
	}
	return mc.Instances[0]
}

func labelsOf(answers []Answer) []string {
	labels := make([]string, len(answers))
	for i, a := range answers {
		labels[i] = a.Label
	}
	return labels
}

func appendRound[T any](rounds []T, round T) []T {
	return append(append([]T(nil), rounds...), round)
}

func finalizeTournament(state TournamentState, mc *Context) []*Result {
	results := nullResults(len(mc.Instances))
	if state.Winner == "" {
		return results
	}

	var winning *Answer
	for i := range state.survivors {
		if state.survivors[i].InstanceID == state.Winner {
			winning = &state.survivors[i]
			break
		}
	}
	if winning == nil {
		return results
	}

	slot := indexByID(mc.Instances, state.Winner)
	if slot < 0 {
		return results
	}

	results[slot] = &Result{
		Content: winning.Content,
		Usage:   winning.Usage,
		Metadata: TournamentMetadata{
			Mode:               ModeTournament,
			Bracket:            state.Bracket,
			Matches:            state.Matches,
			EliminatedPerRound: state.Eliminated,
			TournamentWinner:   state.Winner,
		},
	}
	return results
}

// SendTournament runs the elimination-bracket mode.
func SendTournament(ctx context.Context, content chat.Content, mc *Context, fallback Fallback) ([]*Result, error) {
	return Run(ctx, tournamentSpec, content, mc, fallback)
}
