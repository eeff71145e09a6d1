package modes

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ensemble-chat/ensemble/internal/chat"
	"github.com/ensemble-chat/ensemble/internal/transport"
)

// ModeElected runs every instance against the prompt, then has the full
// roster vote on the best candidate answer.
const ModeElected = "elected"

// ElectedPhase enumerates the elected mode's phases.
type ElectedPhase string

const (
	ElectedResponding ElectedPhase = "responding"
	ElectedVoting     ElectedPhase = "voting"
	ElectedDone       ElectedPhase = "done"
)

// Vote is one parsed ballot.
type Vote struct {
	VoterID     string `json:"voter_id"`
	CandidateID string `json:"candidate_id"`
	// Choice is the 1-based candidate number the voter picked.
	Choice int `json:"choice"`
}

// ElectedState is the live state for the elected mode.
type ElectedState struct {
	Phase      ElectedPhase   `json:"phase"`
	Candidates []Answer       `json:"candidates"`
	Votes      []Vote         `json:"votes"`
	VoteCounts map[string]int `json:"vote_counts"`
	Winner     string         `json:"winner,omitempty"`

	// voteUsage is threaded to Finalize but kept off the published wire
	// shape; subscribers only see the documented fields.
	voteUsage *chat.Usage
}

// Mode implements progress.State.
func (ElectedState) Mode() string { return ModeElected }

// ElectedMetadata is attached to the winning slot's result.
type ElectedMetadata struct {
	Mode       string         `json:"mode"`
	IsElected  bool           `json:"is_elected"`
	Winner     string         `json:"winner"`
	Candidates []Answer       `json:"candidates"`
	Votes      []Vote         `json:"votes"`
	VoteCounts map[string]int `json:"vote_counts"`
	VoteUsage  *chat.Usage    `json:"vote_usage,omitempty"`
}

var electedSpec = defineSpec(Spec[ElectedState]{
	Name:      ModeElected,
	MinModels: 3,
	Initialize: func(mc *Context) ElectedState {
		return ElectedState{
			Phase:      ElectedResponding,
			VoteCounts: make(map[string]int),
		}
	},
	Execute:  executeElected,
	Finalize: finalizeElected,
})

func executeElected(ctx context.Context, mc *Context, r *Runner[ElectedState]) (ElectedState, error) {
	// Responding: everyone answers the same prompt. Failures are dropped
	// silently; there are no retries.
	outcome := r.GatherInstances(ctx, GatherRequest{
		Instances: mc.Instances,
		BuildInput: func(inst Instance) []chat.InputItem {
			return r.BuildConversationInput(inst.ModelID, mc.Content)
		},
	})

	candidates := make([]Answer, 0, len(outcome.Successful))
	for _, res := range outcome.Successful {
		candidates = append(candidates, Answer{
			InstanceID: res.Instance.ID,
			Label:      res.Instance.DisplayLabel(),
			Content:    res.Content,
			Usage:      res.Usage,
		})
	}

	state := r.State()
	state.Candidates = candidates

	// Degenerate outcomes skip voting entirely.
	switch len(candidates) {
	case 0:
		state.Phase = ElectedDone
		r.SetState(state)
		return state, nil
	case 1:
		state.Phase = ElectedDone
		state.Winner = candidates[0].InstanceID
		r.SetState(state)
		return state, nil
	}

	state.Phase = ElectedVoting
	r.SetState(state)

	// Voting: every original instance gets a ballot, including instances
	// whose own response failed. Self-voting is permitted.
	ballot := buildBallotPrompt(mc, candidates)
	maxTokens := mc.Config.Elected.VoteMaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultVoteMaxTokens
	}

	var votes []Vote
	var voteUsages []*chat.Usage
	r.GatherInstances(ctx, GatherRequest{
		Instances: mc.Instances,
		MaxTokens: maxTokens,
		BuildInput: func(inst Instance) []chat.InputItem {
			return r.PromptInput(ballot)
		},
		OnComplete: func(inst Instance, resp *transport.Response) {
			// A failed ballot is an uncast vote, never a mode failure.
			if resp == nil {
				return
			}
			voteUsages = append(voteUsages, resp.Usage)
			choice, ok := firstInt(resp.Content)
			if !ok || choice < 1 || choice > len(candidates) {
				// Out-of-range and unparseable votes are simply not
				// counted; no retry, no penalty.
				return
			}
			votes = append(votes, Vote{
				VoterID:     inst.ID,
				CandidateID: candidates[choice-1].InstanceID,
				Choice:      choice,
			})
		},
	})

	counts := make(map[string]int, len(candidates))
	for _, vote := range votes {
		counts[vote.CandidateID]++
	}

	state = r.State()
	state.Phase = ElectedDone
	state.Votes = votes
	state.VoteCounts = counts
	state.Winner = electWinner(candidates, counts)
	r.SetState(state)

	mc.logger().WithMode(ModeElected).Info("election complete",
		"candidates", len(candidates),
		"votes_cast", len(votes),
		"winner", state.Winner,
	)

	state.voteUsage = chat.AggregateUsage(voteUsages...)
	return state, nil
}

// electWinner tallies and breaks ties by ascending alphabetical instance
// ID, so elections are reproducible.
func electWinner(candidates []Answer, counts map[string]int) string {
	winner := ""
	winnerVotes := -1
	for _, cand := range candidates {
		votes := counts[cand.InstanceID]
		switch {
		case votes > winnerVotes:
			winner = cand.InstanceID
			winnerVotes = votes
		case votes == winnerVotes && cand.InstanceID < winner:
			winner = cand.InstanceID
		}
	}
	return winner
}

// buildBallotPrompt enumerates candidates as "Candidate 1..N" in collection
// order and asks for a single number.
func buildBallotPrompt(mc *Context, candidates []Answer) string {
	var sb strings.Builder
	for i, cand := range candidates {
		fmt.Fprintf(&sb, "Candidate %d:\n%s\n\n", i+1, cand.Content)
	}

	return interpolate(orDefault(mc.Config.Elected.VotePrompt, defaultVotePrompt), map[string]string{
		"question":   mc.Question(),
		"candidates": strings.TrimRight(sb.String(), "\n"),
		"count":      strconv.Itoa(len(candidates)),
	})
}

func finalizeElected(state ElectedState, mc *Context) []*Result {
	results := nullResults(len(mc.Instances))
	if state.Winner == "" {
		return results
	}

	var winning *Answer
	for i := range state.Candidates {
		if state.Candidates[i].InstanceID == state.Winner {
			winning = &state.Candidates[i]
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
		Metadata: ElectedMetadata{
			Mode:       ModeElected,
			IsElected:  true,
			Winner:     state.Winner,
			Candidates: state.Candidates,
			Votes:      state.Votes,
			VoteCounts: state.VoteCounts,
			VoteUsage:  state.voteUsage,
		},
	}
	return results
}

// SendElected runs the vote-based selection mode.
func SendElected(ctx context.Context, content chat.Content, mc *Context, fallback Fallback) ([]*Result, error) {
	return Run(ctx, electedSpec, content, mc, fallback)
}
