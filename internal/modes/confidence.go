package modes

import (
	"context"

	"github.com/ensemble-chat/ensemble/internal/chat"
)

// ModeConfidence selects by self-assessment: every instance answers, rates
// its own answer 0-100, and the highest-rated answer wins.
const ModeConfidence = "confidence"

// ConfidencePhase enumerates the confidence mode's phases.
type ConfidencePhase string

const (
	ConfidenceResponding ConfidencePhase = "responding"
	ConfidenceScoring    ConfidencePhase = "scoring"
	ConfidenceDone       ConfidencePhase = "done"
)

// ConfidenceScore is one candidate's self-assessment.
type ConfidenceScore struct {
	InstanceID string      `json:"instance_id"`
	Label      string      `json:"label"`
	Confidence int         `json:"confidence"`
	Usage      *chat.Usage `json:"usage,omitempty"`
}

// ConfidenceState is the live state for the confidence mode.
type ConfidenceState struct {
	Phase      ConfidencePhase   `json:"phase"`
	Candidates []Answer          `json:"candidates"`
	Scores     []ConfidenceScore `json:"scores"`
	Winner     string            `json:"winner,omitempty"`
	// BelowThreshold flags a winning confidence under the configured
	// floor; the winner still stands.
	BelowThreshold bool `json:"below_threshold"`
}

// Mode implements progress.State.
func (ConfidenceState) Mode() string { return ModeConfidence }

// ConfidenceMetadata is attached to the winner's result.
type ConfidenceMetadata struct {
	Mode           string            `json:"mode"`
	Winner         string            `json:"winner"`
	Scores         []ConfidenceScore `json:"scores"`
	BelowThreshold bool              `json:"below_threshold"`
	ScoringUsage   *chat.Usage       `json:"scoring_usage,omitempty"`
}

var confidenceSpec = defineSpec(Spec[ConfidenceState]{
	Name:      ModeConfidence,
	MinModels: 2,
	Initialize: func(mc *Context) ConfidenceState {
		return ConfidenceState{Phase: ConfidenceResponding}
	},
	Execute:  executeConfidence,
	Finalize: finalizeConfidence,
})

func executeConfidence(ctx context.Context, mc *Context, r *Runner[ConfidenceState]) (ConfidenceState, error) {
	state := r.State()

	outcome := r.GatherInstances(ctx, GatherRequest{
		Instances: mc.Instances,
		BuildInput: func(inst Instance) []chat.InputItem {
			return r.BuildConversationInput(inst.ModelID, mc.Content)
		},
	})

	state.Candidates = answersFrom(outcome.Successful)
	if len(state.Candidates) == 0 {
		state.Phase = ConfidenceDone
		r.SetState(state)
		return state, nil
	}

	state.Phase = ConfidenceScoring
	r.SetState(state)

	confidencePrompt := orDefault(mc.Config.Confidence.ConfidencePrompt, defaultConfidencePrompt)
	var scorers []Instance
	prompts := make(map[string]string, len(state.Candidates))
	for _, res := range outcome.Successful {
		scorers = append(scorers, res.Instance)
		prompts[res.Instance.ID] = interpolate(confidencePrompt, map[string]string{
			"question": mc.Question(),
			"previous": res.Content,
		})
	}

	scoring := r.GatherInstances(ctx, GatherRequest{
		Instances: scorers,
		BuildInput: func(inst Instance) []chat.InputItem {
			return r.PromptInput(prompts[inst.ID])
		},
		MaxTokens: DefaultVoteMaxTokens,
	})

	confidences := make(map[string]ConfidenceScore, len(scorers))
	for _, res := range scoring.Successful {
		score := 0
		if n, ok := firstInt(res.Content); ok && n >= 0 && n <= 100 {
			score = n
		}
		confidences[res.Instance.ID] = ConfidenceScore{
			InstanceID: res.Instance.ID,
			Label:      res.Instance.DisplayLabel(),
			Confidence: score,
			Usage:      res.Usage,
		}
	}

	// Failed or unparseable self-assessments score zero rather than
	// disqualifying the candidate.
	state.Scores = make([]ConfidenceScore, 0, len(scorers))
	for _, inst := range scorers {
		score, ok := confidences[inst.ID]
		if !ok {
			score = ConfidenceScore{InstanceID: inst.ID, Label: inst.DisplayLabel()}
		}
		state.Scores = append(state.Scores, score)
	}

	winner, best := "", -1
	for _, score := range state.Scores {
		if score.Confidence > best || (score.Confidence == best && score.InstanceID < winner) {
			winner, best = score.InstanceID, score.Confidence
		}
	}

	state.Winner = winner
	if threshold := mc.Config.Confidence.Threshold; threshold > 0 && best < threshold {
		state.BelowThreshold = true
	}

	state.Phase = ConfidenceDone
	r.SetState(state)
	return state, nil
}

func finalizeConfidence(state ConfidenceState, mc *Context) []*Result {
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
	slot := indexByID(mc.Instances, state.Winner)
	if winning == nil || slot < 0 {
		return results
	}

	usages := make([]*chat.Usage, 0, len(state.Scores))
	for _, score := range state.Scores {
		usages = append(usages, score.Usage)
	}

	results[slot] = &Result{
		Content: winning.Content,
		Usage:   winning.Usage,
		Metadata: ConfidenceMetadata{
			Mode:           ModeConfidence,
			Winner:         state.Winner,
			Scores:         state.Scores,
			BelowThreshold: state.BelowThreshold,
			ScoringUsage:   chat.AggregateUsage(usages...),
		},
	}
	return results
}

// SendConfidence runs the self-assessed selection mode.
func SendConfidence(ctx context.Context, content chat.Content, mc *Context, fallback Fallback) ([]*Result, error) {
	return Run(ctx, confidenceSpec, content, mc, fallback)
}
