package modes

import (
	"context"

	"github.com/ensemble-chat/ensemble/internal/chat"
)

// ModeConsensus iterates answer rounds until the instances agree: after
// each round every instance votes AGREE or DISAGREE on the current set of
// answers, and once the agreeing fraction clears the threshold a synthesis
// call produces the consensus statement.
const ModeConsensus = "consensus"

// ConsensusPhase enumerates the consensus mode's phases.
type ConsensusPhase string

const (
	ConsensusResponding   ConsensusPhase = "responding"
	ConsensusEvaluating   ConsensusPhase = "evaluating"
	ConsensusSynthesizing ConsensusPhase = "synthesizing"
	ConsensusDone         ConsensusPhase = "done"
)

// ConsensusRound records one respond-then-evaluate cycle.
type ConsensusRound struct {
	Answers []Answer `json:"answers"`
	// Evaluations maps instance id to its cast verdict. Instances whose
	// evaluation call failed are absent; evaluations with no readable
	// verdict token count as disagreement.
	Evaluations map[string]bool `json:"evaluations"`
	Ratio       float64         `json:"ratio"`
}

// ConsensusState is the live state for the consensus mode.
type ConsensusState struct {
	Phase     ConsensusPhase   `json:"phase"`
	Round     int              `json:"round"`
	Rounds    []ConsensusRound `json:"rounds"`
	Reached   bool             `json:"reached"`
	Statement string           `json:"statement,omitempty"`

	current        map[string]Answer
	synthesisUsage *chat.Usage
}

// Mode implements progress.State.
func (ConsensusState) Mode() string { return ModeConsensus }

// ConsensusMetadata is attached to the populated slot(s).
type ConsensusMetadata struct {
	Mode             string           `json:"mode"`
	ConsensusReached bool             `json:"consensus_reached"`
	Rounds           []ConsensusRound `json:"rounds"`
	SynthesisUsage   *chat.Usage      `json:"synthesis_usage,omitempty"`
}

var consensusSpec = defineSpec(Spec[ConsensusState]{
	Name:      ModeConsensus,
	MinModels: 3,
	Initialize: func(mc *Context) ConsensusState {
		return ConsensusState{
			Phase:   ConsensusResponding,
			Round:   1,
			current: make(map[string]Answer),
		}
	},
	Execute:  executeConsensus,
	Finalize: finalizeConsensus,
})

func executeConsensus(ctx context.Context, mc *Context, r *Runner[ConsensusState]) (ConsensusState, error) {
	state := r.State()
	cfg := mc.Config.Consensus

	maxRounds := cfg.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultConsensusRounds
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultConsensusThreshold
	}

	logger := mc.logger().WithMode(ModeConsensus)

	for round := 1; round <= maxRounds; round++ {
		state.Round = round
		state.Phase = ConsensusResponding
		r.SetState(state)

		state = respondRound(ctx, mc, r, state, round)
		if len(state.current) == 0 {
			state.Phase = ConsensusDone
			r.SetState(state)
			return state, nil
		}

		state.Phase = ConsensusEvaluating
		r.SetState(state)

		record := evaluateRound(ctx, mc, r, state)
		state.Rounds = appendRound(state.Rounds, record)
		r.SetState(state)

		logger.Info("round evaluated", "round", round, "ratio", record.Ratio, "cast", len(record.Evaluations))

		if len(record.Evaluations) > 0 && record.Ratio >= threshold {
			state.Reached = true
			break
		}
	}

	if !state.Reached {
		state.Phase = ConsensusDone
		r.SetState(state)
		return state, nil
	}

	state.Phase = ConsensusSynthesizing
	r.SetState(state)

	synthesizer := mc.Instances[0]
	prompt := interpolate(orDefault(cfg.SynthesizePrompt, defaultMergePrompt), map[string]string{
		"question": mc.Question(),
		"context":  labeledAnswers(currentAnswers(mc, state)),
	})
	resp := r.StreamInstance(ctx, synthesizer, r.PromptInput(prompt))
	if resp != nil {
		state.Statement = resp.Content
		state.synthesisUsage = resp.Usage
	} else {
		// Agreement was reached even if the statement call failed; degrade
		// to the concatenated final answers.
		state.Statement = labeledAnswers(currentAnswers(mc, state))
	}

	state.Phase = ConsensusDone
	r.SetState(state)
	return state, nil
}

// respondRound runs one answer round. Round 1 answers the question; later
// rounds revise against the previous round's answers. A failed branch
// keeps its prior answer, so an instance only drops out if it never
// answered at all.
func respondRound(ctx context.Context, mc *Context, r *Runner[ConsensusState], state ConsensusState, round int) ConsensusState {
	var participants []Instance
	var prompts map[string]string

	if round == 1 {
		participants = mc.Instances
	} else {
		prior := labeledAnswers(currentAnswers(mc, state))
		revisePrompt := orDefault(mc.Config.Consensus.RevisePrompt, defaultConsensusRevisePrompt)
		prompts = make(map[string]string)
		for _, inst := range mc.Instances {
			if _, ok := state.current[inst.ID]; ok {
				participants = append(participants, inst)
				prompts[inst.ID] = interpolate(revisePrompt, map[string]string{
					"question": mc.Question(),
					"context":  prior,
				})
			}
		}
	}

	outcome := r.GatherInstances(ctx, GatherRequest{
		Instances: participants,
		BuildInput: func(inst Instance) []chat.InputItem {
			if round == 1 {
				return r.BuildConversationInput(inst.ModelID, mc.Content)
			}
			return r.PromptInput(prompts[inst.ID])
		},
	})

	state.current = cloneMap(state.current)
	for _, res := range outcome.Successful {
		state.current[res.Instance.ID] = Answer{
			InstanceID: res.Instance.ID,
			Label:      res.Instance.DisplayLabel(),
			Content:    res.Content,
			Usage:      res.Usage,
		}
	}
	return state
}

// evaluateRound asks every answering instance whether the current answers
// substantially agree, and tallies the agreeing fraction over the cast
// evaluations.
func evaluateRound(ctx context.Context, mc *Context, r *Runner[ConsensusState], state ConsensusState) ConsensusRound {
	answers := currentAnswers(mc, state)
	prompt := interpolate(orDefault(mc.Config.Consensus.EvaluatePrompt, defaultEvaluatePrompt), map[string]string{
		"question": mc.Question(),
		"context":  labeledAnswers(answers),
	})

	var evaluators []Instance
	for _, inst := range mc.Instances {
		if _, ok := state.current[inst.ID]; ok {
			evaluators = append(evaluators, inst)
		}
	}

	outcome := r.GatherInstances(ctx, GatherRequest{
		Instances: evaluators,
		BuildInput: func(inst Instance) []chat.InputItem {
			return r.PromptInput(prompt)
		},
	})

	record := ConsensusRound{
		Answers:     answers,
		Evaluations: make(map[string]bool, len(outcome.Successful)),
	}
	agreeing := 0
	for _, res := range outcome.Successful {
		agree, _ := parseAgreement(res.Content)
		record.Evaluations[res.Instance.ID] = agree
		if agree {
			agreeing++
		}
	}
	if len(record.Evaluations) > 0 {
		record.Ratio = float64(agreeing) / float64(len(record.Evaluations))
	}
	return record
}

// currentAnswers returns the live answers in roster order.
func currentAnswers(mc *Context, state ConsensusState) []Answer {
	answers := make([]Answer, 0, len(state.current))
	for _, inst := range mc.Instances {
		if a, ok := state.current[inst.ID]; ok {
			answers = append(answers, a)
		}
	}
	return answers
}

func finalizeConsensus(state ConsensusState, mc *Context) []*Result {
	results := nullResults(len(mc.Instances))

	metadata := ConsensusMetadata{
		Mode:             ModeConsensus,
		ConsensusReached: state.Reached,
		Rounds:           state.Rounds,
		SynthesisUsage:   state.synthesisUsage,
	}

	if state.Reached {
		if state.Statement != "" {
			results[0] = &Result{
				Content:  state.Statement,
				Usage:    state.synthesisUsage,
				Metadata: metadata,
			}
		}
		return results
	}

	// No consensus: every instance's last answer stands in its own slot.
	for i, inst := range mc.Instances {
		if a, ok := state.current[inst.ID]; ok {
			results[i] = &Result{Content: a.Content, Usage: a.Usage, Metadata: metadata}
		}
	}
	return results
}

// SendConsensus runs the iterate-until-agreement mode.
func SendConsensus(ctx context.Context, content chat.Content, mc *Context, fallback Fallback) ([]*Result, error) {
	return Run(ctx, consensusSpec, content, mc, fallback)
}
