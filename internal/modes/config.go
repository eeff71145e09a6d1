package modes

import (
	"fmt"

	"github.com/ensemble-chat/ensemble/internal/errors"
	"github.com/ensemble-chat/ensemble/internal/transport"
)

// Config aggregates the per-mode knobs. Absent fields fall back to the
// documented per-mode defaults, so a zero Config is fully usable.
type Config struct {
	Elected      ElectedConfig      `mapstructure:"elected"`
	Tournament   TournamentConfig   `mapstructure:"tournament"`
	Hierarchical HierarchicalConfig `mapstructure:"hierarchical"`
	Scattershot  ScattershotConfig  `mapstructure:"scattershot"`
	Refine       RefineConfig       `mapstructure:"refine"`
	Critique     CritiqueConfig     `mapstructure:"critique"`
	Synthesize   SynthesizeConfig   `mapstructure:"synthesize"`
	Chain        ChainConfig        `mapstructure:"chain"`
	Route        RouteConfig        `mapstructure:"route"`
	Consensus    ConsensusConfig    `mapstructure:"consensus"`
	Debate       DebateConfig       `mapstructure:"debate"`
	Council      CouncilConfig      `mapstructure:"council"`
	Confidence   ConfidenceConfig   `mapstructure:"confidence"`
	Explain      ExplainConfig      `mapstructure:"explain"`
}

// ElectedConfig configures the vote-based selection mode.
type ElectedConfig struct {
	// VotePrompt overrides the ballot prompt. Placeholders: {question},
	// {candidates}, {count}.
	VotePrompt string `mapstructure:"vote_prompt"`
	// VoteMaxTokens caps each ballot response. Default 150.
	VoteMaxTokens int `mapstructure:"vote_max_tokens"`
}

// TournamentConfig configures the elimination-bracket mode.
type TournamentConfig struct {
	// JudgePrompt overrides the match prompt. Placeholders: {question},
	// {labelA}, {responseA}, {labelB}, {responseB}.
	JudgePrompt string `mapstructure:"judge_prompt"`
	// PrimaryModel, when it names an instance ID or model ID in the
	// roster, is preferred as the judge for every match.
	PrimaryModel string `mapstructure:"primary_model"`
}

// HierarchicalConfig configures coordinator/worker decomposition.
type HierarchicalConfig struct {
	// CoordinatorInstance selects the coordinator by instance ID or model
	// ID. Defaults to the first instance.
	CoordinatorInstance string `mapstructure:"coordinator_instance"`
	// DecomposePrompt placeholders: {question}, {count}, {workers}.
	DecomposePrompt string `mapstructure:"decompose_prompt"`
	// WorkerPrompt placeholders: {question}, {task}.
	WorkerPrompt string `mapstructure:"worker_prompt"`
	// SynthesizePrompt placeholders: {question}, {context}.
	SynthesizePrompt string `mapstructure:"synthesize_prompt"`
}

// ScattershotConfig configures the parameter-sweep mode.
type ScattershotConfig struct {
	// Variations is the parameter sweep. Empty means the built-in set of
	// four temperature/top_p presets.
	Variations []transport.Params `mapstructure:"variations"`
}

// RefineConfig configures multi-round self-refinement.
type RefineConfig struct {
	// Rounds is the number of refinement rounds after the initial
	// responses. Default 2.
	Rounds int `mapstructure:"rounds"`
	// RefinePrompt placeholders: {question}, {previous}.
	RefinePrompt string `mapstructure:"refine_prompt"`
}

// CritiqueConfig configures peer critique and revision.
type CritiqueConfig struct {
	// CritiquePrompt placeholders: {question}, {previous}.
	CritiquePrompt string `mapstructure:"critique_prompt"`
	// RevisePrompt placeholders: {question}, {previous}, {context}.
	RevisePrompt string `mapstructure:"revise_prompt"`
}

// SynthesizeConfig configures answer merging.
type SynthesizeConfig struct {
	// SynthesizerInstance selects the merging instance by instance ID or
	// model ID. Defaults to the first instance.
	SynthesizerInstance string `mapstructure:"synthesizer_instance"`
	// MergePrompt placeholders: {question}, {context}.
	MergePrompt string `mapstructure:"merge_prompt"`
}

// ChainConfig configures the sequential pipeline mode.
type ChainConfig struct {
	// ChainPrompt placeholders: {question}, {previous}.
	ChainPrompt string `mapstructure:"chain_prompt"`
}

// RouteConfig configures router-based selection.
type RouteConfig struct {
	// RouterInstance selects the router by instance ID or model ID.
	// Defaults to the first instance.
	RouterInstance string `mapstructure:"router_instance"`
	// RoutePrompt placeholders: {question}, {candidates}, {count}.
	RoutePrompt string `mapstructure:"route_prompt"`
}

// ConsensusConfig configures iterative consensus building.
type ConsensusConfig struct {
	// MaxRounds bounds the number of response rounds. Default 3.
	MaxRounds int `mapstructure:"max_rounds"`
	// Threshold is the agreeing fraction required to declare consensus,
	// in (0, 1]. Default 0.7.
	Threshold float64 `mapstructure:"threshold"`
	// EvaluatePrompt placeholders: {question}, {context}.
	EvaluatePrompt string `mapstructure:"evaluate_prompt"`
	// RevisePrompt placeholders: {question}, {context}.
	RevisePrompt string `mapstructure:"revise_prompt"`
	// SynthesizePrompt placeholders: {question}, {context}.
	SynthesizePrompt string `mapstructure:"synthesize_prompt"`
}

// DebateConfig configures the two-debater mode.
type DebateConfig struct {
	// Rounds is the number of rebuttal rounds after the openings. Default 1.
	Rounds int `mapstructure:"rounds"`
	// OpeningPrompt placeholders: {question}.
	OpeningPrompt string `mapstructure:"opening_prompt"`
	// RebuttalPrompt placeholders: {question}, {previous}.
	RebuttalPrompt string `mapstructure:"rebuttal_prompt"`
	// VerdictPrompt placeholders: {question}, {labelA}, {responseA},
	// {labelB}, {responseB}.
	VerdictPrompt string `mapstructure:"verdict_prompt"`
}

// CouncilConfig configures the deliberation-and-chair mode.
type CouncilConfig struct {
	// ChairInstance selects the chair by instance ID or model ID.
	// Defaults to the first instance.
	ChairInstance string `mapstructure:"chair_instance"`
	// DeliberatePrompt placeholders: {question}, {context}.
	DeliberatePrompt string `mapstructure:"deliberate_prompt"`
	// SummarizePrompt placeholders: {question}, {context}.
	SummarizePrompt string `mapstructure:"summarize_prompt"`
}

// ConfidenceConfig configures confidence-weighted selection.
type ConfidenceConfig struct {
	// Threshold flags the result when the winning confidence falls below
	// it. 0 disables the flag. Range [0, 100].
	Threshold int `mapstructure:"threshold"`
	// ConfidencePrompt placeholders: {question}, {previous}.
	ConfidencePrompt string `mapstructure:"confidence_prompt"`
}

// ExplainConfig configures the answer-plus-explanations mode.
type ExplainConfig struct {
	// Levels are the audience levels assigned to explainer instances in
	// roster order, cycled when instances outnumber levels.
	Levels []string `mapstructure:"levels"`
	// ExplainPrompt placeholders: {question}, {previous}, {audience}.
	ExplainPrompt string `mapstructure:"explain_prompt"`
}

// Documented defaults.
const (
	DefaultVoteMaxTokens      = 150
	DefaultRefineRounds       = 2
	DefaultConsensusRounds    = 3
	DefaultConsensusThreshold = 0.7
	DefaultDebateRounds       = 1
)

// DefaultExplainLevels returns the built-in audience ladder.
func DefaultExplainLevels() []string {
	return []string{"a five-year-old", "a high-school student", "a domain expert"}
}

// DefaultConfig returns a Config with every documented default filled in.
func DefaultConfig() Config {
	return Config{
		Elected:   ElectedConfig{VoteMaxTokens: DefaultVoteMaxTokens},
		Refine:    RefineConfig{Rounds: DefaultRefineRounds},
		Consensus: ConsensusConfig{MaxRounds: DefaultConsensusRounds, Threshold: DefaultConsensusThreshold},
		Debate:    DebateConfig{Rounds: DefaultDebateRounds},
		Explain:   ExplainConfig{Levels: DefaultExplainLevels()},
	}
}

// Validate checks the cross-field constraints a typed config can still get
// wrong. Zero values are not errors; they mean "use the default".
func (c *Config) Validate() error {
	if c.Elected.VoteMaxTokens < 0 {
		return errors.NewConfigError("vote_max_tokens must be >= 0", nil).WithField("modes.elected.vote_max_tokens")
	}
	if c.Refine.Rounds < 0 {
		return errors.NewConfigError("rounds must be >= 0", nil).WithField("modes.refine.rounds")
	}
	if c.Consensus.MaxRounds < 0 {
		return errors.NewConfigError("max_rounds must be >= 0", nil).WithField("modes.consensus.max_rounds")
	}
	if c.Consensus.Threshold < 0 || c.Consensus.Threshold > 1 {
		return errors.NewConfigError(
			fmt.Sprintf("threshold must be in [0, 1], got %v", c.Consensus.Threshold), nil,
		).WithField("modes.consensus.threshold")
	}
	if c.Debate.Rounds < 0 {
		return errors.NewConfigError("rounds must be >= 0", nil).WithField("modes.debate.rounds")
	}
	if c.Confidence.Threshold < 0 || c.Confidence.Threshold > 100 {
		return errors.NewConfigError(
			fmt.Sprintf("threshold must be in [0, 100], got %d", c.Confidence.Threshold), nil,
		).WithField("modes.confidence.threshold")
	}
	return nil
}

// selectInstance resolves a configured instance reference. The reference
// matches an instance ID exactly first, then a model ID exactly. An empty
// or unmatched reference yields the first instance.
func selectInstance(instances []Instance, ref string) Instance {
	if ref != "" {
		for _, inst := range instances {
			if inst.ID == ref {
				return inst
			}
		}
		for _, inst := range instances {
			if inst.ModelID == ref {
				return inst
			}
		}
	}
	return instances[0]
}
