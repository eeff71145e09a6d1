// Package modes implements the conversation-mode orchestration engine: a
// library of pluggable strategies that coordinate multiple model instances
// to answer one user turn.
//
// Each strategy is a Spec with three hooks: Initialize computes the phase-0
// state, Execute runs the algorithm against a Runner (parallel fan-out,
// single judge/coordinator calls, state publishing), and Finalize maps the
// final state into one Result slot per instance. Run gates every spec on
// its minimum instance count, delegating to the caller's fallback when the
// roster is too small.
//
// Strategies publish live progress through the progress.Store as a
// write-only channel; control flow never reads the store back. Model-side
// failures are absorbed at the Runner boundary: a failed branch becomes an
// absent result, never an error, and only caller-driven cancellation stops
// in-flight work.
package modes
