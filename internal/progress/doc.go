// Package progress implements the live-progress sink the mode engine
// publishes to while a turn executes. The store is a write-only projection
// target from the engine's point of view: strategies publish state
// transitions through it but never read it back for control flow, which
// keeps algorithm behavior independent of store initialization timing.
//
// The store is single-writer, many-reader. Only the currently executing
// mode invocation writes; UI consumers read snapshots or subscribe to a
// channel of state transitions. Slow subscribers drop transitions rather
// than blocking the engine.
package progress
