package modes

import (
	"context"
	"sync"

	"github.com/ensemble-chat/ensemble/internal/chat"
	"github.com/ensemble-chat/ensemble/internal/logging"
	"github.com/ensemble-chat/ensemble/internal/progress"
	"github.com/ensemble-chat/ensemble/internal/transport"
)

// Instance is one configured invocation target for a turn: a model ID plus
// optional label and parameter overrides. Multiple instances may share a
// model ID (same model at different temperatures); identity for tracking is
// always the instance ID. Instances are immutable once the turn starts.
type Instance struct {
	ID      string           `json:"id"`
	ModelID string           `json:"model_id"`
	Label   string           `json:"label,omitempty"`
	Params  transport.Params `json:"parameters,omitempty"`
}

// DisplayLabel returns the label shown in transcripts and brackets,
// falling back to the model ID.
func (i Instance) DisplayLabel() string {
	if i.Label != "" {
		return i.Label
	}
	return i.ModelID
}

// AbortRegistry collects the cancel functions of every in-flight transport
// call for the current turn, so a user-initiated stop can cancel all
// branches of the current phase together.
type AbortRegistry struct {
	mu      sync.Mutex
	cancels []context.CancelFunc
}

// NewAbortRegistry creates an empty registry.
func NewAbortRegistry() *AbortRegistry {
	return &AbortRegistry{}
}

// Register adds a cancel function to the registry.
func (r *AbortRegistry) Register(cancel context.CancelFunc) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels = append(r.cancels, cancel)
}

// CancelAll cancels every registered call and clears the registry.
// Cancelled branches resolve as failed branches; they never surface as
// errors from the mode entry points.
func (r *AbortRegistry) CancelAll() {
	if r == nil {
		return
	}
	r.mu.Lock()
	cancels := r.cancels
	r.cancels = nil
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// Context is the per-turn execution context handed to every mode. It is
// constructed once per send and read-only during execution, except for the
// abort registry.
type Context struct {
	// Instances is the active roster for this turn.
	Instances []Instance
	// Messages is the conversation history before this turn.
	Messages []chat.Message
	// Config holds the per-mode knobs.
	Config Config
	// Settings are the base model parameters, overridden per instance and
	// per call.
	Settings transport.Params
	// Responder performs model calls.
	Responder transport.Responder
	// Store receives live progress. Optional; a nil store means progress
	// is simply not observed.
	Store *progress.Store
	// Aborts collects per-call cancel functions. Optional.
	Aborts *AbortRegistry
	// Logger defaults to a nop logger.
	Logger *logging.Logger

	// Content is the current turn's user content. Run sets it before
	// Initialize is called.
	Content chat.Content
}

// Question returns the text portion of the current turn's content.
func (mc *Context) Question() string {
	return chat.ExtractText(mc.Content)
}

func (mc *Context) logger() *logging.Logger {
	if mc.Logger == nil {
		return logging.NopLogger()
	}
	return mc.Logger
}

func (mc *Context) store() *progress.Store {
	return mc.Store
}

// Result is the per-instance-slot output of a mode invocation. Slots with
// no attributable final content are nil in the result slice.
type Result struct {
	Content  string      `json:"content"`
	Usage    *chat.Usage `json:"usage,omitempty"`
	Metadata any         `json:"mode_metadata,omitempty"`
}

// Fallback is the degenerate strategy invoked when a mode's minimum
// instance requirement is not met. It receives the original content
// verbatim; no mode state is published and no transport calls happen
// before it runs.
type Fallback func(ctx context.Context, content chat.Content) ([]*Result, error)

// nullResults returns an all-nil result slice, one slot per instance.
func nullResults(count int) []*Result {
	return make([]*Result, count)
}

// indexByID returns the roster position of an instance ID, or -1.
func indexByID(instances []Instance, id string) int {
	for i, inst := range instances {
		if inst.ID == id {
			return i
		}
	}
	return -1
}
