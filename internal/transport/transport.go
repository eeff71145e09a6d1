package transport

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ensemble-chat/ensemble/internal/chat"
)

// Params are per-call model parameters. Nil fields mean "not set" so layers
// of params can be merged key-by-key: base settings, then instance
// overrides, then per-call (e.g. scattershot variation) overrides.
type Params struct {
	Temperature *float64 `json:"temperature,omitempty" mapstructure:"temperature"`
	TopP        *float64 `json:"top_p,omitempty" mapstructure:"top_p"`
	MaxTokens   *int     `json:"max_tokens,omitempty" mapstructure:"max_tokens"`
}

// Merge returns a copy of p with every set field of overlay applied on top.
// Later layers win per key; unset overlay fields leave p's value in place.
func (p Params) Merge(overlay Params) Params {
	merged := p
	if overlay.Temperature != nil {
		merged.Temperature = overlay.Temperature
	}
	if overlay.TopP != nil {
		merged.TopP = overlay.TopP
	}
	if overlay.MaxTokens != nil {
		merged.MaxTokens = overlay.MaxTokens
	}
	return merged
}

// IsZero reports whether no parameter is set.
func (p Params) IsZero() bool {
	return p.Temperature == nil && p.TopP == nil && p.MaxTokens == nil
}

// Label renders the set parameters as a short human-readable tag, e.g.
// "temp=0.5, top_p=0.9". Returns "" when nothing is set. Keys appear in a
// fixed order so labels are deterministic.
func (p Params) Label() string {
	type kv struct {
		order int
		text  string
	}
	var parts []kv
	if p.Temperature != nil {
		parts = append(parts, kv{0, "temp=" + formatParam(*p.Temperature)})
	}
	if p.TopP != nil {
		parts = append(parts, kv{1, "top_p=" + formatParam(*p.TopP)})
	}
	if p.MaxTokens != nil {
		parts = append(parts, kv{2, fmt.Sprintf("max_tokens=%d", *p.MaxTokens)})
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].order < parts[j].order })

	texts := make([]string, len(parts))
	for i, part := range parts {
		texts[i] = part.text
	}
	return strings.Join(texts, ", ")
}

func formatParam(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Float returns a pointer to f, for building Params literals.
func Float(f float64) *float64 { return &f }

// Int returns a pointer to n, for building Params literals.
func Int(n int) *int { return &n }

// Response is the outcome of one successful model call.
type Response struct {
	Content string
	Usage   *chat.Usage
}

// CallOptions carries per-call context beyond the input items.
type CallOptions struct {
	// Params are the fully merged model parameters for this call.
	Params Params
	// InstanceID tags the call with the issuing instance for logging and
	// live-progress attribution.
	InstanceID string
	// InstanceLabel is the display label of the issuing instance.
	InstanceLabel string
}

// Responder performs one streamed model call. Implementations must:
//   - honor ctx cancellation promptly,
//   - return (nil, nil) for handled model-side failures,
//   - reserve errors for programmer-error-class faults.
type Responder interface {
	StreamResponse(ctx context.Context, modelID string, input []chat.InputItem, opts CallOptions) (*Response, error)
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(ctx context.Context, modelID string, input []chat.InputItem, opts CallOptions) (*Response, error)

// StreamResponse implements Responder.
func (f ResponderFunc) StreamResponse(ctx context.Context, modelID string, input []chat.InputItem, opts CallOptions) (*Response, error) {
	return f(ctx, modelID, input, opts)
}
