// Package testutil provides testing utilities for Ensemble tests, chiefly
// a deterministic scripted transport so mode strategies can be exercised
// without a model backend.
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/ensemble-chat/ensemble/internal/chat"
	"github.com/ensemble-chat/ensemble/internal/transport"
)

// Call records one transport invocation for later assertions.
type Call struct {
	ModelID    string
	InstanceID string
	Input      []chat.InputItem
	Params     transport.Params
}

// Prompt returns the content of the final input item, which is the current
// turn's prompt for every mode.
func (c Call) Prompt() string {
	if len(c.Input) == 0 {
		return ""
	}
	return c.Input[len(c.Input)-1].Content
}

// Rule maps matching calls to a scripted outcome. Rules are evaluated in
// registration order; the first match wins.
type Rule struct {
	// InstanceID, when set, must equal the call's instance ID.
	InstanceID string
	// ModelID, when set, must equal the call's model ID.
	ModelID string
	// PromptContains, when set, must be a substring of the call's prompt.
	PromptContains string

	// Content is the scripted response text.
	Content string
	// Usage is attached to the response when set.
	Usage *chat.Usage
	// Fail makes the call resolve as a handled failure (nil response).
	Fail bool
	// Respond, when set, overrides the static fields above entirely.
	Respond func(call Call) *transport.Response
}

func (r Rule) matches(call Call) bool {
	if r.InstanceID != "" && r.InstanceID != call.InstanceID {
		return false
	}
	if r.ModelID != "" && r.ModelID != call.ModelID {
		return false
	}
	if r.PromptContains != "" && !strings.Contains(call.Prompt(), r.PromptContains) {
		return false
	}
	return true
}

// ScriptedResponder is a deterministic transport.Responder for tests. It is
// safe for concurrent use; mode fan-outs hit it from multiple goroutines.
type ScriptedResponder struct {
	mu    sync.Mutex
	rules []Rule
	calls []Call

	// DefaultContent is returned when no rule matches. An empty default
	// with no matching rule yields a handled failure.
	DefaultContent string
}

// NewScriptedResponder creates a responder with the given default content.
func NewScriptedResponder(defaultContent string) *ScriptedResponder {
	return &ScriptedResponder{DefaultContent: defaultContent}
}

// AddRule appends a matching rule.
func (s *ScriptedResponder) AddRule(rule Rule) *ScriptedResponder {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rule)
	return s
}

// StreamResponse implements transport.Responder.
func (s *ScriptedResponder) StreamResponse(ctx context.Context, modelID string, input []chat.InputItem, opts transport.CallOptions) (*transport.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil
	}

	call := Call{
		ModelID:    modelID,
		InstanceID: opts.InstanceID,
		Input:      append([]chat.InputItem(nil), input...),
		Params:     opts.Params,
	}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	rules := append([]Rule(nil), s.rules...)
	defaultContent := s.DefaultContent
	s.mu.Unlock()

	for _, rule := range rules {
		if !rule.matches(call) {
			continue
		}
		if rule.Respond != nil {
			return rule.Respond(call), nil
		}
		if rule.Fail {
			return nil, nil
		}
		return &transport.Response{Content: rule.Content, Usage: rule.Usage}, nil
	}

	if defaultContent == "" {
		return nil, nil
	}
	return &transport.Response{Content: defaultContent}, nil
}

// Calls returns a copy of every recorded call.
func (s *ScriptedResponder) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount returns how many calls the responder has served.
func (s *ScriptedResponder) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// CallsForInstance returns recorded calls issued by one instance.
func (s *ScriptedResponder) CallsForInstance(instanceID string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Call
	for _, call := range s.calls {
		if call.InstanceID == instanceID {
			out = append(out, call)
		}
	}
	return out
}
