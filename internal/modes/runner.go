package modes

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc"

	"github.com/ensemble-chat/ensemble/internal/chat"
	"github.com/ensemble-chat/ensemble/internal/errors"
	"github.com/ensemble-chat/ensemble/internal/progress"
	"github.com/ensemble-chat/ensemble/internal/transport"
)

// Spec defines one orchestration strategy. Initialize computes the phase-0
// state, Execute runs the algorithm, Finalize maps the final state to the
// per-instance result slots.
type Spec[S progress.State] struct {
	// Name is the mode's roster name, e.g. "elected".
	Name string
	// MinModels is the minimum instance count; below it Run delegates to
	// the fallback without publishing state or touching the transport.
	MinModels int

	Initialize func(mc *Context) S
	Execute    func(ctx context.Context, mc *Context, r *Runner[S]) (S, error)
	Finalize   func(state S, mc *Context) []*Result
}

// defineSpec validates a spec at package init time. A malformed spec is a
// programmer error, so it panics rather than returning an error.
func defineSpec[S progress.State](spec Spec[S]) Spec[S] {
	if spec.Name == "" {
		panic("modes: spec requires a name")
	}
	if spec.MinModels < 1 {
		panic("modes: spec " + spec.Name + " requires MinModels >= 1")
	}
	if spec.Initialize == nil || spec.Execute == nil || spec.Finalize == nil {
		panic("modes: spec " + spec.Name + " is missing a hook")
	}
	return spec
}

// Run executes a spec for one turn. It resolves the instance roster, gates
// on MinModels (invoking fallback verbatim when unmet), publishes the
// initial state, drives Execute, and materializes results via Finalize.
//
// Run only returns an error for programmer-error-class faults (malformed
// context, a spec hook failing); model and network conditions never
// propagate as errors.
func Run[S progress.State](ctx context.Context, spec Spec[S], content chat.Content, mc *Context, fallback Fallback) ([]*Result, error) {
	if mc == nil || mc.Responder == nil {
		return nil, errors.NewModeError("mode context requires a responder", nil).WithMode(spec.Name)
	}

	if len(mc.Instances) < spec.MinModels {
		if fallback == nil {
			return nil, errors.NewModeError("no fallback provided", errors.ErrInsufficientInstances).WithMode(spec.Name)
		}
		return fallback(ctx, content)
	}

	mc.Content = content

	if store := mc.store(); store != nil {
		ids := make([]string, len(mc.Instances))
		models := make(map[string]string, len(mc.Instances))
		for i, inst := range mc.Instances {
			ids[i] = inst.ID
			models[inst.ID] = inst.ModelID
		}
		store.InitStreaming(ids, models)
	}

	logger := mc.logger().WithMode(spec.Name)
	logger.Info("mode started", "instances", len(mc.Instances))

	runner := &Runner[S]{mc: mc}
	runner.SetState(spec.Initialize(mc))

	state, err := runExecute(ctx, spec, mc, runner)
	if err != nil {
		logger.Error("mode execution failed", "error", err)
		return nil, errors.NewModeError("execution failed", err).WithMode(spec.Name)
	}

	results := spec.Finalize(state, mc)
	logger.Info("mode finished", "results", countNonNil(results))
	return results, nil
}

// runExecute drives the Execute hook, converting a panic (programmer error
// in a spec) into an error instead of unwinding through the caller.
func runExecute[S progress.State](ctx context.Context, spec Spec[S], mc *Context, runner *Runner[S]) (state S, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.NewModeError("execute hook panicked", nil).WithMode(spec.Name)
			mc.logger().Error("execute hook panicked", "mode", spec.Name, "panic", p)
		}
	}()
	return spec.Execute(ctx, mc, runner)
}

func countNonNil(results []*Result) int {
	n := 0
	for _, r := range results {
		if r != nil {
			n++
		}
	}
	return n
}

// Runner exposes the execution primitives a spec's Execute hook uses:
// state publishing, parallel fan-out, single calls, and conversation input
// assembly.
type Runner[S progress.State] struct {
	mu        sync.Mutex
	mc        *Context
	state     S
	callbacks sync.Mutex // serializes OnComplete callbacks across branches
}

// State returns the current state snapshot.
func (r *Runner[S]) State() S {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Instances returns the resolved roster.
func (r *Runner[S]) Instances() []Instance {
	return r.mc.Instances
}

// SetState publishes next as the current live state.
func (r *Runner[S]) SetState(next S) {
	r.mu.Lock()
	r.state = next
	r.mu.Unlock()

	if store := r.mc.store(); store != nil {
		store.SetModeState(next)
	}
}

// UpdateState atomically derives the next state from the current one and
// publishes it. fn must not mutate the state it receives.
func (r *Runner[S]) UpdateState(fn func(S) S) {
	r.mu.Lock()
	next := fn(r.state)
	r.state = next
	r.mu.Unlock()

	if store := r.mc.store(); store != nil {
		store.SetModeState(next)
	}
}

// CallOption adjusts a single transport call.
type CallOption func(*callConfig)

type callConfig struct {
	params    *transport.Params
	maxTokens int
}

// WithParams overrides the merged parameter layer for the call (base
// settings and instance params still apply underneath).
func WithParams(p transport.Params) CallOption {
	return func(c *callConfig) { c.params = &p }
}

// WithMaxTokens caps the response length for short structured calls such
// as votes and verdicts.
func WithMaxTokens(n int) CallOption {
	return func(c *callConfig) { c.maxTokens = n }
}

// StreamInstance performs one transport call for inst with its own cancel
// token registered in the turn's abort registry. Every failure class —
// transport error, handled nil, panic, cancellation — resolves to nil so
// callers treat the branch as "no result".
func (r *Runner[S]) StreamInstance(ctx context.Context, inst Instance, input []chat.InputItem, opts ...CallOption) (resp *transport.Response) {
	logger := r.mc.logger().WithInstance(inst.ID)

	defer func() {
		if p := recover(); p != nil {
			logger.Error("transport call panicked", "panic", p)
			resp = nil
		}
	}()

	var cfg callConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	params := r.mc.Settings.Merge(inst.Params)
	if cfg.params != nil {
		params = params.Merge(*cfg.params)
	}
	if cfg.maxTokens > 0 {
		params.MaxTokens = transport.Int(cfg.maxTokens)
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if r.mc.Aborts != nil {
		r.mc.Aborts.Register(cancel)
	}

	res, err := r.mc.Responder.StreamResponse(callCtx, inst.ModelID, input, transport.CallOptions{
		Params:        params,
		InstanceID:    inst.ID,
		InstanceLabel: inst.DisplayLabel(),
	})
	if err != nil {
		logger.Warn("transport call failed", "model", inst.ModelID, "error", err)
		return nil
	}
	return res
}

// GatherRequest describes one parallel fan-out.
type GatherRequest struct {
	// Instances to call, one branch each.
	Instances []Instance
	// BuildInput assembles the input items for one branch.
	BuildInput func(inst Instance) []chat.InputItem
	// Params optionally overrides the per-call parameter layer per branch
	// (scattershot variations). Nil means instance params over base settings.
	Params func(inst Instance) transport.Params
	// MaxTokens, when positive, caps every branch's response.
	MaxTokens int
	// OnComplete is invoked as each branch settles, success or failure.
	// Invocations are serialized; cross-branch order is unspecified.
	OnComplete func(inst Instance, resp *transport.Response)
}

// InstanceResult is one successful branch of a fan-out.
type InstanceResult struct {
	Instance Instance
	Content  string
	Usage    *chat.Usage
}

// GatherOutcome is the reconciled result of a fan-out: successful branches
// in roster order of the request, failed instances likewise.
type GatherOutcome struct {
	Successful []InstanceResult
	Failed     []Instance
}

// GatherInstances fans out one streamed call per instance in parallel, each
// with its own cancel token, and waits for every branch to settle
// (all-settled semantics: one branch's failure never cancels siblings).
func (r *Runner[S]) GatherInstances(ctx context.Context, req GatherRequest) GatherOutcome {
	responses := make([]*transport.Response, len(req.Instances))

	var wg conc.WaitGroup
	for i, inst := range req.Instances {
		wg.Go(func() {
			var opts []CallOption
			if req.Params != nil {
				opts = append(opts, WithParams(req.Params(inst)))
			}
			if req.MaxTokens > 0 {
				opts = append(opts, WithMaxTokens(req.MaxTokens))
			}

			resp := r.StreamInstance(ctx, inst, req.BuildInput(inst), opts...)
			responses[i] = resp

			if req.OnComplete != nil {
				r.callbacks.Lock()
				req.OnComplete(inst, resp)
				r.callbacks.Unlock()
			}
		})
	}
	wg.Wait()

	var outcome GatherOutcome
	for i, inst := range req.Instances {
		if responses[i] == nil {
			outcome.Failed = append(outcome.Failed, inst)
			continue
		}
		outcome.Successful = append(outcome.Successful, InstanceResult{
			Instance: inst,
			Content:  responses[i].Content,
			Usage:    responses[i].Usage,
		})
	}
	return outcome
}

// BuildConversationInput assembles the transport input for one model:
// history filtered to that model plus the given content as the current
// user turn.
func (r *Runner[S]) BuildConversationInput(modelID string, content chat.Content) []chat.InputItem {
	filtered := chat.FilterMessagesForModel(r.mc.Messages, modelID)
	items := chat.MessagesToInputItems(filtered)
	return append(items, chat.InputItem{Role: string(chat.RoleUser), Content: chat.ExtractText(content)})
}

// PromptInput builds a single-turn input from a bare prompt string, with no
// conversation history. Judge, vote, and coordinator calls use this.
func (r *Runner[S]) PromptInput(prompt string) []chat.InputItem {
	return []chat.InputItem{{Role: string(chat.RoleUser), Content: prompt}}
}
