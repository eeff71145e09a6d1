package modes

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ensemble-chat/ensemble/internal/chat"
)

// ModeRouted asks one instance to pick the best-suited model for the
// question, then only the selected instance answers.
const ModeRouted = "routed"

// RoutedPhase enumerates the routed mode's phases.
type RoutedPhase string

const (
	RoutedRouting    RoutedPhase = "routing"
	RoutedResponding RoutedPhase = "responding"
	RoutedDone       RoutedPhase = "done"
)

// RoutedState is the live state for the routed mode.
type RoutedState struct {
	Phase    RoutedPhase `json:"phase"`
	Router   string      `json:"router"`
	Selected string      `json:"selected,omitempty"`
	// Rationale is the router's raw reply, kept for display.
	Rationale string `json:"rationale,omitempty"`
	Answer    string `json:"answer,omitempty"`

	routingUsage *chat.Usage
	answerUsage  *chat.Usage
	answered     bool
}

// Mode implements progress.State.
func (RoutedState) Mode() string { return ModeRouted }

// RoutedMetadata is attached to the selected instance's result.
type RoutedMetadata struct {
	Mode             string      `json:"mode"`
	Router           string      `json:"router"`
	SelectedInstance string      `json:"selected_instance"`
	RoutingRationale string      `json:"routing_rationale,omitempty"`
	RoutingUsage     *chat.Usage `json:"routing_usage,omitempty"`
}

var routedSpec = defineSpec(Spec[RoutedState]{
	Name:      ModeRouted,
	MinModels: 2,
	Initialize: func(mc *Context) RoutedState {
		router := selectInstance(mc.Instances, mc.Config.Route.RouterInstance)
		return RoutedState{Phase: RoutedRouting, Router: router.ID}
	},
	Execute:  executeRouted,
	Finalize: finalizeRouted,
})

func executeRouted(ctx context.Context, mc *Context, r *Runner[RoutedState]) (RoutedState, error) {
	state := r.State()
	router := selectInstance(mc.Instances, mc.Config.Route.RouterInstance)

	prompt := interpolate(orDefault(mc.Config.Route.RoutePrompt, defaultRoutePrompt), map[string]string{
		"question":   mc.Question(),
		"candidates": numberedRoster(mc.Instances),
		"count":      strconv.Itoa(len(mc.Instances)),
	})

	selected := defaultRoute(mc.Instances, router.ID)
	resp := r.StreamInstance(ctx, router, r.PromptInput(prompt))
	if resp != nil {
		state.Rationale = resp.Content
		state.routingUsage = resp.Usage
		if n, ok := firstInt(resp.Content); ok && n >= 1 && n <= len(mc.Instances) {
			selected = mc.Instances[n-1]
		}
	}

	state.Selected = selected.ID
	state.Phase = RoutedResponding
	r.SetState(state)

	answer := r.StreamInstance(ctx, selected, r.BuildConversationInput(selected.ModelID, mc.Content))
	if answer != nil {
		state.Answer = answer.Content
		state.answerUsage = answer.Usage
		state.answered = true
	}

	state.Phase = RoutedDone
	r.SetState(state)
	return state, nil
}

// defaultRoute is where routing lands when the router fails or replies out
// of range: the first instance that is not the router itself.
func defaultRoute(instances []Instance, routerID string) Instance {
	for _, inst := range instances {
		if inst.ID != routerID {
			return inst
		}
	}
	return instances[0]
}

func numberedRoster(instances []Instance) string {
	lines := make([]string, len(instances))
	for i, inst := range instances {
		lines[i] = fmt.Sprintf("%d. %s", i+1, inst.DisplayLabel())
	}
	return strings.Join(lines, "\n")
}

func finalizeRouted(state RoutedState, mc *Context) []*Result {
	results := nullResults(len(mc.Instances))
	if !state.answered {
		return results
	}

	slot := indexByID(mc.Instances, state.Selected)
	if slot < 0 {
		return results
	}

	results[slot] = &Result{
		Content: state.Answer,
		Usage:   state.answerUsage,
		Metadata: RoutedMetadata{
			Mode:             ModeRouted,
			Router:           state.Router,
			SelectedInstance: state.Selected,
			RoutingRationale: state.Rationale,
			RoutingUsage:     state.routingUsage,
		},
	}
	return results
}

// SendRouted runs the router-selects-one mode.
func SendRouted(ctx context.Context, content chat.Content, mc *Context, fallback Fallback) ([]*Result, error) {
	return Run(ctx, routedSpec, content, mc, fallback)
}
