package modes

import (
	"context"
	"sort"

	"github.com/ensemble-chat/ensemble/internal/chat"
	"github.com/ensemble-chat/ensemble/internal/errors"
)

// SendFunc is the uniform entry point every mode exposes.
type SendFunc func(ctx context.Context, content chat.Content, mc *Context, fallback Fallback) ([]*Result, error)

var registry = map[string]SendFunc{
	ModeMultiple:     SendMultiple,
	ModeElected:      SendElected,
	ModeTournament:   SendTournament,
	ModeHierarchical: SendHierarchical,
	ModeScattershot:  SendScattershot,
	ModeRefined:      SendRefined,
	ModeCritiqued:    SendCritiqued,
	ModeSynthesized:  SendSynthesized,
	ModeChained:      SendChained,
	ModeRouted:       SendRouted,
	ModeConsensus:    SendConsensus,
	ModeDebated:      SendDebated,
	ModeCouncil:      SendCouncil,
	ModeConfidence:   SendConfidence,
	ModeExplainer:    SendExplainer,
}

// Send dispatches one turn to the named mode.
func Send(ctx context.Context, mode string, content chat.Content, mc *Context, fallback Fallback) ([]*Result, error) {
	fn, ok := registry[mode]
	if !ok {
		return nil, errors.NewModeError("unknown mode \""+mode+"\"", errors.ErrUnknownMode).WithMode(mode)
	}
	return fn(ctx, content, mc, fallback)
}

// Names returns every registered mode name, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MinInstances reports a mode's minimum roster size, or 0 for unknown
// modes.
func MinInstances(mode string) int {
	switch mode {
	case ModeMultiple, ModeScattershot:
		return 1
	case ModeElected, ModeConsensus, ModeCouncil:
		return 3
	case ModeTournament:
		return 4
	case ModeHierarchical, ModeRefined, ModeCritiqued, ModeSynthesized,
		ModeChained, ModeRouted, ModeDebated, ModeConfidence, ModeExplainer:
		return 2
	}
	return 0
}
