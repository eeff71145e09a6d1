// Package tui renders live mode progress in the terminal. The viewer
// subscribes to the turn's progress store and redraws a compact phase and
// branch summary on every published state transition.
package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ensemble-chat/ensemble/internal/progress"
)

// Viewer is the bubbletea model for one turn. It owns no orchestration:
// state arrives over the subscription channel and completion over done.
type Viewer struct {
	modeName string
	states   <-chan progress.State
	done     <-chan struct{}
	// abort cancels the turn's in-flight calls on user interrupt.
	abort func()

	state    progress.State
	width    int
	quitting bool
	aborted  bool
}

// NewViewer creates a viewer for one mode invocation. The states channel is
// a progress.Store subscription; done is closed when the turn settles.
func NewViewer(modeName string, states <-chan progress.State, done <-chan struct{}, abort func()) Viewer {
	return Viewer{
		modeName: modeName,
		states:   states,
		done:     done,
		abort:    abort,
	}
}

type stateMsg struct{ state progress.State }

type doneMsg struct{}

// Init starts the two receive loops.
func (v Viewer) Init() tea.Cmd {
	return tea.Batch(v.nextState(), v.waitDone())
}

func (v Viewer) nextState() tea.Cmd {
	return func() tea.Msg {
		state, ok := <-v.states
		if !ok {
			return nil
		}
		return stateMsg{state: state}
	}
}

func (v Viewer) waitDone() tea.Cmd {
	return func() tea.Msg {
		<-v.done
		return doneMsg{}
	}
}

// Update handles state transitions, completion, and interrupts.
func (v Viewer) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateMsg:
		v.state = msg.state
		return v, v.nextState()

	case doneMsg:
		v.quitting = true
		return v, tea.Quit

	case tea.WindowSizeMsg:
		v.width = msg.Width
		return v, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if v.abort != nil {
				v.abort()
			}
			v.aborted = true
			// Quit happens on doneMsg; aborted branches settle as absent
			// results, so the turn still completes.
			return v, nil
		}
	}
	return v, nil
}

// View renders the current snapshot.
func (v Viewer) View() string {
	if v.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("ensemble"))
	b.WriteString(mutedStyle.Render(" · "))
	b.WriteString(v.modeName)

	if phase := v.phase(); phase != "" {
		b.WriteString("  ")
		b.WriteString(phaseStyle.Render(phase))
	}
	if v.aborted {
		b.WriteString("  ")
		b.WriteString(failedStyle.Render("stopping"))
	}
	b.WriteString("\n")

	for _, line := range v.lines() {
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString(mutedStyle.Render("\n  q to stop\n"))
	return b.String()
}

func (v Viewer) phase() string {
	if v.state == nil {
		return "starting"
	}
	return phaseOf(v.state)
}

func (v Viewer) lines() []string {
	if v.state == nil {
		return nil
	}
	return describe(v.state)
}
