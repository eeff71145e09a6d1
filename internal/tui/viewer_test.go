package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ensemble-chat/ensemble/internal/modes"
)

func TestViewerRendersPhaseAndBranches(t *testing.T) {
	v := NewViewer("multiple", nil, nil, nil)

	// Before any state arrives the viewer shows a starting banner.
	view := v.View()
	if !strings.Contains(view, "multiple") || !strings.Contains(view, "starting") {
		t.Errorf("View() = %q, want mode name and starting phase", view)
	}

	next, _ := v.Update(stateMsg{state: modes.MultipleState{
		Phase: modes.MultipleResponding,
		Statuses: map[string]modes.Status{
			"inst-a": modes.StatusGenerating,
		},
	}})
	v = next.(Viewer)

	view = v.View()
	if !strings.Contains(view, "responding") {
		t.Errorf("View() = %q, want responding phase", view)
	}
	if !strings.Contains(view, "inst-a") {
		t.Errorf("View() = %q, want instance line", view)
	}
}

func TestViewerQuitsOnDone(t *testing.T) {
	v := NewViewer("elected", nil, nil, nil)

	next, cmd := v.Update(doneMsg{})
	v = next.(Viewer)

	if cmd == nil {
		t.Fatal("Update(doneMsg) returned nil cmd, want tea.Quit")
	}
	if msg := cmd(); msg == nil {
		t.Error("quit cmd produced nil msg")
	}
	if v.View() != "" {
		t.Errorf("View() after quit = %q, want empty", v.View())
	}
}

func TestViewerInterruptAborts(t *testing.T) {
	aborted := false
	v := NewViewer("council", nil, nil, func() { aborted = true })

	next, _ := v.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	v = next.(Viewer)

	if !aborted {
		t.Error("interrupt did not invoke abort")
	}
	if !strings.Contains(v.View(), "stopping") {
		t.Errorf("View() = %q, want stopping banner", v.View())
	}
}
