package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ensemble-chat/ensemble/internal/modes"
	"github.com/ensemble-chat/ensemble/internal/progress"
)

// describe renders a mode state as display lines, one per branch of work.
// It is a pure function of the state so the renderer stays testable without
// a terminal.
func describe(state progress.State) []string {
	switch s := state.(type) {
	case modes.MultipleState:
		return statusLines(s.Statuses)

	case modes.ElectedState:
		lines := []string{fmt.Sprintf("%d candidates, %d votes", len(s.Candidates), len(s.Votes))}
		if s.Winner != "" {
			lines = append(lines, doneStyle.Render("winner: ")+s.Winner)
		}
		return lines

	case modes.TournamentState:
		lines := []string{fmt.Sprintf("round %d of %d, %d matches decided", len(s.Bracket), bracketRounds(s), len(s.Matches))}
		if s.Winner != "" {
			lines = append(lines, doneStyle.Render("champion: ")+s.Winner)
		}
		return lines

	case modes.HierarchicalState:
		lines := []string{mutedStyle.Render("coordinator: ") + s.Coordinator}
		for _, task := range s.Subtasks {
			lines = append(lines, fmt.Sprintf("%s %s %s (%s)",
				statusGlyph(task.Status), task.ID, mutedStyle.Render(truncate(task.Description, 40)), task.WorkerID))
		}
		return lines

	case modes.ScattershotState:
		lines := make([]string, 0, len(s.Variations))
		for _, v := range s.Variations {
			lines = append(lines, fmt.Sprintf("%s %s", statusGlyph(v.Status), v.Label))
		}
		return lines

	case modes.RefinedState:
		lines := []string{fmt.Sprintf("round %d", s.Round)}
		return append(lines, statusLines(s.Statuses)...)

	case modes.CritiquedState:
		lines := statusLines(s.Statuses)
		for _, author := range sortedKeys(s.Critiques) {
			lines = append(lines, mutedStyle.Render(fmt.Sprintf("%s reviewed by %s", author, s.Critiques[author].CriticID)))
		}
		return lines

	case modes.SynthesizedState:
		lines := []string{fmt.Sprintf("%d answers gathered", len(s.Answers))}
		if s.Synthesis != "" {
			verb := "merged by " + s.Synthesizer
			if !s.Merged {
				verb = "concatenated (synthesis failed)"
			}
			lines = append(lines, doneStyle.Render(verb))
		}
		return lines

	case modes.ChainedState:
		lines := make([]string, 0, len(s.Steps)+1)
		for _, step := range s.Steps {
			glyph := doneStyle.Render("✓")
			if step.Skipped {
				glyph = failedStyle.Render("✗")
			}
			lines = append(lines, fmt.Sprintf("%s %s", glyph, step.Label))
		}
		if s.Current != "" {
			lines = append(lines, workingStyle.Render("● ")+s.Current)
		}
		return lines

	case modes.RoutedState:
		lines := []string{mutedStyle.Render("router: ") + s.Router}
		if s.Selected != "" {
			lines = append(lines, "routed to "+s.Selected)
		}
		return lines

	case modes.ConsensusState:
		lines := []string{fmt.Sprintf("round %d", s.Round)}
		for i, round := range s.Rounds {
			lines = append(lines, fmt.Sprintf("round %d agreement: %.0f%%", i+1, round.Ratio*100))
		}
		if s.Reached {
			lines = append(lines, doneStyle.Render("consensus reached"))
		}
		return lines

	case modes.DebatedState:
		lines := []string{fmt.Sprintf("%s vs %s, %d turns", s.DebaterA, s.DebaterB, len(s.Transcript))}
		if s.Winner != "" {
			lines = append(lines, doneStyle.Render("winner: ")+s.Winner+mutedStyle.Render(" (judge "+s.Judge+")"))
		}
		return lines

	case modes.CouncilState:
		lines := []string{
			mutedStyle.Render("chair: ") + s.Chair,
			fmt.Sprintf("%d answers, %d positions", len(s.Answers), len(s.Positions)),
		}
		if s.Summary != "" {
			lines = append(lines, doneStyle.Render("summary ready"))
		}
		return lines

	case modes.ConfidenceState:
		lines := make([]string, 0, len(s.Scores)+1)
		for _, score := range s.Scores {
			lines = append(lines, fmt.Sprintf("%s %d%%", score.Label, score.Confidence))
		}
		if s.Winner != "" {
			line := doneStyle.Render("winner: ") + s.Winner
			if s.BelowThreshold {
				line += failedStyle.Render(" (below threshold)")
			}
			lines = append(lines, line)
		}
		return lines

	case modes.ExplainerState:
		lines := []string{mutedStyle.Render("primary: ") + s.Primary}
		for _, ex := range s.Explanations {
			lines = append(lines, fmt.Sprintf("%s for %s", ex.Label, ex.Level))
		}
		return lines

	default:
		return nil
	}
}

// phaseOf extracts the phase label from a mode state for the header line.
func phaseOf(state progress.State) string {
	switch s := state.(type) {
	case modes.MultipleState:
		return string(s.Phase)
	case modes.ElectedState:
		return string(s.Phase)
	case modes.TournamentState:
		return string(s.Phase)
	case modes.HierarchicalState:
		return string(s.Phase)
	case modes.ScattershotState:
		return string(s.Phase)
	case modes.RefinedState:
		return string(s.Phase)
	case modes.CritiquedState:
		return string(s.Phase)
	case modes.SynthesizedState:
		return string(s.Phase)
	case modes.ChainedState:
		return string(s.Phase)
	case modes.RoutedState:
		return string(s.Phase)
	case modes.ConsensusState:
		return string(s.Phase)
	case modes.DebatedState:
		return string(s.Phase)
	case modes.CouncilState:
		return string(s.Phase)
	case modes.ConfidenceState:
		return string(s.Phase)
	case modes.ExplainerState:
		return string(s.Phase)
	default:
		return ""
	}
}

// statusLines renders an instance status map in stable alphabetical order.
func statusLines(statuses map[string]modes.Status) []string {
	lines := make([]string, 0, len(statuses))
	for _, id := range sortedKeys(statuses) {
		lines = append(lines, fmt.Sprintf("%s %s", statusGlyph(statuses[id]), id))
	}
	return lines
}

func statusGlyph(status modes.Status) string {
	switch status {
	case modes.StatusComplete:
		return doneStyle.Render("✓")
	case modes.StatusFailed:
		return failedStyle.Render("✗")
	case modes.StatusGenerating, modes.StatusInProgress:
		return workingStyle.Render("●")
	default:
		return mutedStyle.Render("○")
	}
}

// bracketRounds estimates the total rounds a bracket needs, for the
// "round N of M" header.
func bracketRounds(s modes.TournamentState) int {
	if len(s.Bracket) == 0 {
		return 0
	}
	rounds := 1
	for n := len(s.Bracket[0]); n > 1; n = (n + 1) / 2 {
		rounds++
	}
	return rounds - 1
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max]) + "…"
}
