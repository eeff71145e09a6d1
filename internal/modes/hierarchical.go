package modes

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/sourcegraph/conc"

	"github.com/ensemble-chat/ensemble/internal/chat"
)

// ModeHierarchical runs coordinator/worker decomposition: one instance
// splits the question into subtasks, the rest execute them, and the
// coordinator synthesizes the results.
const ModeHierarchical = "hierarchical"

const noWorkerResults = "No worker results to synthesize."

// HierarchicalPhase enumerates the hierarchical mode's phases.
type HierarchicalPhase string

const (
	HierarchicalDecomposing  HierarchicalPhase = "decomposing"
	HierarchicalExecuting    HierarchicalPhase = "executing"
	HierarchicalSynthesizing HierarchicalPhase = "synthesizing"
	HierarchicalDone         HierarchicalPhase = "done"
)

// HierarchicalSubtask is one unit of delegated work.
type HierarchicalSubtask struct {
	ID          string      `json:"id"`
	Description string      `json:"description"`
	WorkerID    string      `json:"worker_id"`
	Status      Status      `json:"status"`
	Result      string      `json:"result,omitempty"`
	Usage       *chat.Usage `json:"usage,omitempty"`
}

// HierarchicalState is the live state for the hierarchical mode.
type HierarchicalState struct {
	Phase       HierarchicalPhase     `json:"phase"`
	Coordinator string                `json:"coordinator"`
	Subtasks    []HierarchicalSubtask `json:"subtasks"`
	Synthesis   string                `json:"synthesis,omitempty"`

	decompositionUsage *chat.Usage
	synthesisUsage     *chat.Usage
}

// Mode implements progress.State.
func (HierarchicalState) Mode() string { return ModeHierarchical }

// HierarchicalMetadata is attached to the coordinator slot's result.
type HierarchicalMetadata struct {
	Mode               string                `json:"mode"`
	Coordinator        string                `json:"coordinator"`
	Subtasks           []HierarchicalSubtask `json:"subtasks"`
	WorkerResults      map[string][]string   `json:"worker_results"`
	DecompositionUsage *chat.Usage           `json:"decomposition_usage,omitempty"`
	SynthesizerUsage   *chat.Usage           `json:"synthesizer_usage,omitempty"`
	AggregateUsage     *chat.Usage           `json:"aggregate_usage,omitempty"`
}

var hierarchicalSpec = defineSpec(Spec[HierarchicalState]{
	Name:      ModeHierarchical,
	MinModels: 2,
	Initialize: func(mc *Context) HierarchicalState {
		coordinator := selectInstance(mc.Instances, mc.Config.Hierarchical.CoordinatorInstance)
		return HierarchicalState{Phase: HierarchicalDecomposing, Coordinator: coordinator.ID}
	},
	Execute:  executeHierarchical,
	Finalize: finalizeHierarchical,
})

func executeHierarchical(ctx context.Context, mc *Context, r *Runner[HierarchicalState]) (HierarchicalState, error) {
	state := r.State()
	coordinator := selectInstance(mc.Instances, mc.Config.Hierarchical.CoordinatorInstance)

	workers := make([]Instance, 0, len(mc.Instances)-1)
	for _, inst := range mc.Instances {
		if inst.ID != coordinator.ID {
			workers = append(workers, inst)
		}
	}

	logger := mc.logger().WithMode(ModeHierarchical)

	// Decompose. Every failure class here degrades to one default subtask
	// per worker rather than aborting the turn.
	prompt := interpolate(orDefault(mc.Config.Hierarchical.DecomposePrompt, defaultDecomposePrompt), map[string]string{
		"question": mc.Question(),
		"count":    strconv.Itoa(len(workers)),
		"workers":  workerList(workers),
	})
	resp := r.StreamInstance(ctx, coordinator, r.PromptInput(prompt))

	var subtasks []HierarchicalSubtask
	if resp != nil {
		state.decompositionUsage = resp.Usage
		subtasks = parseSubtasks(resp.Content, workers)
	}
	if len(subtasks) == 0 {
		logger.Warn("decomposition unusable, assigning one default subtask per worker")
		subtasks = defaultSubtasks(mc.Question(), workers)
	}

	state.Phase = HierarchicalExecuting
	state.Subtasks = subtasks
	r.SetState(state)

	// Execute: sequential per worker, workers concurrent with each other.
	byWorker := make(map[string][]int)
	for i, st := range subtasks {
		byWorker[st.WorkerID] = append(byWorker[st.WorkerID], i)
	}

	var wg conc.WaitGroup
	for _, worker := range workers {
		worker := worker
		indices := byWorker[worker.ID]
		if len(indices) == 0 {
			continue
		}
		wg.Go(func() {
			for _, i := range indices {
				runSubtask(ctx, mc, r, worker, i)
			}
		})
	}
	wg.WaitAndRecover()

	state = r.State()
	if !anyComplete(state.Subtasks) {
		state.Phase = HierarchicalDone
		state.Synthesis = noWorkerResults
		r.SetState(state)
		return state, nil
	}

	// Synthesize. A coordinator failure degrades to a raw concatenation of
	// worker output rather than dropping it.
	state.Phase = HierarchicalSynthesizing
	r.SetState(state)

	synthPrompt := interpolate(orDefault(mc.Config.Hierarchical.SynthesizePrompt, defaultSynthesizePrompt), map[string]string{
		"question": mc.Question(),
		"context":  subtaskContext(state.Subtasks),
	})
	synthResp := r.StreamInstance(ctx, coordinator, r.PromptInput(synthPrompt))
	if synthResp != nil {
		state.Synthesis = synthResp.Content
		state.synthesisUsage = synthResp.Usage
	} else {
		logger.Warn("synthesis failed, concatenating worker output")
		state.Synthesis = "Unable to synthesize worker results; raw output follows.\n\n" + rawWorkerOutput(state.Subtasks)
	}

	state.Phase = HierarchicalDone
	r.SetState(state)
	return state, nil
}

func runSubtask(ctx context.Context, mc *Context, r *Runner[HierarchicalState], worker Instance, index int) {
	r.UpdateState(func(s HierarchicalState) HierarchicalState {
		return s.withSubtaskStatus(index, StatusInProgress, "", nil)
	})

	prompt := interpolate(orDefault(mc.Config.Hierarchical.WorkerPrompt, defaultWorkerPrompt), map[string]string{
		"question": mc.Question(),
		"task":     r.State().Subtasks[index].Description,
	})
	resp := r.StreamInstance(ctx, worker, r.PromptInput(prompt))

	if resp == nil {
		r.UpdateState(func(s HierarchicalState) HierarchicalState {
			return s.withSubtaskStatus(index, StatusFailed, "", nil)
		})
		return
	}
	r.UpdateState(func(s HierarchicalState) HierarchicalState {
		return s.withSubtaskStatus(index, StatusComplete, resp.Content, resp.Usage)
	})
}

// withSubtaskStatus returns a copy of s with one subtask's status replaced.
func (s HierarchicalState) withSubtaskStatus(index int, status Status, result string, usage *chat.Usage) HierarchicalState {
	subtasks := append([]HierarchicalSubtask(nil), s.Subtasks...)
	subtasks[index].Status = status
	if result != "" {
		subtasks[index].Result = result
	}
	if usage != nil {
		subtasks[index].Usage = usage
	}
	s.Subtasks = subtasks
	return s
}

type decomposition struct {
	Subtasks []struct {
		ID            string `json:"id"`
		Description   string `json:"description"`
		AssignedModel string `json:"assignedModel"`
	} `json:"subtasks"`
}

// parseSubtasks extracts the coordinator's JSON plan. Subtasks without a
// description are dropped; missing ids become subtask-N. Assigned models
// match workers by exact id or substring, first match wins; unmatched or
// omitted assignments round-robin across workers in roster order.
func parseSubtasks(content string, workers []Instance) []HierarchicalSubtask {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil
	}

	var plan decomposition
	if err := json.Unmarshal([]byte(content[start:end+1]), &plan); err != nil {
		return nil
	}

	var subtasks []HierarchicalSubtask
	next := 0
	for _, raw := range plan.Subtasks {
		if strings.TrimSpace(raw.Description) == "" {
			continue
		}
		id := raw.ID
		if id == "" {
			id = fmt.Sprintf("subtask-%d", len(subtasks)+1)
		}
		worker, matched := matchWorker(raw.AssignedModel, workers)
		if !matched {
			worker = workers[next%len(workers)]
			next++
		}
		subtasks = append(subtasks, HierarchicalSubtask{
			ID:          id,
			Description: raw.Description,
			WorkerID:    worker.ID,
			Status:      StatusPending,
		})
	}
	return subtasks
}

// matchWorker resolves an assignedModel reference against the worker
// roster. A reference like "gpt-4" matches any worker whose id or model id
// contains it, so ids that are substrings of each other resolve to
// whichever worker appears first in the roster.
func matchWorker(ref string, workers []Instance) (Instance, bool) {
	if ref == "" {
		return Instance{}, false
	}
	for _, w := range workers {
		if w.ID == ref || w.ModelID == ref {
			return w, true
		}
	}
	for _, w := range workers {
		if strings.Contains(w.ID, ref) || strings.Contains(w.ModelID, ref) {
			return w, true
		}
	}
	return Instance{}, false
}

func defaultSubtasks(question string, workers []Instance) []HierarchicalSubtask {
	subtasks := make([]HierarchicalSubtask, len(workers))
	for i, w := range workers {
		subtasks[i] = HierarchicalSubtask{
			ID:          fmt.Sprintf("subtask-%d", i+1),
			Description: question,
			WorkerID:    w.ID,
			Status:      StatusPending,
		}
	}
	return subtasks
}

func workerList(workers []Instance) string {
	ids := make([]string, len(workers))
	for i, w := range workers {
		ids[i] = w.ID
	}
	return strings.Join(ids, ", ")
}

func anyComplete(subtasks []HierarchicalSubtask) bool {
	for _, st := range subtasks {
		if st.Status == StatusComplete {
			return true
		}
	}
	return false
}

func subtaskContext(subtasks []HierarchicalSubtask) string {
	var b strings.Builder
	for _, st := range subtasks {
		if st.Status != StatusComplete {
			continue
		}
		fmt.Fprintf(&b, "Subtask %s (%s):\n%s\n\n", st.ID, st.Description, st.Result)
	}
	return strings.TrimRight(b.String(), "\n")
}

func rawWorkerOutput(subtasks []HierarchicalSubtask) string {
	var parts []string
	for _, st := range subtasks {
		if st.Status == StatusComplete {
			parts = append(parts, st.Result)
		}
	}
	return strings.Join(parts, "\n\n")
}

func finalizeHierarchical(state HierarchicalState, mc *Context) []*Result {
	results := nullResults(len(mc.Instances))
	if state.Synthesis == "" || state.Synthesis == noWorkerResults {
		return results
	}

	slot := indexByID(mc.Instances, state.Coordinator)
	if slot < 0 {
		slot = 0
	}

	workerResults := make(map[string][]string)
	usages := []*chat.Usage{state.decompositionUsage, state.synthesisUsage}
	for _, st := range state.Subtasks {
		if st.Status == StatusComplete {
			workerResults[st.WorkerID] = append(workerResults[st.WorkerID], st.Result)
		}
		usages = append(usages, st.Usage)
	}

	results[slot] = &Result{
		Content: state.Synthesis,
		Usage:   state.synthesisUsage,
		Metadata: HierarchicalMetadata{
			Mode:               ModeHierarchical,
			Coordinator:        state.Coordinator,
			Subtasks:           state.Subtasks,
			WorkerResults:      workerResults,
			DecompositionUsage: state.decompositionUsage,
			SynthesizerUsage:   state.synthesisUsage,
			AggregateUsage:     chat.AggregateUsage(usages...),
		},
	}
	return results
}

// SendHierarchical runs the coordinator/worker decomposition mode.
func SendHierarchical(ctx context.Context, content chat.Content, mc *Context, fallback Fallback) ([]*Result, error) {
	return Run(ctx, hierarchicalSpec, content, mc, fallback)
}
