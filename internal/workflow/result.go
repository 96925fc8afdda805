package workflow

import (
	"maps"
	"sync"
	"time"

	"github.com/iannil/gaia/internal/types"
)

// StepResult is the per-step outcome of one execution. It is written only
// by the coordinating loop; the final write for a step is the one visible
// to dependents.
type StepResult struct {
	StepID      string        `json:"step_id"`
	Status      StepStatus    `json:"status"`
	Output      any           `json:"output,omitempty"`
	Error       *StepError    `json:"error,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	Attempts    int           `json:"attempts"`
	StartedAt   time.Time     `json:"started_at,omitzero"`
	CompletedAt time.Time     `json:"completed_at,omitzero"`
	Duration    time.Duration `json:"duration"`
}

// view exposes the result to condition expressions as a plain map, so
// paths like steps.scan.output.count and steps.scan.status resolve.
func (r *StepResult) view() map[string]any {
	v := map[string]any{
		"status":   string(r.Status),
		"output":   r.Output,
		"attempts": r.Attempts,
	}
	if r.Error != nil {
		v["error"] = r.Error.Error()
	}
	return v
}

// Execution is one run of a workflow definition. It is created at run
// start, mutated exclusively by the coordinating loop that owns it, and
// becomes read-only once Status is terminal. External readers use the
// accessor methods, which are safe for concurrent use.
type Execution struct {
	ID           types.ID               `json:"execution_id"`
	WorkflowID   string                 `json:"workflow_id"`
	WorkflowName string                 `json:"workflow_name"`
	TriggeredBy  string                 `json:"triggered_by"`
	Status       Status                 `json:"status"`
	Variables    map[string]any         `json:"variables"`
	Results      map[string]*StepResult `json:"results"`
	StartedAt    time.Time              `json:"started_at"`
	CompletedAt  time.Time              `json:"completed_at,omitzero"`
	Error        *RunError              `json:"error,omitempty"`

	mu         sync.RWMutex
	cancelOnce sync.Once
	cancelled  chan struct{}
	done       chan struct{}
}

// newExecution creates the run record with every step pending and the
// caller-supplied variable overrides merged over the workflow defaults.
func newExecution(w *Workflow, overrides map[string]any, triggeredBy string) *Execution {
	vars := make(map[string]any, len(w.Variables)+len(overrides))
	maps.Copy(vars, w.Variables)
	maps.Copy(vars, overrides)

	results := make(map[string]*StepResult, len(w.Steps))
	for _, s := range w.Steps {
		results[s.ID] = &StepResult{StepID: s.ID, Status: StepStatusPending}
	}

	if triggeredBy == "" {
		triggeredBy = string(TriggerManual)
	}

	return &Execution{
		ID:           types.NewID(),
		WorkflowID:   w.ID,
		WorkflowName: w.Name,
		TriggeredBy:  triggeredBy,
		Status:       StatusPending,
		Variables:    vars,
		Results:      results,
		cancelled:    make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Cancel requests cancellation of the run. It is fire-and-forget and safe
// to call multiple times: the coordinating loop stops dispatching at its
// next scheduling tick, lets in-flight steps finish, and records their
// results. Effects already produced by completed steps are not rolled back.
func (e *Execution) Cancel() {
	e.cancelOnce.Do(func() { close(e.cancelled) })
}

// Wait blocks until the execution reaches a terminal status.
func (e *Execution) Wait() {
	<-e.done
}

// Done returns a channel closed when the execution reaches a terminal
// status.
func (e *Execution) Done() <-chan struct{} {
	return e.done
}

// CurrentStatus returns the run status. Safe during execution.
func (e *Execution) CurrentStatus() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Status
}

// Result returns the recorded result for a step, or nil. Safe during
// execution; the returned result must be treated as read-only.
func (e *Execution) Result(stepID string) *StepResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Results[stepID]
}

// RunError returns the run-level error, or nil. Safe during execution.
func (e *Execution) RunError() *RunError {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Error
}

// variablesSnapshot returns a copy of the variable mapping for handing to
// concurrently running step handlers. Handlers never see the live map.
func (e *Execution) variablesSnapshot() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snapshot := make(map[string]any, len(e.Variables))
	maps.Copy(snapshot, e.Variables)
	return snapshot
}

// resultsSnapshot returns a copy of the results map for condition
// evaluation and interpolation contexts. The results themselves are copied
// too: step tasks read their snapshot while the coordinating loop keeps
// updating the live records.
func (e *Execution) resultsSnapshot() map[string]*StepResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snapshot := make(map[string]*StepResult, len(e.Results))
	for id, r := range e.Results {
		copied := *r
		snapshot[id] = &copied
	}
	return snapshot
}

// The mark* methods below implement all run-state transitions. They are
// called only from the coordinating loop, which is the sole writer.

func (e *Execution) markStarted() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Status = StatusRunning
	e.StartedAt = time.Now()
}

func (e *Execution) markStepRunning(stepID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r := e.Results[stepID]; r != nil {
		r.Status = StepStatusRunning
		r.StartedAt = time.Now()
	}
}

func (e *Execution) markStepSkipped(stepID, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r := e.Results[stepID]; r != nil {
		r.Status = StepStatusSkipped
		r.Reason = reason
		r.CompletedAt = time.Now()
	}
}

// recordStepResult stores a terminal result produced by a step task and,
// on success, merges the output into the variables under the step id so
// dependents can reference it.
func (e *Execution) recordStepResult(result *StepResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Results[result.StepID] = result
	if result.Status == StepStatusCompleted && result.Output != nil {
		e.Variables[result.StepID] = result.Output
	}
}

func (e *Execution) finish(status Status, runErr *RunError) {
	e.mu.Lock()
	e.Status = status
	e.Error = runErr
	e.CompletedAt = time.Now()
	e.mu.Unlock()
	close(e.done)
}
