package workflow

import "time"

// Status represents the current status of a workflow execution.
type Status string

const (
	// StatusPending indicates the execution is created but not yet started.
	StatusPending Status = "pending"

	// StatusRunning indicates the execution is in progress.
	StatusRunning Status = "running"

	// StatusCompleted indicates the execution finished successfully.
	StatusCompleted Status = "completed"

	// StatusFailed indicates the execution failed.
	StatusFailed Status = "failed"

	// StatusCancelled indicates the execution was cancelled before it finished.
	StatusCancelled Status = "cancelled"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if the status represents a terminal state
// (completed, failed, or cancelled).
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// StepStatus represents the execution status of a single workflow step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// String returns the string representation of the step status.
func (s StepStatus) String() string {
	return string(s)
}

// IsTerminal returns true if a step in this status will never run again
// during the current execution.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusFailed, StepStatusSkipped:
		return true
	default:
		return false
	}
}

// ErrorPolicy controls how an execution reacts to a failing step whose
// continue_on_error flag is unset.
type ErrorPolicy string

const (
	// ErrorPolicyAbort stops scheduling new steps once a step fails.
	// Steps already running are allowed to finish.
	ErrorPolicyAbort ErrorPolicy = "abort"

	// ErrorPolicyContinue keeps scheduling steps whose dependencies are
	// satisfiable; only the dependents of the failed step are skipped.
	ErrorPolicyContinue ErrorPolicy = "continue"
)

// Valid reports whether the policy is one of the known kinds.
func (p ErrorPolicy) Valid() bool {
	return p == ErrorPolicyAbort || p == ErrorPolicyContinue
}

// Workflow is the immutable definition of a workflow: an ordered list of
// steps with dependencies, the triggers that may start a run, and default
// variable values. A Workflow is produced by the Parser or the Builder and
// is never mutated by the Executor.
type Workflow struct {
	// ID is the identifier declared in the workflow document.
	ID string `json:"id" yaml:"id"`

	// Name is a human-readable name for the workflow.
	Name string `json:"name" yaml:"name"`

	// Description provides additional context about what this workflow does.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Version is the declared version of the definition.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// Variables holds default values, overridable at run start.
	Variables map[string]any `json:"variables,omitempty" yaml:"variables,omitempty"`

	// OnError is the workflow-level failure policy. Defaults to abort.
	OnError ErrorPolicy `json:"on_error" yaml:"on_error"`

	// Steps is the ordered list of steps. Declaration order is the
	// dispatch tie-break among simultaneously ready steps.
	Steps []*Step `json:"steps" yaml:"steps"`

	// Triggers declares how a run may be initiated.
	Triggers []Trigger `json:"triggers,omitempty" yaml:"triggers,omitempty"`

	// CreatedAt is the timestamp when the definition was parsed or built.
	CreatedAt time.Time `json:"created_at" yaml:"-"`

	// byID indexes steps by id. Populated by the parser and the builder.
	byID map[string]*Step
}

// GetStep retrieves a step by its ID. Returns nil if not found.
func (w *Workflow) GetStep(id string) *Step {
	if w.byID != nil {
		return w.byID[id]
	}
	for _, s := range w.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// StartSteps returns the steps with no declared dependencies, in
// declaration order. These are eligible at run start.
func (w *Workflow) StartSteps() []*Step {
	var start []*Step
	for _, s := range w.Steps {
		if len(s.DependsOn) == 0 {
			start = append(start, s)
		}
	}
	return start
}

// ReadySteps returns the steps not yet in the completed set whose entire
// depends_on set is a subset of it, in declaration order. The completed set
// holds ids of steps that reached any terminal per-step status.
func (w *Workflow) ReadySteps(completed map[string]struct{}) []*Step {
	var ready []*Step
	for _, s := range w.Steps {
		if _, done := completed[s.ID]; done {
			continue
		}
		satisfied := true
		for _, dep := range s.DependsOn {
			if _, done := completed[dep]; !done {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, s)
		}
	}
	return ready
}

// index rebuilds the step lookup table. Called by the parser and builder
// after the step list is final.
func (w *Workflow) index() {
	w.byID = make(map[string]*Step, len(w.Steps))
	for _, s := range w.Steps {
		w.byID[s.ID] = s
	}
}
