package workflow

import (
	"fmt"
	"strings"
)

// ParseError represents a workflow parsing error with source location
// information when the YAML document provides it.
type ParseError struct {
	// Message is the human-readable error message.
	Message string
	// Line is the line number where the error occurred (1-indexed, 0 when
	// unknown).
	Line int
	// StepID is the id of the step being parsed when the error occurred,
	// if applicable.
	StepID string
	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	switch {
	case e.StepID != "" && e.Line > 0:
		return fmt.Sprintf("parse error at line %d (step %s): %s", e.Line, e.StepID, e.Message)
	case e.StepID != "":
		return fmt.Sprintf("parse error (step %s): %s", e.StepID, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Message)
	default:
		return fmt.Sprintf("parse error: %s", e.Message)
	}
}

// Unwrap returns the underlying error for error wrapping support.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError is returned when a workflow is rejected before execution.
// Problems holds the blocking issues found by Validate.
type ValidationError struct {
	WorkflowID string
	Problems   []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("workflow %q is not executable: %s", e.WorkflowID, strings.Join(e.Problems, "; "))
}

// StepErrorCode classifies step-level failures.
type StepErrorCode string

const (
	// ErrActionNotFound signals an action name with no registered handler.
	ErrActionNotFound StepErrorCode = "action_not_found"
	// ErrStepTimeout signals an invocation that exceeded the step timeout.
	ErrStepTimeout StepErrorCode = "step_timeout"
	// ErrStepExecution signals a failure returned by the action handler.
	ErrStepExecution StepErrorCode = "step_execution_failed"
	// ErrConditionInvalid signals a condition expression that could not be
	// evaluated.
	ErrConditionInvalid StepErrorCode = "condition_invalid"
)

// StepError is the failure recorded on a StepResult. It is never silently
// dropped: every handler failure, timeout, or missing action ends up here.
type StepError struct {
	Code    StepErrorCode `json:"code"`
	Message string        `json:"message"`
	Cause   error         `json:"-"`
}

// Error implements the error interface.
func (e *StepError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is / errors.As chains.
func (e *StepError) Unwrap() error {
	return e.Cause
}

// RunErrorCode classifies run-level failures surfaced on the Execution.
type RunErrorCode string

const (
	// ErrRunStepFailed aggregates a step failure under an aborting policy.
	ErrRunStepFailed RunErrorCode = "step_failed"
	// ErrRunCancelled signals a run terminated by a cancellation request.
	ErrRunCancelled RunErrorCode = "cancelled"
)

// RunError is the aggregate failure signal on a terminal Execution. The
// caller inspects individual step results for root cause.
type RunError struct {
	Code    RunErrorCode `json:"code"`
	Message string       `json:"message"`
	StepID  string       `json:"step_id,omitempty"`
	Cause   error        `json:"-"`
}

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("%s [step: %s]: %s", e.Code, e.StepID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is / errors.As chains.
func (e *RunError) Unwrap() error {
	return e.Cause
}
