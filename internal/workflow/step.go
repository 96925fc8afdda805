package workflow

import (
	"math"
	"time"
)

// Step is a single unit of work in a workflow, bound to a registered action
// and optional dependencies, condition, timeout, and retry policy.
type Step struct {
	// ID is unique within the workflow.
	ID string `json:"id" yaml:"id"`

	// Name is an optional human-readable name. Defaults to the ID.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Action is the key into the action registry.
	Action string `json:"action" yaml:"action"`

	// Parameters are passed to the action handler after interpolation of
	// {{variable}} references.
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`

	// DependsOn lists the ids of steps that must reach a terminal status
	// before this step may start.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`

	// Condition is an optional boolean expression over variables and prior
	// step results. A false condition skips the step without invoking the
	// action handler.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`

	// ContinueOnError prevents a failure of this step from aborting the run.
	ContinueOnError bool `json:"continue_on_error,omitempty" yaml:"continue_on_error,omitempty"`

	// Timeout bounds a single handler invocation. Zero means unbounded.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"-"`

	// Retry is the optional retry policy for failing invocations.
	Retry *RetryPolicy `json:"retry,omitempty" yaml:"retry,omitempty"`
}

// DisplayName returns the step name, falling back to the id.
func (s *Step) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// BackoffStrategy defines how retry delays grow between attempts.
type BackoffStrategy string

const (
	// BackoffConstant uses the same delay for every retry.
	BackoffConstant BackoffStrategy = "constant"
	// BackoffLinear grows the delay linearly with the attempt number.
	BackoffLinear BackoffStrategy = "linear"
	// BackoffExponential multiplies the delay after each attempt, capped
	// at MaxDelay when set.
	BackoffExponential BackoffStrategy = "exponential"
)

// Valid reports whether the strategy is one of the known kinds.
func (b BackoffStrategy) Valid() bool {
	switch b {
	case BackoffConstant, BackoffLinear, BackoffExponential:
		return true
	default:
		return false
	}
}

// Default retry timing used when a policy leaves fields unset.
const (
	defaultRetryDelay      = time.Second
	defaultRetryMultiplier = 2.0
)

// RetryPolicy defines the retry behavior of a step. MaxAttempts counts
// total invocations, so MaxAttempts of 3 means up to two retries.
type RetryPolicy struct {
	MaxAttempts  int             `json:"max_attempts" yaml:"max_attempts"`
	Backoff      BackoffStrategy `json:"backoff,omitempty" yaml:"backoff,omitempty"`
	InitialDelay time.Duration   `json:"initial_delay,omitempty" yaml:"-"`
	MaxDelay     time.Duration   `json:"max_delay,omitempty" yaml:"-"`
	Multiplier   float64         `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
}

// Delay returns the backoff delay after the given failed attempt
// (1-indexed). The result never exceeds MaxDelay when MaxDelay is set.
func (rp *RetryPolicy) Delay(attempt int) time.Duration {
	initial := rp.InitialDelay
	if initial <= 0 {
		initial = defaultRetryDelay
	}
	if attempt < 1 {
		attempt = 1
	}

	var delay time.Duration
	switch rp.Backoff {
	case BackoffLinear:
		delay = initial * time.Duration(attempt)
	case BackoffExponential:
		multiplier := rp.Multiplier
		if multiplier <= 0 {
			multiplier = defaultRetryMultiplier
		}
		delay = time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt-1)))
	default:
		delay = initial
	}

	if rp.MaxDelay > 0 && delay > rp.MaxDelay {
		delay = rp.MaxDelay
	}
	return delay
}

// TriggerType identifies how a workflow run may be initiated.
type TriggerType string

const (
	TriggerManual   TriggerType = "manual"
	TriggerSchedule TriggerType = "schedule"
	TriggerWebhook  TriggerType = "webhook"
	TriggerEvent    TriggerType = "event"
)

// Valid reports whether the trigger type is one of the known kinds.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerManual, TriggerSchedule, TriggerWebhook, TriggerEvent:
		return true
	default:
		return false
	}
}

// Trigger declares a condition under which a workflow run may be started.
// Config is opaque to the engine; the trigger manager decodes it per type.
type Trigger struct {
	Type   TriggerType    `json:"type" yaml:"type"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}
