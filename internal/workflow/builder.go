package workflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Builder provides a fluent API for constructing workflows in code.
// It accumulates errors during building and reports them all at Build time.
type Builder struct {
	workflow *Workflow
	errors   []error
	lastStep *Step
}

// NewBuilder creates a Builder for a workflow with the given id and name.
// An empty id gets a generated one.
func NewBuilder(id, name string) *Builder {
	if id == "" {
		id = uuid.NewString()
	}
	return &Builder{
		workflow: &Workflow{
			ID:        id,
			Name:      name,
			Variables: make(map[string]any),
			OnError:   ErrorPolicyAbort,
			CreatedAt: time.Now(),
		},
	}
}

// WithDescription sets the workflow description.
func (b *Builder) WithDescription(desc string) *Builder {
	b.workflow.Description = desc
	return b
}

// WithVersion sets the workflow version string.
func (b *Builder) WithVersion(version string) *Builder {
	b.workflow.Version = version
	return b
}

// WithVariable sets a default variable on the workflow.
func (b *Builder) WithVariable(name string, value any) *Builder {
	if name == "" {
		b.errors = append(b.errors, errors.New("variable must have a name"))
		return b
	}
	b.workflow.Variables[name] = value
	return b
}

// WithOnError sets the workflow-level error policy.
func (b *Builder) WithOnError(policy ErrorPolicy) *Builder {
	if !policy.Valid() {
		b.errors = append(b.errors, fmt.Errorf("invalid error policy %q", policy))
		return b
	}
	b.workflow.OnError = policy
	return b
}

// WithTrigger adds a trigger definition to the workflow.
func (b *Builder) WithTrigger(typ TriggerType, config map[string]any) *Builder {
	if !typ.Valid() {
		b.errors = append(b.errors, fmt.Errorf("invalid trigger type %q", typ))
		return b
	}
	b.workflow.Triggers = append(b.workflow.Triggers, Trigger{Type: typ, Config: config})
	return b
}

// Step appends a step with the given id and action. Subsequent DependsOn,
// If, Timeout, Retry and ContinueOnError calls modify this step.
func (b *Builder) Step(id, action string, params map[string]any) *Builder {
	b.lastStep = nil
	if id == "" {
		b.errors = append(b.errors, errors.New("step must have an id"))
		return b
	}
	if !validStepID(id) {
		b.errors = append(b.errors, fmt.Errorf("invalid step id %q: must start with a letter or underscore and contain only letters, digits, and underscores", id))
		return b
	}
	if action == "" {
		b.errors = append(b.errors, fmt.Errorf("step %q must have an action", id))
		return b
	}
	for _, existing := range b.workflow.Steps {
		if existing.ID == id {
			b.errors = append(b.errors, fmt.Errorf("step with id %q already exists", id))
			return b
		}
	}
	step := &Step{
		ID:         id,
		Action:     action,
		Parameters: params,
	}
	b.workflow.Steps = append(b.workflow.Steps, step)
	b.lastStep = step
	return b
}

// Named sets the display name of the current step.
func (b *Builder) Named(name string) *Builder {
	if step := b.current("Named"); step != nil {
		step.Name = name
	}
	return b
}

// DependsOn adds dependencies to the current step.
func (b *Builder) DependsOn(stepIDs ...string) *Builder {
	step := b.current("DependsOn")
	if step == nil {
		return b
	}
	if len(stepIDs) == 0 {
		b.errors = append(b.errors, fmt.Errorf("step %q: DependsOn requires at least one step id", step.ID))
		return b
	}
	step.DependsOn = append(step.DependsOn, stepIDs...)
	return b
}

// If sets a condition expression on the current step.
func (b *Builder) If(condition string) *Builder {
	step := b.current("If")
	if step == nil {
		return b
	}
	if condition == "" {
		b.errors = append(b.errors, fmt.Errorf("step %q: condition must be non-empty", step.ID))
		return b
	}
	step.Condition = condition
	return b
}

// Timeout bounds each invocation attempt of the current step.
func (b *Builder) Timeout(d time.Duration) *Builder {
	step := b.current("Timeout")
	if step == nil {
		return b
	}
	if d <= 0 {
		b.errors = append(b.errors, fmt.Errorf("step %q: timeout must be positive", step.ID))
		return b
	}
	step.Timeout = d
	return b
}

// Retry sets the retry policy of the current step. maxAttempts counts
// every invocation including the first.
func (b *Builder) Retry(maxAttempts int, backoff BackoffStrategy, initialDelay time.Duration) *Builder {
	step := b.current("Retry")
	if step == nil {
		return b
	}
	if maxAttempts < 1 {
		b.errors = append(b.errors, fmt.Errorf("step %q: max attempts must be at least 1", step.ID))
		return b
	}
	if !backoff.Valid() {
		b.errors = append(b.errors, fmt.Errorf("step %q: invalid backoff strategy %q", step.ID, backoff))
		return b
	}
	step.Retry = &RetryPolicy{
		MaxAttempts:  maxAttempts,
		Backoff:      backoff,
		InitialDelay: initialDelay,
	}
	return b
}

// ContinueOnError marks the current step as non-fatal to the run.
func (b *Builder) ContinueOnError() *Builder {
	if step := b.current("ContinueOnError"); step != nil {
		step.ContinueOnError = true
	}
	return b
}

func (b *Builder) current(method string) *Step {
	if b.lastStep == nil {
		b.errors = append(b.errors, fmt.Errorf("%s called before any valid Step", method))
		return nil
	}
	return b.lastStep
}

// Build runs structural validation and returns the constructed workflow,
// or every accumulated error joined together.
func (b *Builder) Build() (*Workflow, error) {
	errs := b.errors
	for _, problem := range BlockingProblems(Validate(b.workflow)) {
		errs = append(errs, errors.New(problem))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("workflow build failed: %w", errors.Join(errs...))
	}
	b.workflow.index()
	return b.workflow, nil
}
