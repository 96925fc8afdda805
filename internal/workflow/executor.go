package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iannil/gaia/internal/events"
)

// DefaultMaxParallel is the dispatch bound used when no option overrides it.
const DefaultMaxParallel = 4

// Executor drives workflow executions to completion. It validates the
// definition, then runs a coordinating loop that dispatches ready steps as
// concurrent tasks bounded by maxParallel. The loop is the only writer of
// run state; step tasks report back through a single result channel.
type Executor struct {
	registry    *Registry
	evaluator   *Evaluator
	logger      *slog.Logger
	tracer      trace.Tracer
	bus         *events.Bus
	maxParallel int
}

// ExecutorOption is a functional option for configuring an Executor.
type ExecutorOption func(*Executor)

// WithLogger configures the executor to use the given structured logger.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTracer configures an OpenTelemetry tracer for run and step spans.
func WithTracer(tracer trace.Tracer) ExecutorOption {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

// WithMaxParallel bounds how many steps may run concurrently.
func WithMaxParallel(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxParallel = n
		}
	}
}

// WithEventBus configures a bus for workflow and step lifecycle events.
func WithEventBus(bus *events.Bus) ExecutorOption {
	return func(e *Executor) {
		e.bus = bus
	}
}

// NewExecutor creates an Executor backed by the given action registry.
// Defaults: slog.Default() logging, no tracer, no event bus, maxParallel 4.
func NewExecutor(registry *Registry, opts ...ExecutorOption) *Executor {
	if registry == nil {
		registry = NewRegistry()
	}
	e := &Executor{
		registry:    registry,
		evaluator:   NewEvaluator(),
		logger:      slog.Default(),
		maxParallel: DefaultMaxParallel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the workflow to a terminal status and returns the execution
// record. Validation problems are reported synchronously before any step
// runs. Once the run is terminal, the returned error mirrors the
// execution's run-level error: nil on success, a *RunError on failure or
// cancellation. The caller inspects step results for root cause.
func (e *Executor) Execute(ctx context.Context, w *Workflow, vars map[string]any) (*Execution, error) {
	exec, err := e.Start(ctx, w, vars)
	if err != nil {
		return nil, err
	}
	exec.Wait()
	if runErr := exec.RunError(); runErr != nil {
		return exec, runErr
	}
	return exec, nil
}

// Start validates the workflow and launches its coordinating loop,
// returning the live execution record immediately. Cancel the run with
// Execution.Cancel and wait for it with Execution.Wait.
func (e *Executor) Start(ctx context.Context, w *Workflow, vars map[string]any) (*Execution, error) {
	return e.StartTriggered(ctx, w, vars, string(TriggerManual))
}

// StartTriggered is Start with an explicit trigger attribution recorded on
// the execution. Used by the trigger manager.
func (e *Executor) StartTriggered(ctx context.Context, w *Workflow, vars map[string]any, triggeredBy string) (*Execution, error) {
	if problems := BlockingProblems(Validate(w)); len(problems) > 0 {
		return nil, &ValidationError{WorkflowID: workflowID(w), Problems: problems}
	}

	exec := newExecution(w, vars, triggeredBy)
	loop := &runLoop{
		executor:   e,
		workflow:   w,
		exec:       exec,
		completed:  make(map[string]struct{}, len(w.Steps)),
		dispatched: make(map[string]struct{}, len(w.Steps)),
		outcomes:   make(chan *StepResult),
	}
	go loop.run(ctx)
	return exec, nil
}

func workflowID(w *Workflow) string {
	if w == nil {
		return ""
	}
	return w.ID
}

// runLoop holds the scheduling state of one execution. All fields are
// owned by the single goroutine running the loop.
type runLoop struct {
	executor   *Executor
	workflow   *Workflow
	exec       *Execution
	completed  map[string]struct{}
	dispatched map[string]struct{}
	outcomes   chan *StepResult
	running    int
	aborting   bool
	cancelled  bool
	abortErr   *RunError
}

// run is the coordinating loop. Each tick dispatches ready steps up to the
// parallelism bound, then blocks until an outstanding task finishes or a
// cancellation request arrives.
func (l *runLoop) run(ctx context.Context) {
	e := l.executor
	w := l.workflow

	var span trace.Span
	if e.tracer != nil {
		ctx, span = e.tracer.Start(ctx, "workflow.execute",
			trace.WithAttributes(
				attribute.String("workflow.id", w.ID),
				attribute.String("workflow.name", w.Name),
				attribute.Int("workflow.step_count", len(w.Steps)),
			),
		)
		defer span.End()
	}

	l.exec.markStarted()
	e.logger.InfoContext(ctx, "starting workflow execution",
		"workflow_id", w.ID,
		"execution_id", l.exec.ID,
		"step_count", len(w.Steps),
		"max_parallel", e.maxParallel,
	)
	e.publish(ctx, events.WorkflowStarted, map[string]any{
		"workflow_id":  w.ID,
		"execution_id": l.exec.ID.String(),
	})

	cancelRequests := l.exec.cancelled
	ctxDone := ctx.Done()

	for len(l.completed) < len(w.Steps) {
		if !l.aborting && !l.cancelled {
			for l.dispatch(ctx) {
			}
		}

		if len(l.completed) == len(w.Steps) {
			break
		}

		if l.running == 0 {
			if l.aborting {
				l.skipRemaining(ctx, "execution aborted by earlier step failure")
				continue
			}
			if l.cancelled {
				l.skipRemaining(ctx, "execution cancelled")
				continue
			}
			// Unreachable for validated workflows; fail instead of spinning.
			l.aborting = true
			l.abortErr = &RunError{Code: ErrRunStepFailed, Message: "no runnable steps remain"}
			continue
		}

		select {
		case result := <-l.outcomes:
			l.handleOutcome(ctx, result)
		case <-cancelRequests:
			l.cancelled = true
			cancelRequests, ctxDone = nil, nil
		case <-ctxDone:
			l.cancelled = true
			cancelRequests, ctxDone = nil, nil
		}
	}

	l.finish(ctx, span)
}

// dispatch performs one pass over the ready steps: skipping steps whose
// dependencies are unsatisfiable or whose condition is false, and starting
// runnable steps while execution slots are free. It returns true when it
// made progress, so the caller repeats it to a fixpoint.
func (l *runLoop) dispatch(ctx context.Context) bool {
	e := l.executor
	progress := false

	for _, step := range l.workflow.ReadySteps(l.completed) {
		if _, inFlight := l.dispatched[step.ID]; inFlight {
			continue
		}
		if dep := l.unsatisfiableDependency(step); dep != "" {
			l.skipStep(ctx, step, fmt.Sprintf("dependency %q did not complete", dep))
			progress = true
			continue
		}

		if step.Condition != "" {
			ec := l.evalContext()
			ok, err := e.evaluator.Evaluate(step.Condition, ec)
			if err != nil {
				l.failStepInline(ctx, step, err)
				progress = true
				if l.aborting {
					break
				}
				continue
			}
			if !ok {
				l.skipStep(ctx, step, "condition evaluated to false")
				progress = true
				continue
			}
		}

		if l.running >= e.maxParallel {
			break
		}

		l.exec.markStepRunning(step.ID)
		e.logger.DebugContext(ctx, "dispatching step", "step_id", step.ID, "action", step.Action)
		e.publish(ctx, events.StepStarted, l.stepEvent(step.ID))
		started := l.exec.Result(step.ID).StartedAt
		l.dispatched[step.ID] = struct{}{}
		l.running++
		go e.runStep(ctx, step, l.evalContext(), l.exec.cancelled, l.outcomes, started)
		progress = true
	}

	return progress
}

// evalContext snapshots the run state for condition evaluation and
// parameter interpolation. Step tasks never see the live variables map.
func (l *runLoop) evalContext() *EvalContext {
	return &EvalContext{
		Variables: l.exec.variablesSnapshot(),
		Results:   l.exec.resultsSnapshot(),
	}
}

// unsatisfiableDependency returns the id of a dependency that reached a
// terminal status other than completed, making the step unrunnable.
func (l *runLoop) unsatisfiableDependency(step *Step) string {
	for _, dep := range step.DependsOn {
		if r := l.exec.Result(dep); r == nil || r.Status != StepStatusCompleted {
			return dep
		}
	}
	return ""
}

func (l *runLoop) skipStep(ctx context.Context, step *Step, reason string) {
	l.exec.markStepSkipped(step.ID, reason)
	l.completed[step.ID] = struct{}{}
	l.executor.logger.InfoContext(ctx, "step skipped", "step_id", step.ID, "reason", reason)
	l.executor.publish(ctx, events.StepSkipped, l.stepEvent(step.ID))
}

// failStepInline records a failure detected by the loop itself, such as an
// invalid condition expression, honoring the same abort rules as a handler
// failure.
func (l *runLoop) failStepInline(ctx context.Context, step *Step, err error) {
	now := time.Now()
	result := &StepResult{
		StepID:      step.ID,
		Status:      StepStatusFailed,
		Attempts:    1,
		Error:       asStepError(err),
		StartedAt:   now,
		CompletedAt: now,
	}
	l.exec.recordStepResult(result)
	l.completed[step.ID] = struct{}{}
	l.executor.logger.ErrorContext(ctx, "step failed", "step_id", step.ID, "error", err)
	l.executor.publish(ctx, events.StepFailed, l.stepEvent(step.ID))
	l.noteFailure(step, result)
}

// handleOutcome applies a finished step task's result to the run state.
// This is the only place step outputs are merged into the variables.
func (l *runLoop) handleOutcome(ctx context.Context, result *StepResult) {
	l.running--
	l.exec.recordStepResult(result)
	l.completed[result.StepID] = struct{}{}

	if result.Status == StepStatusFailed {
		l.executor.logger.ErrorContext(ctx, "step failed",
			"step_id", result.StepID,
			"attempts", result.Attempts,
			"error", result.Error,
		)
		l.executor.publish(ctx, events.StepFailed, l.stepEvent(result.StepID))
		if step := l.workflow.GetStep(result.StepID); step != nil {
			l.noteFailure(step, result)
		}
		return
	}

	l.executor.logger.InfoContext(ctx, "step completed",
		"step_id", result.StepID,
		"attempts", result.Attempts,
		"duration", result.Duration,
	)
	l.executor.publish(ctx, events.StepCompleted, l.stepEvent(result.StepID))
}

// noteFailure decides whether a step failure aborts the run.
func (l *runLoop) noteFailure(step *Step, result *StepResult) {
	if step.ContinueOnError || l.workflow.OnError != ErrorPolicyAbort {
		return
	}
	if l.abortErr == nil {
		l.abortErr = &RunError{
			Code:    ErrRunStepFailed,
			StepID:  step.ID,
			Message: fmt.Sprintf("step %q failed after %d attempt(s)", step.ID, result.Attempts),
			Cause:   result.Error,
		}
	}
	l.aborting = true
}

// skipRemaining marks every step that has not reached a terminal status as
// skipped. Called once no steps are in flight.
func (l *runLoop) skipRemaining(ctx context.Context, reason string) {
	for _, step := range l.workflow.Steps {
		if _, done := l.completed[step.ID]; !done {
			l.skipStep(ctx, step, reason)
		}
	}
}

// finish computes the terminal run status and seals the execution record.
func (l *runLoop) finish(ctx context.Context, span trace.Span) {
	e := l.executor

	status := StatusCompleted
	runErr := l.abortErr

	failures := 0
	for _, step := range l.workflow.Steps {
		if r := l.exec.Result(step.ID); r != nil && r.Status == StepStatusFailed {
			failures++
		}
	}

	switch {
	case l.cancelled:
		status = StatusCancelled
		runErr = &RunError{Code: ErrRunCancelled, Message: "execution cancelled"}
	case failures > 0:
		status = StatusFailed
		if runErr == nil {
			runErr = &RunError{
				Code:    ErrRunStepFailed,
				Message: fmt.Sprintf("%d step(s) failed", failures),
			}
		}
	}

	l.exec.finish(status, runErr)

	event := events.WorkflowCompleted
	switch status {
	case StatusFailed:
		event = events.WorkflowFailed
	case StatusCancelled:
		event = events.WorkflowCancelled
	}
	e.publish(ctx, event, map[string]any{
		"workflow_id":  l.workflow.ID,
		"execution_id": l.exec.ID.String(),
		"status":       status.String(),
	})

	e.logger.InfoContext(ctx, "workflow execution finished",
		"workflow_id", l.workflow.ID,
		"execution_id", l.exec.ID,
		"status", status,
		"failed_steps", failures,
	)

	if span != nil {
		if runErr != nil {
			span.SetStatus(codes.Error, runErr.Error())
		} else {
			span.SetStatus(codes.Ok, "workflow completed")
		}
	}
}

func (l *runLoop) stepEvent(stepID string) map[string]any {
	return map[string]any{
		"workflow_id":  l.workflow.ID,
		"execution_id": l.exec.ID.String(),
		"step_id":      stepID,
	}
}

// runStep executes one step as an independent task: interpolating
// parameters against the dispatch-time snapshot, invoking the handler with
// timeout and retry policy applied, and reporting the terminal result on
// the outcome channel. Retry delays never block other running steps.
func (e *Executor) runStep(
	ctx context.Context,
	step *Step,
	ec *EvalContext,
	cancelRequests <-chan struct{},
	outcomes chan<- *StepResult,
	startedAt time.Time,
) {
	var span trace.Span
	if e.tracer != nil {
		ctx, span = e.tracer.Start(ctx, "workflow.step",
			trace.WithAttributes(
				attribute.String("step.id", step.ID),
				attribute.String("step.action", step.Action),
			),
		)
		defer span.End()
	}

	params := InterpolateParams(step.Parameters, ec)

	maxAttempts := 1
	if step.Retry != nil {
		maxAttempts = step.Retry.MaxAttempts
	}

	result := &StepResult{
		StepID:    step.ID,
		Status:    StepStatusRunning,
		StartedAt: startedAt,
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt

		output, err := e.invoke(ctx, step, params, ec.Variables)
		if err == nil {
			result.Status = StepStatusCompleted
			result.Output = output
			result.Error = nil
			break
		}

		// The step stays in running status until attempts are exhausted.
		result.Error = asStepError(err)

		if attempt == maxAttempts {
			result.Status = StepStatusFailed
			break
		}

		delay := step.Retry.Delay(attempt)
		e.logger.InfoContext(ctx, "retrying step",
			"step_id", step.ID,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"delay", delay,
			"error", err,
		)

		select {
		case <-time.After(delay):
		case <-cancelRequests:
			// No new retries after cancellation; keep the captured error.
			result.Status = StepStatusFailed
		case <-ctx.Done():
			result.Status = StepStatusFailed
		}
		if result.Status == StepStatusFailed {
			break
		}
	}

	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(startedAt)

	if span != nil {
		if result.Status == StepStatusFailed {
			span.SetStatus(codes.Error, result.Error.Error())
		} else {
			span.SetStatus(codes.Ok, "step completed")
		}
	}

	outcomes <- result
}

// invoke performs a single handler invocation, bounded by the step timeout
// when one is set. The handler runs in its own goroutine so a handler that
// ignores context cancellation still cannot hold up the step past its
// timeout; such a handler is abandoned.
func (e *Executor) invoke(ctx context.Context, step *Step, params, vars map[string]any) (any, error) {
	handler, ok := e.registry.Get(step.Action)
	if !ok {
		return nil, &StepError{
			Code:    ErrActionNotFound,
			Message: fmt.Sprintf("no handler registered for action %q", step.Action),
		}
	}

	invokeCtx := ctx
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		invokeCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	type handlerReturn struct {
		output any
		err    error
	}
	returns := make(chan handlerReturn, 1)
	go func() {
		output, err := handler.Execute(invokeCtx, params, vars)
		returns <- handlerReturn{output: output, err: err}
	}()

	select {
	case r := <-returns:
		if r.err != nil {
			return nil, &StepError{
				Code:    ErrStepExecution,
				Message: fmt.Sprintf("action %q failed", step.Action),
				Cause:   r.err,
			}
		}
		return r.output, nil
	case <-invokeCtx.Done():
		if step.Timeout > 0 && errors.Is(invokeCtx.Err(), context.DeadlineExceeded) {
			return nil, &StepError{
				Code:    ErrStepTimeout,
				Message: fmt.Sprintf("action %q exceeded timeout %v", step.Action, step.Timeout),
				Cause:   invokeCtx.Err(),
			}
		}
		return nil, &StepError{
			Code:    ErrStepExecution,
			Message: fmt.Sprintf("action %q interrupted", step.Action),
			Cause:   invokeCtx.Err(),
		}
	}
}

// publish emits an event when a bus is configured.
func (e *Executor) publish(ctx context.Context, name string, data map[string]any) {
	if e.bus != nil {
		e.bus.Publish(ctx, name, data)
	}
}

// asStepError normalizes any error into a *StepError for recording.
func asStepError(err error) *StepError {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr
	}
	return &StepError{Code: ErrStepExecution, Message: err.Error(), Cause: err}
}
