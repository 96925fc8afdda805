package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder(t *testing.T) {
	w, err := NewBuilder("deploy", "Deploy Service").
		WithDescription("Build and deploy").
		WithVersion("2.0.0").
		WithVariable("environment", "staging").
		WithOnError(ErrorPolicyContinue).
		WithTrigger(TriggerSchedule, map[string]any{"cron": "0 2 * * *"}).
		Step("build", "shell", map[string]any{"command": "make build"}).
		Named("Build image").
		Timeout(10*time.Minute).
		Step("test", "shell", map[string]any{"command": "make test"}).
		DependsOn("build").
		Retry(3, BackoffExponential, 2*time.Second).
		Step("deploy", "http.request", map[string]any{"url": "https://example.com"}).
		DependsOn("build", "test").
		If(`environment == "staging"`).
		ContinueOnError().
		Build()
	require.NoError(t, err)

	assert.Equal(t, "deploy", w.ID)
	assert.Equal(t, "2.0.0", w.Version)
	assert.Equal(t, ErrorPolicyContinue, w.OnError)
	require.Len(t, w.Triggers, 1)
	require.Len(t, w.Steps, 3)

	build := w.GetStep("build")
	assert.Equal(t, "Build image", build.Name)
	assert.Equal(t, 10*time.Minute, build.Timeout)

	testStep := w.GetStep("test")
	require.NotNil(t, testStep.Retry)
	assert.Equal(t, 3, testStep.Retry.MaxAttempts)

	deploy := w.GetStep("deploy")
	assert.Equal(t, []string{"build", "test"}, deploy.DependsOn)
	assert.True(t, deploy.ContinueOnError)
	assert.NotEmpty(t, deploy.Condition)
}

func TestBuilderGeneratesID(t *testing.T) {
	w, err := NewBuilder("", "Unnamed").
		WithTrigger(TriggerManual, nil).
		Step("a", "echo", nil).
		Build()
	require.NoError(t, err)
	assert.NotEmpty(t, w.ID)
}

func TestBuilderAccumulatesErrors(t *testing.T) {
	_, err := NewBuilder("bad", "Bad").
		WithVariable("", 1).
		WithOnError("retry").
		WithTrigger("polling", nil).
		Step("", "echo", nil).
		Step("2nd-pass", "echo", nil).
		Step("a", "", nil).
		Step("dup", "echo", nil).
		Retry(0, BackoffConstant, 0).
		Timeout(-time.Second).
		Step("dup", "echo", nil).
		Build()
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "variable must have a name")
	assert.Contains(t, msg, "invalid error policy")
	assert.Contains(t, msg, "invalid trigger type")
	assert.Contains(t, msg, "step must have an id")
	assert.Contains(t, msg, `invalid step id "2nd-pass"`)
	assert.Contains(t, msg, `step "a" must have an action`)
	assert.Contains(t, msg, `step with id "dup" already exists`)
	assert.Contains(t, msg, "max attempts must be at least 1")
	assert.Contains(t, msg, "timeout must be positive")
}

func TestBuilderModifierBeforeStep(t *testing.T) {
	_, err := NewBuilder("x", "X").
		DependsOn("nothing").
		Step("a", "echo", nil).
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DependsOn called before any valid Step")
}

func TestBuilderRejectsGraphProblems(t *testing.T) {
	_, err := NewBuilder("cyclic", "Cyclic").
		Step("a", "echo", nil).DependsOn("b").
		Step("b", "echo", nil).DependsOn("a").
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency cycle")

	_, err = NewBuilder("dangling", "Dangling").
		Step("a", "echo", nil).DependsOn("ghost").
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-existent step")
}

// Builder output runs through the executor unchanged.
func TestBuilderWorkflowExecutes(t *testing.T) {
	w, err := NewBuilder("built", "Built").
		Step("a", "echo_act", nil).
		Step("b", "echo_act", nil).DependsOn("a").
		Build()
	require.NoError(t, err)

	reg := NewRegistry()
	reg.RegisterFunc("echo_act", func(ctx context.Context, params, vars map[string]any) (any, error) {
		return "ok", nil
	})

	exec, execErr := NewExecutor(reg).Execute(context.Background(), w, nil)
	require.NoError(t, execErr)
	assert.Equal(t, StatusCompleted, exec.Status)
}
