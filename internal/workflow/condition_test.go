package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evalCtx() *EvalContext {
	return &EvalContext{
		Variables: map[string]any{
			"environment": "staging",
			"replicas":    3,
			"force":       true,
			"threshold":   2.5,
			"targets":     []any{"a", "b"},
			"settings": map[string]any{
				"region": "eu-west-1",
				"limits": map[string]any{"cpu": 4},
			},
		},
		Results: map[string]*StepResult{
			"scan": {
				StepID:   "scan",
				Status:   StepStatusCompleted,
				Attempts: 2,
				Output: map[string]any{
					"count":     7,
					"endpoints": []any{"/health", "/metrics"},
				},
			},
			"probe": {
				StepID: "probe",
				Status: StepStatusFailed,
				Error:  &StepError{Code: ErrStepExecution, Message: "boom"},
			},
		},
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr string
		want bool
	}{
		{`environment == "staging"`, true},
		{`environment == 'production'`, false},
		{`environment != 'production'`, true},
		{`replicas > 2`, true},
		{`replicas >= 3`, true},
		{`replicas < 3`, false},
		{`replicas <= 2`, false},
		{`threshold > 2`, true},
		{`replicas == 3`, true},
		{`force`, true},
		{`!force`, false},
		{`true && force`, true},
		{`false || force`, true},
		{`false || false`, false},
		{`(replicas > 5 || force) && environment == "staging"`, true},
		{`environment < "t"`, true},
		{`settings.region == "eu-west-1"`, true},
		{`settings.limits.cpu == 4`, true},
		{`steps.scan.status == "completed"`, true},
		{`steps.scan.output.count > 0`, true},
		{`steps.scan.attempts == 2`, true},
		{`steps.probe.status == "failed"`, true},
		{`len(targets) >= 2`, true},
		{`len(environment) == 7`, true},
		{`len(steps.scan.output.endpoints) == 2`, true},
		{`empty(targets)`, false},
		{`empty(missing)`, true},
		{`!empty(steps.scan.output.endpoints)`, true},
		{`exists(environment)`, true},
		{`exists(missing)`, false},
		{`exists(steps.scan.output.count)`, true},
		{`exists(steps.never_ran.output)`, false},
		{`missing == nil`, true},
		{`missing == null`, true},
		{`environment != nil`, true},
	}

	e := NewEvaluator()
	ec := evalCtx()
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := e.Evaluate(tt.expr, ec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateErrors(t *testing.T) {
	exprs := []string{
		``,
		`environment ==`,
		`replicas +`,
		`"unterminated`,
		`environment`,        // non-boolean result
		`replicas && force`,  // non-boolean operand
		`unknown_func(1)`,    // unregistered function
		`len()`,              // wrong arity
		`len(1)`,             // wrong argument type
		`replicas > targets`, // unordered types
		`force == true extra`,
	}

	e := NewEvaluator()
	ec := evalCtx()
	for _, expr := range exprs {
		t.Run(expr, func(t *testing.T) {
			_, err := e.Evaluate(expr, ec)
			require.Error(t, err)
			var stepErr *StepError
			require.ErrorAs(t, err, &stepErr)
			assert.Equal(t, ErrConditionInvalid, stepErr.Code)
		})
	}
}

func TestEvaluateRegisteredFunc(t *testing.T) {
	e := NewEvaluator()
	e.RegisterFunc("always", func(args []any) (any, error) {
		return true, nil
	})
	got, err := e.Evaluate("always()", &EvalContext{})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestLookup(t *testing.T) {
	ec := evalCtx()

	t.Run("missing paths resolve to nil", func(t *testing.T) {
		for _, path := range [][]string{
			{"missing"},
			{"settings", "absent"},
			{"steps", "never_ran"},
			{"steps", "scan", "output", "absent"},
		} {
			v, err := ec.Lookup(path)
			require.NoError(t, err)
			assert.Nil(t, v)
		}
	})

	t.Run("descending into a scalar fails", func(t *testing.T) {
		_, err := ec.Lookup([]string{"environment", "nested"})
		assert.Error(t, err)
	})

	t.Run("step error is exposed as a string", func(t *testing.T) {
		v, err := ec.Lookup([]string{"steps", "probe", "error"})
		require.NoError(t, err)
		assert.Contains(t, v, "boom")
	})
}
