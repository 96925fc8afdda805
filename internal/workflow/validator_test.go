package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wf(steps ...*Step) *Workflow {
	w := &Workflow{
		ID:       "test",
		Name:     "Test",
		Steps:    steps,
		Triggers: []Trigger{{Type: TriggerManual}},
	}
	w.index()
	return w
}

func step(id string, deps ...string) *Step {
	return &Step{ID: id, Action: "echo", DependsOn: deps}
}

func TestValidate(t *testing.T) {
	t.Run("valid workflow", func(t *testing.T) {
		w := wf(step("a"), step("b", "a"), step("c", "a", "b"))
		assert.Empty(t, Validate(w))
	})

	t.Run("nil workflow", func(t *testing.T) {
		assert.Equal(t, []string{"workflow is nil"}, Validate(nil))
	})

	t.Run("missing identity and steps", func(t *testing.T) {
		problems := Validate(&Workflow{})
		assert.Contains(t, problems, "workflow id is required")
		assert.Contains(t, problems, "workflow name is required")
		assert.Contains(t, problems, "workflow must contain at least one step")
	})

	t.Run("dangling dependency", func(t *testing.T) {
		w := wf(step("a", "ghost"))
		problems := Validate(w)
		require.Len(t, problems, 1)
		assert.Equal(t, `step "a" depends on non-existent step "ghost"`, problems[0])
	})

	t.Run("duplicate step ids", func(t *testing.T) {
		w := wf(step("a"), step("a"))
		assert.Contains(t, Validate(w), `duplicate step id "a"`)
	})

	t.Run("step without action", func(t *testing.T) {
		w := wf(&Step{ID: "a"})
		assert.Contains(t, Validate(w), `step "a" has no action`)
	})

	t.Run("zero triggers is a warning", func(t *testing.T) {
		w := wf(step("a"))
		w.Triggers = nil
		problems := Validate(w)
		require.Len(t, problems, 1)
		assert.Equal(t, WarningPrefix+"workflow declares no triggers", problems[0])
		assert.Empty(t, BlockingProblems(problems))
	})
}

// Validating the same definition twice yields the same problems: Validate
// never mutates the workflow.
func TestValidateIsIdempotent(t *testing.T) {
	w := wf(step("a", "ghost"), step("b", "b"))
	first := Validate(w)
	second := Validate(w)
	assert.Equal(t, first, second)
}

func TestDetectCycle(t *testing.T) {
	t.Run("two step cycle names both steps", func(t *testing.T) {
		w := wf(step("a", "b"), step("b", "a"))
		cycle := DetectCycle(w)
		require.NotEmpty(t, cycle)
		assert.Contains(t, cycle, "a")
		assert.Contains(t, cycle, "b")
		assert.Equal(t, cycle[0], cycle[len(cycle)-1])

		problems := Validate(w)
		require.Len(t, problems, 1)
		assert.Contains(t, problems[0], "dependency cycle")
		assert.Contains(t, problems[0], "a")
		assert.Contains(t, problems[0], "b")
	})

	t.Run("self dependency", func(t *testing.T) {
		cycle := DetectCycle(wf(step("a", "a")))
		assert.Equal(t, []string{"a", "a"}, cycle)
	})

	t.Run("longer cycle", func(t *testing.T) {
		w := wf(step("a", "c"), step("b", "a"), step("c", "b"))
		cycle := DetectCycle(w)
		assert.Len(t, cycle, 4)
	})

	t.Run("acyclic diamond", func(t *testing.T) {
		w := wf(step("a"), step("b", "a"), step("c", "a"), step("d", "b", "c"))
		assert.Nil(t, DetectCycle(w))
	})

	t.Run("dangling references are not cycles", func(t *testing.T) {
		assert.Nil(t, DetectCycle(wf(step("a", "ghost"))))
	})
}
