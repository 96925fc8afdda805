package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterpolateParams(t *testing.T) {
	ec := &EvalContext{
		Variables: map[string]any{
			"environment": "staging",
			"replicas":    3,
			"targets":     []any{"a", "b"},
			"settings":    map[string]any{"region": "eu-west-1"},
		},
		Results: map[string]*StepResult{
			"build": {
				StepID: "build",
				Status: StepStatusCompleted,
				Output: map[string]any{"image": "svc:1.2.0"},
			},
		},
	}

	t.Run("embedded placeholders render as strings", func(t *testing.T) {
		out := InterpolateParams(map[string]any{
			"url": "https://deploy.example.com/{{environment}}?n={{replicas}}",
		}, ec)
		assert.Equal(t, "https://deploy.example.com/staging?n=3", out["url"])
	})

	t.Run("lone placeholder preserves the referenced type", func(t *testing.T) {
		out := InterpolateParams(map[string]any{
			"count":   "{{replicas}}",
			"list":    "{{targets}}",
			"nested":  "{{settings}}",
			"spaced":  "{{ environment }}",
			"stepout": "{{steps.build.output.image}}",
		}, ec)
		assert.Equal(t, 3, out["count"])
		assert.Equal(t, []any{"a", "b"}, out["list"])
		assert.Equal(t, map[string]any{"region": "eu-west-1"}, out["nested"])
		assert.Equal(t, "staging", out["spaced"])
		assert.Equal(t, "svc:1.2.0", out["stepout"])
	})

	t.Run("unresolved references stay verbatim", func(t *testing.T) {
		out := InterpolateParams(map[string]any{
			"lone":     "{{missing}}",
			"embedded": "value is {{missing}} here",
		}, ec)
		assert.Equal(t, "{{missing}}", out["lone"])
		assert.Equal(t, "value is {{missing}} here", out["embedded"])
	})

	t.Run("interpolation descends into maps and lists", func(t *testing.T) {
		out := InterpolateParams(map[string]any{
			"request": map[string]any{
				"image": "{{steps.build.output.image}}",
				"tags":  []any{"{{environment}}", "fixed"},
			},
		}, ec)
		request := out["request"].(map[string]any)
		assert.Equal(t, "svc:1.2.0", request["image"])
		assert.Equal(t, []any{"staging", "fixed"}, request["tags"])
	})

	t.Run("non-string values pass through untouched", func(t *testing.T) {
		out := InterpolateParams(map[string]any{"n": 42, "b": true}, ec)
		assert.Equal(t, 42, out["n"])
		assert.Equal(t, true, out["b"])
	})

	t.Run("input params are not mutated", func(t *testing.T) {
		params := map[string]any{"url": "{{environment}}"}
		InterpolateParams(params, ec)
		assert.Equal(t, "{{environment}}", params["url"])
	})

	assert.Nil(t, InterpolateParams(nil, ec))
}
