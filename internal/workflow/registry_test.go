package workflow

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	_, ok := reg.Get("echo")
	assert.False(t, ok)

	reg.RegisterFunc("echo", func(ctx context.Context, params, vars map[string]any) (any, error) {
		return params["message"], nil
	})
	reg.RegisterFunc("noop", func(ctx context.Context, params, vars map[string]any) (any, error) {
		return nil, nil
	})

	h, ok := reg.Get("echo")
	require.True(t, ok)
	out, err := h.Execute(context.Background(), map[string]any{"message": "hi"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	assert.Equal(t, []string{"echo", "noop"}, reg.Names())
}

func TestRegistryOverwrite(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterFunc("act", func(ctx context.Context, params, vars map[string]any) (any, error) {
		return "first", nil
	})
	reg.RegisterFunc("act", func(ctx context.Context, params, vars map[string]any) (any, error) {
		return "second", nil
	})

	h, _ := reg.Get("act")
	out, _ := h.Execute(context.Background(), nil, nil)
	assert.Equal(t, "second", out)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			reg.RegisterFunc("act", func(ctx context.Context, params, vars map[string]any) (any, error) {
				return nil, nil
			})
		}()
		go func() {
			defer wg.Done()
			reg.Get("act")
			reg.Names()
		}()
	}
	wg.Wait()
}
