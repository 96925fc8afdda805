// Package actions provides the built-in action handlers that ship with the
// engine: echo, shell, and http.request.
package actions

import (
	"fmt"

	"github.com/iannil/gaia/internal/workflow"
)

// Register installs every built-in handler into the registry.
func Register(reg *workflow.Registry) {
	reg.RegisterFunc("echo", Echo)
	reg.RegisterFunc("shell", Shell)
	reg.RegisterFunc("http.request", HTTPRequest)
}

// stringParam extracts a required string parameter.
func stringParam(params map[string]any, key string) (string, error) {
	raw, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q must be a string, got %T", key, raw)
	}
	return s, nil
}
