package actions

import (
	"context"
	"fmt"
)

// Echo returns its message parameter unchanged. Useful for smoke-testing
// workflows and for surfacing interpolated values in step outputs.
func Echo(_ context.Context, params, _ map[string]any) (any, error) {
	message := ""
	if raw, ok := params["message"]; ok {
		message = fmt.Sprint(raw)
	}
	return map[string]any{"message": message}, nil
}
