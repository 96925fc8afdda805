package actions

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
)

// Shell runs a command through /bin/sh -c and captures its output. A
// non-zero exit status is reported in the output rather than as a handler
// error, so workflows can branch on it with a condition; only failures to
// start the process at all fail the step.
func Shell(ctx context.Context, params, _ map[string]any) (any, error) {
	command, err := stringParam(params, "command")
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	if dir, ok := params["cwd"].(string); ok && dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, runErr
		}
	}

	return map[string]any{
		"stdout":    strings.TrimRight(stdout.String(), "\n"),
		"stderr":    strings.TrimRight(stderr.String(), "\n"),
		"exit_code": exitCode,
		"success":   exitCode == 0,
	}, nil
}
