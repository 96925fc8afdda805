package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/iannil/gaia/internal/actions"
	"github.com/iannil/gaia/internal/events"
	"github.com/iannil/gaia/internal/workflow"
)

var (
	runFile        string
	runVars        []string
	runMaxParallel int
	runOutput      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a workflow from a YAML file",
	Example: `  gaia run -f deploy.yaml
  gaia run -f deploy.yaml --var environment=staging --var region=eu-west-1
  gaia run -f deploy.yaml --max-parallel 8 --output json`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "Path to the workflow YAML file (required)")
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "Variable override as key=value (repeatable)")
	runCmd.Flags().IntVar(&runMaxParallel, "max-parallel", 0, "Override the configured step parallelism bound")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "text", "Output format (text, json)")
	_ = runCmd.MarkFlagRequired("file")
}

func runRun(cmd *cobra.Command, args []string) error {
	w, err := workflow.ParseFile(runFile)
	if err != nil {
		return err
	}

	vars, err := parseVars(runVars)
	if err != nil {
		return err
	}

	maxParallel := cfg.Engine.MaxParallel
	if runMaxParallel > 0 {
		maxParallel = runMaxParallel
	}

	registry := workflow.NewRegistry()
	actions.Register(registry)

	bus := events.NewBusWithHistory(cfg.Events.HistoryLimit)
	opts := []workflow.ExecutorOption{
		workflow.WithLogger(logger),
		workflow.WithMaxParallel(maxParallel),
		workflow.WithEventBus(bus),
	}
	if cfg.Tracing.Enabled {
		opts = append(opts, workflow.WithTracer(otel.Tracer("gaia")))
	}
	executor := workflow.NewExecutor(registry, opts...)

	exec, runErr := executor.Execute(cmd.Context(), w, vars)
	if exec == nil {
		return runErr
	}

	if err := printExecution(exec, w); err != nil {
		return err
	}

	var cancelledErr *workflow.RunError
	if errors.As(runErr, &cancelledErr) && cancelledErr.Code == workflow.ErrRunCancelled {
		return fmt.Errorf("execution cancelled")
	}
	if runErr != nil {
		return fmt.Errorf("execution failed")
	}
	return nil
}

func printExecution(exec *workflow.Execution, w *workflow.Workflow) error {
	if runOutput == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(exec)
	}

	fmt.Printf("Workflow:  %s (%s)\n", exec.WorkflowName, exec.WorkflowID)
	fmt.Printf("Execution: %s\n", exec.ID)
	fmt.Printf("Status:    %s\n", exec.Status)
	fmt.Printf("Duration:  %s\n", exec.CompletedAt.Sub(exec.StartedAt).Round(time.Millisecond))
	fmt.Println()
	for _, step := range w.Steps {
		result := exec.Result(step.ID)
		if result == nil {
			continue
		}
		line := fmt.Sprintf("  %-12s %s", result.Status, step.DisplayName())
		switch {
		case result.Status == workflow.StepStatusSkipped && result.Reason != "":
			line += fmt.Sprintf("  (%s)", result.Reason)
		case result.Status == workflow.StepStatusFailed && result.Error != nil:
			line += fmt.Sprintf("  (%s)", result.Error.Message)
		case result.Attempts > 1:
			line += fmt.Sprintf("  (%d attempts)", result.Attempts)
		}
		fmt.Println(line)
	}
	if exec.Error != nil {
		fmt.Printf("\nError: %s\n", exec.Error.Message)
	}
	return nil
}

func parseVars(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	vars := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --var %q: expected key=value", pair)
		}
		vars[key] = value
	}
	return vars, nil
}
