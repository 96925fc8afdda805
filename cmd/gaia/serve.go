package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/iannil/gaia/internal/actions"
	"github.com/iannil/gaia/internal/events"
	"github.com/iannil/gaia/internal/trigger"
	"github.com/iannil/gaia/internal/workflow"
)

var serveFiles []string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Register workflow triggers and run until interrupted",
	Long: `Serve loads the given workflow files, registers their schedule,
event, and webhook triggers, and keeps running executions as triggers
fire. Stop with SIGINT or SIGTERM; in-flight executions finish.`,
	Example: `  gaia serve -f nightly.yaml -f on-demand.yaml`,
	RunE:    runServe,
}

func init() {
	serveCmd.Flags().StringArrayVarP(&serveFiles, "file", "f", nil, "Workflow YAML file to serve (repeatable, required)")
	_ = serveCmd.MarkFlagRequired("file")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	registry := workflow.NewRegistry()
	actions.Register(registry)

	bus := events.NewBusWithHistory(cfg.Events.HistoryLimit)
	opts := []workflow.ExecutorOption{
		workflow.WithLogger(logger),
		workflow.WithMaxParallel(cfg.Engine.MaxParallel),
		workflow.WithEventBus(bus),
	}
	if cfg.Tracing.Enabled {
		opts = append(opts, workflow.WithTracer(otel.Tracer("gaia")))
	}
	executor := workflow.NewExecutor(registry, opts...)

	manager := trigger.NewManager(executor,
		trigger.WithLogger(logger),
		trigger.WithEventBus(bus),
	)
	defer manager.Stop()

	for _, path := range serveFiles {
		w, err := workflow.ParseFile(path)
		if err != nil {
			return err
		}
		if problems := workflow.BlockingProblems(workflow.Validate(w)); len(problems) > 0 {
			return fmt.Errorf("workflow %q is not executable: %s", w.ID, problems[0])
		}
		if err := manager.Register(ctx, w); err != nil {
			return err
		}
		fmt.Printf("serving workflow %q (%d triggers)\n", w.ID, len(w.Triggers))
	}

	manager.Start()
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
