package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iannil/gaia/internal/workflow"
)

var validateFile string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a workflow file for structural problems",
	Long: `Validate parses the workflow file and reports every structural
problem found: missing fields, duplicate or dangling step references, and
dependency cycles. Warnings do not affect the exit status.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&validateFile, "file", "f", "", "Path to the workflow YAML file (required)")
	_ = validateCmd.MarkFlagRequired("file")
}

func runValidate(cmd *cobra.Command, args []string) error {
	w, err := workflow.ParseFile(validateFile)
	if err != nil {
		return err
	}

	problems := workflow.Validate(w)
	blocking := workflow.BlockingProblems(problems)

	for _, problem := range problems {
		if strings.HasPrefix(problem, workflow.WarningPrefix) {
			fmt.Printf("  warn:  %s\n", strings.TrimPrefix(problem, workflow.WarningPrefix))
		} else {
			fmt.Printf("  error: %s\n", problem)
		}
	}

	if len(blocking) > 0 {
		return fmt.Errorf("workflow %q has %d problem(s)", w.ID, len(blocking))
	}
	fmt.Printf("workflow %q is valid (%d steps)\n", w.ID, len(w.Steps))
	return nil
}
