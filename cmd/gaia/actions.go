package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iannil/gaia/internal/actions"
	"github.com/iannil/gaia/internal/workflow"
)

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "List the registered action handlers",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := workflow.NewRegistry()
		actions.Register(registry)
		for _, name := range registry.Names() {
			fmt.Println(name)
		}
		return nil
	},
}
