package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/formcrew/internal/export"
	"github.com/dusk-indust/formcrew/internal/orchestrator"
)

func diagramCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagram [plan.json]",
		Short: "Render an execution plan as a Mermaid flowchart",
		Long: `diagram reads an execution plan (the planner's JSON output, fenced or not)
from a file or stdin and prints a Mermaid flowchart of its forms and
dependencies.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if len(args) == 1 && args[0] != "-" {
				data, err = os.ReadFile(args[0])
			} else {
				data, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return err
			}

			plan, err := orchestrator.ParsePlan(string(data))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), export.GeneratePlanMermaid(plan))
			return nil
		},
	}
}
