package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/formcrew/internal/export"
)

func exportCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "export <todo-id>",
		Short: "Export a work item's forms, sections and feedback as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			data, err := export.ExportItem(ctx, a.store, args[0])
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
			return printJSON(cmd, data)
		},
	}
}
