package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/formcrew/internal/status"
)

func statusCmd(opts *options) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "status [todo-id]",
		Short: "Show the lifecycle stage of work items",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 1 {
				st, err := status.Get(ctx, a.store, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd, st)
				}
				return status.Print(cmd.OutOrStdout(), []status.ItemStatus{st})
			}

			statuses, err := status.Recent(ctx, a.store, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, statuses)
			}
			if len(statuses) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No work items found.")
				return nil
			}
			return status.Print(cmd.OutOrStdout(), statuses)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", defaultItemLimit, "number of recent items to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
