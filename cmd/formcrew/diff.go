package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/formcrew/internal/diff"
)

func diffCmd() *cobra.Command {
	var reports bool

	cmd := &cobra.Command{
		Use:   "diff <original> <modified>",
		Short: "Show the lines a reviewer inserted and deleted",
		Long: `diff prints the inserted and deleted lines between two text files as JSON.
With --reports both files are work item payloads (draft and output JSON) and
the merged reports are compared key by key.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			original, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			modified, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}

			if !reports {
				return printJSON(cmd, diff.ExtractChanges(string(original), string(modified)))
			}

			report := diff.CompareReportChanges(string(original), string(modified))
			if len(report.Comparisons) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No comparable reports found.")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), report.UnifiedDiff)
			return nil
		},
	}

	cmd.Flags().BoolVar(&reports, "reports", false, "compare draft and output payloads report by report")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(append(out, '\n'))
	return err
}
