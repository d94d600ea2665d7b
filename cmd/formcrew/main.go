// Command formcrew runs the form drafting crew: it polls the work queue,
// plans and generates report, slide and text forms, and turns reviewer edits
// into agent feedback.
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// version is set by the linker.
var version = "dev"

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "formcrew: panic: %v\n%s", r, debug.Stack())
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// options are the persistent flags shared by every subcommand.
type options struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "formcrew",
		Short: "Multi-agent form drafting worker",
		Long: `formcrew drafts the report, slide and text forms of queued work items
with a crew of LLM agents, and learns from the edits reviewers make.

Run "formcrew init" to write a sample formcrew.yml, then "formcrew serve".`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default: ./formcrew.yml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level")

	cmd.AddCommand(
		serveCmd(opts),
		workerCmd(opts),
		diffCmd(),
		mcpCmd(opts),
		statusCmd(opts),
		enqueueCmd(opts),
		cancelCmd(opts),
		rerunCmd(opts),
		exportCmd(opts),
		diagramCmd(),
		initCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "formcrew %s\n", version)
			},
		},
	)

	return cmd
}
