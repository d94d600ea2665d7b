package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dusk-indust/formcrew/internal/mcptools"
)

func mcpCmd(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the formcrew MCP tools",
		Long: `mcp exposes extract_changes, compare_report_changes, generate_feedback,
get_status and knowledge_search over stdio, or over streamable HTTP with --http.
generate_feedback is unavailable when no generator can be configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			knowledge, err := a.knowledge()
			if err != nil {
				return err
			}
			var analyzer mcptools.FeedbackAnalyzer
			if fa, err := a.analyzer(ctx); err != nil {
				a.log.Warn("generate_feedback disabled", zap.Error(err))
			} else {
				analyzer = fa
			}

			svc := mcptools.NewService(a.store, analyzer, knowledge, a.log)
			if addr != "" {
				a.log.Info("serving MCP over HTTP", zap.String("addr", addr))
				return mcptools.RunHTTP(ctx, svc, addr)
			}
			return mcptools.RunStdio(ctx, svc)
		},
	}

	cmd.Flags().StringVar(&addr, "http", "", "serve streamable HTTP on this address instead of stdio")
	return cmd
}
