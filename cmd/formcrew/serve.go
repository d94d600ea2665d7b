package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/formcrew/internal/metrics"
	"github.com/dusk-indust/formcrew/internal/orchestrator"
	"github.com/dusk-indust/formcrew/internal/poller"
	"github.com/dusk-indust/formcrew/internal/store"
)

func serveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Poll the work queue and run flows until interrupted",
		Long: `serve claims pending work items, runs the drafting flow for each one and,
when poll.feedback is set, turns reviewed items into agent feedback.
/metrics, /healthz and /items are served on metrics.addr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			return serve(ctx, a, opts)
		},
	}
}

func serve(ctx context.Context, a *app, opts *options) error {
	runner, err := flowRunner(ctx, a, opts)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return poller.NewWorkQueuePoller(a.store, runner, a.cfg.Poll, a.log).Run(gctx)
	})

	if a.cfg.Poll.Feedback {
		analyzer, err := a.analyzer(ctx)
		if err != nil {
			return err
		}
		fp := poller.NewFeedbackPoller(a.store, analyzer, a.cfg.Poll.FeedbackInterval, a.log)
		g.Go(func() error { return fp.Run(gctx) })
	}

	if addr := a.cfg.Metrics.Addr; addr != "" {
		router := metrics.NewRouter(itemRoutes(a.store, a.log))
		g.Go(func() error { return metrics.Serve(gctx, addr, router, a.log) })
	}

	a.log.Info("formcrew serving",
		zap.String("version", version),
		zap.String("driver", a.cfg.Database.Driver),
		zap.String("llm", a.cfg.LLM.Provider),
		zap.Bool("isolate", a.cfg.Poll.Isolate))

	err = g.Wait()
	a.log.Info("formcrew stopped")
	return err
}

// flowRunner runs flows in-process, or in child worker processes when
// poll.isolate is set.
func flowRunner(ctx context.Context, a *app, opts *options) (poller.FlowRunner, error) {
	if !a.cfg.Poll.Isolate {
		flow, err := a.flow(ctx)
		if err != nil {
			return nil, err
		}
		return poller.InProcess(a.store, flow), nil
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate worker executable: %w", err)
	}
	var args []string
	if opts.configPath != "" {
		args = append(args, "--config", opts.configPath)
	}
	if opts.logLevel != "" {
		args = append(args, "--log-level", opts.logLevel)
	}
	return &poller.ProcessRunner{
		Path: exe,
		Args: args,
		Inputs: func(ctx context.Context, item *store.WorkItem) (any, error) {
			return orchestrator.LoadInputs(ctx, a.store, item)
		},
		Log: a.log,
	}, nil
}
