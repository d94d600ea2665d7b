package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dusk-indust/formcrew/internal/orchestrator"
)

func workerCmd(opts *options) *cobra.Command {
	var inputs, todoID string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run one flow and exit",
		Long: `worker runs a single drafting flow and exits non-zero when it fails.
Inputs come from --inputs (a JSON document, or "-" for stdin) or are loaded
from the store for --todo.`,
		Example: `  formcrew worker --todo 0b6f...
  formcrew worker --inputs '{"todo_id":"t1","topic":"분기 보고","form_types":[{"key":"r1","type":"report"}]}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (inputs == "") == (todoID == "") {
				return errors.New("exactly one of --inputs or --todo is required")
			}

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

			in, err := workerInputs(ctx, a, inputs, todoID, cmd.InOrStdin())
			if err != nil {
				return err
			}
			flow, err := a.flow(ctx)
			if err != nil {
				return err
			}

			state, err := flow.Run(ctx, in)
			if err != nil {
				return err
			}
			a.log.Info("worker finished",
				zap.String("todo_id", in.TodoID),
				zap.Int("reports", len(state.ReportContents)),
				zap.Int("slides", len(state.SlideContents)),
				zap.Int("texts", len(state.TextContents)))
			return nil
		},
	}

	cmd.Flags().StringVar(&inputs, "inputs", "", `flow inputs as JSON, or "-" to read stdin`)
	cmd.Flags().StringVar(&todoID, "todo", "", "load inputs for this work item from the store")
	return cmd
}

func workerInputs(ctx context.Context, a *app, inputs, todoID string, stdin io.Reader) (orchestrator.Inputs, error) {
	if todoID != "" {
		item, err := a.store.Get(ctx, todoID)
		if err != nil {
			return orchestrator.Inputs{}, fmt.Errorf("load work item %s: %w", todoID, err)
		}
		return orchestrator.LoadInputs(ctx, a.store, item)
	}
	data := []byte(inputs)
	if inputs == "-" {
		var err error
		if data, err = io.ReadAll(stdin); err != nil {
			return orchestrator.Inputs{}, fmt.Errorf("read inputs: %w", err)
		}
	}
	return orchestrator.ParseInputs(data)
}
