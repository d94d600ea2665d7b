package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dusk-indust/formcrew/internal/store"
)

func enqueueCmd(opts *options) *cobra.Command {
	var item store.WorkItem

	cmd := &cobra.Command{
		Use:     "enqueue",
		Short:   "Add a pending draft work item to the queue",
		Example: `  formcrew enqueue --topic "3분기 실적 보고" --tool formHandler:quarterly --users 5f0c...,agent-uuid`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if item.ActivityName == "" {
				return fmt.Errorf("--topic is required")
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if item.ID == "" {
				item.ID = uuid.NewString()
			}
			if item.ProcInstID == "" {
				item.ProcInstID = item.ID
			}
			item.Status = store.StatusInProgress
			item.AgentMode = store.ModeDraft
			if err := a.store.Insert(ctx, &item); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), item.ID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&item.ID, "id", "", "work item id (default: random UUID)")
	f.StringVar(&item.ActivityName, "topic", "", "activity name the forms are drafted for")
	f.StringVar(&item.Tool, "tool", "", "form reference, formHandler:<form_id> or a bare id")
	f.StringVar(&item.UserID, "users", "", "comma separated participant ids")
	f.StringVar(&item.ProcInstID, "proc-inst", "", "process instance id (default: the item id)")
	f.StringVar(&item.TenantID, "tenant", "", "tenant id")
	f.StringVar(&item.Query, "query", "", "extra instructions for the crew")
	return cmd
}

// setStatusCmd builds a command that moves one item to a fixed status pair.
func setStatusCmd(opts *options, use, short, status, draftStatus string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <todo-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			item, err := a.store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			next := status
			if next == "" {
				next = item.Status
			}
			if err := a.store.SetStatus(ctx, item.ID, next, draftStatus); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s / %s\n", item.ID, next, draftStatus)
			return nil
		},
	}
}

func cancelCmd(opts *options) *cobra.Command {
	return setStatusCmd(opts, "cancel", "Cancel a running flow; the worker stops at its next check", "", store.DraftCancelled)
}

func rerunCmd(opts *options) *cobra.Command {
	return setStatusCmd(opts, "rerun", "Queue a work item to be drafted again", store.StatusInProgress, store.DraftFBRequested)
}
