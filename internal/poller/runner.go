package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/dusk-indust/formcrew/internal/orchestrator"
	"github.com/dusk-indust/formcrew/internal/store"
)

// FlowRunner runs the flow of one claimed work item to completion.
type FlowRunner interface {
	RunItem(ctx context.Context, item *store.WorkItem) error
}

// FlowRunnerFunc adapts a function to FlowRunner.
type FlowRunnerFunc func(ctx context.Context, item *store.WorkItem) error

// RunItem calls f.
func (f FlowRunnerFunc) RunItem(ctx context.Context, item *store.WorkItem) error { return f(ctx, item) }

// InProcess runs flows inside the poller's process.
func InProcess(dir store.Directory, flow *orchestrator.Flow) FlowRunner {
	return FlowRunnerFunc(func(ctx context.Context, item *store.WorkItem) error {
		in, err := orchestrator.LoadInputs(ctx, dir, item)
		if err != nil {
			return err
		}
		_, err = flow.Run(ctx, in)
		return err
	})
}

// InputBuilder turns a claimed item into the worker's --inputs document.
type InputBuilder func(ctx context.Context, item *store.WorkItem) (any, error)

// stopGrace is how long a cancelled worker gets between SIGINT and SIGKILL.
const stopGrace = 10 * time.Second

// ProcessRunner runs each flow in a child "worker" process so a crashed or
// stuck flow cannot take the poller down.
type ProcessRunner struct {
	// Path is the executable, usually the running formcrew binary.
	Path string
	// Args precede "worker --inputs <json>", e.g. a --config flag.
	Args []string
	// Env is appended to the poller's environment.
	Env    []string
	Inputs InputBuilder
	Log    *zap.Logger
}

// RunItem starts the worker and waits for it. Cancelling ctx interrupts
// the worker.
func (r *ProcessRunner) RunItem(ctx context.Context, item *store.WorkItem) error {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	inputs, err := r.Inputs(ctx, item)
	if err != nil {
		return err
	}
	data, err := json.Marshal(inputs)
	if err != nil {
		return fmt.Errorf("worker %s: encode inputs: %w", item.ID, err)
	}

	args := append(append([]string{}, r.Args...), "worker", "--inputs", string(data))
	cmd := exec.CommandContext(ctx, r.Path, args...)
	cmd.Env = append(os.Environ(), r.Env...)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = stopGrace
	var stderr bytes.Buffer
	cmd.Stdout = os.Stdout
	cmd.Stderr = &stderr

	log.Info("worker started", zap.String("todo_id", item.ID))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("worker %s: %w", item.ID, ctx.Err())
		}
		return fmt.Errorf("worker %s: %w: %s", item.ID, err, tail(stderr.String(), 2000))
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return "..." + s[i:]
}
