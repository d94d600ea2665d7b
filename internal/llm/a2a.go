package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dusk-indust/formcrew/internal/a2a"
	"github.com/dusk-indust/formcrew/internal/metrics"
)

// A2AGenerator delegates generation to a remote crew agent. Tool names and
// the preferred model travel in message metadata; the remote agent resolves
// the tools itself.
type A2AGenerator struct {
	client   a2a.Client
	endpoint string
	poll     time.Duration
	log      *zap.Logger
}

var _ Generator = (*A2AGenerator)(nil)

// NewA2AGenerator creates a generator sending blocking messages to endpoint.
func NewA2AGenerator(client a2a.Client, endpoint string, log *zap.Logger) *A2AGenerator {
	if log == nil {
		log = zap.NewNop()
	}
	return &A2AGenerator{client: client, endpoint: endpoint, poll: 2 * time.Second, log: log}
}

// Discover fetches the remote agent's card.
func (g *A2AGenerator) Discover(ctx context.Context) (*a2a.AgentCard, error) {
	card, err := g.client.DiscoverAgent(ctx, g.endpoint)
	if err != nil {
		return nil, fmt.Errorf("llm: a2a discover: %w", err)
	}
	return card, nil
}

type a2aMetadata struct {
	Tools []string `json:"tools,omitempty"`
	Model string   `json:"model,omitempty"`
}

// Generate sends the request and returns the joined artifact text. File
// parts are handed to req.Files and replaced by their placeholders.
func (g *A2AGenerator) Generate(ctx context.Context, req Request) (text string, err error) {
	start := time.Now()
	defer func() {
		metrics.LLMRequests.WithLabelValues("a2a", metrics.Status(err)).Inc()
		metrics.ObserveSince(metrics.LLMDuration.WithLabelValues("a2a"), start)
	}()

	meta, err := json.Marshal(a2aMetadata{Tools: req.ToolNames(), Model: req.Model})
	if err != nil {
		return "", fmt.Errorf("llm: marshal metadata: %w", err)
	}
	parts := []a2a.Part{}
	if sys := req.SystemPrompt(); sys != "" {
		parts = append(parts, a2a.TextPart(sys))
	}
	parts = append(parts, a2a.TextPart(req.UserPrompt()))

	task, err := g.client.SendMessage(ctx, g.endpoint, a2a.SendMessageRequest{
		Message: a2a.Message{
			MessageID: uuid.NewString(),
			Role:      a2a.RoleUser,
			Parts:     parts,
			Metadata:  meta,
		},
		Configuration: &a2a.SendMessageConfig{Blocking: true},
	})
	if err != nil {
		return "", fmt.Errorf("llm: a2a send: %w", err)
	}
	if !task.Status.State.IsTerminal() {
		if task, err = g.await(ctx, task); err != nil {
			return "", err
		}
	}
	if task.Status.State != a2a.TaskStateCompleted {
		if msg := task.StatusText(); msg != "" {
			return "", fmt.Errorf("llm: a2a task %s ended %s: %s", task.ID, task.Status.State, msg)
		}
		return "", fmt.Errorf("llm: a2a task %s ended %s", task.ID, task.Status.State)
	}

	out := task.Text()
	if req.Files != nil {
		for _, f := range task.Files() {
			ref, err := req.Files.SaveFile(f.Filename, f.MediaType, f.Raw)
			if err != nil {
				g.log.Warn("save artifact file", zap.String("task_id", task.ID), zap.String("name", f.Filename), zap.Error(err))
				continue
			}
			out += "\n\n" + ref
		}
	}
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}

// await polls a task the agent answered before finishing. A cancelled ctx
// cancels the remote task.
func (g *A2AGenerator) await(ctx context.Context, task *a2a.Task) (*a2a.Task, error) {
	ticker := time.NewTicker(g.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if _, err := g.client.CancelTask(cctx, g.endpoint, a2a.CancelTaskRequest{ID: task.ID}); err != nil {
				g.log.Warn("a2a cancel failed", zap.String("task_id", task.ID), zap.Error(err))
			}
			cancel()
			return nil, ctx.Err()
		case <-ticker.C:
		}
		next, err := g.client.GetTask(ctx, g.endpoint, a2a.GetTaskRequest{ID: task.ID})
		if err != nil {
			return nil, fmt.Errorf("llm: a2a get task %s: %w", task.ID, err)
		}
		if next.Status.State.IsTerminal() || next.Status.State == a2a.TaskStateInputRequired {
			return next, nil
		}
	}
}
