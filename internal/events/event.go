// Package events records the progress of flows as observability events and
// delivers them to zap, a redis stream and the events table.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dusk-indust/formcrew/internal/agent"
)

// Event types.
const (
	TaskStarted       = "task_started"
	TaskCompleted     = "task_completed"
	ToolUsageStarted  = "tool_usage_started"
	ToolUsageFinished = "tool_usage_finished"
	CrewCompleted     = "crew_completed"
)

// FinishedJobID is the job id of the terminal crew_completed event.
const FinishedJobID = "CREW_FINISHED"

// Event is one observability record.
type Event struct {
	ID         string         `json:"id"`
	JobID      string         `json:"job_id"`
	TodoID     string         `json:"todo_id,omitempty"`
	ProcInstID string         `json:"proc_inst_id,omitempty"`
	EventType  string         `json:"event_type"`
	CrewType   string         `json:"crew_type"`
	Data       map[string]any `json:"data"`
	Timestamp  time.Time      `json:"timestamp"`
}

// New builds an event, taking todo, process and crew type from the crew
// context of ctx.
func New(ctx context.Context, eventType, jobID string, data map[string]any) Event {
	cc := agent.CrewFrom(ctx)
	if data == nil {
		data = map[string]any{}
	}
	return Event{
		ID:         uuid.NewString(),
		JobID:      jobID,
		TodoID:     cc.TodoID,
		ProcInstID: cc.ProcInstID,
		EventType:  eventType,
		CrewType:   cc.CrewType,
		Data:       data,
		Timestamp:  time.Now().UTC(),
	}
}

// DataJSON marshals the event data, falling back to an empty object.
func (e Event) DataJSON() string {
	b, err := json.Marshal(e.Data)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Sink receives events. Emit never fails the caller; sinks log their own
// delivery errors.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event)

func (f SinkFunc) Emit(ctx context.Context, e Event) { f(ctx, e) }

// Nop discards events.
var Nop Sink = SinkFunc(func(context.Context, Event) {})

// Multi delivers each event to every sink in order.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, e Event) {
	for _, s := range m {
		s.Emit(ctx, e)
	}
}
