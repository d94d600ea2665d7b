package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/dusk-indust/formcrew/internal/metrics"
)

// LogSink writes events to a zap logger.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Emit(_ context.Context, e Event) {
	fields := []zap.Field{
		zap.String("event_type", e.EventType),
		zap.String("crew_type", e.CrewType),
		zap.String("job_id", e.JobID),
		zap.String("todo_id", e.TodoID),
	}
	if tool, ok := e.Data["tool_name"].(string); ok {
		fields = append(fields, zap.String("tool", tool))
	}
	s.log.Info("event", fields...)
	metrics.Events.WithLabelValues("log", "ok").Inc()
}
