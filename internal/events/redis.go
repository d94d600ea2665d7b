package events

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/dusk-indust/formcrew/internal/metrics"
)

// RedisSink appends events to a redis stream.
type RedisSink struct {
	client *redis.Client
	stream string
	log    *zap.Logger
}

// NewRedisSink connects to redisURL ("redis://host:port/db").
func NewRedisSink(redisURL, stream string, log *zap.Logger) (*RedisSink, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("events: parse redis url: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisSink{client: redis.NewClient(opts), stream: stream, log: log}, nil
}

func (s *RedisSink) Emit(ctx context.Context, e Event) {
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"id":           e.ID,
			"job_id":       e.JobID,
			"todo_id":      e.TodoID,
			"proc_inst_id": e.ProcInstID,
			"event_type":   e.EventType,
			"crew_type":    e.CrewType,
			"data":         e.DataJSON(),
			"timestamp":    e.Timestamp.Format("2006-01-02T15:04:05.000000Z07:00"),
		},
	}).Err()
	metrics.Events.WithLabelValues("redis", metrics.Status(err)).Inc()
	if err != nil {
		s.log.Warn("redis event append failed", zap.String("event_type", e.EventType), zap.Error(err))
	}
}

// Close closes the redis client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
