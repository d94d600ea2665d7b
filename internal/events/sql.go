package events

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/dusk-indust/formcrew/internal/metrics"
)

// SQLSink inserts events into the events table.
type SQLSink struct {
	db     *sql.DB
	insert string
	log    *zap.Logger
}

// NewSQLSink creates a sink over db. driver selects the placeholder style
// ("postgres" or "sqlite").
func NewSQLSink(db *sql.DB, driver string, log *zap.Logger) *SQLSink {
	insert := `INSERT INTO events (id, job_id, todo_id, proc_inst_id, event_type, crew_type, data, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if driver == "postgres" {
		insert = `INSERT INTO events (id, job_id, todo_id, proc_inst_id, event_type, crew_type, data, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SQLSink{db: db, insert: insert, log: log}
}

func (s *SQLSink) Emit(ctx context.Context, e Event) {
	_, err := s.db.ExecContext(ctx, s.insert,
		e.ID, e.JobID, nullString(e.TodoID), nullString(e.ProcInstID),
		e.EventType, e.CrewType, e.DataJSON(), e.Timestamp)
	metrics.Events.WithLabelValues("sql", metrics.Status(err)).Inc()
	if err != nil {
		s.log.Warn("event insert failed", zap.String("event_type", e.EventType), zap.Error(err))
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
