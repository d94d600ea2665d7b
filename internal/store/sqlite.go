package store

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// schemaV1 mirrors the production tables the worker touches.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS todolist (
	id            TEXT PRIMARY KEY,
	user_id       TEXT,
	activity_name TEXT,
	proc_inst_id  TEXT,
	tool          TEXT,
	tenant_id     TEXT,
	status        TEXT NOT NULL DEFAULT 'IN_PROGRESS',
	agent_mode    TEXT,
	draft_status  TEXT,
	query         TEXT,
	draft         TEXT,
	output        TEXT,
	feedback      TEXT,
	start_date    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_todolist_claim ON todolist(status, draft_status, start_date);
CREATE INDEX IF NOT EXISTS idx_todolist_proc ON todolist(proc_inst_id);

CREATE TABLE IF NOT EXISTS users (
	id        TEXT PRIMARY KEY,
	email     TEXT,
	username  TEXT,
	tenant_id TEXT,
	role      TEXT,
	goal      TEXT,
	persona   TEXT,
	tools     TEXT,
	profile   TEXT,
	model     TEXT,
	is_agent  BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS form_def (
	id          TEXT NOT NULL,
	tenant_id   TEXT NOT NULL,
	fields_json TEXT,
	PRIMARY KEY (id, tenant_id)
);

CREATE TABLE IF NOT EXISTS events (
	id           TEXT PRIMARY KEY,
	job_id       TEXT,
	todo_id      TEXT,
	proc_inst_id TEXT,
	event_type   TEXT NOT NULL,
	crew_type    TEXT,
	data         TEXT,
	timestamp    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_todo ON events(todo_id);
`

// NewDB opens (or creates) a SQLite database at path and applies the schema.
func NewDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer; claims rely on it for mutual exclusion.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return db, nil
}

// NewSQLite opens a SQLite-backed store.
func NewSQLite(path string, log *zap.Logger) (*SQLStore, error) {
	db, err := NewDB(path)
	if err != nil {
		return nil, err
	}
	return NewSQLStore(db, DriverSQLite, log), nil
}

func migrate(db *sql.DB) error {
	_, err := db.ExecContext(context.Background(), schemaV1)
	return err
}
