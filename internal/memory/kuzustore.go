//go:build cgo

package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	kuzu "github.com/kuzudb/go-kuzu"
)

// KuzuStore keeps memories in an embedded KuzuDB graph:
// (Agent)-[:REMEMBERS]->(Memory).
type KuzuStore struct {
	mu   sync.Mutex
	db   *kuzu.Database
	conn *kuzu.Connection
}

var _ Store = (*KuzuStore)(nil)

var ddlStatements = []string{
	`CREATE NODE TABLE IF NOT EXISTS Agent(id STRING, PRIMARY KEY(id))`,
	`CREATE NODE TABLE IF NOT EXISTS Memory(
		id STRING,
		text STRING,
		created_at INT64,
		PRIMARY KEY(id)
	)`,
	`CREATE REL TABLE IF NOT EXISTS REMEMBERS(FROM Agent TO Memory)`,
}

// NewKuzuStore opens (or creates) the database at path. An empty path or
// ":memory:" gives an in-memory database.
func NewKuzuStore(path string) (*KuzuStore, error) {
	if path == "" {
		path = ":memory:"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
		}
	}
	db, err := kuzu.OpenDatabase(path, kuzu.DefaultSystemConfig())
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database: %w", err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	s := &KuzuStore{db: db, conn: conn}
	for _, stmt := range ddlStatements {
		res, err := conn.Query(stmt)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("kuzu: init schema: %w", err)
		}
		res.Close()
	}
	return s, nil
}

func (s *KuzuStore) Add(_ context.Context, e Entry) error {
	if e.Namespace == "" {
		return errors.New("memory: namespace is required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.exec(`MERGE (a:Agent {id: $ns})`, map[string]any{"ns": e.Namespace}); err != nil {
		return err
	}
	return s.exec(
		`MATCH (a:Agent {id: $ns})
		 CREATE (a)-[:REMEMBERS]->(m:Memory {id: $id, text: $text, created_at: $ts})`,
		map[string]any{
			"ns":   e.Namespace,
			"id":   uuid.NewString(),
			"text": e.Text,
			"ts":   e.CreatedAt.UnixNano(),
		},
	)
}

func (s *KuzuStore) Search(_ context.Context, namespace, query string, limit int) ([]Hit, error) {
	s.mu.Lock()
	rows, err := s.query(
		`MATCH (a:Agent {id: $ns})-[:REMEMBERS]->(m:Memory) RETURN m.text, m.created_at`,
		map[string]any{"ns": namespace},
	)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		text, _ := r[0].(string)
		ts, _ := r[1].(int64)
		entries = append(entries, Entry{Namespace: namespace, Text: text, CreatedAt: time.Unix(0, ts).UTC()})
	}
	return rank(entries, query, limit), nil
}

func (s *KuzuStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

func (s *KuzuStore) exec(cypher string, params map[string]any) error {
	stmt, err := s.conn.Prepare(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := s.conn.Execute(stmt, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	res.Close()
	return nil
}

func (s *KuzuStore) query(cypher string, params map[string]any) ([][]any, error) {
	stmt, err := s.conn.Prepare(cypher)
	if err != nil {
		return nil, fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := s.conn.Execute(stmt, params)
	if err != nil {
		return nil, fmt.Errorf("kuzu: query: %w", err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, fmt.Errorf("kuzu: next: %w", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, fmt.Errorf("kuzu: row values: %w", err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}
