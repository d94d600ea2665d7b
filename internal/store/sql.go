package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/formcrew/internal/agent"
	"github.com/dusk-indust/formcrew/internal/metrics"
)

// Driver names accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[1-5][0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

const itemColumns = `id, user_id, activity_name, proc_inst_id, tool, tenant_id, status,
	agent_mode, draft_status, query, draft, output, feedback, start_date`

// SQLStore implements WorkQueue and Directory over database/sql. The same
// statements serve Postgres and SQLite; the dialect only differs in
// placeholders, row locking and JSON-to-text casts.
type SQLStore struct {
	db     *sql.DB
	driver string
	log    *zap.Logger
}

var (
	_ WorkQueue = (*SQLStore)(nil)
	_ Directory = (*SQLStore)(nil)
)

// NewSQLStore wraps an open database. driver is DriverPostgres or DriverSQLite.
func NewSQLStore(db *sql.DB, driver string, log *zap.Logger) *SQLStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &SQLStore{db: db, driver: driver, log: log}
}

// DB returns the underlying handle.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Driver returns the dialect name.
func (s *SQLStore) Driver() string { return s.driver }

// Close closes the database.
func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) postgres() bool { return s.driver == DriverPostgres }

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if !s.postgres() {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) jsonText(col string) string {
	if s.postgres() {
		return col + "::text"
	}
	return col
}

func (s *SQLStore) forUpdate() string {
	if s.postgres() {
		return " FOR UPDATE SKIP LOCKED"
	}
	return ""
}

func (s *SQLStore) emptyObject() string {
	if s.postgres() {
		return "'{}'::jsonb"
	}
	return "'{}'"
}

// ClaimPending marks the oldest eligible work item RUNNING and returns it.
func (s *SQLStore) ClaimPending(ctx context.Context) (*WorkItem, error) {
	q := fmt.Sprintf(`UPDATE todolist SET draft_status = 'RUNNING'
		WHERE id = (
			SELECT id FROM todolist
			WHERE status = 'IN_PROGRESS'
			  AND (
			    (agent_mode = 'DRAFT'
			      AND (draft IS NULL OR %[1]s = '' OR %[1]s = 'EMPTY')
			      AND draft_status IS NULL)
			    OR draft_status = 'FB_REQUESTED'
			  )
			ORDER BY start_date ASC
			LIMIT 1%[2]s
		)
		RETURNING %[3]s`, s.jsonText("draft"), s.forUpdate(), itemColumns)

	item, err := scanItem(s.db.QueryRowContext(ctx, q))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim pending: %w", err)
	}
	metrics.Claims.WithLabelValues("todo").Inc()
	return item, nil
}

// ReadDraftStatus returns the draft_status of a work item ("" when NULL).
func (s *SQLStore) ReadDraftStatus(ctx context.Context, id string) (string, error) {
	var status sql.NullString
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT draft_status FROM todolist WHERE id = ?`), id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read draft status %s: %w", id, err)
	}
	return status.String, nil
}

// SaveResult writes the payload as a draft checkpoint, or as the final
// result. A final result on a COMPLETE-mode item is also submitted as output.
func (s *SQLStore) SaveResult(ctx context.Context, id string, payload any, final bool) error {
	data, err := marshalJSON(payload)
	if err != nil {
		return fmt.Errorf("save result %s: %w", id, err)
	}

	if !final {
		res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE todolist SET draft = ? WHERE id = ?`), data, id)
		if err != nil {
			return fmt.Errorf("save draft %s: %w", id, err)
		}
		return requireRow(res)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save result %s: begin: %w", id, err)
	}
	defer tx.Rollback() //nolint:errcheck

	lock := ""
	if s.postgres() {
		lock = " FOR UPDATE"
	}
	var mode sql.NullString
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT agent_mode FROM todolist WHERE id = ?`+lock), id).Scan(&mode)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("save result %s: read mode: %w", id, err)
	}

	if strings.EqualFold(mode.String, ModeComplete) {
		_, err = tx.ExecContext(ctx, s.rebind(`UPDATE todolist
			SET output = ?, draft = ?, status = 'SUBMITTED', draft_status = 'COMPLETED'
			WHERE id = ?`), data, data, id)
	} else {
		_, err = tx.ExecContext(ctx, s.rebind(`UPDATE todolist
			SET draft = ?, draft_status = 'COMPLETED'
			WHERE id = ?`), data, id)
	}
	if err != nil {
		return fmt.Errorf("save result %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save result %s: commit: %w", id, err)
	}
	return nil
}

// ReleaseClaim moves a RUNNING item to FAILED or CANCELLED. Rows that have
// moved on (completed, re-requested) are left alone.
func (s *SQLStore) ReleaseClaim(ctx context.Context, id, status string) error {
	if status != DraftFailed && status != DraftCancelled {
		return fmt.Errorf("release claim %s: invalid status %q", id, status)
	}
	_, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE todolist SET draft_status = ? WHERE id = ? AND draft_status = 'RUNNING'`),
		status, id)
	if err != nil {
		return fmt.Errorf("release claim %s: %w", id, err)
	}
	return nil
}

// ReadCompletedSiblings loads the finished outputs and the feedback of the
// other steps of a process instance, oldest first.
func (s *SQLStore) ReadCompletedSiblings(ctx context.Context, procInstID string) (*Siblings, error) {
	out := &Siblings{Outputs: []any{}, Feedbacks: []any{}}
	if procInstID == "" {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT status, output, feedback, draft FROM todolist
		WHERE proc_inst_id = ?
		  AND ((status = 'DONE' AND output IS NOT NULL)
		    OR (status = 'IN_PROGRESS' AND feedback IS NOT NULL))
		ORDER BY start_date ASC`), procInstID)
	if err != nil {
		return nil, fmt.Errorf("read siblings %s: %w", procInstID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var status, output, feedback, draft sql.NullString
		if err := rows.Scan(&status, &output, &feedback, &draft); err != nil {
			return nil, fmt.Errorf("read siblings %s: %w", procInstID, err)
		}
		if status.String == StatusInProgress && feedback.Valid {
			out.Outputs = append(out.Outputs, draftReports(draft))
		} else {
			out.Outputs = append(out.Outputs, decodeJSON(output))
		}
		out.Feedbacks = append(out.Feedbacks, decodeJSON(feedback))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read siblings %s: %w", procInstID, err)
	}
	return out, nil
}

// ClaimFeedback marks the oldest finished item whose feedback is empty as
// claimed and returns it.
func (s *SQLStore) ClaimFeedback(ctx context.Context) (*WorkItem, error) {
	q := fmt.Sprintf(`UPDATE todolist SET feedback = %[1]s
		WHERE id = (
			SELECT id FROM todolist
			WHERE status = 'DONE'
			  AND output IS NOT NULL
			  AND draft IS NOT NULL
			  AND (feedback IS NULL OR %[2]s = '' OR %[2]s = 'EMPTY')
			ORDER BY start_date ASC
			LIMIT 1%[3]s
		)
		RETURNING %[4]s`, s.emptyObject(), s.jsonText("feedback"), s.forUpdate(), itemColumns)

	item, err := scanItem(s.db.QueryRowContext(ctx, q))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim feedback: %w", err)
	}
	metrics.Claims.WithLabelValues("feedback").Inc()
	return item, nil
}

// SaveFeedback stores generated feedback records on a work item.
func (s *SQLStore) SaveFeedback(ctx context.Context, id string, feedback any) error {
	data, err := marshalJSON(feedback)
	if err != nil {
		return fmt.Errorf("save feedback %s: %w", id, err)
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE todolist SET feedback = ? WHERE id = ?`), data, id)
	if err != nil {
		return fmt.Errorf("save feedback %s: %w", id, err)
	}
	return requireRow(res)
}

// Get loads one work item.
func (s *SQLStore) Get(ctx context.Context, id string) (*WorkItem, error) {
	item, err := scanItem(s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+itemColumns+` FROM todolist WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	return item, nil
}

// List returns the most recent work items, newest first. Zero limit means 50.
func (s *SQLStore) List(ctx context.Context, limit int) ([]*WorkItem, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT `+itemColumns+` FROM todolist ORDER BY start_date DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer rows.Close()

	var items []*WorkItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("list: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Insert adds a work item. An empty ID is an error; a zero StartDate is set
// to now.
func (s *SQLStore) Insert(ctx context.Context, item *WorkItem) error {
	if item.ID == "" {
		return errors.New("insert: empty id")
	}
	if item.StartDate.IsZero() {
		item.StartDate = time.Now().UTC()
	}
	if item.Status == "" {
		item.Status = StatusInProgress
	}
	if item.AgentMode == "" {
		item.AgentMode = ModeDraft
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO todolist (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		item.ID, item.UserID, item.ActivityName, item.ProcInstID, item.Tool, item.TenantID,
		item.Status, item.AgentMode, nullable(item.DraftStatus), item.Query,
		rawJSON(item.Draft), rawJSON(item.Output), rawJSON(item.Feedback), item.StartDate)
	if err != nil {
		return fmt.Errorf("insert %s: %w", item.ID, err)
	}
	return nil
}

// SetStatus updates the status and draft_status of a work item. Used by the
// CLI to cancel or re-request runs.
func (s *SQLStore) SetStatus(ctx context.Context, id, status, draftStatus string) error {
	res, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE todolist SET status = ?, draft_status = ? WHERE id = ?`),
		status, nullable(draftStatus), id)
	if err != nil {
		return fmt.Errorf("set status %s: %w", id, err)
	}
	return requireRow(res)
}

// FetchAgents returns every user flagged as an agent.
func (s *SQLStore) FetchAgents(ctx context.Context) ([]agent.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, username, role, goal, persona, tools, profile, model
		FROM users WHERE is_agent = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("fetch agents: %w", err)
	}
	defer rows.Close()

	var out []agent.Profile
	for rows.Next() {
		p, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("fetch agents: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FetchParticipants resolves comma separated participant ids. Ids that are
// not UUIDs are skipped; each id is looked up as a user email first, then
// as an agent id.
func (s *SQLStore) FetchParticipants(ctx context.Context, userIDs string) (*Participants, error) {
	out := &Participants{}
	for _, raw := range strings.Split(userIDs, ",") {
		id := strings.TrimSpace(raw)
		if id == "" || !uuidPattern.MatchString(id) {
			continue
		}

		var email, name, tenant sql.NullString
		err := s.db.QueryRowContext(ctx,
			s.rebind(`SELECT email, username, tenant_id FROM users WHERE email = ?`), id).
			Scan(&email, &name, &tenant)
		switch {
		case err == nil:
			out.Users = append(out.Users, UserInfo{Email: email.String, Name: name.String, TenantID: tenant.String})
			continue
		case !errors.Is(err, sql.ErrNoRows):
			return nil, fmt.Errorf("fetch participant %s: %w", id, err)
		}

		p, err := scanAgent(s.db.QueryRowContext(ctx,
			s.rebind(`SELECT id, username, role, goal, persona, tools, profile, model
				FROM users WHERE id = ? AND is_agent = TRUE`), id))
		switch {
		case err == nil:
			out.Agents = append(out.Agents, p)
		case errors.Is(err, sql.ErrNoRows):
			s.log.Debug("participant not found", zap.String("id", id))
		default:
			return nil, fmt.Errorf("fetch participant %s: %w", id, err)
		}
	}
	return out, nil
}

// FetchFormTypes loads the field list of a form definition. It returns the
// bare form id and the normalized fields; a missing definition yields a
// single default field keyed by the form id.
func (s *SQLStore) FetchFormTypes(ctx context.Context, tool, tenantID string) (string, []FormType, error) {
	formID := FormID(tool)
	fallback := []FormType{{Key: formID, Type: "default"}}

	var fields sql.NullString
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+s.jsonText("fields_json")+` FROM form_def WHERE id = ? AND tenant_id = ?`),
		formID, tenantID).Scan(&fields)
	if errors.Is(err, sql.ErrNoRows) {
		return formID, fallback, nil
	}
	if err != nil {
		return formID, nil, fmt.Errorf("fetch form %s: %w", formID, err)
	}

	types, err := NormalizeFormTypes([]byte(fields.String))
	if err != nil {
		s.log.Warn("form definition unreadable", zap.String("form_id", formID), zap.Error(err))
		return formID, fallback, nil
	}
	if len(types) == 0 {
		return formID, fallback, nil
	}
	return formID, types, nil
}

// NormalizeFormTypes parses a fields_json array and maps each field type to
// report, slide or text.
func NormalizeFormTypes(data []byte) ([]FormType, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var fields []struct {
		Key  string `json:"key"`
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	out := make([]FormType, 0, len(fields))
	for _, f := range fields {
		t := strings.ToLower(f.Type)
		if t != "report" && t != "slide" {
			t = "text"
		}
		out = append(out, FormType{Key: f.Key, Type: t, Text: f.Text})
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*WorkItem, error) {
	var (
		item                                     WorkItem
		userID, activity, procInst, tool, tenant sql.NullString
		status, mode, draftStatus, query         sql.NullString
		draft, output, feedback                  sql.NullString
		start                                    dbTime
	)
	if err := row.Scan(&item.ID, &userID, &activity, &procInst, &tool, &tenant, &status,
		&mode, &draftStatus, &query, &draft, &output, &feedback, &start); err != nil {
		return nil, err
	}
	item.UserID = userID.String
	item.ActivityName = activity.String
	item.ProcInstID = procInst.String
	item.Tool = tool.String
	item.TenantID = tenant.String
	item.Status = status.String
	item.AgentMode = mode.String
	item.DraftStatus = draftStatus.String
	item.Query = query.String
	item.Draft = toRaw(draft)
	item.Output = toRaw(output)
	item.Feedback = toRaw(feedback)
	item.StartDate = start.Time
	return &item, nil
}

func scanAgent(row rowScanner) (agent.Profile, error) {
	var id, name, role, goal, persona, tools, profile, model sql.NullString
	if err := row.Scan(&id, &name, &role, &goal, &persona, &tools, &profile, &model); err != nil {
		return agent.Profile{}, err
	}
	p := agent.Profile{
		ID:      id.String,
		Name:    name.String,
		Role:    role.String,
		Goal:    goal.String,
		Persona: persona.String,
		Tools:   tools.String,
		Profile: profile.String,
		Model:   model.String,
		IsAgent: true,
	}
	if strings.TrimSpace(p.Tools) == "" {
		p.Tools = "mem0"
	}
	return p, nil
}

// dbTime scans timestamps from drivers that return time.Time (lib/pq) or
// text (SQLite columns without a declared time type).
type dbTime struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
}

func (t *dbTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unparseable time %q", s)
}

func marshalJSON(v any) (string, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return string(raw), nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func toRaw(s sql.NullString) json.RawMessage {
	if !s.Valid {
		return nil
	}
	return json.RawMessage(s.String)
}

func rawJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// decodeJSON parses a JSON column, returning the raw text when it is not JSON.
func decodeJSON(s sql.NullString) any {
	if !s.Valid {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(s.String), &v); err != nil {
		return s.String
	}
	return v
}

func draftReports(draft sql.NullString) any {
	if !draft.Valid {
		return nil
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(draft.String), &v); err != nil {
		return draft.String
	}
	return v["reports"]
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
