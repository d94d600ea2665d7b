// Package store persists work items (the todolist table) and reads the agent
// and form directory. Postgres is the production backend; SQLite serves
// local runs and tests.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/dusk-indust/formcrew/internal/agent"
)

// ErrNotFound is returned when a work item does not exist.
var ErrNotFound = errors.New("store: not found")

// Work item status values.
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusSubmitted  = "SUBMITTED"

	ModeDraft    = "DRAFT"
	ModeComplete = "COMPLETE"

	DraftRunning     = "RUNNING"
	DraftFBRequested = "FB_REQUESTED"
	DraftCancelled   = "CANCELLED"
	DraftCompleted   = "COMPLETED"
	DraftFailed      = "FAILED"
)

const formHandlerPrefix = "formHandler:"

// WorkItem is one row of the todolist table.
type WorkItem struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	ActivityName string          `json:"activity_name"`
	ProcInstID   string          `json:"proc_inst_id"`
	Tool         string          `json:"tool"`
	TenantID     string          `json:"tenant_id"`
	Status       string          `json:"status"`
	AgentMode    string          `json:"agent_mode"`
	DraftStatus  string          `json:"draft_status,omitempty"`
	Query        string          `json:"query,omitempty"`
	Draft        json.RawMessage `json:"draft,omitempty"`
	Output       json.RawMessage `json:"output,omitempty"`
	Feedback     json.RawMessage `json:"feedback,omitempty"`
	StartDate    time.Time       `json:"start_date"`
}

// FormID strips the form handler prefix from Tool.
func (w WorkItem) FormID() string {
	return FormID(w.Tool)
}

// FormID strips the "formHandler:" prefix from a tool reference.
func FormID(tool string) string {
	return strings.TrimPrefix(tool, formHandlerPrefix)
}

// Siblings holds the finished outputs and feedback of a process instance.
type Siblings struct {
	Outputs   []any `json:"outputs"`
	Feedbacks []any `json:"feedbacks"`
}

// Empty reports whether there is nothing to summarize.
func (s *Siblings) Empty() bool {
	return s == nil || (len(s.Outputs) == 0 && len(s.Feedbacks) == 0)
}

// FormType is one field of a form definition.
type FormType struct {
	Key  string `json:"key"`
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// UserInfo is a human participant.
type UserInfo struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	TenantID string `json:"tenant_id,omitempty"`
}

// Participants splits a work item's assignees into people and agents.
type Participants struct {
	Users  []UserInfo      `json:"user_info,omitempty"`
	Agents []agent.Profile `json:"agent_info,omitempty"`
}

// WorkQueue is the todolist lifecycle used by the pollers and the flow.
type WorkQueue interface {
	// ClaimPending atomically marks the oldest eligible item RUNNING and
	// returns it, or returns nil when nothing is pending.
	ClaimPending(ctx context.Context) (*WorkItem, error)
	ReadDraftStatus(ctx context.Context, id string) (string, error)
	// SaveResult writes a checkpoint (final=false) or the final payload.
	SaveResult(ctx context.Context, id string, payload any, final bool) error
	// ReleaseClaim moves a RUNNING item to FAILED or CANCELLED.
	ReleaseClaim(ctx context.Context, id, status string) error
	ReadCompletedSiblings(ctx context.Context, procInstID string) (*Siblings, error)
	// ClaimFeedback marks the oldest finished item without feedback as
	// claimed (feedback = {}) and returns it, or nil.
	ClaimFeedback(ctx context.Context) (*WorkItem, error)
	SaveFeedback(ctx context.Context, id string, feedback any) error
	Get(ctx context.Context, id string) (*WorkItem, error)
}

// Directory reads agents, participants and form definitions.
type Directory interface {
	FetchAgents(ctx context.Context) ([]agent.Profile, error)
	FetchParticipants(ctx context.Context, userIDs string) (*Participants, error)
	FetchFormTypes(ctx context.Context, tool, tenantID string) (string, []FormType, error)
}
