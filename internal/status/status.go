// Package status summarizes the lifecycle of work items for the CLI and the
// MCP server.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dusk-indust/formcrew/internal/store"
)

// Stage names the lifecycle position of a work item.
type Stage string

const (
	StagePending   Stage = "pending"
	StageRunning   Stage = "running"
	StageDraft     Stage = "draft ready"
	StageRevision  Stage = "feedback requested"
	StageSubmitted Stage = "submitted"
	StageDone      Stage = "done"
	StageReviewed  Stage = "reviewed"
	StageFailed    Stage = "failed"
	StageCancelled Stage = "cancelled"
)

// ItemStatus describes one work item.
type ItemStatus struct {
	ID          string    `json:"id"`
	Activity    string    `json:"activity"`
	ProcInstID  string    `json:"proc_inst_id,omitempty"`
	Status      string    `json:"status"`
	AgentMode   string    `json:"agent_mode"`
	DraftStatus string    `json:"draft_status,omitempty"`
	Stage       Stage     `json:"stage"`
	Reports     []string  `json:"reports,omitempty"`
	Slides      []string  `json:"slides,omitempty"`
	Texts       []string  `json:"texts,omitempty"`
	Feedback    int       `json:"feedback_records"`
	StartDate   string    `json:"start_date,omitempty"`
	Started     time.Time `json:"-"`
}

// StageOf derives the lifecycle stage from the status columns.
func StageOf(item *store.WorkItem) Stage {
	switch item.DraftStatus {
	case store.DraftRunning:
		return StageRunning
	case store.DraftFailed:
		return StageFailed
	case store.DraftCancelled:
		return StageCancelled
	case store.DraftFBRequested:
		return StageRevision
	}
	switch item.Status {
	case store.StatusSubmitted:
		return StageSubmitted
	case store.StatusDone:
		if len(item.Feedback) > 0 {
			return StageReviewed
		}
		return StageDone
	}
	if item.DraftStatus == store.DraftCompleted {
		return StageDraft
	}
	return StagePending
}

// Describe summarizes item.
func Describe(item *store.WorkItem) ItemStatus {
	st := ItemStatus{
		ID:          item.ID,
		Activity:    item.ActivityName,
		ProcInstID:  item.ProcInstID,
		Status:      item.Status,
		AgentMode:   item.AgentMode,
		DraftStatus: item.DraftStatus,
		Stage:       StageOf(item),
		Started:     item.StartDate,
	}
	if !item.StartDate.IsZero() {
		st.StartDate = item.StartDate.UTC().Format(time.RFC3339)
	}
	var draft struct {
		Reports map[string]json.RawMessage `json:"reports"`
		Slides  map[string]json.RawMessage `json:"slides"`
		Texts   map[string]json.RawMessage `json:"texts"`
	}
	if len(item.Draft) > 0 && json.Unmarshal(item.Draft, &draft) == nil {
		st.Reports = sortedKeys(draft.Reports)
		st.Slides = sortedKeys(draft.Slides)
		st.Texts = sortedKeys(draft.Texts)
	}
	var records []json.RawMessage
	if len(item.Feedback) > 0 && json.Unmarshal(item.Feedback, &records) == nil {
		st.Feedback = len(records)
	}
	return st
}

func sortedKeys(m map[string]json.RawMessage) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Source lists and reads work items.
type Source interface {
	Get(ctx context.Context, id string) (*store.WorkItem, error)
	List(ctx context.Context, limit int) ([]*store.WorkItem, error)
}

// Get returns the status of one item.
func Get(ctx context.Context, src Source, id string) (ItemStatus, error) {
	item, err := src.Get(ctx, id)
	if err != nil {
		return ItemStatus{}, err
	}
	return Describe(item), nil
}

// Recent returns the status of the newest items.
func Recent(ctx context.Context, src Source, limit int) ([]ItemStatus, error) {
	items, err := src.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]ItemStatus, 0, len(items))
	for _, item := range items {
		out = append(out, Describe(item))
	}
	return out, nil
}

// Print writes a table of statuses to w.
func Print(w io.Writer, statuses []ItemStatus) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tACTIVITY\tSTAGE\tREPORTS\tSLIDES\tTEXTS\tFEEDBACK\tSTARTED")
	for _, s := range statuses {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			s.ID, s.Activity, s.Stage, len(s.Reports), len(s.Slides), len(s.Texts), s.Feedback,
			s.Started.Format(time.DateTime))
	}
	return tw.Flush()
}
