// Package export renders work items as JSON documents and execution plans as
// Mermaid diagrams.
package export

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dusk-indust/formcrew/internal/orchestrator"
	"github.com/dusk-indust/formcrew/internal/status"
	"github.com/dusk-indust/formcrew/internal/store"
)

// ItemExport is the top-level JSON export of a work item.
type ItemExport struct {
	ID         string            `json:"id"`
	Activity   string            `json:"activity"`
	ProcInstID string            `json:"procInstId,omitempty"`
	Stage      status.Stage      `json:"stage"`
	ExportedAt string            `json:"exportedAt"`
	Reports    []ReportExport    `json:"reports,omitempty"`
	Slides     map[string]string `json:"slides,omitempty"`
	Texts      map[string]any    `json:"texts,omitempty"`
	Output     json.RawMessage   `json:"output,omitempty"`
	Feedback   json.RawMessage   `json:"feedback,omitempty"`
}

// ReportExport is one merged report split back into its sections.
type ReportExport struct {
	Key      string          `json:"key"`
	Sections []SectionExport `json:"sections"`
	Words    int             `json:"words"`
}

// SectionExport describes one section of a merged report.
type SectionExport struct {
	Index   int    `json:"index"`
	Heading string `json:"heading,omitempty"`
	Words   int    `json:"words"`
	Failed  bool   `json:"failed,omitempty"`
}

// Getter reads one work item.
type Getter interface {
	Get(ctx context.Context, id string) (*store.WorkItem, error)
}

// ExportItem builds the export of work item id.
func ExportItem(ctx context.Context, src Getter, id string) (*ItemExport, error) {
	item, err := src.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	out := &ItemExport{
		ID:         item.ID,
		Activity:   item.ActivityName,
		ProcInstID: item.ProcInstID,
		Stage:      status.StageOf(item),
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Output:     item.Output,
		Feedback:   item.Feedback,
	}

	var draft struct {
		Reports map[string]string `json:"reports"`
		Slides  map[string]string `json:"slides"`
		Texts   map[string]any    `json:"texts"`
	}
	if len(item.Draft) > 0 && json.Unmarshal(item.Draft, &draft) == nil {
		keys := make([]string, 0, len(draft.Reports))
		for k := range draft.Reports {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out.Reports = append(out.Reports, splitReport(k, draft.Reports[k]))
		}
		out.Slides = draft.Slides
		out.Texts = draft.Texts
	}
	return out, nil
}

var headingRegex = regexp.MustCompile(`(?m)^#{1,6}\s+(.+?)\s*#*$`)

func splitReport(key, merged string) ReportExport {
	rep := ReportExport{Key: key, Sections: []SectionExport{}}
	if strings.TrimSpace(merged) == "" {
		return rep
	}
	for i, part := range strings.Split(merged, orchestrator.SectionSeparator) {
		sec := SectionExport{
			Index:  i + 1,
			Words:  len(strings.Fields(part)),
			Failed: strings.HasPrefix(strings.TrimSpace(part), orchestrator.FailurePrefix),
		}
		if m := headingRegex.FindStringSubmatch(part); m != nil {
			sec.Heading = m[1]
		}
		rep.Words += sec.Words
		rep.Sections = append(rep.Sections, sec)
	}
	return rep
}
