package diff

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Comparison is the per-key result of comparing a draft report with the
// corresponding final output.
type Comparison struct {
	Key           string    `json:"key"`
	DraftContent  string    `json:"draft_content"`
	OutputContent string    `json:"output_content"`
	Changes       ChangeSet `json:"changes"`
	Summary       string    `json:"diff_summary"`
}

// Report is the result of CompareReportChanges.
type Report struct {
	UnifiedDiff string       `json:"unified_diff"`
	Comparisons []Comparison `json:"comparisons"`
}

// Changes aggregates the change sets of every comparison in report order.
func (r Report) Changes() ChangeSet {
	agg := ChangeSet{Insertions: []string{}, Deletions: []string{}}
	for _, c := range r.Comparisons {
		agg.Merge(c.Changes)
	}
	return agg
}

// DraftContent joins the draft side of every comparison.
func (r Report) DraftContent() string {
	parts := make([]string, 0, len(r.Comparisons))
	for _, c := range r.Comparisons {
		parts = append(parts, c.DraftContent)
	}
	return strings.Join(parts, "\n\n")
}

// Comparator compares draft and output payloads. The zero value is not
// usable; construct with NewComparator.
type Comparator struct {
	log *zap.Logger
}

// NewComparator returns a Comparator that logs parse failures to log.
// A nil logger is replaced with a no-op logger.
func NewComparator(log *zap.Logger) *Comparator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Comparator{log: log}
}

// CompareReportChanges compares with a no-op logger.
func CompareReportChanges(draftJSON, outputJSON string) Report {
	return NewComparator(nil).Compare(draftJSON, outputJSON)
}

// Compare maps each key of the draft's "reports" object onto the same key
// inside any top-level container object of the output, and diffs the pair.
// Keys whose contents are identical or produce no line changes are skipped.
// Malformed JSON on either side is treated as empty.
func (c *Comparator) Compare(draftJSON, outputJSON string) Report {
	report := Report{Comparisons: []Comparison{}}

	draft := c.draftReports(draftJSON)
	if len(draft) == 0 {
		return report
	}
	output := c.outputReports(outputJSON, draft)

	keys := make([]string, 0, len(draft)+len(output))
	seen := make(map[string]bool, len(draft)+len(output))
	for k := range draft {
		keys = append(keys, k)
		seen[k] = true
	}
	for k := range output {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var blocks []string
	for _, key := range keys {
		draftContent := stringify(draft[key])
		outputContent := stringify(output[key])
		if draftContent == outputContent {
			continue
		}
		changes := ExtractChanges(draftContent, outputContent)
		if !changes.HasChanges {
			continue
		}
		summary := formatBlock(key, changes)
		blocks = append(blocks, summary)
		report.Comparisons = append(report.Comparisons, Comparison{
			Key:           key,
			DraftContent:  draftContent,
			OutputContent: outputContent,
			Changes:       changes,
			Summary:       summary,
		})
	}
	report.UnifiedDiff = strings.Join(blocks, "\n\n")
	return report
}

func (c *Comparator) draftReports(raw string) map[string]any {
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		c.log.Warn("draft payload is not a JSON object", zap.Error(err))
		return nil
	}
	reports, _ := doc["reports"].(map[string]any)
	return reports
}

func (c *Comparator) outputReports(raw string, targets map[string]any) map[string]any {
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		c.log.Warn("output payload is not a JSON object", zap.Error(err))
		return nil
	}

	containers := make([]string, 0, len(doc))
	for k := range doc {
		containers = append(containers, k)
	}
	sort.Strings(containers)

	found := make(map[string]any)
	for _, name := range containers {
		inner, ok := doc[name].(map[string]any)
		if !ok {
			continue
		}
		for key := range targets {
			if _, done := found[key]; done {
				continue
			}
			if v, ok := inner[key]; ok {
				found[key] = v
			}
		}
	}
	return found
}

// stringify renders a JSON value as text: strings verbatim, null as empty,
// anything else as compact JSON.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return ""
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func formatBlock(key string, cs ChangeSet) string {
	lines := []string{"=== " + key + " ==="}
	if len(cs.Deletions) > 0 {
		lines = append(lines, "- 삭제된 줄:")
		for _, l := range cs.Deletions {
			if strings.TrimSpace(l) != "" {
				lines = append(lines, "  - "+l)
			}
		}
	}
	if len(cs.Insertions) > 0 {
		lines = append(lines, "+ 추가된 줄:")
		for _, l := range cs.Insertions {
			if strings.TrimSpace(l) != "" {
				lines = append(lines, "  + "+l)
			}
		}
	}
	return strings.Join(lines, "\n")
}
