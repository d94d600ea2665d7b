package mcptools

import (
	"github.com/dusk-indust/formcrew/internal/diff"
	"github.com/dusk-indust/formcrew/internal/feedback"
	"github.com/dusk-indust/formcrew/internal/status"
)

// ExtractChangesInput is the input for the extract_changes tool.
type ExtractChangesInput struct {
	Original string `json:"original" jsonschema:"original text (e.g. the generated draft)"`
	Modified string `json:"modified" jsonschema:"modified text (e.g. the reviewer's final version)"`
}

// ExtractChangesOutput is the result of the extract_changes tool.
type ExtractChangesOutput struct {
	Changes diff.ChangeSet `json:"changes"`
}

// CompareReportChangesInput is the input for the compare_report_changes
// tool. Either TodoID or both payloads must be given.
type CompareReportChangesInput struct {
	TodoID string `json:"todoId,omitempty" jsonschema:"work item whose draft and output are compared"`
	Draft  string `json:"draft,omitempty" jsonschema:"draft payload JSON with a reports object"`
	Output string `json:"output,omitempty" jsonschema:"final output payload JSON"`
}

// CompareReportChangesOutput is the result of the compare_report_changes tool.
type CompareReportChangesOutput struct {
	UnifiedDiff string           `json:"unifiedDiff"`
	Comparisons []ComparisonInfo `json:"comparisons"`
}

// ComparisonInfo summarizes the changes of one report key.
type ComparisonInfo struct {
	Key        string `json:"key"`
	Insertions int    `json:"insertions"`
	Deletions  int    `json:"deletions"`
}

// GenerateFeedbackInput is the input for the generate_feedback tool.
type GenerateFeedbackInput struct {
	TodoID string `json:"todoId" jsonschema:"finished work item to analyze"`
}

// GenerateFeedbackOutput is the result of the generate_feedback tool.
type GenerateFeedbackOutput struct {
	Records []feedback.Record `json:"records"`
}

// GetStatusInput is the input for the get_status tool.
type GetStatusInput struct {
	TodoID string `json:"todoId,omitempty" jsonschema:"work item id; omit to list recent items"`
	Limit  int    `json:"limit,omitempty" jsonschema:"number of recent items to list (default 20)"`
}

// GetStatusOutput is the result of the get_status tool.
type GetStatusOutput struct {
	Items []status.ItemStatus `json:"items"`
}

// KnowledgeSearchInput is the input for the knowledge_search tool.
type KnowledgeSearchInput struct {
	AgentID string `json:"agentId" jsonschema:"agent whose long-term memory is searched"`
	Query   string `json:"query" jsonschema:"search query"`
}

// KnowledgeSearchOutput is the result of the knowledge_search tool.
type KnowledgeSearchOutput struct {
	Result string `json:"result"`
}
