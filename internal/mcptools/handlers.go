package mcptools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/dusk-indust/formcrew/internal/diff"
	"github.com/dusk-indust/formcrew/internal/feedback"
	"github.com/dusk-indust/formcrew/internal/status"
	"github.com/dusk-indust/formcrew/internal/store"
	"github.com/dusk-indust/formcrew/internal/tools"
)

// FeedbackAnalyzer derives agent feedback from a finished work item.
type FeedbackAnalyzer interface {
	Analyze(ctx context.Context, item *store.WorkItem) ([]feedback.Record, error)
}

// Service holds the collaborators used by the MCP tool handlers. Items,
// Analyzer and Knowledge may be nil; tools needing them then fail.
type Service struct {
	items      status.Source
	analyzer   FeedbackAnalyzer
	knowledge  *tools.KnowledgeConfig
	comparator *diff.Comparator
}

// NewService creates a Service.
func NewService(items status.Source, analyzer FeedbackAnalyzer, knowledge *tools.KnowledgeConfig, log *zap.Logger) *Service {
	return &Service{
		items:      items,
		analyzer:   analyzer,
		knowledge:  knowledge,
		comparator: diff.NewComparator(log),
	}
}

var errNoStore = errors.New("no work item store configured")

// ExtractChanges returns the lines inserted into and deleted from a text.
func (s *Service) ExtractChanges(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ExtractChangesInput,
) (*mcp.CallToolResult, ExtractChangesOutput, error) {
	return nil, ExtractChangesOutput{Changes: diff.ExtractChanges(input.Original, input.Modified)}, nil
}

// CompareReportChanges compares a draft payload with the final output per
// report key.
func (s *Service) CompareReportChanges(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input CompareReportChangesInput,
) (*mcp.CallToolResult, CompareReportChangesOutput, error) {
	draft, output := input.Draft, input.Output
	if input.TodoID != "" {
		item, err := s.item(ctx, input.TodoID)
		if err != nil {
			return nil, CompareReportChangesOutput{}, err
		}
		draft, output = string(item.Draft), string(item.Output)
	}
	if draft == "" && output == "" {
		return nil, CompareReportChangesOutput{}, fmt.Errorf("todoId or draft/output is required")
	}

	rep := s.comparator.Compare(draft, output)
	out := CompareReportChangesOutput{UnifiedDiff: rep.UnifiedDiff, Comparisons: []ComparisonInfo{}}
	for _, c := range rep.Comparisons {
		out.Comparisons = append(out.Comparisons, ComparisonInfo{
			Key:        c.Key,
			Insertions: len(c.Changes.Insertions),
			Deletions:  len(c.Changes.Deletions),
		})
	}
	return nil, out, nil
}

// GenerateFeedback analyzes a finished work item without saving the result.
func (s *Service) GenerateFeedback(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GenerateFeedbackInput,
) (*mcp.CallToolResult, GenerateFeedbackOutput, error) {
	if s.analyzer == nil {
		return nil, GenerateFeedbackOutput{}, errors.New("feedback analysis is not configured")
	}
	item, err := s.item(ctx, input.TodoID)
	if err != nil {
		return nil, GenerateFeedbackOutput{}, err
	}
	records, err := s.analyzer.Analyze(ctx, item)
	if err != nil {
		return nil, GenerateFeedbackOutput{}, fmt.Errorf("analyze %s: %w", input.TodoID, err)
	}
	if records == nil {
		records = []feedback.Record{}
	}
	return nil, GenerateFeedbackOutput{Records: records}, nil
}

// GetStatus describes one work item, or the most recent ones.
func (s *Service) GetStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetStatusInput,
) (*mcp.CallToolResult, GetStatusOutput, error) {
	if s.items == nil {
		return nil, GetStatusOutput{}, errNoStore
	}
	if input.TodoID != "" {
		st, err := status.Get(ctx, s.items, input.TodoID)
		if err != nil {
			return nil, GetStatusOutput{}, fmt.Errorf("get %s: %w", input.TodoID, err)
		}
		return nil, GetStatusOutput{Items: []status.ItemStatus{st}}, nil
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	items, err := status.Recent(ctx, s.items, limit)
	if err != nil {
		return nil, GetStatusOutput{}, err
	}
	if items == nil {
		items = []status.ItemStatus{}
	}
	return nil, GetStatusOutput{Items: items}, nil
}

// KnowledgeSearch searches an agent's long-term memory with the same filter
// the agents use.
func (s *Service) KnowledgeSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input KnowledgeSearchInput,
) (*mcp.CallToolResult, KnowledgeSearchOutput, error) {
	if s.knowledge == nil {
		return nil, KnowledgeSearchOutput{}, errors.New("agent memory is not configured")
	}
	if strings.TrimSpace(input.AgentID) == "" {
		return nil, KnowledgeSearchOutput{}, errors.New("agentId is required")
	}
	result, err := s.knowledge.For(input.AgentID).Call(ctx, input.Query)
	if err != nil {
		return nil, KnowledgeSearchOutput{}, err
	}
	return nil, KnowledgeSearchOutput{Result: result}, nil
}

func (s *Service) item(ctx context.Context, id string) (*store.WorkItem, error) {
	if s.items == nil {
		return nil, errNoStore
	}
	if id == "" {
		return nil, errors.New("todoId is required")
	}
	item, err := s.items.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	return item, nil
}
