package feedback

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dusk-indust/formcrew/internal/agent"
	"github.com/dusk-indust/formcrew/internal/diff"
	"github.com/dusk-indust/formcrew/internal/store"
)

// ParticipantSource resolves the assignees of a work item.
type ParticipantSource interface {
	FetchParticipants(ctx context.Context, userIDs string) (*store.Participants, error)
}

// Analyzer compares a finished item's draft with its reviewed output and
// synthesizes feedback for the agents involved.
type Analyzer struct {
	synth        *Synthesizer
	comparator   *diff.Comparator
	participants ParticipantSource
	catalog      *agent.Catalog
	log          *zap.Logger
}

// NewAnalyzer creates an Analyzer. participants and catalog may be nil.
func NewAnalyzer(synth *Synthesizer, participants ParticipantSource, catalog *agent.Catalog, log *zap.Logger) *Analyzer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Analyzer{
		synth:        synth,
		comparator:   diff.NewComparator(log),
		participants: participants,
		catalog:      catalog,
		log:          log,
	}
}

// Analyze returns feedback records for item, or nil when the reviewer made
// no content changes.
func (a *Analyzer) Analyze(ctx context.Context, item *store.WorkItem) ([]Record, error) {
	if item == nil {
		return nil, fmt.Errorf("analyze: nil work item")
	}
	report := a.comparator.Compare(string(item.Draft), string(item.Output))
	if report.UnifiedDiff == "" {
		a.log.Debug("no reviewer changes", zap.String("todo_id", item.ID))
		return nil, nil
	}

	ctx = agent.WithCrew(ctx, agent.CrewContext{
		CrewType:   agent.CrewFeedback,
		TodoID:     item.ID,
		ProcInstID: item.ProcInstID,
	})
	records := a.synth.Generate(ctx, report.Changes(), a.roster(ctx, item), report.DraftContent())
	a.log.Info("feedback generated", zap.String("todo_id", item.ID), zap.Int("records", len(records)))
	return records, nil
}

func (a *Analyzer) roster(ctx context.Context, item *store.WorkItem) []agent.Profile {
	if a.participants != nil && item.UserID != "" {
		p, err := a.participants.FetchParticipants(ctx, item.UserID)
		if err != nil {
			a.log.Warn("participants unavailable", zap.String("todo_id", item.ID), zap.Error(err))
		} else if len(p.Agents) > 0 {
			return p.Agents
		}
	}
	if a.catalog != nil {
		return a.catalog.All(ctx)
	}
	return agent.FallbackRoster()
}
