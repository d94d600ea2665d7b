package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/formcrew/internal/agent"
	"github.com/dusk-indust/formcrew/internal/llm"
	"github.com/dusk-indust/formcrew/internal/metrics"
	"github.com/dusk-indust/formcrew/internal/summary"
	"github.com/dusk-indust/formcrew/internal/tools"
)

// FailurePrefix starts the placeholder stored for a failed section.
const FailurePrefix = "섹션 생성 실패: "

// Toolbox binds tool names to tools for one agent.
type Toolbox interface {
	Load(ctx context.Context, names []string, scope tools.Scope) []llm.Tool
}

// RunRequest is one report's worth of sections.
type RunRequest struct {
	ReportKey string
	Sections  []Section
	Topic     string
	Summary   summary.Summary
	TenantID  string
	Files     llm.FileSink
}

// CheckpointFunc receives the re-merged report after each section completes.
type CheckpointFunc func(ctx context.Context, merged string)

// Runner generates the sections of a report concurrently.
type Runner struct {
	exec  *agent.Executor
	tools Toolbox
	limit int
	log   *zap.Logger
}

// NewRunner creates a Runner. limit caps concurrently running sections;
// zero or less means no cap.
func NewRunner(exec *agent.Executor, toolbox Toolbox, limit int, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{exec: exec, tools: toolbox, limit: limit, log: log}
}

type sectionResult struct {
	index   int
	title   string
	content string
	err     error
}

// Run launches every section and processes completions as they arrive. Each
// completion is stored under its planned title, the report is re-merged in
// planned order and onComplete is called with the result. A failed section
// gets a placeholder. Sections not yet started when ctx is cancelled are
// never launched; Run then returns the contents so far and ctx's error.
func (r *Runner) Run(ctx context.Context, req RunRequest, onComplete CheckpointFunc) (map[string]string, error) {
	ctx = agent.WithCrewType(ctx, agent.CrewReport)
	contents := make(map[string]string, len(req.Sections))
	results := make(chan sectionResult, len(req.Sections))

	var g errgroup.Group
	if r.limit > 0 {
		g.SetLimit(r.limit)
	}
	go func() {
		defer close(results)
		for i, sec := range req.Sections {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				content, err := r.runSection(ctx, req, i, sec)
				results <- sectionResult{index: i, title: sec.TOC.Title, content: content, err: err}
				return nil
			})
		}
		g.Wait() //nolint:errcheck
	}()

	for res := range results {
		if res.err != nil {
			if ctx.Err() != nil {
				r.log.Info("section abandoned", zap.String("report_key", req.ReportKey), zap.String("title", res.title))
				continue
			}
			r.log.Warn("section failed",
				zap.String("report_key", req.ReportKey),
				zap.String("title", res.title),
				zap.Error(res.err))
			contents[res.title] = FailurePrefix + res.err.Error()
		} else {
			contents[res.title] = res.content
		}
		if onComplete != nil {
			onComplete(ctx, MergeSections(req.Sections, contents))
		}
	}
	return contents, ctx.Err()
}

func (r *Runner) runSection(ctx context.Context, req RunRequest, i int, sec Section) (string, error) {
	start := time.Now()
	scope := tools.Scope{TenantID: sec.Agent.TenantID, AgentID: sec.Agent.AgentID}
	if scope.TenantID == "" {
		scope.TenantID = req.TenantID
	}
	if scope.AgentID == "" {
		scope.AgentID = sec.Agent.Name
	}
	var bound []llm.Tool
	if r.tools != nil {
		bound = r.tools.Load(ctx, sec.Agent.ToolNames, scope)
	}

	out, err := r.exec.Run(ctx, agent.Unit{
		JobID: fmt.Sprintf("report_%s_section_%d", req.ReportKey, i+1),
		Agent: sec.Agent.AsProfile(),
		Task:  BuildSectionTask(sec, req.Topic, req.Summary),
		Tools: bound,
		Files: req.Files,
	})
	metrics.Sections.WithLabelValues(metrics.Status(err)).Inc()
	metrics.ObserveSince(metrics.SectionDuration, start)
	return out, err
}
