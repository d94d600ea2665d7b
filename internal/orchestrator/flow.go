package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/formcrew/internal/agent"
	"github.com/dusk-indust/formcrew/internal/events"
	"github.com/dusk-indust/formcrew/internal/llm"
	"github.com/dusk-indust/formcrew/internal/metrics"
	"github.com/dusk-indust/formcrew/internal/store"
	"github.com/dusk-indust/formcrew/internal/summary"
)

// Phase is a step of the flow state machine.
type Phase int

const (
	PhaseStart Phase = iota
	PhasePlan
	PhaseReports
	PhaseSlides
	PhaseTexts
	PhaseFinalize
	PhaseDone
)

func (p Phase) String() string {
	names := [...]string{
		"START",
		"PLAN",
		"GENERATE_REPORTS",
		"GENERATE_SLIDES",
		"GENERATE_TEXTS",
		"FINALIZE",
		"DONE",
	}
	if p >= 0 && int(p) < len(names) {
		return names[p]
	}
	return "unknown"
}

// Merge event constants.
const (
	mergeJobPrefix = "final_report_merge_"
	mergeRole      = "리포트 통합 전문가"
	mergeGoal      = "섹션을 하나의 완전한 문서로 병합"
	mergeProfile   = "/images/chat-icon.png"
)

// FlowState is the working memory of one run.
type FlowState struct {
	Inputs          Inputs
	Phase           Phase
	Summary         summary.Summary
	Plan            *ExecutionPlan
	Sections        map[string][]Section
	SectionContents map[string]map[string]string
	ReportContents  map[string]string
	SlideContents   map[string]string
	TextContents    map[string]any
}

func newFlowState(in Inputs) *FlowState {
	return &FlowState{
		Inputs:          in,
		Phase:           PhaseStart,
		Sections:        make(map[string][]Section),
		SectionContents: make(map[string]map[string]string),
		ReportContents:  make(map[string]string),
		SlideContents:   make(map[string]string),
		TextContents:    make(map[string]any),
	}
}

// advance moves to the next phase. Phases are strictly sequential.
func (s *FlowState) advance(to Phase) error {
	if to != s.Phase+1 {
		return fmt.Errorf("invalid phase transition %s -> %s", s.Phase, to)
	}
	s.Phase = to
	return nil
}

// producedReports lists merged reports in report-plan order.
func (s *FlowState) producedReports() []ProducedReport {
	if s.Plan == nil {
		return nil
	}
	var out []ProducedReport
	for _, key := range s.Plan.ReportKeys() {
		if c, ok := s.ReportContents[key]; ok {
			out = append(out, ProducedReport{Key: key, Content: c})
		}
	}
	return out
}

// Payload is the final result written to the work item.
func (s *FlowState) Payload() map[string]any {
	return map[string]any{
		"reports": s.ReportContents,
		"slides":  s.SlideContents,
		"texts":   s.TextContents,
	}
}

// ResultStore is the part of the work queue a flow writes to.
type ResultStore interface {
	SaveResult(ctx context.Context, id string, payload any, final bool) error
	ReadCompletedSiblings(ctx context.Context, procInstID string) (*store.Siblings, error)
}

// ContextSummarizer condenses prior outputs and feedback.
type ContextSummarizer interface {
	Summarize(ctx context.Context, outputs, feedback any) (summary.Summary, error)
}

// ImageStore spools generated images for one run and resolves their
// placeholders at finalize time.
type ImageStore interface {
	llm.FileSink
	Resolve(ctx context.Context, text string) string
	Release() error
}

// ImageFactory opens the image store of a run.
type ImageFactory func(todoID string) (ImageStore, error)

// FlowDeps are the collaborators of a Flow. Summarizer, Images and Events
// may be nil.
type FlowDeps struct {
	Store      ResultStore
	Summarizer ContextSummarizer
	Planner    *Planner
	Matcher    *Matcher
	Runner     *Runner
	Downstream *Downstream
	Images     ImageFactory
	Events     events.Sink
	Log        *zap.Logger
}

// Flow runs work items through the phase machine.
type Flow struct {
	deps FlowDeps
	log  *zap.Logger
}

// NewFlow creates a Flow.
func NewFlow(deps FlowDeps) *Flow {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Events == nil {
		deps.Events = events.Nop
	}
	return &Flow{deps: deps, log: deps.Log}
}

// Run executes every phase for in and persists the final payload once. Errors
// name the phase they occurred in; the work item keeps its last checkpoint.
func (f *Flow) Run(ctx context.Context, in Inputs) (state *FlowState, err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		switch {
		case errors.Is(err, context.Canceled):
			outcome = "cancelled"
		case err != nil:
			outcome = "error"
		}
		metrics.FlowRuns.WithLabelValues(outcome).Inc()
		metrics.ObserveSince(metrics.FlowDuration, start)
	}()

	ctx = agent.WithCrew(ctx, agent.CrewContext{
		CrewType:   agent.CrewFlow,
		TodoID:     in.TodoID,
		ProcInstID: in.ProcInstID,
	})
	log := f.log.With(zap.String("todo_id", in.TodoID), zap.String("proc_inst_id", in.ProcInstID))
	state = newFlowState(in)

	images := f.openImages(in.TodoID, log)
	defer func() {
		if rerr := images.Release(); rerr != nil {
			log.Warn("image spool not released", zap.Error(rerr))
		}
	}()

	state.Summary = f.loadContext(ctx, in, log)

	steps := []struct {
		phase Phase
		run   func(context.Context, *FlowState, ImageStore) error
	}{
		{PhasePlan, f.plan},
		{PhaseReports, f.reports},
		{PhaseSlides, f.slides},
		{PhaseTexts, f.texts},
		{PhaseFinalize, f.finalize},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return state, fmt.Errorf("%s: %w", step.phase, err)
		}
		if err := state.advance(step.phase); err != nil {
			return state, err
		}
		log.Info("phase started", zap.Stringer("phase", step.phase))
		if err := step.run(ctx, state, images); err != nil {
			log.Error("phase failed", zap.Stringer("phase", step.phase), zap.Error(err))
			return state, fmt.Errorf("%s: %w", step.phase, err)
		}
	}
	if err := state.advance(PhaseDone); err != nil {
		return state, err
	}
	log.Info("flow completed",
		zap.Int("reports", len(state.ReportContents)),
		zap.Int("slides", len(state.SlideContents)),
		zap.Int("texts", len(state.TextContents)),
		zap.Duration("elapsed", time.Since(start)))
	return state, nil
}

func (f *Flow) openImages(todoID string, log *zap.Logger) ImageStore {
	if f.deps.Images == nil {
		return nopImages{}
	}
	img, err := f.deps.Images(todoID)
	if err != nil {
		log.Warn("image spool unavailable", zap.Error(err))
		return nopImages{}
	}
	return img
}

// loadContext summarizes the finished siblings of the process. Failures
// degrade to an empty summary.
func (f *Flow) loadContext(ctx context.Context, in Inputs, log *zap.Logger) summary.Summary {
	if f.deps.Store == nil || f.deps.Summarizer == nil || in.ProcInstID == "" {
		return summary.Summary{}
	}
	siblings, err := f.deps.Store.ReadCompletedSiblings(ctx, in.ProcInstID)
	if err != nil {
		log.Warn("prior context unavailable", zap.Error(err))
		return summary.Summary{}
	}
	if siblings.Empty() {
		return summary.Summary{}
	}
	sum, err := f.deps.Summarizer.Summarize(agent.WithCrewType(ctx, agent.CrewSummary), siblings.Outputs, siblings.Feedbacks)
	if err != nil {
		log.Warn("prior context partly summarized", zap.Error(err))
	}
	return sum
}

func (f *Flow) plan(ctx context.Context, s *FlowState, _ ImageStore) error {
	plan, err := f.deps.Planner.Plan(ctx, s.Inputs.Topic, s.Inputs.FormTypes)
	if err != nil {
		return err
	}
	s.Plan = plan
	return nil
}

func (f *Flow) reports(ctx context.Context, s *FlowState, images ImageStore) error {
	for _, key := range s.Plan.ReportKeys() {
		if err := ctx.Err(); err != nil {
			return err
		}
		sections, err := f.deps.Matcher.Match(ctx, MatchInput{
			ReportKey:   key,
			Topic:       s.Inputs.Topic,
			Query:       s.Inputs.Query,
			Summary:     s.Summary,
			UserInfo:    s.Inputs.UserInfo,
			Prioritized: s.Inputs.AgentInfo,
		})
		if err != nil {
			return err
		}
		s.Sections[key] = sections

		contents, err := f.deps.Runner.Run(ctx, RunRequest{
			ReportKey: key,
			Sections:  sections,
			Topic:     s.Inputs.Topic,
			Summary:   s.Summary,
			TenantID:  s.Inputs.TenantID,
			Files:     images,
		}, func(ctx context.Context, merged string) {
			s.ReportContents[key] = merged
			f.checkpoint(ctx, s)
		})
		s.SectionContents[key] = contents
		if err != nil {
			return err
		}
		f.mergeReport(ctx, s, key)
	}
	return nil
}

// mergeReport performs the final merge of a report key between the merge
// started and completed events.
func (f *Flow) mergeReport(ctx context.Context, s *FlowState, key string) {
	ctx = agent.WithCrewType(ctx, agent.CrewReport)
	jobID := mergeJobPrefix + key
	f.deps.Events.Emit(ctx, events.New(ctx, events.TaskStarted, jobID, map[string]any{
		"role":          mergeRole,
		"goal":          mergeGoal,
		"agent_profile": mergeProfile,
		"name":          mergeRole,
	}))
	merged := MergeSections(s.Sections[key], s.SectionContents[key])
	s.ReportContents[key] = merged
	f.deps.Events.Emit(ctx, events.New(ctx, events.TaskCompleted, jobID, map[string]any{key: merged}))
}

// checkpoint writes the reports merged so far. Failures are logged only.
func (f *Flow) checkpoint(ctx context.Context, s *FlowState) {
	if f.deps.Store == nil || s.Inputs.TodoID == "" {
		return
	}
	snapshot := make(map[string]string, len(s.ReportContents))
	for k, v := range s.ReportContents {
		snapshot[k] = v
	}
	err := f.deps.Store.SaveResult(ctx, s.Inputs.TodoID, map[string]any{"reports": snapshot}, false)
	if err != nil {
		f.log.Warn("checkpoint failed", zap.String("todo_id", s.Inputs.TodoID), zap.Error(err))
	}
}

func (f *Flow) downstreamInput(s *FlowState, images ImageStore) DownstreamInput {
	return DownstreamInput{
		Topic:    s.Inputs.Topic,
		UserInfo: s.Inputs.UserInfo,
		Summary:  s.Summary,
		Files:    images,
	}
}

func (f *Flow) slides(ctx context.Context, s *FlowState, images ImageStore) error {
	out, err := f.deps.Downstream.Slides(ctx, s.Plan.Slide, s.producedReports(), f.downstreamInput(s, images))
	for k, v := range out {
		s.SlideContents[k] = v
	}
	return err
}

func (f *Flow) texts(ctx context.Context, s *FlowState, images ImageStore) error {
	out, err := f.deps.Downstream.Texts(ctx, s.Plan.Text, s.producedReports(), s.Inputs.FormTypes, f.downstreamInput(s, images))
	for k, v := range out {
		s.TextContents[k] = v
	}
	return err
}

func (f *Flow) finalize(ctx context.Context, s *FlowState, images ImageStore) error {
	for k, v := range s.ReportContents {
		s.ReportContents[k] = images.Resolve(ctx, v)
	}
	for k, v := range s.SlideContents {
		s.SlideContents[k] = images.Resolve(ctx, v)
	}
	for k, v := range s.TextContents {
		s.TextContents[k] = resolveAny(ctx, images, v)
	}

	if f.deps.Store != nil && s.Inputs.TodoID != "" {
		if err := f.deps.Store.SaveResult(ctx, s.Inputs.TodoID, s.Payload(), true); err != nil {
			return fmt.Errorf("persist final result: %w", err)
		}
	}
	ctx = agent.WithCrewType(ctx, agent.CrewFlow)
	f.deps.Events.Emit(ctx, events.New(ctx, events.CrewCompleted, events.FinishedJobID, map[string]any{}))
	return nil
}

// resolveAny resolves image placeholders in every string of a decoded JSON
// value.
func resolveAny(ctx context.Context, images ImageStore, v any) any {
	switch t := v.(type) {
	case string:
		return images.Resolve(ctx, t)
	case map[string]any:
		for k, e := range t {
			t[k] = resolveAny(ctx, images, e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = resolveAny(ctx, images, e)
		}
		return t
	default:
		return v
	}
}

type nopImages struct{}

func (nopImages) SaveFile(name, _ string, _ []byte) (string, error) {
	return "", fmt.Errorf("image %s: no image store configured", name)
}
func (nopImages) Resolve(_ context.Context, text string) string { return text }
func (nopImages) Release() error                                { return nil }
