// Package e2e drives whole work items through the SQLite store: claim,
// plan, sections, downstream forms, reviewer feedback and the memory loop
// that carries feedback into the next draft.
package e2e

import (
	"context"
	"encoding/json"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/formcrew/internal/agent"
	"github.com/dusk-indust/formcrew/internal/config"
	"github.com/dusk-indust/formcrew/internal/events"
	"github.com/dusk-indust/formcrew/internal/feedback"
	"github.com/dusk-indust/formcrew/internal/llm"
	"github.com/dusk-indust/formcrew/internal/memory"
	"github.com/dusk-indust/formcrew/internal/orchestrator"
	"github.com/dusk-indust/formcrew/internal/poller"
	"github.com/dusk-indust/formcrew/internal/store"
	"github.com/dusk-indust/formcrew/internal/summary"
	"github.com/dusk-indust/formcrew/internal/tools"
)

const (
	agentID  = "7d1f9a52-3c44-4b8e-9a0e-2f6d1c0b5e11"
	agentTag = "김분석"
	tenantID = "acme"
	procID   = "proc-weekly"
)

const formFields = `[
  {"key": "report_1", "type": "report", "text": "주간 보고서"},
  {"key": "slide_1", "type": "slide", "text": "발표 자료"},
  {"key": "memo", "type": "textarea", "text": "메모"}
]`

const planResponse = "```json\n" + `{"execution_plan": {
  "report_phase": {"forms": [{"key": "report_1", "type": "report", "dependencies": []}], "strategy": "parallel"},
  "slide_phase": {"forms": [{"key": "slide_1", "type": "slide", "dependencies": ["report_1"]}]},
  "text_phase": {"forms": [{"key": "memo", "type": "text", "dependencies": ["report_1"]}]}
}}` + "\n```"

const sectionsResponse = `{"sections": [
  {"toc": {"title": "1. 개요", "order": 1},
   "agent": {"agent_id": "` + agentID + `", "tool_names": ["mem0"]},
   "task": {"description": "개요를 작성합니다."}},
  {"toc": {"title": "2. 실적", "order": 2},
   "agent": {"agent_id": "` + agentID + `", "tool_names": ["mem0"]},
   "task": {"description": "실적을 정리합니다."}}
]}`

const feedbackResponse = `[{"agent": "` + agentTag + `", "feedback": "실적 수치는 표로 정리하세요"}]`

var sectionTitle = regexp.MustCompile(`현재 섹션 '([^']+)'`)

var sectionBodies = map[string]string{
	"1. 개요": "개요 본문",
	"2. 실적": "실적 본문",
}

// crewGenerator answers each crew the way a well-behaved model would. Report
// sections consult the mem0 tool and quote any remembered knowledge.
type crewGenerator struct {
	mu    sync.Mutex
	calls map[string]int
	// hook runs before each answer; set it before the first call.
	hook func(ctx context.Context, crew string)
}

func newCrewGenerator() *crewGenerator {
	return &crewGenerator{calls: make(map[string]int)}
}

func (g *crewGenerator) count(crew string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[crew]
}

func (g *crewGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	crew := agent.CrewFrom(ctx).CrewType
	g.mu.Lock()
	g.calls[crew]++
	g.mu.Unlock()
	if g.hook != nil {
		g.hook(ctx, crew)
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}

	switch crew {
	case agent.CrewPlanning:
		if strings.Contains(req.ExpectedOutput, "execution_plan") {
			return planResponse, nil
		}
		return sectionsResponse, nil
	case agent.CrewReport:
		m := sectionTitle.FindStringSubmatch(req.Task)
		if m == nil {
			return "", nil
		}
		title := m[1]
		body := "## " + title + "\n" + sectionBodies[title]
		for _, tool := range req.Tools {
			if tool.Name() != tools.KnowledgeToolName {
				continue
			}
			found, err := tool.Call(ctx, "실적 표로 정리")
			if err == nil && strings.Contains(found, "개인지식") {
				body += "\n> " + strings.ReplaceAll(found, "\n", " ")
			}
		}
		return body, nil
	case agent.CrewSlide:
		return "# 주간 보고 슬라이드", nil
	case agent.CrewText:
		return `{"memo": "요약 메모"}`, nil
	case agent.CrewSummary:
		return "📋 제목: 지난 주간 보고", nil
	case agent.CrewFeedback:
		return feedbackResponse, nil
	default:
		return "", nil
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) Emit(_ context.Context, e events.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) ofType(eventType string) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for _, e := range l.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// harness wires the production components around a SQLite file.
type harness struct {
	store    *store.SQLStore
	mem      memory.Store
	gen      *crewGenerator
	events   *eventLog
	todo     *poller.WorkQueuePoller
	feedback *poller.FeedbackPoller
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "e2e.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mem := memory.NewMemStore()
	gen := newCrewGenerator()
	log := &eventLog{}

	memCfg := config.MemoryConfig{Threshold: 0.5, MinResults: 5, Limit: 20}
	loader := tools.NewLoader(tools.NewKnowledgeConfig(mem, memCfg), tools.NewDocumentSearch(config.DocumentsConfig{}), nil, nil)
	exec := agent.NewExecutor(gen, events.UnitHooks(log))
	catalog := agent.NewCatalog(st, nil)

	flow := orchestrator.NewFlow(orchestrator.FlowDeps{
		Store:      st,
		Summarizer: summary.New(gen, nil),
		Planner:    orchestrator.NewPlanner(exec, nil),
		Matcher:    orchestrator.NewMatcher(exec, catalog, nil),
		Runner:     orchestrator.NewRunner(exec, loader, 2, nil),
		Downstream: orchestrator.NewDownstream(exec, nil),
		Events:     log,
	})

	analyzer := feedback.NewAnalyzer(feedback.NewSynthesizer(gen, mem, nil), st, catalog, nil)
	poll := config.PollConfig{CancelCheckInterval: 20 * time.Millisecond}

	h := &harness{
		store:    st,
		mem:      mem,
		gen:      gen,
		events:   log,
		todo:     poller.NewWorkQueuePoller(st, poller.InProcess(st, flow), poll, nil),
		feedback: poller.NewFeedbackPoller(st, analyzer, time.Second, nil),
	}
	h.seed(t)
	return h
}

func (h *harness) seed(t *testing.T) {
	t.Helper()
	db := h.store.DB()
	_, err := db.Exec(`INSERT INTO users (id, username, tenant_id, role, goal, persona, tools, is_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?, TRUE)`,
		agentID, agentTag, tenantID, "분석가", "데이터 분석", "숫자에 밝다", "mem0")
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO form_def (id, tenant_id, fields_json) VALUES (?, ?, ?)`,
		"weekly", tenantID, formFields)
	require.NoError(t, err)
}

func (h *harness) enqueue(t *testing.T, id string, start time.Time) {
	t.Helper()
	require.NoError(t, h.store.Insert(context.Background(), &store.WorkItem{
		ID:           id,
		UserID:       agentID,
		ActivityName: "주간 보고",
		ProcInstID:   procID,
		Tool:         "formHandler:weekly",
		TenantID:     tenantID,
		StartDate:    start,
	}))
}

// review marks an item DONE with the reviewer's edited report.
func (h *harness) review(t *testing.T, id, editedReport string) {
	t.Helper()
	output, err := json.Marshal(map[string]any{
		"weekly_form": map[string]any{"report_1": editedReport},
	})
	require.NoError(t, err)
	_, err = h.store.DB().Exec(`UPDATE todolist SET status = 'DONE', output = ? WHERE id = ?`, string(output), id)
	require.NoError(t, err)
}

func draftOf(t *testing.T, item *store.WorkItem) map[string]any {
	t.Helper()
	var draft map[string]any
	require.NoError(t, json.Unmarshal(item.Draft, &draft))
	return draft
}
