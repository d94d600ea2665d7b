package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dusk-indust/formcrew/internal/agent"
	"github.com/dusk-indust/formcrew/internal/llm"
	"github.com/dusk-indust/formcrew/internal/store"
	"github.com/dusk-indust/formcrew/internal/summary"
)

// ErrMatch marks a failed section match.
var ErrMatch = errors.New("orchestrator: section matching failed")

const untitled = "unknown"

var matcherAgent = agent.Profile{
	ID:      "section_matcher",
	Name:    "목차 설계 전문가",
	Role:    "보고서 목차 설계 및 에이전트 배정 담당",
	Goal:    "현재 작업에 맞는 목차를 설계하고 섹션마다 가장 적합한 에이전트와 작업을 배정",
	Persona: "이전 단계의 흐름과 피드백을 읽고 다음 산출물의 구조를 잡는 편집장.",
	Profile: "/images/chat-icon.png",
}

const matchTemplate = `다음 작업의 보고서 목차를 설계하고 섹션마다 에이전트를 배정하세요.

[주제]
%s

[요청 사항]
%s

[이전 작업 결과 요약]
%s

[이전 피드백 요약]
%s

[사용자 정보]
%s

[배정 가능한 에이전트]
%s

[설계 규칙]
- 목차는 주제와 요청 사항, 이전 작업의 흐름을 이어가도록 구성합니다.
- 각 섹션에는 위 목록의 agent_id 하나를 배정합니다. 목록에 없는 id를 만들지 않습니다.
- 피드백에서 @@에이전트명으로 지정된 에이전트가 있으면 관련 섹션에 우선 배정합니다.
- task.description에는 섹션에서 다룰 내용과 범위를, task.expected_output에는 결과물 형태를 구체적으로 적습니다.`

const matchExpectedOutput = `JSON 객체만 출력합니다.
{"sections": [
  {"toc": {"title": "1. 섹션 제목", "order": 1},
   "agent": {"agent_id": "에이전트 id", "tool_names": ["mem0"]},
   "task": {"description": "작업 설명", "expected_output": "기대 결과"}}
]}`

// MatchInput is what the matcher needs to design one report.
type MatchInput struct {
	ReportKey   string
	Topic       string
	Query       string
	Summary     summary.Summary
	UserInfo    []store.UserInfo
	Prioritized []agent.Profile
}

// Matcher designs the table of contents of a report and assigns agents.
type Matcher struct {
	exec    *agent.Executor
	catalog *agent.Catalog
	log     *zap.Logger
}

// NewMatcher creates a Matcher. catalog may be nil, in which case the
// fallback roster is used when no agents are prioritized.
func NewMatcher(exec *agent.Executor, catalog *agent.Catalog, log *zap.Logger) *Matcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Matcher{exec: exec, catalog: catalog, log: log}
}

// Match returns the planned sections of a report in canonical order. Any
// failure wraps ErrMatch.
func (m *Matcher) Match(ctx context.Context, in MatchInput) ([]Section, error) {
	roster := m.catalog.Roster(ctx, in.Prioritized)
	m.log.Debug("matching sections",
		zap.String("report_key", in.ReportKey),
		zap.Bool("prioritized", len(in.Prioritized) > 0),
		zap.Int("agents", len(roster)))

	raw, err := m.exec.Run(agent.WithCrewType(ctx, agent.CrewPlanning), agent.Unit{
		JobID: "section_match_" + in.ReportKey,
		Agent: matcherAgent,
		Task: agent.Task{
			Description: fmt.Sprintf(matchTemplate,
				in.Topic,
				orNone(in.Query),
				orNone(in.Summary.Output),
				orNone(in.Summary.Feedback),
				jsonOrNone(in.UserInfo),
				rosterJSON(roster)),
			ExpectedOutput: matchExpectedOutput,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMatch, err)
	}

	sections, err := ParseSections(raw)
	if err != nil {
		return nil, err
	}
	return resolveSections(sections, roster), nil
}

// ParseSections decodes a matcher response: either an array of sections or
// an object with a sections key.
func ParseSections(raw string) ([]Section, error) {
	cleaned := strings.TrimSpace(llm.CleanJSON(raw))
	var sections []Section
	if strings.HasPrefix(cleaned, "[") {
		if err := json.Unmarshal([]byte(cleaned), &sections); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMatch, err)
		}
	} else {
		var envelope struct {
			Sections []Section `json:"sections"`
		}
		if err := json.Unmarshal([]byte(cleaned), &envelope); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMatch, err)
		}
		sections = envelope.Sections
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("%w: no sections", ErrMatch)
	}
	return sections, nil
}

// resolveSections splices full profiles into the assignments, names untitled
// sections and makes titles unique so they can key the content map.
func resolveSections(sections []Section, roster []agent.Profile) []Section {
	seen := make(map[string]int, len(sections))
	for i := range sections {
		sec := &sections[i]
		title := strings.TrimSpace(sec.TOC.Title)
		if title == "" {
			title = untitled
		}
		seen[title]++
		if n := seen[title]; n > 1 {
			title = fmt.Sprintf("%s (%d)", title, n)
		}
		sec.TOC.Title = title
		if sec.TOC.Order == 0 {
			sec.TOC.Order = i + 1
		}

		if p, ok := agent.Find(roster, sec.Agent.AgentID); ok {
			requested := sec.Agent.ToolNames
			sec.Agent = SectionAgent{
				AgentID:   p.ID,
				Name:      p.Name,
				Role:      p.Role,
				Goal:      p.Goal,
				Persona:   p.Persona,
				Model:     p.Model,
				Profile:   p.Profile,
				TenantID:  sec.Agent.TenantID,
				ToolNames: mergeTools(p.ToolNames(), requested),
			}
		}
	}
	return sections
}

func mergeTools(a, b []string) ToolList {
	seen := make(map[string]bool, len(a)+len(b))
	var out ToolList
	for _, n := range append(append([]string{}, a...), b...) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

type rosterEntry struct {
	ID      string `json:"agent_id"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	Goal    string `json:"goal"`
	Persona string `json:"persona"`
	Tools   string `json:"tools"`
}

func rosterJSON(roster []agent.Profile) string {
	entries := make([]rosterEntry, 0, len(roster))
	for _, p := range roster {
		entries = append(entries, rosterEntry{ID: p.ID, Name: p.Name, Role: p.Role, Goal: p.Goal, Persona: p.Persona, Tools: p.Tools})
	}
	return jsonOrNone(entries)
}

func jsonOrNone(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil || string(b) == "null" || string(b) == "[]" {
		return "없음"
	}
	return string(b)
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "없음"
	}
	return s
}
