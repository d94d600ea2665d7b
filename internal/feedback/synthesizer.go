// Package feedback turns reviewer edits of a finished draft into short,
// agent-specific feedback and files it in each agent's long-term memory.
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/formcrew/internal/agent"
	"github.com/dusk-indust/formcrew/internal/diff"
	"github.com/dusk-indust/formcrew/internal/llm"
	"github.com/dusk-indust/formcrew/internal/memory"
	"github.com/dusk-indust/formcrew/internal/metrics"
)

// MemoryPrefix marks feedback entries in agent memory.
const MemoryPrefix = "[피드백] "

// Record is feedback addressed to one agent.
type Record struct {
	Agent    string `json:"agent"`
	Feedback string `json:"feedback"`
}

const (
	role    = "에이전트 성과 분석 전문가"
	goal    = "문서 변경을 분석해 관련 에이전트에게 구체적이고 건설적인 피드백을 제공"
	persona = "검토자가 초안을 어떻게 고쳤는지 읽고 그 의도를 각 에이전트의 역할에 비추어 해석한다."
)

const promptTemplate = `검토자가 에이전트 초안을 수정했습니다. 변경 내용을 분석해 관련 있는 에이전트에게만 피드백을 작성하세요.

## 에이전트 목록
%s

## 원본 내용
%s

## 삭제된 줄
%s

## 추가된 줄
%s

## 분석 절차
1. 삭제와 추가를 비교해 어떤 개선을 의도했는지 파악합니다.
2. 변경 내용과 각 에이전트의 역할, 목표를 비교해 관련성을 판단합니다.
3. 관련성이 높은 에이전트에게만 실행 가능한 피드백을 한두 줄로 작성합니다.

## 매칭 기준
- 리서처, 분석가: 정보의 정확성과 데이터 분석
- 작성자: 문체와 구조, 가독성
- 검토자: 품질 개선과 오류 수정
- 기획자: 구성과 흐름, 전략
- 전문가: 전문 지식과 기술적 내용

공백이나 마크다운 같은 형식 변경은 무시하고 내용 변화에만 집중하세요.
관련 없는 에이전트는 생략합니다.`

const expectedOutput = `JSON 배열만 출력합니다.
[{"agent": "에이전트명", "feedback": "구체적 개선점"}]`

// Synthesizer generates feedback records from a change set.
type Synthesizer struct {
	gen llm.Generator
	mem memory.Store
	log *zap.Logger
}

// NewSynthesizer creates a Synthesizer. mem may be nil, in which case
// feedback is not remembered.
func NewSynthesizer(gen llm.Generator, mem memory.Store, log *zap.Logger) *Synthesizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Synthesizer{gen: gen, mem: mem, log: log}
}

// Generate asks the generator which agents the edits concern. It returns
// nil when changes.HasChanges is false, whatever the lists hold, and when
// generation or parsing fails.
func (s *Synthesizer) Generate(ctx context.Context, changes diff.ChangeSet, roster []agent.Profile, original string) []Record {
	if !changes.HasChanges {
		return nil
	}

	raw, err := s.gen.Generate(agent.WithCrewType(ctx, agent.CrewFeedback), llm.Request{
		Role:           role,
		Goal:           goal,
		Persona:        persona,
		Task:           buildPrompt(changes, roster, original),
		ExpectedOutput: expectedOutput,
	})
	if err != nil {
		s.log.Warn("feedback generation failed", zap.Error(err))
		return nil
	}

	var parsed []Record
	if err := llm.DecodeJSON(raw, &parsed); err != nil {
		s.log.Warn("feedback response unreadable", zap.Error(err))
		return nil
	}

	records := make([]Record, 0, len(parsed))
	for _, r := range parsed {
		r.Agent = strings.TrimSpace(r.Agent)
		r.Feedback = strings.TrimSpace(r.Feedback)
		if r.Agent == "" || r.Feedback == "" {
			continue
		}
		records = append(records, r)
	}
	metrics.FeedbackRecords.Add(float64(len(records)))
	s.remember(ctx, records, roster)
	return records
}

func (s *Synthesizer) remember(ctx context.Context, records []Record, roster []agent.Profile) {
	if s.mem == nil {
		return
	}
	for _, r := range records {
		ns := r.Agent
		if p, ok := agent.Find(roster, r.Agent); ok && p.ID != "" {
			ns = p.ID
		}
		err := s.mem.Add(ctx, memory.Entry{
			Namespace: ns,
			Text:      MemoryPrefix + r.Feedback,
			CreatedAt: time.Now(),
		})
		if err != nil {
			s.log.Warn("feedback not remembered", zap.String("agent", r.Agent), zap.Error(err))
		}
	}
}

type rosterLine struct {
	Name    string `json:"name"`
	Role    string `json:"role"`
	Goal    string `json:"goal"`
	Persona string `json:"persona"`
}

func buildPrompt(changes diff.ChangeSet, roster []agent.Profile, original string) string {
	lines := make([]rosterLine, 0, len(roster))
	for _, p := range roster {
		lines = append(lines, rosterLine{Name: p.Name, Role: p.Role, Goal: p.Goal, Persona: p.Persona})
	}
	agents, _ := json.MarshalIndent(lines, "", "  ")

	return fmt.Sprintf(promptTemplate,
		string(agents),
		orNone(original),
		orNone(strings.Join(changes.Deletions, "\n")),
		orNone(strings.Join(changes.Insertions, "\n")),
	)
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "없음"
	}
	return s
}
