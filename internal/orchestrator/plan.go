package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dusk-indust/formcrew/internal/agent"
	"github.com/dusk-indust/formcrew/internal/llm"
	"github.com/dusk-indust/formcrew/internal/store"
)

// ErrPlan marks a failed execution plan.
var ErrPlan = errors.New("orchestrator: execution plan failed")

// PlanJobID is the job id of the planning unit.
const PlanJobID = "execution_plan"

var plannerAgent = agent.Profile{
	ID:      "execution_planner",
	Name:    "실행 계획 전문가",
	Role:    "폼 종속성 분석가",
	Goal:    "폼 조합을 분석해 리포트, 슬라이드, 텍스트 생성 순서와 종속성을 결정",
	Persona: "여러 산출물이 서로를 입력으로 쓰는 관계를 빠르게 파악하고 불필요한 작업을 만들지 않는다.",
	Profile: "/images/chat-icon.png",
}

const planTemplate = `주제와 폼 목록을 보고 산출물 생성 계획을 세우세요.

[주제]
%s

[폼 목록]
%s

[계획 규칙]
- type이 report인 폼은 report_phase, slide인 폼은 slide_phase, 나머지는 text_phase에 배치합니다.
- type이 default인 폼 하나만 있으면 report_phase에 배치합니다.
- 슬라이드와 텍스트 폼은 내용의 근거가 되는 리포트 키를 dependencies에 적습니다.
- 근거가 될 리포트가 없으면 dependencies를 빈 배열로 둡니다.
- 폼 목록에 없는 키를 만들지 않습니다.`

const planExpectedOutput = `JSON 객체만 출력합니다.
{"execution_plan": {
  "report_phase": {"forms": [{"key": "리포트키", "type": "report", "dependencies": []}], "strategy": "parallel"},
  "slide_phase": {"forms": [{"key": "슬라이드키", "type": "slide", "dependencies": ["리포트키"]}]},
  "text_phase": {"forms": [{"key": "텍스트키", "type": "text", "dependencies": ["리포트키"]}]}
}}`

// Planner produces the execution plan of a work item.
type Planner struct {
	exec *agent.Executor
	log  *zap.Logger
}

// NewPlanner creates a Planner.
func NewPlanner(exec *agent.Executor, log *zap.Logger) *Planner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Planner{exec: exec, log: log}
}

// Plan asks the generator for an execution plan. Any failure wraps ErrPlan.
func (p *Planner) Plan(ctx context.Context, topic string, forms []store.FormType) (*ExecutionPlan, error) {
	catalog, err := json.Marshal(forms)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlan, err)
	}

	raw, err := p.exec.Run(agent.WithCrewType(ctx, agent.CrewPlanning), agent.Unit{
		JobID: PlanJobID,
		Agent: plannerAgent,
		Task: agent.Task{
			Description:    fmt.Sprintf(planTemplate, topic, string(catalog)),
			ExpectedOutput: planExpectedOutput,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlan, err)
	}
	return ParsePlan(raw)
}

// ParsePlan decodes a planner response. Missing phases are empty.
func ParsePlan(raw string) (*ExecutionPlan, error) {
	var envelope struct {
		Plan *ExecutionPlan `json:"execution_plan"`
	}
	if err := llm.DecodeJSON(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlan, err)
	}
	if envelope.Plan == nil {
		return &ExecutionPlan{}, nil
	}
	return envelope.Plan, nil
}

// ReportKeys returns the report form keys in plan order.
func (p *ExecutionPlan) ReportKeys() []string {
	keys := make([]string, 0, len(p.Report.Forms))
	for _, f := range p.Report.Forms {
		if f.Key != "" {
			keys = append(keys, f.Key)
		}
	}
	return keys
}
