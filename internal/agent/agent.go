// Package agent holds agent profiles, the roster used when no agents are
// configured, the per-flow crew context and the execution unit that runs one
// agent task against a generator.
package agent

import (
	"strings"
)

// Profile describes an agent as stored in the users table.
type Profile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role"`
	Goal        string `json:"goal"`
	Persona     string `json:"persona"`
	Description string `json:"description,omitempty"`
	Tools       string `json:"tools"`
	Model       string `json:"model,omitempty"`
	Profile     string `json:"profile,omitempty"`
	IsAgent     bool   `json:"is_agent"`
}

// ToolNames splits the comma separated tool list.
func (p Profile) ToolNames() []string {
	var out []string
	for _, t := range strings.Split(p.Tools, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Task is an instruction for one agent.
type Task struct {
	Description    string `json:"description"`
	ExpectedOutput string `json:"expected_output"`
}

// FallbackRoster returns the six archetype agents used when the directory
// has none.
func FallbackRoster() []Profile {
	return []Profile{
		{
			ID: "fallback_1", Name: "리서처", Role: "researcher",
			Goal:        "정보를 조사하고 분석합니다",
			Persona:     "꼼꼼하고 분석적인 연구원",
			Description: "다양한 소스에서 정보를 수집하고 분석하는 전문가",
			Tools:       "mem0", Profile: "정보수집 및 분석 전문가",
		},
		{
			ID: "fallback_2", Name: "분석가", Role: "analyst",
			Goal:        "데이터를 분석하고 인사이트를 제공합니다",
			Persona:     "논리적이고 체계적인 분석 전문가",
			Description: "복잡한 정보를 분석하여 명확한 결론을 도출하는 전문가",
			Tools:       "mem0", Profile: "데이터 분석 및 인사이트 전문가",
		},
		{
			ID: "fallback_3", Name: "작성자", Role: "writer",
			Goal:        "명확하고 이해하기 쉬운 글을 작성합니다",
			Persona:     "창의적이고 소통에 능한 작가",
			Description: "복잡한 내용을 쉽고 명확하게 전달하는 글쓰기 전문가",
			Tools:       "mem0", Profile: "콘텐츠 작성 및 편집 전문가",
		},
		{
			ID: "fallback_4", Name: "검토자", Role: "reviewer",
			Goal:        "내용을 검토하고 품질을 개선합니다",
			Persona:     "세심하고 비판적 사고를 하는 검토자",
			Description: "작성된 내용의 정확성과 품질을 검증하는 전문가",
			Tools:       "mem0", Profile: "품질 검토 및 개선 전문가",
		},
		{
			ID: "fallback_5", Name: "기획자", Role: "planner",
			Goal:        "전략을 수립하고 계획을 세웁니다",
			Persona:     "체계적이고 전략적 사고를 하는 기획자",
			Description: "목표 달성을 위한 체계적인 계획을 수립하는 전문가",
			Tools:       "mem0", Profile: "전략 수립 및 기획 전문가",
		},
		{
			ID: "fallback_6", Name: "전문가", Role: "expert",
			Goal:        "전문 지식을 제공하고 자문합니다",
			Persona:     "경험이 풍부하고 지식이 해박한 전문가",
			Description: "해당 분야의 깊은 전문 지식을 바탕으로 조언하는 전문가",
			Tools:       "mem0", Profile: "분야별 전문 지식 자문가",
		},
	}
}

// Find returns the profile whose id or name equals key.
func Find(roster []Profile, key string) (Profile, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Profile{}, false
	}
	for _, p := range roster {
		if p.ID == key {
			return p, true
		}
	}
	for _, p := range roster {
		if p.Name == key {
			return p, true
		}
	}
	return Profile{}, false
}
