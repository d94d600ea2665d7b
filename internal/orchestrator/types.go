// Package orchestrator plans and runs the multi-format generation flow for
// one work item: execution planning, section matching, concurrent section
// generation, report merging, slides, texts and final persistence.
package orchestrator

import (
	"encoding/json"
	"strings"

	"github.com/dusk-indust/formcrew/internal/agent"
)

// FormDescriptor is one planned output artifact.
type FormDescriptor struct {
	Key          string   `json:"key"`
	Type         string   `json:"type,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Strategy     string   `json:"strategy,omitempty"`
}

// DependsOn reports whether key is one of the form's dependencies.
func (f FormDescriptor) DependsOn(key string) bool {
	for _, d := range f.Dependencies {
		if d == key {
			return true
		}
	}
	return false
}

// PlanPhase lists the forms produced in one phase of the plan.
type PlanPhase struct {
	Forms    []FormDescriptor `json:"forms"`
	Strategy string           `json:"strategy,omitempty"`
}

// ExecutionPlan is the planner's output.
type ExecutionPlan struct {
	Report PlanPhase `json:"report_phase"`
	Slide  PlanPhase `json:"slide_phase"`
	Text   PlanPhase `json:"text_phase"`
}

// TOC is a section's table-of-contents entry.
type TOC struct {
	Title string `json:"title"`
	Order int    `json:"order"`
}

// SectionAgent is the agent assigned to a section.
type SectionAgent struct {
	AgentID   string   `json:"agent_id"`
	Name      string   `json:"name,omitempty"`
	Role      string   `json:"role,omitempty"`
	Goal      string   `json:"goal,omitempty"`
	Persona   string   `json:"persona,omitempty"`
	Model     string   `json:"model,omitempty"`
	Profile   string   `json:"agent_profile,omitempty"`
	TenantID  string   `json:"tenant_id,omitempty"`
	ToolNames ToolList `json:"tool_names,omitempty"`
}

// AsProfile converts the assignment back to an agent profile.
func (a SectionAgent) AsProfile() agent.Profile {
	return agent.Profile{
		ID:      a.AgentID,
		Name:    a.Name,
		Role:    a.Role,
		Goal:    a.Goal,
		Persona: a.Persona,
		Model:   a.Model,
		Profile: a.Profile,
		Tools:   strings.Join(a.ToolNames, ","),
		IsAgent: true,
	}
}

// Section is one table-of-contents entry with its agent and task.
type Section struct {
	TOC   TOC          `json:"toc"`
	Agent SectionAgent `json:"agent"`
	Task  agent.Task   `json:"task"`
}

// ToolList decodes either a JSON array of names or a comma separated string.
type ToolList []string

func (t *ToolList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*t = out
	return nil
}
