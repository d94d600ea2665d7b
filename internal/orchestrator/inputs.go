package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dusk-indust/formcrew/internal/agent"
	"github.com/dusk-indust/formcrew/internal/store"
)

// Inputs seed one flow run. They are also the JSON accepted by
// "formcrew worker --inputs".
type Inputs struct {
	TodoID     string           `json:"todo_id,omitempty"`
	ProcInstID string           `json:"proc_inst_id,omitempty"`
	TenantID   string           `json:"tenant_id,omitempty"`
	Topic      string           `json:"topic"`
	Query      string           `json:"query,omitempty"`
	FormID     string           `json:"form_id,omitempty"`
	FormTypes  []store.FormType `json:"form_types"`
	UserInfo   []store.UserInfo `json:"user_info,omitempty"`
	AgentInfo  []agent.Profile  `json:"agent_info,omitempty"`
}

// ParseInputs decodes worker inputs.
func ParseInputs(data []byte) (Inputs, error) {
	var in Inputs
	if err := json.Unmarshal(data, &in); err != nil {
		return Inputs{}, fmt.Errorf("parse inputs: %w", err)
	}
	if in.Topic == "" {
		return Inputs{}, fmt.Errorf("parse inputs: topic is required")
	}
	return in, nil
}

// LoadInputs builds the inputs of a claimed work item from the directory:
// participants split into users and prioritized agents, and the form
// catalog of the item's tool.
func LoadInputs(ctx context.Context, dir store.Directory, item *store.WorkItem) (Inputs, error) {
	in := Inputs{
		TodoID:     item.ID,
		ProcInstID: item.ProcInstID,
		TenantID:   item.TenantID,
		Topic:      item.ActivityName,
		Query:      item.Query,
	}

	participants, err := dir.FetchParticipants(ctx, item.UserID)
	if err != nil {
		return Inputs{}, fmt.Errorf("load inputs %s: %w", item.ID, err)
	}
	in.UserInfo = participants.Users
	in.AgentInfo = participants.Agents

	formID, types, err := dir.FetchFormTypes(ctx, item.Tool, item.TenantID)
	if err != nil {
		return Inputs{}, fmt.Errorf("load inputs %s: %w", item.ID, err)
	}
	in.FormID = formID
	in.FormTypes = types
	return in, nil
}
