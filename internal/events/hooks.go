package events

import (
	"context"

	"github.com/dusk-indust/formcrew/internal/agent"
)

// UnitHooks maps agent unit lifecycles onto task and tool events.
func UnitHooks(sink Sink) agent.Hooks {
	return agent.Hooks{
		Started: func(ctx context.Context, u *agent.Unit) {
			sink.Emit(ctx, New(ctx, TaskStarted, u.JobID, map[string]any{
				"role":          u.Agent.Role,
				"goal":          u.Agent.Goal,
				"agent_profile": u.Agent.Profile,
				"name":          u.Agent.Name,
			}))
		},
		Completed: func(ctx context.Context, u *agent.Unit, output string, err error) {
			data := map[string]any{"final_result": output}
			if err != nil {
				data["error"] = err.Error()
			}
			sink.Emit(ctx, New(ctx, TaskCompleted, u.JobID, data))
		},
		ToolStarted: func(ctx context.Context, u *agent.Unit, tool, query string) {
			sink.Emit(ctx, New(ctx, ToolUsageStarted, u.JobID, map[string]any{"tool_name": tool, "query": query}))
		},
		ToolFinished: func(ctx context.Context, u *agent.Unit, tool, query string, err error) {
			data := map[string]any{"tool_name": tool, "query": query}
			if err != nil {
				data["error"] = err.Error()
			}
			sink.Emit(ctx, New(ctx, ToolUsageFinished, u.JobID, data))
		},
	}
}
