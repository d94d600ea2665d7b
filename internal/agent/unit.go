package agent

import (
	"context"
	"fmt"

	"github.com/dusk-indust/formcrew/internal/llm"
)

// Unit is one agent task ready to run.
type Unit struct {
	// JobID identifies the unit on emitted events.
	JobID string
	Agent Profile
	Task  Task
	Tools []llm.Tool
	Files llm.FileSink
}

// Hooks observe unit and tool lifecycles. Any hook may be nil.
type Hooks struct {
	Started      func(ctx context.Context, u *Unit)
	Completed    func(ctx context.Context, u *Unit, output string, err error)
	ToolStarted  func(ctx context.Context, u *Unit, tool, query string)
	ToolFinished func(ctx context.Context, u *Unit, tool, query string, err error)
}

// Executor runs units against a generator.
type Executor struct {
	gen   llm.Generator
	hooks Hooks
}

// NewExecutor creates an Executor.
func NewExecutor(gen llm.Generator, hooks Hooks) *Executor {
	return &Executor{gen: gen, hooks: hooks}
}

// Run executes u: Started, generation with observed tools, Completed.
func (e *Executor) Run(ctx context.Context, u Unit) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if e.hooks.Started != nil {
		e.hooks.Started(ctx, &u)
	}

	tools := make([]llm.Tool, len(u.Tools))
	for i, t := range u.Tools {
		tools[i] = &observedTool{Tool: t, unit: &u, hooks: e.hooks}
	}
	out, err := e.gen.Generate(ctx, llm.Request{
		Role:           u.Agent.Role,
		Goal:           u.Agent.Goal,
		Persona:        u.Agent.Persona,
		Task:           u.Task.Description,
		ExpectedOutput: u.Task.ExpectedOutput,
		Model:          u.Agent.Model,
		Tools:          tools,
		Files:          u.Files,
	})
	if err != nil {
		err = fmt.Errorf("agent %s: %w", u.Agent.Name, err)
	}
	if e.hooks.Completed != nil {
		e.hooks.Completed(ctx, &u, out, err)
	}
	return out, err
}

type observedTool struct {
	llm.Tool
	unit  *Unit
	hooks Hooks
}

func (t *observedTool) Call(ctx context.Context, query string) (string, error) {
	if t.hooks.ToolStarted != nil {
		t.hooks.ToolStarted(ctx, t.unit, t.Name(), query)
	}
	out, err := t.Tool.Call(ctx, query)
	if t.hooks.ToolFinished != nil {
		t.hooks.ToolFinished(ctx, t.unit, t.Name(), query, err)
	}
	return out, err
}
