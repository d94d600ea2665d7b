// Package llm defines the text generation capability used by every crew and
// its Gemini and A2A backends.
package llm

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyResponse is returned when a backend produced no text.
var ErrEmptyResponse = errors.New("llm: empty response")

// Generator turns a role context and task into raw text.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Tool is a search capability bound to a single generation request.
type Tool interface {
	Name() string
	Description() string
	Call(ctx context.Context, query string) (string, error)
}

// FileSink receives binary artifacts (generated images) produced during a
// request and returns the markdown placeholder that stands for them.
type FileSink interface {
	SaveFile(name, mediaType string, data []byte) (string, error)
}

// Request is one generation call.
type Request struct {
	// Role, Goal and Persona describe the acting agent.
	Role    string
	Goal    string
	Persona string

	// Task is the instruction; ExpectedOutput describes the result format.
	Task           string
	ExpectedOutput string

	// Model is the agent's preferred model reference. Backends fall back to
	// their configured model when they cannot serve it.
	Model string

	Tools []Tool
	Files FileSink
}

// SystemPrompt renders the agent's role context.
func (r Request) SystemPrompt() string {
	var sb strings.Builder
	if r.Role != "" {
		sb.WriteString("역할: " + r.Role + "\n")
	}
	if r.Goal != "" {
		sb.WriteString("목표: " + r.Goal + "\n")
	}
	if r.Persona != "" {
		sb.WriteString("배경: " + r.Persona + "\n")
	}
	return strings.TrimSpace(sb.String())
}

// UserPrompt renders the task and expected output.
func (r Request) UserPrompt() string {
	if r.ExpectedOutput == "" {
		return r.Task
	}
	return r.Task + "\n\n[기대 출력]\n" + r.ExpectedOutput
}

// ToolNames lists the names of the bound tools.
func (r Request) ToolNames() []string {
	names := make([]string, 0, len(r.Tools))
	for _, t := range r.Tools {
		names = append(names, t.Name())
	}
	return names
}
