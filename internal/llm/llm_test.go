package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubTool struct {
	name string
	out  string
	err  error
	got  []string
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return s.name + " search" }
func (s *stubTool) Call(_ context.Context, q string) (string, error) {
	s.got = append(s.got, q)
	return s.out, s.err
}

type memSink struct {
	files map[string][]byte
}

func (m *memSink) SaveFile(name, _ string, data []byte) (string, error) {
	if m.files == nil {
		m.files = map[string][]byte{}
	}
	m.files[name] = data
	return "![" + name + "](image://" + name + ")", nil
}

func TestRequest_Prompts(t *testing.T) {
	req := Request{
		Role:           "리서처",
		Goal:           "자료 조사",
		Task:           "시장 분석",
		ExpectedOutput: "마크다운 보고서",
		Tools:          []Tool{&stubTool{name: "mem0"}, &stubTool{name: "memento"}},
	}
	assert.Equal(t, "역할: 리서처\n목표: 자료 조사", req.SystemPrompt())
	assert.Equal(t, "시장 분석\n\n[기대 출력]\n마크다운 보고서", req.UserPrompt())
	assert.Equal(t, []string{"mem0", "memento"}, req.ToolNames())

	assert.Equal(t, "only task", Request{Task: "only task"}.UserPrompt())
	assert.Empty(t, Request{}.SystemPrompt())
}

func TestGeneratorFunc(t *testing.T) {
	g := GeneratorFunc(func(_ context.Context, req Request) (string, error) {
		return "echo:" + req.Task, nil
	})
	out, err := g.Generate(context.Background(), Request{Task: "x"})
	assert.NoError(t, err)
	assert.Equal(t, "echo:x", out)
}
