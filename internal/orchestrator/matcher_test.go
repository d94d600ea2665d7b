package orchestrator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/formcrew/internal/agent"
	"github.com/dusk-indust/formcrew/internal/llm"
)

func TestParseSections(t *testing.T) {
	arr := `[{"toc":{"title":"개요","order":1},"agent":{"agent_id":"a1","tool_names":"mem0, memento"},"task":{"description":"d"}}]`
	secs, err := ParseSections(arr)
	require.NoError(t, err)
	require.Len(t, secs, 1)
	assert.Equal(t, ToolList{"mem0", "memento"}, secs[0].Agent.ToolNames)

	obj := "```json\n{\"sections\":[{\"toc\":{\"title\":\"개요\"},\"agent\":{\"agent_id\":\"a1\",\"tool_names\":[\"mem0\"]}}]}\n```"
	secs, err = ParseSections(obj)
	require.NoError(t, err)
	assert.Equal(t, ToolList{"mem0"}, secs[0].Agent.ToolNames)

	_, err = ParseSections(`{"sections":[]}`)
	assert.ErrorIs(t, err, ErrMatch)
	_, err = ParseSections("목차를 만들 수 없습니다")
	assert.ErrorIs(t, err, ErrMatch)
}

func TestResolveSections(t *testing.T) {
	roster := []agent.Profile{{ID: "a1", Name: "리서처", Role: "researcher", Goal: "g", Persona: "p", Tools: "mem0,web"}}
	secs := []Section{
		{TOC: TOC{Title: "개요"}, Agent: SectionAgent{AgentID: "a1", ToolNames: ToolList{"memento", "mem0"}}},
		{TOC: TOC{Title: "개요", Order: 7}, Agent: SectionAgent{AgentID: "리서처"}},
		{TOC: TOC{Title: "  "}, Agent: SectionAgent{AgentID: "ghost", Name: "유령"}},
	}

	got := resolveSections(secs, roster)
	assert.Equal(t, "개요", got[0].TOC.Title)
	assert.Equal(t, 1, got[0].TOC.Order)
	assert.Equal(t, "researcher", got[0].Agent.Role)
	assert.Equal(t, ToolList{"mem0", "web", "memento"}, got[0].Agent.ToolNames)

	assert.Equal(t, "개요 (2)", got[1].TOC.Title)
	assert.Equal(t, 7, got[1].TOC.Order)
	assert.Equal(t, "a1", got[1].Agent.AgentID)

	assert.Equal(t, "unknown", got[2].TOC.Title)
	assert.Equal(t, "유령", got[2].Agent.Name, "unknown agents keep the matcher's assignment")
}

func TestMatcher_PrioritizedAgentsOnly(t *testing.T) {
	var task string
	exec := executor(func(_ context.Context, req llm.Request) (string, error) {
		task = req.Task
		return `{"sections":[{"toc":{"title":"시장 분석","order":1},"agent":{"agent_id":"p1"},"task":{"description":"시장 규모"}}]}`, nil
	})
	prioritized := []agent.Profile{{ID: "p1", Name: "담당 분석가", Role: "analyst", Goal: "g", Persona: "p", Tools: "mem0"}}

	secs, err := NewMatcher(exec, agent.NewCatalog(nil, nil), nil).Match(context.Background(), MatchInput{
		ReportKey:   "r1",
		Topic:       "분기 보고",
		Prioritized: prioritized,
	})
	require.NoError(t, err)
	require.Len(t, secs, 1)
	assert.Equal(t, "담당 분석가", secs[0].Agent.Name)
	assert.True(t, strings.Contains(task, `"agent_id": "p1"`))
	assert.False(t, strings.Contains(task, "fallback_1"), "fallback roster must not be offered when agents are prioritized")
}

func TestMatcher_FallbackRosterWithoutDirectory(t *testing.T) {
	var task string
	exec := executor(func(_ context.Context, req llm.Request) (string, error) {
		task = req.Task
		return `[{"toc":{"title":"개요"},"agent":{"agent_id":"fallback_3"}}]`, nil
	})
	secs, err := NewMatcher(exec, nil, nil).Match(context.Background(), MatchInput{ReportKey: "r1", Topic: "t"})
	require.NoError(t, err)
	assert.Equal(t, "writer", secs[0].Agent.Role)
	assert.True(t, strings.Contains(task, "fallback_6"))
}
