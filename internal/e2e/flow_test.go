package e2e

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/formcrew/internal/agent"
	"github.com/dusk-indust/formcrew/internal/events"
	"github.com/dusk-indust/formcrew/internal/feedback"
	"github.com/dusk-indust/formcrew/internal/status"
	"github.com/dusk-indust/formcrew/internal/store"
)

func TestWorkItem_DraftLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.enqueue(t, "t1", time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	claimed, err := h.todo.Poll(ctx)
	require.NoError(t, err)
	require.True(t, claimed)

	item, err := h.store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, store.DraftCompleted, item.DraftStatus)
	assert.Equal(t, store.StatusInProgress, item.Status)
	assert.Equal(t, status.StageDraft, status.StageOf(item))

	draft := draftOf(t, item)
	assert.Equal(t, map[string]any{
		"report_1": "## 1. 개요\n개요 본문\n\n---\n\n## 2. 실적\n실적 본문",
	}, draft["reports"])
	assert.Equal(t, map[string]any{"slide_1": "# 주간 보고 슬라이드"}, draft["slides"])
	assert.Equal(t, map[string]any{"memo": "요약 메모"}, draft["texts"])

	assert.Equal(t, 2, h.gen.count(agent.CrewPlanning), "planner and matcher")
	assert.Equal(t, 2, h.gen.count(agent.CrewReport))
	assert.Equal(t, 1, h.gen.count(agent.CrewSlide))
	assert.Equal(t, 1, h.gen.count(agent.CrewText))
	assert.Zero(t, h.gen.count(agent.CrewSummary), "no finished siblings yet")

	finished := h.events.ofType(events.CrewCompleted)
	require.Len(t, finished, 1)
	assert.Equal(t, events.FinishedJobID, finished[0].JobID)
	assert.Equal(t, "t1", finished[0].TodoID)
	assert.Equal(t, procID, finished[0].ProcInstID)
	assert.NotEmpty(t, h.events.ofType(events.TaskStarted))
	assert.NotEmpty(t, h.events.ofType(events.ToolUsageStarted), "sections searched memory")

	claimed, err = h.todo.Poll(ctx)
	require.NoError(t, err)
	assert.False(t, claimed, "a completed draft is not claimed again")
}

func TestWorkItem_FeedbackReachesNextDraft(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.enqueue(t, "t1", time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	_, err := h.todo.Poll(ctx)
	require.NoError(t, err)

	h.review(t, "t1", "## 1. 개요\n개요 본문\n\n---\n\n## 2. 실적\n| 항목 | 값 |\n| 매출 | 10 |")

	claimed, err := h.feedback.Poll(ctx)
	require.NoError(t, err)
	require.True(t, claimed)
	assert.Equal(t, 1, h.gen.count(agent.CrewFeedback))

	item, err := h.store.Get(ctx, "t1")
	require.NoError(t, err)
	var records []feedback.Record
	require.NoError(t, json.Unmarshal(item.Feedback, &records))
	assert.Equal(t, []feedback.Record{{Agent: agentTag, Feedback: "실적 수치는 표로 정리하세요"}}, records)
	assert.Equal(t, status.StageReviewed, status.StageOf(item))

	hits, err := h.mem.Search(ctx, agentID, "표로 정리", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, feedback.MemoryPrefix+"실적 수치는 표로 정리하세요", hits[0].Text)

	claimed, err = h.feedback.Poll(ctx)
	require.NoError(t, err)
	assert.False(t, claimed, "feedback is claimed once")

	// The next item of the process sees the finished sibling and the
	// remembered feedback.
	h.enqueue(t, "t2", time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC))
	claimed, err = h.todo.Poll(ctx)
	require.NoError(t, err)
	require.True(t, claimed)

	assert.Equal(t, 2, h.gen.count(agent.CrewSummary), "outputs and feedback summarized")

	next, err := h.store.Get(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, store.DraftCompleted, next.DraftStatus)
	reports, ok := draftOf(t, next)["reports"].(map[string]any)
	require.True(t, ok)
	report, ok := reports["report_1"].(string)
	require.True(t, ok)
	assert.Contains(t, report, "개인지식 1")
	assert.Contains(t, report, "실적 수치는 표로 정리하세요")
}

func TestWorkItem_CancelledByUser(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.enqueue(t, "t1", time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	// Cancel while the plan is being generated and hold the planner until
	// the watcher notices.
	block := make(chan struct{})
	h.gen.hook = func(ctx context.Context, crew string) {
		if crew != agent.CrewPlanning {
			return
		}
		_, err := h.store.DB().Exec(`UPDATE todolist SET draft_status = 'CANCELLED' WHERE id = 't1'`)
		require.NoError(t, err)
		select {
		case <-ctx.Done():
		case <-block:
		}
	}
	defer close(block)

	claimed, err := h.todo.Poll(ctx)
	require.NoError(t, err)
	require.True(t, claimed)

	item, err := h.store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, store.DraftCancelled, item.DraftStatus)
	assert.Empty(t, h.events.ofType(events.CrewCompleted))
	assert.Zero(t, h.gen.count(agent.CrewReport))
}
