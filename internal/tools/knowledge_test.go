package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/formcrew/internal/memory"
)

func TestFilterHits(t *testing.T) {
	hits := []memory.Hit{
		{Text: "a", Score: 0.2},
		{Text: "b", Score: 0.9},
		{Text: "c", Score: 0.6},
		{Text: "d", Score: 0.4},
	}

	t.Run("enough above threshold", func(t *testing.T) {
		got := FilterHits(hits, 0.5, 2)
		require.Len(t, got, 2)
		assert.Equal(t, "b", got[0].Text)
		assert.Equal(t, "c", got[1].Text)
	})
	t.Run("minimum guaranteed", func(t *testing.T) {
		got := FilterHits(hits, 0.5, 3)
		require.Len(t, got, 3)
		assert.Equal(t, []string{"b", "c", "d"}, []string{got[0].Text, got[1].Text, got[2].Text})
	})
	t.Run("fewer than minimum available", func(t *testing.T) {
		assert.Len(t, FilterHits(hits, 0.95, 10), 4)
	})
	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, FilterHits(nil, 0.5, 5))
	})
}

func TestKnowledgeSearch_Call(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemStore()
	require.NoError(t, store.Add(ctx, memory.Entry{Namespace: "agent-1", Text: "매출 목표 10억"}))
	require.NoError(t, store.Add(ctx, memory.Entry{Namespace: "agent-2", Text: "매출 자료"}))

	cfg := &KnowledgeConfig{Store: store, Threshold: 0.5, MinResults: 5, Limit: 20}
	tool := cfg.For("agent-1")
	assert.Equal(t, "mem0", tool.Name())

	out, err := tool.Call(ctx, "매출 목표")
	require.NoError(t, err)
	assert.Equal(t, "개인지식 1 (관련도: 1.00)\n매출 목표 10억", out)

	out, err = tool.Call(ctx, "채용")
	require.NoError(t, err)
	assert.Equal(t, "'채용'에 대한 개인 지식이 없습니다.", out)

	_, err = tool.Call(ctx, "  ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}
