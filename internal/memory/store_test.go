package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/formcrew/internal/config"
)

func TestKeywords(t *testing.T) {
	assert.Equal(t, []string{"매출", "목표는", "10억"}, Keywords("매출, 목표는 10억! 매출"))
	assert.Empty(t, Keywords("  ,.  "))
}

func TestScore(t *testing.T) {
	assert.InDelta(t, 1.0, Score("매출 목표", "올해 매출은 목표 대비 120%"), 1e-9)
	assert.InDelta(t, 0.5, Score("매출 인력", "매출 증가"), 1e-9)
	assert.Zero(t, Score("인력", "매출 증가"))
	assert.Zero(t, Score("", "anything"))
	assert.InDelta(t, 1.0, Score("Revenue", "REVENUE grew"), 1e-9)
}

func TestMemStore_SearchRanksAndLimits(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Add(ctx, Entry{Namespace: "a1", Text: "매출 목표 10억", CreatedAt: base}))
	require.NoError(t, s.Add(ctx, Entry{Namespace: "a1", Text: "매출 감소 원인", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, s.Add(ctx, Entry{Namespace: "a1", Text: "채용 계획", CreatedAt: base}))
	require.NoError(t, s.Add(ctx, Entry{Namespace: "a2", Text: "매출 목표 다른 에이전트", CreatedAt: base}))

	hits, err := s.Search(ctx, "a1", "매출 목표", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "매출 목표 10억", hits[0].Text)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.Equal(t, "매출 감소 원인", hits[1].Text)

	hits, err = s.Search(ctx, "a1", "매출", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "매출 감소 원인", hits[0].Text, "newer entry wins a tie")

	hits, err = s.Search(ctx, "nobody", "매출", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemStore_AddValidates(t *testing.T) {
	s := NewMemStore()
	assert.Error(t, s.Add(context.Background(), Entry{Text: "x"}))

	require.NoError(t, s.Add(context.Background(), Entry{Namespace: "n", Text: "x"}))
	assert.Equal(t, 1, s.Len("n"))
}

func TestOpen(t *testing.T) {
	s, err := Open(config.MemoryConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemStore{}, s)

	_, err = Open(config.MemoryConfig{Backend: "redis"})
	assert.Error(t, err)
}
