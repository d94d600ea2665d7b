package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dusk-indust/formcrew/internal/config"
	"github.com/dusk-indust/formcrew/internal/llm"
	"github.com/dusk-indust/formcrew/internal/memory"
)

// KnowledgeConfig binds a memory store to the hybrid result filter.
type KnowledgeConfig struct {
	Store      memory.Store
	Threshold  float64
	MinResults int
	Limit      int
}

// NewKnowledgeConfig creates a KnowledgeConfig from the memory settings.
func NewKnowledgeConfig(store memory.Store, cfg config.MemoryConfig) *KnowledgeConfig {
	return &KnowledgeConfig{
		Store:      store,
		Threshold:  cfg.Threshold,
		MinResults: cfg.MinResults,
		Limit:      cfg.Limit,
	}
}

// For returns the knowledge search tool reading namespace.
func (c *KnowledgeConfig) For(namespace string) *KnowledgeSearch {
	return &KnowledgeSearch{cfg: c, namespace: namespace}
}

// KnowledgeSearch searches one agent's long-term memory.
type KnowledgeSearch struct {
	cfg       *KnowledgeConfig
	namespace string
}

var _ llm.Tool = (*KnowledgeSearch)(nil)

func (k *KnowledgeSearch) Name() string { return KnowledgeToolName }

func (k *KnowledgeSearch) Description() string {
	return "에이전트별 개인 지식을 검색하여 전체 결과를 반환합니다."
}

// Call searches the namespace, keeps hits scoring at least the threshold
// and falls back to the best MinResults hits when too few qualify.
func (k *KnowledgeSearch) Call(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}
	hits, err := k.cfg.Store.Search(ctx, k.namespace, query, k.cfg.Limit)
	if err != nil {
		return "", fmt.Errorf("tools: knowledge search: %w", err)
	}
	hits = FilterHits(hits, k.cfg.Threshold, k.cfg.MinResults)
	if len(hits) == 0 {
		return fmt.Sprintf("'%s'에 대한 개인 지식이 없습니다.", query), nil
	}
	items := make([]string, len(hits))
	for i, h := range hits {
		items[i] = fmt.Sprintf("개인지식 %d (관련도: %.2f)\n%s", i+1, h.Score, h.Text)
	}
	return strings.Join(items, "\n\n"), nil
}

// FilterHits sorts by descending score, keeps hits at or above threshold,
// and returns the top minResults instead when fewer than that qualify.
func FilterHits(hits []memory.Hit, threshold float64, minResults int) []memory.Hit {
	sorted := append([]memory.Hit(nil), hits...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	var kept []memory.Hit
	for _, h := range sorted {
		if h.Score >= threshold {
			kept = append(kept, h)
		}
	}
	if len(kept) < minResults {
		if len(sorted) > minResults {
			return sorted[:minResults]
		}
		return sorted
	}
	return kept
}
