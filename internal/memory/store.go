// Package memory is the long-term agent memory behind the knowledge search
// tool. Entries are namespaced by agent id and ranked by keyword overlap.
package memory

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode"
)

// Entry is one remembered piece of text.
type Entry struct {
	Namespace string
	Text      string
	CreatedAt time.Time
}

// Hit is a search result with its relevance in [0, 1].
type Hit struct {
	Text      string
	Score     float64
	CreatedAt time.Time
}

// Store persists and searches agent memories.
type Store interface {
	Add(ctx context.Context, e Entry) error
	// Search returns hits in namespace ordered by descending score. Entries
	// sharing no keyword with query are omitted.
	Search(ctx context.Context, namespace, query string, limit int) ([]Hit, error)
	Close() error
}

// Score is the fraction of query keywords that occur in text. Keywords are
// matched as substrings so that Korean particles do not hide a match.
func Score(query, text string) float64 {
	terms := Keywords(query)
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	matched := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

// Keywords lowercases s and splits it on anything that is not a letter or
// digit, dropping duplicates.
func Keywords(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// rank scores entries against query and keeps the best limit. Newer entries
// win ties.
func rank(entries []Entry, query string, limit int) []Hit {
	hits := make([]Hit, 0, len(entries))
	for _, e := range entries {
		if s := Score(query, e.Text); s > 0 {
			hits = append(hits, Hit{Text: e.Text, Score: s, CreatedAt: e.CreatedAt})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].CreatedAt.After(hits[j].CreatedAt)
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}
