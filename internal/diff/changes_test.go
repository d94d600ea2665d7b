package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractChanges(t *testing.T) {
	tests := []struct {
		name       string
		original   string
		modified   string
		insertions []string
		deletions  []string
	}{
		{
			name:       "replaced line",
			original:   "A\nB",
			modified:   "A\nC",
			insertions: []string{"C"},
			deletions:  []string{"B"},
		},
		{
			name:       "appended lines",
			original:   "one\ntwo",
			modified:   "one\ntwo\nthree\nfour",
			insertions: []string{"three", "four"},
			deletions:  []string{},
		},
		{
			name:       "removed first line",
			original:   "intro\nbody\nend",
			modified:   "body\nend",
			insertions: []string{},
			deletions:  []string{"intro"},
		},
		{
			name:       "original empty",
			original:   "",
			modified:   "new\ncontent",
			insertions: []string{"new", "content"},
			deletions:  []string{},
		},
		{
			name:       "modified empty",
			original:   "gone",
			modified:   "",
			insertions: []string{},
			deletions:  []string{"gone"},
		},
		{
			name:       "lines that look like headers",
			original:   "-- note",
			modified:   "++ note",
			insertions: []string{"++ note"},
			deletions:  []string{"-- note"},
		},
		{
			name:       "crlf only difference",
			original:   "a\r\nb",
			modified:   "a\nb",
			insertions: []string{},
			deletions:  []string{},
		},
		{
			name:       "lone cr separates lines",
			original:   "A\rB",
			modified:   "A\rC",
			insertions: []string{"C"},
			deletions:  []string{"B"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := ExtractChanges(tt.original, tt.modified)
			assert.Equal(t, tt.insertions, cs.Insertions)
			assert.Equal(t, tt.deletions, cs.Deletions)
			assert.Equal(t, len(tt.insertions)+len(tt.deletions) > 0, cs.HasChanges)
		})
	}
}

func TestExtractChanges_Identical(t *testing.T) {
	for _, text := range []string{"", "single", "multi\nline\ntext\n"} {
		cs := ExtractChanges(text, text)
		assert.Empty(t, cs.Insertions, "input %q", text)
		assert.Empty(t, cs.Deletions, "input %q", text)
		assert.False(t, cs.HasChanges, "input %q", text)
	}
}

func TestExtractChanges_Deterministic(t *testing.T) {
	a := "alpha\nbeta\ngamma\ndelta"
	b := "alpha\nBETA\ngamma\nepsilon\ndelta"

	first := ExtractChanges(a, b)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, ExtractChanges(a, b))
	}
	assert.Equal(t, []string{"BETA", "epsilon"}, first.Insertions)
	assert.Equal(t, []string{"beta"}, first.Deletions)
}

func TestChangeSet_Merge(t *testing.T) {
	var agg ChangeSet
	agg.Merge(ChangeSet{})
	assert.False(t, agg.HasChanges)

	agg.Merge(ChangeSet{Insertions: []string{"x"}})
	agg.Merge(ChangeSet{Deletions: []string{"y"}})
	assert.True(t, agg.HasChanges)
	assert.Equal(t, []string{"x"}, agg.Insertions)
	assert.Equal(t, []string{"y"}, agg.Deletions)
}
