// Package diff compares draft content against final output and reports the
// lines that were inserted or deleted.
package diff

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// ChangeSet holds the lines a reviewer added to or removed from a draft.
type ChangeSet struct {
	Insertions []string `json:"insertions"`
	Deletions  []string `json:"deletions"`
	HasChanges bool     `json:"has_changes"`
}

// Merge appends the lines of other to c and recomputes HasChanges.
func (c *ChangeSet) Merge(other ChangeSet) {
	c.Insertions = append(c.Insertions, other.Insertions...)
	c.Deletions = append(c.Deletions, other.Deletions...)
	c.HasChanges = len(c.Insertions) > 0 || len(c.Deletions) > 0
}

// ExtractChanges computes a zero-context line diff between original and
// modified and returns the inserted and deleted lines in diff order, with the
// leading marker stripped.
func ExtractChanges(original, modified string) ChangeSet {
	if original == "" && modified == "" {
		return ChangeSet{Insertions: []string{}, Deletions: []string{}}
	}

	ud := difflib.UnifiedDiff{
		A:       splitLines(original),
		B:       splitLines(modified),
		Context: 0,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		// difflib only fails on writer errors; a strings.Builder never does.
		return ChangeSet{Insertions: []string{}, Deletions: []string{}}
	}

	cs := ChangeSet{Insertions: []string{}, Deletions: []string{}}
	inHunk := false
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			inHunk = true
		case !inHunk:
			// "---" / "+++" file headers precede the first hunk.
		case strings.HasPrefix(line, "+"):
			cs.Insertions = append(cs.Insertions, line[1:])
		case strings.HasPrefix(line, "-"):
			cs.Deletions = append(cs.Deletions, line[1:])
		}
	}
	cs.HasChanges = len(cs.Insertions) > 0 || len(cs.Deletions) > 0
	return cs
}

// splitLines splits s into newline-terminated lines. CRLF and lone CR are
// normalised to LF so the diff does not report line-ending-only changes.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return difflib.SplitLines(strings.TrimSuffix(s, "\n"))
}
