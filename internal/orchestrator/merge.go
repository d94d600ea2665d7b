package orchestrator

import "strings"

// SectionSeparator joins merged sections.
const SectionSeparator = "\n\n---\n\n"

// MergeSections joins the contents of sections in planned order. Titles
// without content are skipped.
func MergeSections(sections []Section, contents map[string]string) string {
	parts := make([]string, 0, len(sections))
	for _, sec := range sections {
		if c, ok := contents[sec.TOC.Title]; ok {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, SectionSeparator)
}
