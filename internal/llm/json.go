package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("(?is)```(?:json)?[\r\n]+(.*?)[\r\n]+```")

// CleanJSON removes a markdown code fence around a model response. The first
// fenced block wins; otherwise a response that starts and ends with a fence
// loses its first and last lines. Anything else is returned unchanged.
func CleanJSON(raw string) string {
	if m := fenceRe.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	stripped := strings.TrimSpace(raw)
	if strings.HasPrefix(stripped, "```") && strings.HasSuffix(stripped, "```") {
		lines := strings.Split(stripped, "\n")
		if len(lines) < 2 {
			return ""
		}
		return strings.Join(lines[1:len(lines)-1], "\n")
	}
	return raw
}

// DecodeJSON cleans raw and unmarshals it into v.
func DecodeJSON(raw string, v any) error {
	if err := json.Unmarshal([]byte(CleanJSON(raw)), v); err != nil {
		return fmt.Errorf("llm: decode json response: %w", err)
	}
	return nil
}
