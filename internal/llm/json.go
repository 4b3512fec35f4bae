package llm

import "strings"

// ExtractJSON strips a fenced code block from model output, returning the
// inner text. Models routinely wrap JSON in ```json fences even when told
// not to; the raw input is returned unchanged when no fence is found.
func ExtractJSON(raw string) string {
	s := strings.TrimSpace(raw)

	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}

	rest := s[start+3:]
	// Skip a language tag like "json" on the fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}

	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}
