// Package transcript assembles recognized chunks into clipboard-ready text.
package transcript

import "strings"

// Options controls transcript assembly formatting behavior.
type Options struct {
	TrailingSpace bool
}

// Assemble joins transcript chunks in order and normalizes whitespace.
// Casing and punctuation arrive already formatted from the recognizer.
func Assemble(chunks []string, opts Options) string {
	if len(chunks) == 0 {
		return ""
	}

	joined := strings.Join(chunks, " ")
	normalized := strings.Join(strings.Fields(joined), " ")
	if normalized == "" {
		return ""
	}

	if opts.TrailingSpace {
		return normalized + " "
	}
	return normalized
}

// Preview shortens assembled text for status output, cutting on a rune
// boundary and appending an ellipsis when truncated.
func Preview(text string, limit int) string {
	text = strings.TrimSpace(text)
	if limit <= 0 {
		return ""
	}

	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}
