// Package embedding provides vector embedding generation for text.
package embedding

import (
	"strings"
	"unicode"
)

// Embedding represents a vector embedding of text.
type Embedding struct {
	Vector []float32 // The embedding vector (e.g., 384 dimensions for all-minilm)
}

// Dimensions returns the dimensionality of the embedding.
func (e Embedding) Dimensions() int {
	return len(e.Vector)
}

// TruncateAtSentence truncates text to at most max characters, preferring to
// cut at the last sentence boundary within the limit. If no sentence boundary
// falls in the second half of the window, the cut falls back to the last word
// boundary, then to a hard cut.
func TruncateAtSentence(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}

	window := text[:max]

	if idx := lastSentenceEnd(window); idx >= max/2 {
		return strings.TrimRightFunc(window[:idx], unicode.IsSpace)
	}
	if idx := strings.LastIndexFunc(window, unicode.IsSpace); idx >= max/2 {
		return strings.TrimRightFunc(window[:idx], unicode.IsSpace)
	}
	return window
}

// lastSentenceEnd returns the index just past the last sentence terminator
// in s, or -1 if none is found.
func lastSentenceEnd(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case '.', '!', '?':
			// Require end-of-text or trailing whitespace so decimals
			// like "v6.2" don't count as boundaries.
			if i == len(s)-1 || s[i+1] == ' ' || s[i+1] == '\n' || s[i+1] == '\t' {
				return i + 1
			}
		case '\n':
			return i + 1
		}
	}
	return -1
}
