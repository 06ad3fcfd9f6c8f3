package contextopt

import (
	"strings"
	"unicode/utf8"
)

// Token estimation for context budget management. The heuristic is the
// usual ~4 characters per token; it is explicitly an approximation, not a
// tokenizer, and callers must not assume exactness.
const charsPerToken = 4

// EstimateTokens estimates tokens in a string using rune count for proper
// unicode handling.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return utf8.RuneCountInString(s) / charsPerToken
}

// TruncateToTokens cuts s so its estimate fits within maxTokens. The cut
// lands on the last sentence boundary under the limit when one exists,
// otherwise the last word boundary; a word is never split. A maxTokens of
// zero or less yields the empty string.
func TruncateToTokens(s string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if EstimateTokens(s) <= maxTokens {
		return s
	}

	maxRunes := maxTokens * charsPerToken
	runes := []rune(s)
	if len(runes) > maxRunes {
		runes = runes[:maxRunes]
	}
	prefix := string(runes)

	if cut := lastSentenceBoundary(prefix); cut > 0 {
		return strings.TrimRight(prefix[:cut], " ")
	}
	if cut := strings.LastIndexAny(prefix, " \t\n"); cut > 0 {
		return strings.TrimRight(prefix[:cut], " \t\n")
	}
	return ""
}

// lastSentenceBoundary returns the byte offset just past the final
// sentence terminator in s, or 0 when there is none.
func lastSentenceBoundary(s string) int {
	best := 0
	for i, r := range s {
		switch r {
		case '.', '!', '?', '\n':
			best = i + utf8.RuneLen(r)
		}
	}
	return best
}
