package textutil

import "strings"

// Truncate cuts s to at most n runes, ending with an ellipsis when cut.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

// FirstLine returns the first non-blank line of text, trimmed and cut to
// width runes.
func FirstLine(text string, width int) string {
	for line := range strings.SplitSeq(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return Truncate(line, width)
		}
	}
	return ""
}
