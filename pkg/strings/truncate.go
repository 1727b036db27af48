// Package strings holds small text helpers for terminal output.
package strings

import (
	"strings"
)

// MinTruncateLen is the smallest width Truncate accepts. Smaller values are
// raised to it so that one character survives next to the ellipsis.
const MinTruncateLen = 4

// Truncate collapses all whitespace runs in s (newlines included) to single
// spaces and cuts the result to maxLen runes, ending it with "..." when it
// was cut. Multi-line error messages become a single table cell this way.
func Truncate(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
