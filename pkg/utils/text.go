// Package utils holds small helpers shared across kansa packages.
package utils

import (
	"strings"
	"unicode/utf8"
)

// Truncate cuts s to at most maxLen runes and marks the cut with "...".
// A non-positive maxLen leaves s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}

// Preview flattens s to a single line and truncates it for log fields.
func Preview(s string, maxLen int) string {
	return Truncate(strings.Join(strings.Fields(s), " "), maxLen)
}
