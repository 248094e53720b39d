// Package strings holds string helpers shared by the console outputs.
package strings

import (
	"strings"
)

// DefaultColumnWidth is the width of free text columns in tables.
const DefaultColumnWidth = 60

// minWidth leaves room for one character plus the ellipsis.
const minWidth = 4

// Truncate collapses s onto one line and cuts it to at most width runes,
// marking a cut with "...". Widths below four are raised to four.
func Truncate(s string, width int) string {
	if width < minWidth {
		width = minWidth
	}
	s = OneLine(s)
	runes := []rune(s)
	if len(runes) > width {
		return string(runes[:width-3]) + "..."
	}
	return s
}

// OneLine replaces every run of whitespace, newlines included, by a single
// space.
func OneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
