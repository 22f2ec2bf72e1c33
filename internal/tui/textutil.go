package tui

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// truncateEnd shortens s to at most limit terminal cells, appending an
// ellipsis if truncation occurs.
func truncateEnd(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= limit {
		return s
	}
	if limit <= 1 {
		return "…"
	}
	return runewidth.Truncate(s, limit, "…")
}

// truncateMiddle keeps both ends of s with a single ellipsis in between.
// Useful for URLs where both ends carry meaning.
func truncateMiddle(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(s)
	n := len(r)
	if n <= limit {
		return s
	}
	if limit <= 1 {
		return "…"
	}
	keep := limit - 1
	left := keep / 2
	right := keep - left
	if left <= 0 {
		return "…" + string(r[n-right:])
	}
	return string(r[:left]) + "…" + string(r[n-right:])
}

// padRight pads s with spaces to width cells.
func padRight(s string, width int) string {
	return runewidth.FillRight(truncateEnd(s, width), width)
}

// splitFeeds parses the feed field of the job form. Commas, spaces and
// newlines all separate entries.
func splitFeeds(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// sanitizeQuery collapses whitespace and limits a typed query to 256 bytes.
func sanitizeQuery(input string) string {
	input = strings.Join(strings.Fields(input), " ")
	if len(input) > 256 {
		input = strings.TrimSpace(input[:256])
	}
	return input
}
