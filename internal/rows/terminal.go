package rows

import (
	"strings"
	"unicode"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/reflow/wordwrap"
)

// SafeText makes a backend string safe to print on a terminal: escape
// sequences and control characters other than newline and tab are removed.
func SafeText(s string) string {
	s = ansi.Strip(s)
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// SafeLine is SafeText collapsed onto a single line.
func SafeLine(s string) string {
	return strings.Join(strings.Fields(SafeText(s)), " ")
}

// ContentMarkdown converts sanitized content HTML to markdown for the
// terminal renderer. On conversion failure the tags are dropped instead.
func ContentMarkdown(html string) string {
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		md = ContentPolicyStrict(html)
	}
	return strings.TrimSpace(SafeText(md))
}

// Wrap word-wraps text to width. Width <= 0 leaves text as is.
func Wrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	return wordwrap.String(text, width)
}

// Truncate shortens s to max runes, appending "..." when it was cut.
func Truncate(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
