package tui

import (
	"errors"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"

	"github.com/pders01/newsroom/internal/api"
	"github.com/pders01/newsroom/internal/table"
)

func TestSplitFeeds(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"https://a.example/rss", []string{"https://a.example/rss"}},
		{"https://a.example/rss, https://b.example/rss", []string{"https://a.example/rss", "https://b.example/rss"}},
		{"https://a.example/rss\n\n  https://b.example/rss\t,", []string{"https://a.example/rss", "https://b.example/rss"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, splitFeeds(tt.in), "input %q", tt.in)
	}
}

func TestSanitizeQuery(t *testing.T) {
	assert.Equal(t, "central banks", sanitizeQuery("  central \n\t banks "))
	assert.Empty(t, sanitizeQuery(" \n "))

	long := sanitizeQuery(strings.Repeat("ab ", 200))
	assert.LessOrEqual(t, len(long), 256)
	assert.False(t, strings.HasSuffix(long, " "))
}

func TestTruncateEnd(t *testing.T) {
	assert.Equal(t, "short", truncateEnd("short", 10))
	assert.Equal(t, "", truncateEnd("anything", 0))
	assert.Equal(t, "…", truncateEnd("anything", 1))

	out := truncateEnd("a rather long headline", 10)
	assert.True(t, strings.HasSuffix(out, "…"))
	assert.LessOrEqual(t, runewidth.StringWidth(out), 10)

	wide := truncateEnd("日本語のニュース記事", 7)
	assert.LessOrEqual(t, runewidth.StringWidth(wide), 7)
}

func TestTruncateMiddle(t *testing.T) {
	url := "https://news.example/2026/03/01/central-bank-holds-rates"
	out := truncateMiddle(url, 21)
	assert.Len(t, []rune(out), 21)
	assert.True(t, strings.HasPrefix(out, "https://ne"))
	assert.True(t, strings.HasSuffix(out, "olds-rates"))
	assert.Contains(t, out, "…")

	assert.Equal(t, url, truncateMiddle(url, 200))
	assert.Equal(t, "", truncateMiddle(url, 0))
}

func TestPadRight(t *testing.T) {
	assert.Equal(t, "wire      ", padRight("wire", 10))
	assert.Equal(t, 6, runewidth.StringWidth(padRight("a long source name", 6)))
	assert.Equal(t, 6, runewidth.StringWidth(padRight("日本", 6)))
}

func TestDescribeErr(t *testing.T) {
	ve := &api.ValidationError{Field: "query", Message: "Enter a search query"}
	assert.Equal(t, "Enter a search query", describeErr(wrapErr("semantic search", ve)))
	assert.Equal(t, "load history: boom", describeErr(wrapErr("load history", errors.New("boom"))))
	assert.NoError(t, wrapErr("load history", nil))

	assert.True(t, quiet(nil))
	assert.True(t, quiet(wrapErr("reload", table.ErrSuperseded)))
	assert.False(t, quiet(ve))
}
