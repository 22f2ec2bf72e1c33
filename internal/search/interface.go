// Package search finds articles among the rows a table currently shows.
// It never talks to the backend; semantic search is the backend's job.
package search

import (
	"html"
	"strings"

	"github.com/pders01/newsroom/internal/debuglog"
	"github.com/pders01/newsroom/internal/rows"
)

// Finder is the search API used by the TUI.
type Finder interface {
	// Reset replaces the searchable set.
	Reset(sets []rows.RowSet) error
	Find(query string, limit int) ([]*Result, error)
}

// DocCounter is implemented by finders that can report their size.
type DocCounter interface {
	DocCount() (int, error)
}

// MinQueryLength is the shortest query that is searched at all.
const MinQueryLength = 2

// Result is one matching article.
type Result struct {
	ArticleID int64
	Title     string
	Score     float64
	Matches   []Match
}

// Match represents where text was found
type Match struct {
	Field  string // "title", "source", "summary", "content", "reason"
	Text   string
	Weight float64
}

// document is the searchable text of one row set.
type document struct {
	ID      int64
	Title   string
	Source  string
	Summary string
	Content string
	Reason  string
}

func documentOf(rs rows.RowSet) document {
	d := document{ID: rs.ArticleID, Title: rs.Main.Title, Source: rs.Main.Source}
	if det, ok := rs.Detail(rows.DetailSummary); ok {
		d.Summary = det.Text
	}
	if det, ok := rs.Detail(rows.DetailContent); ok {
		d.Content = strings.Join(strings.Fields(html.UnescapeString(rows.ContentPolicyStrict(det.Text))), " ")
	}
	if det, ok := rs.Detail(rows.DetailReason); ok {
		d.Reason = det.Text
	}
	return d
}

func short(query string) bool {
	return len([]rune(strings.TrimSpace(query))) < MinQueryLength
}

// New returns the bleve finder, or the scanning engine if no index could
// be created.
func New() Finder {
	f, err := NewBleveFinder()
	if err != nil {
		debuglog.Warnf("search: bleve unavailable, scanning instead: %v", err)
		return NewEngine()
	}
	return f
}
