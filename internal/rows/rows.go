// Package rows turns backend articles into the row groups shown by the
// article tables: one main row plus up to three detail rows.
package rows

import (
	"fmt"
	"strings"

	"github.com/pders01/newsroom/internal/api"
	"github.com/pders01/newsroom/internal/state"
)

const (
	UnknownSource = "Unknown source"
	NotSpecified  = "not specified"
	NoScore       = "—"
)

// DefaultDateFormat matches the 02.01.2006 15:04 presentation used across
// the client.
const DefaultDateFormat = "02.01.2006 15:04"

// Flags selects which optional parts of a row set are produced.
type Flags struct {
	HasSummary    bool
	HasSimilarity bool
	Scope         state.Scope
	DateFormat    string
}

type DetailKind int

const (
	DetailSummary DetailKind = iota
	DetailContent
	DetailReason
)

func (k DetailKind) String() string {
	switch k {
	case DetailSummary:
		return "summary"
	case DetailContent:
		return "content"
	case DetailReason:
		return "reason"
	}
	return "unknown"
}

// Detail is one detail row. Content holds sanitized HTML, the other kinds
// hold plain text that still has to be escaped by the renderer.
type Detail struct {
	Kind DetailKind
	Text string
}

// Main is the always-present summary line of an article.
type Main struct {
	ID         int64
	Title      string
	Link       string
	Source     string
	Published  string
	Relevance  string
	IsRelevant bool
	Similarity string
}

// RowSet is the rendered group for one article.
type RowSet struct {
	ArticleID int64
	Scope     state.Scope
	Main      Main
	Details   []Detail
}

// Detail returns the detail row of the given kind.
func (r RowSet) Detail(kind DetailKind) (Detail, bool) {
	for _, d := range r.Details {
		if d.Kind == kind {
			return d, true
		}
	}
	return Detail{}, false
}

// Expandable reports whether the row set has a content row to expand.
func (r RowSet) Expandable() bool {
	_, ok := r.Detail(DetailContent)
	return ok
}

// Percent renders a 0..1 score as a whole percentage, or a dash for nil.
func Percent(score *float64) string {
	if score == nil {
		return NoScore
	}
	return fmt.Sprintf("%.0f%%", *score*100)
}

// Build produces the row set of a single article.
func Build(a api.Article, flags Flags) RowSet {
	layout := flags.DateFormat
	if layout == "" {
		layout = DefaultDateFormat
	}

	source := strings.TrimSpace(a.Source)
	if source == "" {
		source = UnknownSource
	}
	published := a.PublishedAt.Format(layout)
	if published == "" {
		published = NotSpecified
	}

	rs := RowSet{
		ArticleID: a.ID,
		Scope:     flags.Scope,
		Main: Main{
			ID:         a.ID,
			Title:      a.Title,
			Link:       a.Link,
			Source:     source,
			Published:  published,
			Relevance:  Percent(a.RelevanceScore),
			IsRelevant: a.IsRelevant,
		},
	}
	if flags.HasSimilarity {
		rs.Main.Similarity = Percent(a.SimilarityScore)
	}

	if flags.HasSummary {
		if s := strings.TrimSpace(a.Summary); s != "" {
			rs.Details = append(rs.Details, Detail{Kind: DetailSummary, Text: s})
		}
	}
	if strings.TrimSpace(a.Content) != "" {
		if clean := SanitizeContent(a.Content); clean != "" {
			rs.Details = append(rs.Details, Detail{Kind: DetailContent, Text: clean})
		}
	}
	if r := strings.TrimSpace(a.ClassificationReason); r != "" {
		rs.Details = append(rs.Details, Detail{Kind: DetailReason, Text: r})
	}
	return rs
}

// BuildAll builds row sets in backend order.
func BuildAll(articles []api.Article, flags Flags) []RowSet {
	out := make([]RowSet, 0, len(articles))
	for _, a := range articles {
		out = append(out, Build(a, flags))
	}
	return out
}

// IDs returns the article ids of sets, in order.
func IDs(sets []RowSet) []int64 {
	ids := make([]int64, len(sets))
	for i, s := range sets {
		ids[i] = s.ArticleID
	}
	return ids
}
