package history

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pders01/newsroom/internal/api"
	"github.com/pders01/newsroom/internal/rows"
)

const (
	NotSpecified   = "not specified"
	DefaultAPIBase = "default (OpenAI)"
	NoData         = "no data"
	EmptyHistory   = "Search history is empty"

	criteriaPreview = 50
	feedPreview     = 2
)

// Detail is the read-only form shown for the selected record.
type Detail struct {
	ID                int64
	Created           string
	Model             string
	Temperature       string
	Threshold         string
	APIBase           string
	Feeds             []string
	Criteria          string
	Total             int
	Relevant          int
	Duplicates        int
	UniqueNonRelevant int
}

func optional(v *float64) string {
	if v == nil {
		return NotSpecified
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// DetailOf fills the detail form from rec.
func DetailOf(rec api.HistoryRecord, layout string) Detail {
	if layout == "" {
		layout = rows.DefaultDateFormat
	}
	return Detail{
		ID:                rec.ID,
		Created:           orDefault(rec.CreatedAt.Format(layout), NotSpecified),
		Model:             orDefault(rec.LLMModel, NotSpecified),
		Temperature:       optional(rec.LLMTemperature),
		Threshold:         optional(rec.SimilarityThreshold),
		APIBase:           orDefault(rec.APIBase, DefaultAPIBase),
		Feeds:             append([]string(nil), rec.RSSFeeds...),
		Criteria:          rec.SelectionCriteria,
		Total:             rec.ResultsData.Total,
		Relevant:          rec.ResultsData.Relevant,
		Duplicates:        rec.ResultsData.Duplicates,
		UniqueNonRelevant: rec.ResultsData.UniqueNonRelevant,
	}
}

// Row is one line of the history list.
type Row struct {
	ID       int64
	Date     string
	Feeds    string
	Criteria string
	Stats    string
	Active   bool
}

// StatsText summarises a run for the list.
func StatsText(s api.RunStatistics) string {
	if s.Total == 0 {
		return NoData
	}
	return fmt.Sprintf("%d articles, %d relevant", s.Total, s.Relevant)
}

// RowOf builds the list line of rec.
func RowOf(rec api.HistoryRecord, layout string) Row {
	if layout == "" {
		layout = rows.DefaultDateFormat
	}
	feeds := rec.RSSFeeds
	if len(feeds) > feedPreview {
		feeds = feeds[:feedPreview]
	}
	return Row{
		ID:       rec.ID,
		Date:     orDefault(rec.CreatedAt.Format(layout), NotSpecified),
		Feeds:    strings.Join(feeds, ", "),
		Criteria: rows.Truncate(rec.SelectionCriteria, criteriaPreview),
		Stats:    StatsText(rec.ResultsData),
	}
}

// Pager describes the pagination control.
type Pager struct {
	Page       int
	TotalPages int
}

// Visible reports whether there is more than one page.
func (p Pager) Visible() bool { return p.TotalPages > 1 }

func (p Pager) HasPrev() bool { return p.Page > 1 }

func (p Pager) HasNext() bool { return p.Page < p.TotalPages }

// Pages lists every page number.
func (p Pager) Pages() []int {
	out := make([]int, 0, p.TotalPages)
	for i := 1; i <= p.TotalPages; i++ {
		out = append(out, i)
	}
	return out
}

func (p Pager) String() string {
	if !p.Visible() {
		return ""
	}
	var b strings.Builder
	if p.HasPrev() {
		b.WriteString("‹ prev  ")
	}
	for i, n := range p.Pages() {
		if i > 0 {
			b.WriteString(" ")
		}
		if n == p.Page {
			fmt.Fprintf(&b, "[%d]", n)
		} else {
			fmt.Fprintf(&b, "%d", n)
		}
	}
	if p.HasNext() {
		b.WriteString("  next ›")
	}
	return b.String()
}
