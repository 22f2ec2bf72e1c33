// Package stats holds the two statistics panels: the summary of the run
// that just finished and the general, cross-run statistics.
package stats

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pders01/newsroom/internal/api"
	"github.com/pders01/newsroom/internal/debuglog"
)

// MaxRecentSearches caps the recent-searches list of the general panel.
const MaxRecentSearches = 10

// Fetcher loads the general statistics. *api.Client implements it.
type Fetcher interface {
	Statistics(ctx context.Context) (*api.Statistics, error)
}

// Snapshot is a copy of both panels.
type Snapshot struct {
	RunVisible bool
	Run        api.RunStatistics

	General        *api.Statistics
	GeneralLoading bool
	GeneralErr     error
}

type View struct {
	fetcher Fetcher

	mu         sync.Mutex
	runVisible bool
	run        api.RunStatistics
	general    *api.Statistics
	loading    bool
	err        error
	gen        uint64
}

func New(f Fetcher) *View {
	return &View{fetcher: f}
}

// ShowRun displays the statistics of a finished run. A nil value leaves the
// panel as it is.
func (v *View) ShowRun(run *api.RunStatistics) {
	if run == nil {
		return
	}
	v.mu.Lock()
	v.run = *run
	v.runVisible = true
	v.mu.Unlock()
}

// Hide hides the run panel.
func (v *View) Hide() {
	v.mu.Lock()
	v.runVisible = false
	v.run = api.RunStatistics{}
	v.mu.Unlock()
}

// Refresh reloads the general statistics. On failure the previous numbers
// stay and the error is kept for display.
func (v *View) Refresh(ctx context.Context) error {
	v.mu.Lock()
	v.gen++
	gen := v.gen
	v.loading = true
	v.mu.Unlock()

	st, err := v.fetcher.Statistics(ctx)

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen {
		return nil
	}
	v.loading = false
	if err != nil {
		v.err = fmt.Errorf("load statistics: %w", err)
		debuglog.Warnf("stats: %v", err)
		return v.err
	}
	v.err = nil
	if len(st.LastSearches) > MaxRecentSearches {
		st.LastSearches = st.LastSearches[:MaxRecentSearches]
	}
	v.general = st
	return nil
}

func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := Snapshot{
		RunVisible:     v.runVisible,
		Run:            v.run,
		GeneralLoading: v.loading,
		GeneralErr:     v.err,
	}
	if v.general != nil {
		g := *v.general
		g.Sources = append([]api.SourceCount(nil), v.general.Sources...)
		g.LastSearches = append([]api.SearchCount(nil), v.general.LastSearches...)
		s.General = &g
	}
	return s
}

// Tile is one labelled number.
type Tile struct {
	Label string
	Value int
}

// RunTiles lists the four counters of a run.
func RunTiles(s api.RunStatistics) []Tile {
	return []Tile{
		{"Total articles", s.Total},
		{"Relevant", s.Relevant},
		{"Duplicates", s.Duplicates},
		{"Unique non-relevant", s.UniqueNonRelevant},
	}
}

// GeneralTiles lists the four counters of the general statistics.
func GeneralTiles(s api.Statistics) []Tile {
	return RunTiles(api.RunStatistics{
		Total:             s.Total,
		Relevant:          s.Relevant,
		Duplicates:        s.Duplicates,
		UniqueNonRelevant: s.UniqueNonRelevant,
	})
}

// SearchDate formats a recent-search date. Unparseable dates render as a
// dash.
func SearchDate(raw, layout string) string {
	if raw == "" {
		return "—"
	}
	ts, err := api.ParseTimestamp(raw)
	if err != nil || ts.IsZero() {
		return "—"
	}
	return ts.Format(layout)
}

// Plain renders a run as one line of text.
func Plain(s api.RunStatistics) string {
	if s.Message != "" {
		return s.Message
	}
	parts := make([]string, 0, 4)
	for _, t := range RunTiles(s) {
		parts = append(parts, fmt.Sprintf("%s: %d", t.Label, t.Value))
	}
	return strings.Join(parts, ", ")
}
