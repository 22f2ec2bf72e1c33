// Package table holds the article table controllers. A table is always in
// exactly one mode: empty, the primary listing of a selection, or a
// semantic search overlay over that selection.
package table

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pders01/newsroom/internal/api"
	"github.com/pders01/newsroom/internal/debuglog"
	"github.com/pders01/newsroom/internal/rows"
	"github.com/pders01/newsroom/internal/state"
	"github.com/pders01/newsroom/internal/validation"
)

// ErrSuperseded is returned by an operation whose result was dropped
// because a newer operation on the same table started after it.
var ErrSuperseded = errors.New("table: superseded by a newer request")

type Mode int

const (
	ModeEmpty Mode = iota
	ModePrimary
	ModeSemantic
)

func (m Mode) String() string {
	switch m {
	case ModePrimary:
		return "primary"
	case ModeSemantic:
		return "semantic"
	}
	return "empty"
}

type Phase int

const (
	PhaseReady Phase = iota
	PhaseLoading
	PhaseFailed
)

const (
	PlaceholderLive    = "Start a search to see results here"
	PlaceholderHistory = "Select a history record to see its articles"
	PlaceholderNoRows  = "No articles yet"
	PlaceholderWaiting = "Waiting for results..."
)

// SearchHeader describes a semantic overlay.
type SearchHeader struct {
	Found     int
	Query     string
	Threshold float64
}

func (h SearchHeader) String() string {
	return fmt.Sprintf("Found %d articles for %q (similarity threshold %.2g)", h.Found, h.Query, h.Threshold)
}

// NothingFound is the message shown for a search without matches.
func (h SearchHeader) NothingFound() string {
	return fmt.Sprintf("Nothing found for %q (threshold %.2g)", h.Query, h.Threshold)
}

// View is a copy of what a table shows.
type View struct {
	Scope       state.Scope
	Mode        Mode
	Phase       Phase
	SelectionID *int64
	Rows        []rows.RowSet
	Header      *SearchHeader
	Placeholder string
	Err         error
}

// Message returns the line shown instead of rows, if any.
func (v View) Message() string {
	if len(v.Rows) > 0 {
		return ""
	}
	if v.Mode == ModeSemantic && v.Header != nil {
		return v.Header.NothingFound()
	}
	return v.Placeholder
}

type Option func(*Controller)

// WithDateFormat sets the layout of published dates.
func WithDateFormat(layout string) Option {
	return func(c *Controller) { c.dateFormat = layout }
}

// WithSummaries adds summary detail rows to primary listings.
func WithSummaries(on bool) Option {
	return func(c *Controller) { c.summaries = on }
}

// Controller owns one article table.
type Controller struct {
	scope      state.Scope
	source     Source
	expansion  *state.Expansion
	dateFormat string
	summaries  bool
	idle       string
	// semantic search without a selected record is refused
	needsSelection bool

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	view   View
}

// NewLive returns the live results table. Summaries are shown and
// searches without an active run cover every stored article.
func NewLive(b Backend, app *state.App, opts ...Option) *Controller {
	c := newController(state.ScopeLive, LiveSource(b), app, PlaceholderLive)
	c.summaries = true
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewHistory returns the article table of the history tab.
func NewHistory(b Backend, app *state.App, opts ...Option) *Controller {
	c := newController(state.ScopeHistory, HistorySource(b), app, PlaceholderHistory)
	c.needsSelection = true
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newController(scope state.Scope, src Source, app *state.App, idle string) *Controller {
	return &Controller{
		scope:     scope,
		source:    src,
		expansion: &app.Expansion,
		idle:      idle,
		view:      View{Scope: scope, Mode: ModeEmpty, Placeholder: idle},
	}
}

func (c *Controller) Scope() state.Scope { return c.scope }

// View returns a snapshot of the table.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.view
	v.Rows = append([]rows.RowSet(nil), c.view.Rows...)
	if c.view.Header != nil {
		h := *c.view.Header
		v.Header = &h
	}
	if c.view.SelectionID != nil {
		id := *c.view.SelectionID
		v.SelectionID = &id
	}
	return v
}

// Lookup returns the rendered row set of articleID.
func (c *Controller) Lookup(articleID int64) (rows.RowSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rs := range c.view.Rows {
		if rs.ArticleID == articleID {
			return rs, true
		}
	}
	return rows.RowSet{}, false
}

// ToggleExpansion expands or collapses the content row of articleID. Rows
// that are not rendered or have no content are ignored.
func (c *Controller) ToggleExpansion(articleID int64) (state.Transition, bool) {
	rs, ok := c.Lookup(articleID)
	if !ok || !rs.Expandable() {
		return state.Transition{}, false
	}
	return c.expansion.Toggle(c.scope, articleID), true
}

// Clear puts the table into the empty state and drops any in-flight
// operation.
func (c *Controller) Clear() {
	c.ShowPlaceholder(c.idle)
}

// ShowPlaceholder empties the table and shows text instead of rows.
func (c *Controller) ShowPlaceholder(text string) {
	c.mu.Lock()
	c.supersedeLocked()
	c.view = View{Scope: c.scope, Mode: ModeEmpty, Placeholder: text}
	c.mu.Unlock()
	c.expansion.ClearScope(c.scope)
}

// LoadPrimary replaces the table with the primary listing of selectionID.
// A nil selection empties the table without a request.
func (c *Controller) LoadPrimary(ctx context.Context, selectionID *int64) error {
	if selectionID == nil {
		c.Clear()
		return nil
	}
	id := *selectionID

	// The previous rows, including a semantic overlay, are gone
	// as soon as the reload starts.
	opCtx, gen := c.begin(ctx, &View{
		Scope:       c.scope,
		Mode:        ModePrimary,
		SelectionID: selectionID,
		Placeholder: PlaceholderNoRows,
	})
	articles, err := c.source.Primary(opCtx, id)
	if err != nil {
		return c.fail(gen, fmt.Errorf("load articles: %w", err))
	}

	sets := rows.BuildAll(articles, rows.Flags{
		HasSummary: c.summaries,
		Scope:      c.scope,
		DateFormat: c.dateFormat,
	})
	return c.commit(gen, View{
		Scope:       c.scope,
		Mode:        ModePrimary,
		SelectionID: selectionID,
		Rows:        sets,
		Placeholder: PlaceholderNoRows,
	})
}

// RunSemanticSearch replaces the table with the articles of selectionID
// ranked against query. Invalid input is rejected before any request and
// leaves the table untouched.
func (c *Controller) RunSemanticSearch(ctx context.Context, selectionID *int64, query string, threshold float64, limit int) error {
	if c.needsSelection && selectionID == nil {
		return &api.ValidationError{Field: "search_history_id", Message: "select a history record first"}
	}
	q, err := validation.Search(query, threshold, limit)
	if err != nil {
		return err
	}

	opCtx, gen := c.begin(ctx, nil)
	res, err := c.source.Search(opCtx, api.SearchRequest{
		Query:           q,
		Threshold:       threshold,
		Limit:           limit,
		SearchHistoryID: selectionID,
	})
	if err != nil {
		return c.fail(gen, fmt.Errorf("semantic search: %w", err))
	}

	sets := rows.BuildAll(res.Articles, rows.Flags{
		HasSummary:    c.summaries,
		HasSimilarity: true,
		Scope:         c.scope,
		DateFormat:    c.dateFormat,
	})
	return c.commit(gen, View{
		Scope:       c.scope,
		Mode:        ModeSemantic,
		SelectionID: selectionID,
		Rows:        sets,
		Header:      &SearchHeader{Found: res.Found, Query: q, Threshold: threshold},
	})
}

func (c *Controller) supersedeLocked() uint64 {
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	return c.gen
}

// begin starts a new operation. A non-nil reset replaces the current view;
// otherwise the rows stay on screen while loading.
func (c *Controller) begin(ctx context.Context, reset *View) (context.Context, uint64) {
	opCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	gen := c.supersedeLocked()
	c.cancel = cancel
	if reset != nil {
		c.view = *reset
	}
	c.view.Phase = PhaseLoading
	c.view.Err = nil
	return opCtx, gen
}

func (c *Controller) current(gen uint64) bool {
	return c.gen == gen
}

func (c *Controller) commit(gen uint64, v View) error {
	c.mu.Lock()
	if !c.current(gen) {
		c.mu.Unlock()
		debuglog.With("scope", c.scope, "gen", gen).Debugf("table: dropped superseded result")
		return ErrSuperseded
	}
	c.finishLocked()
	v.Phase = PhaseReady
	c.view = v
	ids := make(map[int64]bool, len(v.Rows))
	for _, rs := range v.Rows {
		if rs.Expandable() {
			ids[rs.ArticleID] = true
		}
	}
	c.mu.Unlock()

	if c.expansion.Prune(c.scope, func(id int64) bool { return ids[id] }) {
		debuglog.With("scope", c.scope).Debugf("table: expanded article no longer rendered")
	}
	debuglog.With("scope", c.scope, "mode", v.Mode, "rows", len(v.Rows)).Debugf("table: replaced rows")
	return nil
}

func (c *Controller) fail(gen uint64, err error) error {
	c.mu.Lock()
	if !c.current(gen) {
		c.mu.Unlock()
		return ErrSuperseded
	}
	c.finishLocked()
	c.view.Phase = PhaseFailed
	c.view.Err = err
	empty := len(c.view.Rows) == 0
	c.mu.Unlock()

	if empty {
		c.expansion.ClearScope(c.scope)
	}
	debuglog.With("scope", c.scope).Warnf("table: %v", err)
	return err
}

func (c *Controller) finishLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}
