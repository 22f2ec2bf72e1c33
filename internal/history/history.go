// Package history drives the history tab: a paginated list of stored runs,
// one selected record with its detail form and the record's article table.
package history

import (
	"context"
	"fmt"
	"sync"

	"github.com/pders01/newsroom/internal/api"
	"github.com/pders01/newsroom/internal/debuglog"
	"github.com/pders01/newsroom/internal/state"
	"github.com/pders01/newsroom/internal/table"
)

// Backend is the part of *api.Client the history tab needs.
type Backend interface {
	table.Backend
	History(ctx context.Context, page int) (*api.HistoryPage, error)
	DeleteHistory(ctx context.Context, historyID int64) (string, error)
}

// View is a copy of the tab state.
type View struct {
	Rows    []Row
	Pager   Pager
	Total   int
	Loading bool
	Err     error
	// Detail is nil while the form is hidden.
	Detail     *Detail
	SelectedID *int64
}

// Message returns the text shown instead of the list, if any.
func (v View) Message() string {
	if len(v.Rows) == 0 && v.Err == nil && !v.Loading {
		return EmptyHistory
	}
	return ""
}

type Option func(*Controller)

// WithDateFormat sets the layout of dates in the list and form.
func WithDateFormat(layout string) Option {
	return func(c *Controller) { c.layout = layout }
}

// OnDeleted registers fn to run after a record was deleted.
func OnDeleted(fn func(ctx context.Context, id int64)) Option {
	return func(c *Controller) { c.onDeleted = append(c.onDeleted, fn) }
}

// Controller owns the history tab.
type Controller struct {
	backend  Backend
	app      *state.App
	articles *table.Controller
	layout   string

	onDeleted []func(ctx context.Context, id int64)

	mu      sync.Mutex
	gen     uint64
	page    *api.HistoryPage
	detail  *Detail
	loading bool
	err     error
}

func New(b Backend, app *state.App, opts ...Option) *Controller {
	c := &Controller{backend: b, app: app}
	for _, opt := range opts {
		opt(c)
	}
	c.articles = table.NewHistory(b, app, table.WithDateFormat(c.layout))
	return c
}

// Articles is the article table of the selected record.
func (c *Controller) Articles() *table.Controller { return c.articles }

// View returns a snapshot of the tab.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	selected := c.app.Selection.SelectedHistoryRecord()
	v := View{
		Loading:    c.loading,
		Err:        c.err,
		SelectedID: selected,
		Pager:      Pager{Page: c.app.Selection.HistoryPage()},
	}
	if c.page != nil {
		v.Total = c.page.Total
		v.Pager = Pager{Page: c.page.Page, TotalPages: c.page.TotalPages}
		for _, rec := range c.page.History {
			row := RowOf(rec, c.layout)
			row.Active = selected != nil && *selected == rec.ID
			v.Rows = append(v.Rows, row)
		}
	}
	if c.detail != nil {
		d := *c.detail
		v.Detail = &d
	}
	return v
}

// Record returns the record id from the loaded page.
func (c *Controller) Record(id int64) (api.HistoryRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recordLocked(id)
}

func (c *Controller) recordLocked(id int64) (api.HistoryRecord, bool) {
	if c.page == nil {
		return api.HistoryRecord{}, false
	}
	for _, rec := range c.page.History {
		if rec.ID == id {
			return rec, true
		}
	}
	return api.HistoryRecord{}, false
}

// LoadPage fetches page n. Loading page 1 selects the most recent record.
func (c *Controller) LoadPage(ctx context.Context, n int) error {
	return c.load(ctx, n, n == 1)
}

// Reactivate reloads the current page when the tab is shown again. A
// selection that is still listed is kept, otherwise page 1 selects its most
// recent record.
func (c *Controller) Reactivate(ctx context.Context) error {
	page := c.app.Selection.HistoryPage()
	if page < 1 {
		page = 1
	}
	sel := c.app.Selection.SelectedHistoryRecord()
	if sel == nil {
		return c.LoadPage(ctx, page)
	}
	if err := c.load(ctx, page, false); err != nil {
		return err
	}
	if _, ok := c.Record(*sel); ok {
		return c.Select(ctx, *sel)
	}
	if first, ok := c.first(); ok && page == 1 {
		return c.Select(ctx, first)
	}
	return nil
}

func (c *Controller) first() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.page == nil || len(c.page.History) == 0 {
		return 0, false
	}
	return c.page.History[0].ID, true
}

func (c *Controller) load(ctx context.Context, n int, autoSelect bool) error {
	if n < 1 {
		n = 1
	}
	c.app.Selection.SetHistoryPage(n)

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.loading = true
	c.err = nil
	c.mu.Unlock()

	page, err := c.backend.History(ctx, n)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return table.ErrSuperseded
	}
	c.loading = false
	if err != nil {
		c.err = fmt.Errorf("load history page %d: %w", n, err)
		c.detail = nil
		c.mu.Unlock()
		debuglog.With("page", n).Warnf("history: %v", err)
		return c.err
	}
	c.page = page
	if len(page.History) == 0 {
		c.detail = nil
	}
	c.mu.Unlock()

	debuglog.With("page", n, "records", len(page.History), "total", page.Total).Debugf("history: page loaded")
	if autoSelect && len(page.History) > 0 {
		return c.Select(ctx, page.History[0].ID)
	}
	return nil
}

// Select makes id the active record, fills the detail form and loads the
// record's articles.
func (c *Controller) Select(ctx context.Context, id int64) error {
	c.app.Selection.SelectHistoryRecord(id)

	c.mu.Lock()
	rec, ok := c.recordLocked(id)
	c.mu.Unlock()
	if !ok {
		// Not on the loaded page, look it up on the current one again.
		if err := c.load(ctx, c.app.Selection.HistoryPage(), false); err == nil {
			rec, ok = c.Record(id)
		}
	}

	c.mu.Lock()
	if ok {
		d := DetailOf(rec, c.layout)
		c.detail = &d
	} else {
		c.detail = nil
	}
	c.mu.Unlock()

	return c.articles.LoadPrimary(ctx, &id)
}

// Delete removes record id. Callers obtain the user's confirmation first.
// A selected record is deselected, its form hidden and its table emptied;
// the current page is always reloaded.
func (c *Controller) Delete(ctx context.Context, id int64) (string, error) {
	msg, err := c.backend.DeleteHistory(ctx, id)
	if err != nil {
		return "", fmt.Errorf("delete history record %d: %w", id, err)
	}
	debuglog.With("id", id).Infof("history: record deleted")

	if sel := c.app.Selection.SelectedHistoryRecord(); sel != nil && *sel == id {
		c.app.Selection.ClearHistoryRecord()
		c.mu.Lock()
		c.detail = nil
		c.mu.Unlock()
		c.articles.Clear()
	}

	reloadErr := c.load(ctx, c.app.Selection.HistoryPage(), false)
	for _, fn := range c.onDeleted {
		fn(ctx, id)
	}
	if msg == "" {
		msg = fmt.Sprintf("Search #%d and its articles were deleted", id)
	}
	return msg, reloadErr
}

// Search runs a semantic search over the selected record's articles.
func (c *Controller) Search(ctx context.Context, query string, threshold float64, limit int) error {
	return c.articles.RunSemanticSearch(ctx, c.app.Selection.SelectedHistoryRecord(), query, threshold, limit)
}

// ReloadArticles shows the selected record's primary listing again.
func (c *Controller) ReloadArticles(ctx context.Context) error {
	return c.articles.LoadPrimary(ctx, c.app.Selection.SelectedHistoryRecord())
}
