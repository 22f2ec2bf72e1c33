package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pders01/newsroom/internal/api"
	"github.com/pders01/newsroom/internal/debuglog"
	"github.com/pders01/newsroom/internal/rows"
	"github.com/pders01/newsroom/internal/search"
	"github.com/pders01/newsroom/internal/state"
)

func (a *App) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(a.ctx)}
	}
}

func (a *App) startJob(req api.StartRequest) tea.Cmd {
	return func() tea.Msg {
		jobID, err := a.ws.StartJob(a.ctx, req)
		return jobStartedMsg{jobID: jobID, err: err}
	}
}

func (a *App) resume() tea.Cmd {
	return func() tea.Msg {
		res, err := a.ws.Resume(a.ctx)
		return resumedMsg{res: res, err: err}
	}
}

func (a *App) reloadLive() tea.Cmd {
	return a.run("reload live", a.ws.ReloadLive)
}

func (a *App) reactivateHistory() tea.Cmd {
	return a.run("load history", a.ws.History.Reactivate)
}

func (a *App) loadHistoryPage(n int) tea.Cmd {
	return a.run("load history page", func(ctx context.Context) error {
		return a.ws.History.LoadPage(ctx, n)
	})
}

func (a *App) selectRecord(id int64) tea.Cmd {
	return a.run("select record", func(ctx context.Context) error {
		err := a.ws.History.Select(ctx, id)
		a.ws.Persist()
		return err
	})
}

func (a *App) reloadRecordArticles() tea.Cmd {
	return a.run("reload record", a.ws.History.ReloadArticles)
}

func (a *App) refreshStats() tea.Cmd {
	return func() tea.Msg {
		if err := a.ws.Stats.Refresh(a.ctx); err != nil && a.ctx.Err() == nil {
			return errorMsg{err: err}
		}
		return nil
	}
}

func (a *App) loadQueries() tea.Cmd {
	return func() tea.Msg {
		return queriesLoadedMsg{queries: a.ws.RecentQueries(10)}
	}
}

func (a *App) runSearch(scope state.Scope, query string, threshold float64) tea.Cmd {
	limit := a.config.Search.Limit
	return a.run("semantic search", func(ctx context.Context) error {
		if scope == state.ScopeHistory {
			return a.ws.RunHistorySearch(ctx, query, threshold, limit)
		}
		return a.ws.RunLiveSearch(ctx, query, threshold, limit)
	})
}

// The workspace emits the notices of deletions and clears itself; these
// commands only report errors.

func (a *App) deleteCurrent() tea.Cmd {
	return a.run("delete current", func(ctx context.Context) error {
		_, err := a.ws.DeleteCurrent(ctx)
		return err
	})
}

func (a *App) deleteRecord(id int64) tea.Cmd {
	return a.run("delete record", func(ctx context.Context) error {
		_, err := a.ws.DeleteHistory(ctx, id)
		return err
	})
}

func (a *App) clearAll() tea.Cmd {
	return a.run("clear database", func(ctx context.Context) error {
		_, err := a.ws.ClearAll(ctx)
		return err
	})
}

// renderContent converts the content row of k to markdown and renders it
// with glamour.
func (a *App) renderContent(k state.Key) tea.Cmd {
	rs, ok := a.tableFor(k.Scope).Lookup(k.ArticleID)
	if !ok {
		return nil
	}
	det, ok := rs.Detail(rows.DetailContent)
	if !ok {
		return nil
	}
	r, err := a.getRenderer()
	if err != nil {
		return func() tea.Msg { return errorMsg{err: wrapErr("initialise renderer", err)} }
	}
	width := a.rendererWidth

	return func() tea.Msg {
		md := rows.ContentMarkdown(det.Text)
		a.renderMu.Lock()
		out, err := r.Render(md)
		a.renderMu.Unlock()
		if err != nil {
			debuglog.With("article", k.ArticleID).Warnf("tui: render content: %v", err)
			out = rows.Wrap(md, width)
		}
		return contentRenderedMsg{key: k, width: width, content: out}
	}
}

// indexFind loads the rows of scope's table into the find index.
func (a *App) indexFind(scope state.Scope) tea.Cmd {
	sets := a.tableFor(scope).View().Rows
	return func() tea.Msg {
		if err := a.finder.Reset(sets); err != nil {
			return findIndexedMsg{scope: scope, err: err}
		}
		return findIndexedMsg{scope: scope, docs: len(sets)}
	}
}

func (a *App) find(query string) tea.Cmd {
	if len([]rune(query)) < search.MinQueryLength {
		a.findList.SetItems(nil)
		return nil
	}
	return func() tea.Msg {
		res, err := a.finder.Find(query, 50)
		return findResultsMsg{query: query, results: res, err: err}
	}
}

func (a *App) openURL(url string) tea.Cmd {
	return func() tea.Msg {
		if err := a.launcher.OpenURL(url); err != nil {
			return errorMsg{err: fmt.Errorf("failed to open %s: %w", truncateMiddle(url, 60), err)}
		}
		return noticeMsg{text: "Opened " + truncateMiddle(url, 60)}
	}
}
