package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pders01/newsroom/internal/history"
	"github.com/pders01/newsroom/internal/rows"
	"github.com/pders01/newsroom/internal/state"
	"github.com/pders01/newsroom/internal/stats"
	"github.com/pders01/newsroom/internal/table"
)

// lines collects rendered output and remembers where the cursor row starts.
type lines struct {
	out    []string
	cursor int
}

func newLines() *lines { return &lines{cursor: -1} }

func (l *lines) add(s ...string) {
	for _, chunk := range s {
		l.out = append(l.out, strings.Split(chunk, "\n")...)
	}
}

func (l *lines) markCursor() { l.cursor = len(l.out) }

func (l *lines) String() string { return strings.Join(l.out, "\n") }

// renderTab draws the current tab and returns the line of its cursor, or
// -1 when the tab has none.
func (a *App) renderTab() (string, int) {
	switch a.tab {
	case TabHistory:
		return a.renderHistory()
	case TabStats:
		return a.renderStats(), -1
	}
	return a.renderLive()
}

func (a *App) textWidth() int {
	w := a.width - 6
	if limit := a.config.UI.WrapWidth; limit > 0 && w > limit {
		w = limit
	}
	if w < 20 {
		w = 20
	}
	return w
}

func (a *App) renderLive() (string, int) {
	l := newLines()
	selection := &a.ws.App().Selection
	v := a.ws.Live.View()

	idle := !a.ws.Progress.Visible() && v.Mode == table.ModeEmpty &&
		v.Placeholder == table.PlaceholderLive && selection.ActiveJobID() == ""
	if idle {
		return renderCentered(a.width, a.bodyHeight(), GetWelcomeMessage(label(a.keyHandler.keys.NewJob))), -1
	}

	if a.ws.Progress.Visible() {
		sub := ""
		if id := selection.ActiveJobID(); id != "" {
			sub = "job " + id
		}
		l.add(renderHeader("› pipeline", sub, a.width), "")
		l.add(a.progress.Render(a.ws.Progress.Slots()))
	}

	if snap := a.ws.Stats.Snapshot(); snap.RunVisible {
		l.add(HeaderStyle.Render("› run statistics"))
		if snap.Run.Message != "" {
			l.add(renderMuted(rows.SafeLine(snap.Run.Message)))
		}
		l.add(renderTiles(stats.RunTiles(snap.Run), a.width), "")
	}

	if a.ws.CanDeleteCurrent() {
		if id := selection.ActiveHistoryID(); id != nil {
			l.add(renderMuted(fmt.Sprintf("Search #%d • %s: delete this search", *id, label(a.keyHandler.keys.Delete))), "")
		}
	}

	a.liveCursor = clamp(a.liveCursor, len(v.Rows))
	l.add(HeaderStyle.Render("› results"))
	a.renderArticles(l, v, a.liveCursor, true)
	return l.String(), l.cursor
}

func (a *App) renderHistory() (string, int) {
	l := newLines()
	v := a.ws.History.View()

	sub := ""
	if v.Total > 0 {
		sub = fmt.Sprintf("%d runs", v.Total)
	}
	l.add(renderHeader("› search history", sub, a.width))
	switch {
	case v.Err != nil:
		l.add(ErrorMessageStyle.Render("✗ " + describeErr(v.Err)))
	case v.Loading && len(v.Rows) == 0:
		l.add(renderMuted(MsgLoading))
	}
	if msg := v.Message(); msg != "" {
		l.add(renderMuted(msg))
	}

	a.recordCursor = clamp(a.recordCursor, len(v.Rows))
	recordsFocused := a.pane == PaneRecords
	l.add(a.renderRecordHeader())
	for i, r := range v.Rows {
		focused := recordsFocused && i == a.recordCursor
		if focused {
			l.markCursor()
		}
		l.add(a.renderRecord(r, focused))
	}
	if p := v.Pager.String(); p != "" {
		l.add("", renderMuted(p))
	}

	if v.Detail != nil {
		l.add("", a.renderDetail(*v.Detail))
	}

	av := a.ws.History.Articles().View()
	a.articleCursor = clamp(a.articleCursor, len(av.Rows))
	l.add("", HeaderStyle.Render("› articles"))
	a.renderArticles(l, av, a.articleCursor, !recordsFocused)
	return l.String(), l.cursor
}

const (
	colDate     = 16
	colFeeds    = 34
	colCriteria = 30
)

func (a *App) renderRecordHeader() string {
	head := "  " + padRight("date", colDate) + "  " + padRight("feeds", colFeeds) + "  " +
		padRight("criteria", colCriteria) + "  results"
	return renderMuted(truncateEnd(head, a.width-2))
}

func (a *App) renderRecord(r history.Row, focused bool) string {
	marker := "  "
	if focused {
		marker = CursorStyle.Render("› ")
	}
	line := padRight(r.Date, colDate) + "  " +
		padRight(rows.SafeLine(r.Feeds), colFeeds) + "  " +
		padRight(rows.SafeLine(r.Criteria), colCriteria) + "  " + r.Stats
	line = truncateEnd(line, a.width-4)
	if r.Active {
		return marker + RelevantStyle.Render(line)
	}
	return marker + line
}

func (a *App) renderDetail(d history.Detail) string {
	key := func(k string) string { return renderMuted(padRight(k, 22)) }
	out := []string{
		HeaderStyle.Render(fmt.Sprintf("› search #%d", d.ID)),
		key("Created") + d.Created,
		key("LLM model") + rows.SafeLine(d.Model),
		key("Temperature") + d.Temperature,
		key("Similarity threshold") + d.Threshold,
		key("API base") + rows.SafeLine(d.APIBase),
	}
	for i, f := range d.Feeds {
		k := ""
		if i == 0 {
			k = "Feeds"
		}
		out = append(out, key(k)+truncateMiddle(rows.SafeLine(f), a.width-28))
	}
	if len(d.Feeds) == 0 {
		out = append(out, key("Feeds")+history.NotSpecified)
	}
	criteria := strings.TrimSpace(rows.SafeText(d.Criteria))
	if criteria == "" {
		criteria = history.NotSpecified
	}
	out = append(out, key("Criteria")+strings.ReplaceAll(rows.Wrap(criteria, a.textWidth()-22), "\n", "\n"+strings.Repeat(" ", 22)))
	out = append(out, key("Results")+fmt.Sprintf("%d total • %d relevant • %d duplicates • %d unique non-relevant",
		d.Total, d.Relevant, d.Duplicates, d.UniqueNonRelevant))
	return strings.Join(out, "\n")
}

// renderArticles appends a table's rows to l. The cursor row is marked when
// the table has focus.
func (a *App) renderArticles(l *lines, v table.View, cursor int, focused bool) {
	if v.Header != nil && v.Mode == table.ModeSemantic && len(v.Rows) > 0 {
		l.add(renderMuted(rows.SafeLine(v.Header.String())))
	}
	switch v.Phase {
	case table.PhaseLoading:
		l.add(renderMuted(MsgLoading))
		if len(v.Rows) == 0 {
			return
		}
	case table.PhaseFailed:
		if v.Err != nil {
			l.add(ErrorMessageStyle.Render("✗ " + describeErr(v.Err)))
		}
	}
	if msg := v.Message(); msg != "" {
		l.add(renderMuted(rows.SafeLine(msg)))
		return
	}

	width := a.textWidth()
	for i, rs := range v.Rows {
		current := focused && i == cursor
		if current {
			l.markCursor()
		}
		l.add(a.renderRowSet(rs, current, width))
	}
}

func (a *App) renderRowSet(rs rows.RowSet, current bool, width int) string {
	m := rs.Main
	marker := "  "
	if current {
		marker = CursorStyle.Render("› ")
	}
	dot := renderMuted("○ ")
	title := rows.SafeLine(m.Title)
	if title == "" {
		title = "(untitled)"
	}
	title = truncateEnd(title, width)
	if m.IsRelevant {
		dot = RelevantStyle.Render("● ")
		title = RelevantStyle.Render(title)
	}

	meta := []string{rows.SafeLine(m.Source), m.Published, "relevance " + m.Relevance}
	if m.Similarity != "" {
		meta = append(meta, "similarity "+m.Similarity)
	}
	out := []string{
		marker + dot + title,
		"    " + TimeStyle.Render(truncateEnd(strings.Join(meta, " • "), width)),
	}

	indent := func(s string) string {
		return "    " + strings.ReplaceAll(s, "\n", "\n    ")
	}
	expanded := a.ws.App().Expansion.IsExpanded(rs.Scope, rs.ArticleID)
	for _, d := range rs.Details {
		switch d.Kind {
		case rows.DetailSummary:
			out = append(out, indent(rows.Wrap(rows.SafeText(d.Text), width)))
		case rows.DetailContent:
			if !expanded {
				out = append(out, indent(renderMuted("▸ content")))
				continue
			}
			out = append(out, indent(renderMuted("▾ content")))
			if r, ok := a.rendered[state.Key{Scope: rs.Scope, ArticleID: rs.ArticleID}]; ok {
				out = append(out, strings.TrimRight(r, "\n"))
			} else {
				out = append(out, indent(renderMuted(MsgRendering)))
			}
		case rows.DetailReason:
			out = append(out, indent(HelpStyle.Render(rows.Wrap("Reason: "+rows.SafeText(d.Text), width))))
		}
	}
	if link := strings.TrimSpace(m.Link); link != "" && current {
		out = append(out, indent(renderMuted(truncateMiddle(rows.SafeLine(link), width))))
	}
	out = append(out, "")
	return strings.Join(out, "\n")
}

func (a *App) renderStats() string {
	l := newLines()
	snap := a.ws.Stats.Snapshot()
	layout := a.config.UI.DateFormat
	if layout == "" {
		layout = rows.DefaultDateFormat
	}

	l.add(HeaderStyle.Render("› general statistics"))
	switch {
	case snap.GeneralErr != nil:
		l.add(ErrorMessageStyle.Render("✗ " + describeErr(snap.GeneralErr)))
	case snap.GeneralLoading && snap.General == nil:
		l.add(renderMuted(MsgLoading))
	}
	if snap.General == nil {
		return l.String()
	}
	g := *snap.General
	l.add(renderTiles(stats.GeneralTiles(g), a.width), "")

	l.add(HeaderStyle.Render("› sources"))
	if len(g.Sources) == 0 {
		l.add(renderMuted(history.NoData))
	}
	for _, s := range g.Sources {
		name := rows.SafeLine(s.Name)
		if name == "" {
			name = rows.UnknownSource
		}
		l.add("  " + padRight(name, 40) + " " + TileValueStyle.Render(fmt.Sprintf("%d", s.Count)))
	}

	l.add("", HeaderStyle.Render("› recent searches"))
	if len(g.LastSearches) == 0 {
		l.add(renderMuted(history.NoData))
	}
	for _, s := range g.LastSearches {
		l.add("  " + padRight(stats.SearchDate(s.Date, layout), 20) + " " + fmt.Sprintf("%d articles", s.Count))
	}

	if len(a.queries) > 0 {
		l.add("", HeaderStyle.Render("› your recent queries"))
		for _, q := range a.queries {
			l.add(fmt.Sprintf("  %s %s %s",
				padRight(rows.SafeLine(q.Text), 40),
				renderMuted(padRight(q.Scope, 8)),
				renderMuted(fmt.Sprintf("threshold %.2g", q.Threshold)),
			))
		}
	}
	return l.String()
}

func (a *App) renderSearchPrompt(height int) string {
	scope := "live results"
	if a.searchScope == state.ScopeHistory {
		scope = "selected history record"
	}
	w := a.queryInput.Width
	parts := []string{
		TitleStyle.Render("› semantic search"),
		renderMuted("in " + scope),
		"",
		renderMuted("Query"),
		renderInputFrame(a.queryInput.View(), a.queryInput.Focused(), w),
		renderMuted("Similarity threshold (0-1)"),
		renderInputFrame(a.thresholdInput.View(), a.thresholdInput.Focused(), w),
		"",
		renderHelp("Enter: search • Tab: switch field • Esc: cancel"),
	}
	return renderCentered(a.width, height, lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (a *App) renderFind(height int) string {
	w := a.findInput.Width
	var helpText string
	switch {
	case a.findInput.Focused():
		helpText = "Type to find • Tab/↓: results • Esc: back"
	case len(a.findList.Items()) > 0:
		helpText = "↑↓: navigate • Enter: expand • Tab/↑: find box • Esc: back"
	default:
		helpText = MsgNoResults + " • Tab/↑: find box • Esc: back"
	}
	content := lipgloss.JoinVertical(lipgloss.Top,
		HeaderStyle.Render(a.findList.Title),
		"",
		renderInputFrame(a.findInput.View(), a.findInput.Focused(), w),
		renderMuted(helpText),
		"",
		a.findList.View(),
	)
	return ContentWrapper(a.width, height).Render(content)
}
