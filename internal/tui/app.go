package tui

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/pders01/newsroom/internal/config"
	"github.com/pders01/newsroom/internal/debuglog"
	"github.com/pders01/newsroom/internal/history"
	"github.com/pders01/newsroom/internal/media"
	"github.com/pders01/newsroom/internal/progress"
	"github.com/pders01/newsroom/internal/rows"
	"github.com/pders01/newsroom/internal/search"
	"github.com/pders01/newsroom/internal/state"
	"github.com/pders01/newsroom/internal/storage"
	"github.com/pders01/newsroom/internal/table"
	"github.com/pders01/newsroom/internal/workspace"
)

// statusTTL is how long notices other than errors stay in the status bar.
const statusTTL = 4 * time.Second

// chrome is the number of lines used by the tab bar, separator and status bar.
const chrome = 3

type Option func(*App)

// WithLauncher replaces the link opener.
func WithLauncher(l *media.Launcher) Option {
	return func(a *App) { a.launcher = l }
}

// WithFinder replaces the index behind the find overlay.
func WithFinder(f search.Finder) Option {
	return func(a *App) { a.finder = f }
}

// App is the bubbletea model of the client. Workspace calls run inside
// tea.Cmd goroutines; the controllers are read directly when rendering.
type App struct {
	ws         *workspace.Workspace
	config     *config.Config
	launcher   *media.Launcher
	finder     search.Finder
	keyHandler *KeyHandler
	events     chan workspace.Event

	ctx    context.Context
	cancel context.CancelFunc

	tab     Tab
	overlay Overlay
	pane    Pane

	liveCursor    int
	recordCursor  int
	articleCursor int

	form           *jobForm
	queryInput     textinput.Model
	thresholdInput textinput.Model
	searchScope    state.Scope
	findInput      textinput.Model
	findList       list.Model
	findScope      state.Scope
	findSeq        int
	confirm        *confirmation

	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model
	progress *progress.Renderer
	queries  []storage.Query

	busy       int
	status     string
	statusKind StatusKind
	statusSeq  int

	renderMu        sync.Mutex
	glamourRenderer *glamour.TermRenderer
	rendererWidth   int
	rendered        map[state.Key]string

	width  int
	height int
}

func NewApp(ws *workspace.Workspace, opts ...Option) *App {
	cfg := ws.Config()
	ctx, cancel := context.WithCancel(context.Background())

	qi := textinput.New()
	qi.Placeholder = "Describe what you are looking for..."
	qi.CharLimit = 256

	thi := textinput.New()
	thi.Placeholder = "0.7"
	thi.CharLimit = 8

	fi := textinput.New()
	fi.Placeholder = "Find in the shown articles..."

	findList := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	findList.Title = "› find"
	findList.SetShowStatusBar(false)
	findList.SetShowHelp(false)
	findList.SetFilteringEnabled(false)

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(SecondaryColor)

	app := &App{
		ws:             ws,
		config:         cfg,
		events:         make(chan workspace.Event, 128),
		ctx:            ctx,
		cancel:         cancel,
		tab:            TabLive,
		queryInput:     qi,
		thresholdInput: thi,
		findInput:      fi,
		findList:       findList,
		viewport:       viewport.New(0, 0),
		spinner:        sp,
		help:           help.New(),
		progress:       progress.NewRenderer(40),
		rendered:       make(map[state.Key]string),
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.launcher == nil {
		app.launcher = media.NewLauncher(cfg)
	}
	if app.finder == nil {
		app.finder = search.New()
	}
	app.keyHandler = NewKeyHandler(app, cfg)

	ws.Subscribe(func(e workspace.Event) {
		select {
		case app.events <- e:
		default:
			debuglog.With("event", e.Kind).Warnf("tui: event queue full, dropped")
		}
	})
	return app
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(
		tea.EnterAltScreen,
		a.waitForEvent(),
		a.resume(),
		a.refreshStats(),
	)
}

func (a *App) quit() tea.Cmd {
	a.cancel()
	return tea.Quit
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.resize(msg.Width, msg.Height)
		return a, a.renderExpanded()

	case tea.KeyMsg:
		return a.keyHandler.HandleKey(msg)

	case eventMsg:
		return a, tea.Batch(a.handleEvent(msg.event), a.waitForEvent())

	case jobStartedMsg:
		a.stopBusy()
		if msg.err != nil {
			if a.form != nil {
				a.form.err = describeErr(msg.err)
				return a, nil
			}
			return a, a.setStatus(StatusError, describeErr(msg.err))
		}
		a.closeOverlay()
		a.liveCursor = 0
		cmd := a.setTab(TabLive)
		return a, tea.Batch(cmd, a.setStatus(StatusSuccess, MsgJobStarted(msg.jobID)))

	case resumedMsg:
		if msg.err != nil {
			return a, a.setStatus(StatusError, describeErr(wrapErr("resume session", msg.err)))
		}
		if text := MsgResumed(msg.res); text != "" {
			return a, a.setStatus(StatusInfo, text)
		}

	case opDoneMsg:
		a.stopBusy()
		if !quiet(msg.err) {
			return a, a.setStatus(StatusError, describeErr(msg.err))
		}
		if msg.text != "" {
			return a, a.setStatus(StatusSuccess, msg.text)
		}

	case contentRenderedMsg:
		if msg.width == a.rendererWidth {
			a.rendered[msg.key] = msg.content
		}

	case findIndexedMsg:
		if msg.err != nil {
			return a, a.setStatus(StatusError, describeErr(wrapErr("index articles", msg.err)))
		}
		if a.overlay == OverlayFind && msg.scope == a.findScope {
			return a, a.setStatus(StatusInfo, MsgIndexed(msg.docs))
		}

	case findDebounceMsg:
		if msg.seq == a.findSeq && a.overlay == OverlayFind {
			return a, a.find(sanitizeQuery(a.findInput.Value()))
		}

	case findResultsMsg:
		if a.overlay != OverlayFind || msg.query != sanitizeQuery(a.findInput.Value()) {
			return a, nil
		}
		if msg.err != nil {
			return a, a.setStatus(StatusError, describeErr(msg.err))
		}
		items := make([]list.Item, 0, len(msg.results))
		for _, r := range msg.results {
			items = append(items, findItem{result: r})
		}
		a.findList.SetItems(items)
		docs := -1
		if dc, ok := a.finder.(search.DocCounter); ok {
			if n, err := dc.DocCount(); err == nil {
				docs = n
			}
		}
		return a, a.setStatus(StatusInfo, MsgFindSummary(msg.query, len(items), docs))

	case queriesLoadedMsg:
		a.queries = msg.queries

	case statusExpiredMsg:
		if msg.seq == a.statusSeq && a.statusKind != StatusError && a.busy == 0 {
			a.status = ""
		}

	case spinner.TickMsg:
		if a.busy > 0 {
			var cmd tea.Cmd
			a.spinner, cmd = a.spinner.Update(msg)
			return a, cmd
		}

	case noticeMsg:
		return a, a.setStatus(StatusSuccess, msg.text)

	case errorMsg:
		return a, a.setStatus(StatusError, describeErr(msg.err))
	}

	return a, nil
}

// handleEvent turns a workspace event into a status notice.
func (a *App) handleEvent(e workspace.Event) tea.Cmd {
	switch e.Kind {
	case workspace.EventJobCompleted, workspace.EventDeleted, workspace.EventCleared:
		return a.setStatus(StatusSuccess, e.Text)
	case workspace.EventJobFailed:
		return a.setStatus(StatusError, e.Text)
	case workspace.EventPollTimeout:
		return a.setStatus(StatusWarn, e.Text)
	case workspace.EventRefreshed:
		a.liveCursor = 0
		return a.loadQueries()
	case workspace.EventError:
		if quiet(e.Err) {
			return nil
		}
		return a.setStatus(StatusError, e.Text)
	}
	return nil
}

func (a *App) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case e := <-a.events:
			return eventMsg{event: e}
		case <-a.ctx.Done():
			return nil
		}
	}
}

func (a *App) resize(width, height int) {
	a.width = width
	a.height = height
	a.viewport.Width = width
	a.viewport.Height = a.bodyHeight()
	a.help.Width = width

	barWidth := width - 4
	if barWidth > 80 {
		barWidth = 80
	}
	a.progress.SetWidth(barWidth)

	inputWidth := modalWidth(width) - 8
	if inputWidth < 20 {
		inputWidth = 20
	}
	a.queryInput.Width = inputWidth
	a.thresholdInput.Width = inputWidth
	a.findInput.Width = inputWidth

	findHeight := height - 10
	if findHeight < 5 {
		findHeight = 5
	}
	a.findList.SetSize(width, findHeight)

	if a.form != nil {
		a.form.setWidth(width)
	}
}

func (a *App) bodyHeight() int {
	h := a.height - chrome
	if h < 1 {
		h = 1
	}
	return h
}

// setStatus shows text in the status bar. Errors stay until dismissed,
// other notices expire.
func (a *App) setStatus(kind StatusKind, text string) tea.Cmd {
	a.statusSeq++
	a.status = text
	a.statusKind = kind
	if text == "" || kind == StatusError {
		return nil
	}
	seq := a.statusSeq
	return tea.Tick(statusTTL, func(time.Time) tea.Msg { return statusExpiredMsg{seq: seq} })
}

func (a *App) clearStatus() {
	a.statusSeq++
	a.status = ""
	a.statusKind = StatusInfo
}

// startBusy shows the spinner with text until the matching stopBusy.
func (a *App) startBusy(text string) tea.Cmd {
	a.busy++
	a.statusSeq++
	a.status = text
	a.statusKind = StatusInfo
	if a.busy == 1 {
		return a.spinner.Tick
	}
	return nil
}

func (a *App) stopBusy() {
	if a.busy > 0 {
		a.busy--
	}
	if a.busy == 0 && a.statusKind == StatusInfo {
		a.status = ""
	}
}

// setTab switches tabs. Showing the history tab reloads its current page;
// showing the statistics tab refreshes the general numbers.
func (a *App) setTab(t Tab) tea.Cmd {
	n := Tab(len(tabOrder))
	t = ((t % n) + n) % n
	prev := a.tab
	a.tab = t
	a.ws.SetHistoryActive(t == TabHistory)
	a.viewport.GotoTop()
	if t == prev {
		return nil
	}
	switch t {
	case TabHistory:
		return tea.Batch(a.startBusy(MsgLoading), a.reactivateHistory())
	case TabStats:
		return tea.Batch(a.refreshStats(), a.loadQueries())
	}
	return nil
}

func (a *App) openJobForm() tea.Cmd {
	a.form = newJobForm(a.ws.DefaultRequest(), a.width)
	a.overlay = OverlayJobForm
	return textinput.Blink
}

func (a *App) reload() tea.Cmd {
	switch a.tab {
	case TabHistory:
		if a.pane == PaneArticles {
			return tea.Batch(a.startBusy(MsgLoading), a.reloadRecordArticles())
		}
		return tea.Batch(a.startBusy(MsgLoading), a.reactivateHistory())
	case TabStats:
		return tea.Batch(a.refreshStats(), a.loadQueries())
	}
	return tea.Batch(a.startBusy(MsgLoading), a.reloadLive())
}

// tableScope is the article table the cursor is in.
func (a *App) tableScope() state.Scope {
	if a.tab == TabHistory {
		return state.ScopeHistory
	}
	return state.ScopeLive
}

func (a *App) tableFor(scope state.Scope) *table.Controller {
	if scope == state.ScopeHistory {
		return a.ws.History.Articles()
	}
	return a.ws.Live
}

func clamp(v, n int) int {
	if v >= n {
		v = n - 1
	}
	if v < 0 {
		v = 0
	}
	return v
}

func (a *App) moveCursor(delta int) {
	switch {
	case a.tab == TabLive:
		a.liveCursor = clamp(a.liveCursor+delta, len(a.ws.Live.View().Rows))
	case a.tab == TabHistory && a.pane == PaneRecords:
		a.recordCursor = clamp(a.recordCursor+delta, len(a.ws.History.View().Rows))
	case a.tab == TabHistory:
		a.articleCursor = clamp(a.articleCursor+delta, len(a.ws.History.Articles().View().Rows))
	default:
		a.viewport.SetYOffset(a.viewport.YOffset + delta)
	}
}

// rowUnderCursor returns the article row the cursor of the focused table
// points at.
func (a *App) rowUnderCursor() (rows.RowSet, bool) {
	var v table.View
	var cursor int
	switch {
	case a.tab == TabLive:
		v, cursor = a.ws.Live.View(), a.liveCursor
	case a.tab == TabHistory && a.pane == PaneArticles:
		v, cursor = a.ws.History.Articles().View(), a.articleCursor
	default:
		return rows.RowSet{}, false
	}
	if len(v.Rows) == 0 {
		return rows.RowSet{}, false
	}
	return v.Rows[clamp(cursor, len(v.Rows))], true
}

func (a *App) recordUnderCursor() (history.Row, bool) {
	v := a.ws.History.View()
	if len(v.Rows) == 0 {
		return history.Row{}, false
	}
	if a.pane == PaneArticles && v.SelectedID != nil {
		for _, r := range v.Rows {
			if r.ID == *v.SelectedID {
				return r, true
			}
		}
	}
	return v.Rows[clamp(a.recordCursor, len(v.Rows))], true
}

// activate handles enter: select the record under the cursor or toggle the
// article under it.
func (a *App) activate() tea.Cmd {
	if a.tab == TabHistory && a.pane == PaneRecords {
		rec, ok := a.recordUnderCursor()
		if !ok {
			return nil
		}
		a.articleCursor = 0
		a.pane = PaneArticles
		return tea.Batch(a.startBusy(MsgLoading), a.selectRecord(rec.ID))
	}
	rs, ok := a.rowUnderCursor()
	if !ok {
		return nil
	}
	return a.toggle(rs.Scope, rs.ArticleID)
}

func (a *App) toggle(scope state.Scope, articleID int64) tea.Cmd {
	tr, ok := a.ws.ToggleExpansion(scope, articleID)
	if !ok || tr.Expanded == nil {
		return nil
	}
	return a.renderContent(*tr.Expanded)
}

func (a *App) turnPage(delta int) tea.Cmd {
	p := a.ws.History.View().Pager
	next := p.Page + delta
	if next < 1 || next > p.TotalPages {
		return nil
	}
	a.recordCursor = 0
	a.pane = PaneRecords
	return tea.Batch(a.startBusy(MsgLoading), a.loadHistoryPage(next))
}

func (a *App) openCurrentLink() tea.Cmd {
	rs, ok := a.rowUnderCursor()
	if !ok {
		return nil
	}
	if strings.TrimSpace(rs.Main.Link) == "" {
		return a.setStatus(StatusWarn, MsgNoLink)
	}
	return a.openURL(rs.Main.Link)
}

// selectFindResult closes the find overlay and expands the chosen article.
func (a *App) selectFindResult(i findItem) tea.Cmd {
	scope := a.findScope
	a.closeOverlay()
	v := a.tableFor(scope).View()
	for n, rs := range v.Rows {
		if rs.ArticleID != i.result.ArticleID {
			continue
		}
		if scope == state.ScopeHistory {
			a.pane = PaneArticles
			a.articleCursor = n
		} else {
			a.liveCursor = n
		}
		if a.ws.App().Expansion.IsExpanded(scope, rs.ArticleID) {
			return nil
		}
		return a.toggle(scope, rs.ArticleID)
	}
	return a.setStatus(StatusWarn, "The article is no longer shown")
}

func (a *App) getRenderer() (*glamour.TermRenderer, error) {
	wordWrapWidth := (a.width * 9) / 10
	if limit := a.config.UI.WrapWidth; limit > 0 && wordWrapWidth > limit {
		wordWrapWidth = limit
	}
	if wordWrapWidth < 40 {
		wordWrapWidth = 40
	}
	if a.width < 50 {
		wordWrapWidth = a.width - 4
		if wordWrapWidth < 20 {
			wordWrapWidth = 20
		}
	}

	if a.glamourRenderer == nil || a.rendererWidth != wordWrapWidth {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(wordWrapWidth),
		)
		if err != nil {
			return nil, err
		}
		a.glamourRenderer = r
		a.rendererWidth = wordWrapWidth
		a.rendered = make(map[state.Key]string)
	}
	return a.glamourRenderer, nil
}

// renderExpanded re-renders the expanded article after a resize.
func (a *App) renderExpanded() tea.Cmd {
	k, ok := a.ws.App().Expansion.Current()
	if !ok {
		return nil
	}
	if _, done := a.rendered[k]; done {
		return nil
	}
	return a.renderContent(k)
}

func (a *App) View() string {
	if a.width == 0 {
		return ""
	}

	var content string
	bodyHeight := a.bodyHeight()
	switch a.overlay {
	case OverlayJobForm:
		content = a.form.View(a.width, bodyHeight, label(a.keyHandler.keys.Submit))
	case OverlaySearch:
		content = a.renderSearchPrompt(bodyHeight)
	case OverlayFind:
		content = a.renderFind(bodyHeight)
	case OverlayConfirm:
		content = renderConfirm(a.confirm, a.width, bodyHeight)
	default:
		body, cursorLine := a.renderTab()
		a.viewport.Height = bodyHeight
		a.viewport.SetContent(body)
		if cursorLine >= 0 {
			if cursorLine < a.viewport.YOffset {
				a.viewport.SetYOffset(cursorLine)
			} else if cursorLine >= a.viewport.YOffset+bodyHeight-2 {
				a.viewport.SetYOffset(cursorLine - bodyHeight + 3)
			}
		}
		content = a.viewport.View()
	}

	separatorWidth := a.width - 2
	if separatorWidth < 0 {
		separatorWidth = 0
	}
	separator := SeparatorStyle.Render("─" + strings.Repeat("─", separatorWidth))

	return lipgloss.JoinVertical(lipgloss.Top,
		renderTabs(a.tab, a.width),
		ContentWrapper(a.width, bodyHeight).Render(content),
		separator,
		a.getCustomStatusBar(),
	)
}

func (a *App) getCustomStatusBar() string {
	bar := lipgloss.NewStyle().Width(a.width).MaxWidth(a.width).Padding(0, 1)
	if a.status != "" {
		text := a.statusKind.style().Render(a.statusKind.icon() + a.status)
		if a.busy > 0 {
			text = a.spinner.View() + " " + text
		}
		return bar.Render(text)
	}
	bindings := a.keyHandler.GetHelpForCurrentView()
	if len(bindings) == 0 {
		return bar.Render(renderMuted("esc: back"))
	}
	return bar.Render(a.help.ShortHelpView(bindings))
}
