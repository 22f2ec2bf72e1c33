package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pders01/newsroom/internal/config"
	"github.com/pders01/newsroom/internal/state"
)

const findDebounce = 150 * time.Millisecond

type keyMap struct {
	Quit      key.Binding
	ForceQuit key.Binding
	NewJob    key.Binding
	Search    key.Binding
	Reload    key.Binding
	Delete    key.Binding
	Clear     key.Binding
	Open      key.Binding
	Find      key.Binding
	Back      key.Binding
	Submit    key.Binding
	NextTab   key.Binding
	PrevTab   key.Binding
	Up        key.Binding
	Down      key.Binding
	PageUp    key.Binding
	PageDown  key.Binding
	Toggle    key.Binding
	Pane      key.Binding
	PrevPage  key.Binding
	NextPage  key.Binding
}

func newKeyMap(cfg *config.Config) keyMap {
	mod := cfg.Keys.Modifier + "+"
	b := cfg.Keys.Bindings
	bind := func(k, help string) key.Binding {
		return key.NewBinding(key.WithKeys(k), key.WithHelp(k, help))
	}
	modBind := func(k, help string) key.Binding { return bind(mod+k, help) }
	back := b.Back
	if back == "" {
		back = "esc"
	}
	return keyMap{
		Quit:      bind(b.Quit, "quit"),
		ForceQuit: key.NewBinding(key.WithKeys("ctrl+c")),
		NewJob:    modBind(b.NewJob, "new run"),
		Search:    modBind(b.Search, "semantic search"),
		Reload:    modBind(b.Reload, "reload"),
		Delete:    modBind(b.Delete, "delete"),
		Clear:     modBind(b.ClearDatabase, "clear database"),
		Open:      modBind(b.OpenLink, "open link"),
		Find:      modBind(b.Find, "find"),
		Back:      bind(back, "back"),
		Submit:    modBind(b.Search, "submit"),
		NextTab:   key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next tab")),
		PrevTab:   key.NewBinding(key.WithKeys("shift+tab")),
		Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		PageUp:    key.NewBinding(key.WithKeys("pgup")),
		PageDown:  key.NewBinding(key.WithKeys("pgdown")),
		Toggle:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "expand")),
		Pane:      key.NewBinding(key.WithKeys("left", "right", "h", "l"), key.WithHelp("←/→", "records/articles")),
		PrevPage:  key.NewBinding(key.WithKeys("["), key.WithHelp("[", "prev page")),
		NextPage:  key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "next page")),
	}
}

type KeyHandler struct {
	app         *App
	config      *config.Config
	modifierKey string
	keys        keyMap
}

func NewKeyHandler(app *App, cfg *config.Config) *KeyHandler {
	return &KeyHandler{
		app:         app,
		config:      cfg,
		modifierKey: cfg.Keys.Modifier + "+",
		keys:        newKeyMap(cfg),
	}
}

func (kh *KeyHandler) HandleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, kh.keys.ForceQuit) {
		return kh.app, kh.app.quit()
	}

	switch kh.app.overlay {
	case OverlayJobForm:
		return kh.handleFormKeys(msg)
	case OverlaySearch:
		return kh.handleSearchKeys(msg)
	case OverlayFind:
		return kh.handleFindKeys(msg)
	case OverlayConfirm:
		return kh.handleConfirmKeys(msg)
	}

	if model, cmd, handled := kh.handleCustomKeys(msg); handled {
		return model, cmd
	}
	return kh.handleNavigation(msg)
}

// handleCustomKeys handles the action keys shared by every tab.
func (kh *KeyHandler) handleCustomKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	a := kh.app
	k := kh.keys

	switch {
	case key.Matches(msg, k.Quit):
		return a, a.quit(), true
	case key.Matches(msg, k.Back):
		a.clearStatus()
		return a, nil, true
	case key.Matches(msg, k.NewJob):
		return a, a.openJobForm(), true
	case key.Matches(msg, k.Search):
		return a, a.openSearch(), true
	case key.Matches(msg, k.Find):
		return a, a.openFind(), true
	case key.Matches(msg, k.Reload):
		return a, a.reload(), true
	case key.Matches(msg, k.Delete):
		return a, a.askDelete(), true
	case key.Matches(msg, k.Clear):
		a.askConfirm(&confirmation{
			action: confirmClearAll,
			title:  "Clear database",
			note:   "This removes every article and search history record.",
		})
		return a, nil, true
	case key.Matches(msg, k.Open):
		return a, a.openCurrentLink(), true
	case key.Matches(msg, k.NextTab):
		return a, a.setTab(a.tab + 1), true
	case key.Matches(msg, k.PrevTab):
		return a, a.setTab(a.tab - 1), true
	}

	if s := msg.String(); len(s) == 1 && s[0] >= '1' && int(s[0]-'1') < len(tabOrder) {
		n, _ := strconv.Atoi(s)
		return a, a.setTab(tabOrder[n-1]), true
	}
	return a, nil, false
}

// handleNavigation moves the cursor of the focused list and acts on enter.
func (kh *KeyHandler) handleNavigation(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	a := kh.app
	k := kh.keys

	switch {
	case key.Matches(msg, k.Up):
		a.moveCursor(-1)
	case key.Matches(msg, k.Down):
		a.moveCursor(1)
	case key.Matches(msg, k.PageUp):
		a.moveCursor(-10)
	case key.Matches(msg, k.PageDown):
		a.moveCursor(10)
	case key.Matches(msg, k.Toggle):
		return a, a.activate()
	case key.Matches(msg, k.Pane) && a.tab == TabHistory:
		if a.pane == PaneRecords {
			a.pane = PaneArticles
		} else {
			a.pane = PaneRecords
		}
	case key.Matches(msg, k.PrevPage) && a.tab == TabHistory:
		return a, a.turnPage(-1)
	case key.Matches(msg, k.NextPage) && a.tab == TabHistory:
		return a, a.turnPage(1)
	default:
		var cmd tea.Cmd
		a.viewport, cmd = a.viewport.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (kh *KeyHandler) handleFormKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	a := kh.app
	f := a.form
	switch {
	case key.Matches(msg, kh.keys.Back):
		a.closeOverlay()
		return a, nil
	case msg.String() == "tab":
		return a, f.next()
	case msg.String() == "shift+tab":
		return a, f.prev()
	case key.Matches(msg, kh.keys.Submit), msg.String() == "enter" && !f.multiline():
		req, err := f.request()
		if err != nil {
			f.err = describeErr(err)
			return a, nil
		}
		f.err = ""
		return a, tea.Batch(a.startBusy(MsgSubmitting), a.startJob(req))
	}
	return a, f.Update(msg)
}

func (kh *KeyHandler) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	a := kh.app
	switch msg.String() {
	case "esc":
		a.closeOverlay()
		return a, nil
	case "tab", "shift+tab", "down", "up":
		return a, a.toggleSearchFocus()
	case "enter":
		query := sanitizeQuery(a.queryInput.Value())
		threshold, err := parseNumber("threshold", "Threshold", a.thresholdInput.Value())
		if err != nil {
			return a, a.setStatus(StatusError, describeErr(err))
		}
		scope := a.searchScope
		a.closeOverlay()
		return a, tea.Batch(a.startBusy(MsgSearching), a.runSearch(scope, query, threshold))
	}

	var cmd tea.Cmd
	if a.queryInput.Focused() {
		a.queryInput, cmd = a.queryInput.Update(msg)
	} else {
		a.thresholdInput, cmd = a.thresholdInput.Update(msg)
	}
	return a, cmd
}

func (kh *KeyHandler) handleFindKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	a := kh.app
	pressed := msg.String()

	if pressed == "esc" {
		a.closeOverlay()
		return a, nil
	}

	if a.findInput.Focused() {
		switch pressed {
		case "enter":
			if items := a.findList.Items(); len(items) > 0 {
				if i, ok := items[0].(findItem); ok {
					return a, a.selectFindResult(i)
				}
			}
			return a, nil
		case "tab", "down":
			if len(a.findList.Items()) > 0 {
				a.findInput.Blur()
				a.findList.Select(0)
			}
			return a, nil
		}
		prev := a.findInput.Value()
		var cmd tea.Cmd
		a.findInput, cmd = a.findInput.Update(msg)
		if next := sanitizeQuery(a.findInput.Value()); next != sanitizeQuery(prev) {
			a.findSeq++
			seq := a.findSeq
			return a, tea.Batch(cmd, tea.Tick(findDebounce, func(time.Time) tea.Msg { return findDebounceMsg{seq: seq} }))
		}
		return a, cmd
	}

	switch pressed {
	case "tab", "shift+tab", "/":
		return a, a.findInput.Focus()
	case "up":
		if a.findList.Index() == 0 {
			return a, a.findInput.Focus()
		}
	case "enter":
		if i, ok := a.findList.SelectedItem().(findItem); ok {
			return a, a.selectFindResult(i)
		}
		return a, nil
	}
	var cmd tea.Cmd
	a.findList, cmd = a.findList.Update(msg)
	return a, cmd
}

func (kh *KeyHandler) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	a := kh.app
	switch msg.String() {
	case "enter", "y":
		c := a.confirm
		a.closeOverlay()
		if c == nil {
			return a, nil
		}
		return a, a.runConfirmed(c)
	case "esc", "n":
		a.closeOverlay()
	}
	return a, nil
}

// GetHelpForCurrentView lists the bindings shown in the status bar.
func (kh *KeyHandler) GetHelpForCurrentView() []key.Binding {
	k := kh.keys
	a := kh.app
	switch a.overlay {
	case OverlayJobForm, OverlaySearch, OverlayFind, OverlayConfirm:
		return nil
	}

	bindings := []key.Binding{k.NewJob, k.Search, k.Find, k.Reload}
	switch a.tab {
	case TabLive:
		if a.ws.CanDeleteCurrent() {
			bindings = append(bindings, k.Delete)
		}
		bindings = append(bindings, k.Toggle, k.Open)
	case TabHistory:
		del := k.Delete
		del.SetHelp(del.Help().Key, "delete record")
		bindings = append(bindings, del, k.Pane)
		if a.ws.History.View().Pager.Visible() {
			bindings = append(bindings, k.PrevPage, k.NextPage)
		}
		if a.pane == PaneArticles {
			bindings = append(bindings, k.Toggle, k.Open)
		} else {
			sel := k.Toggle
			sel.SetHelp(sel.Help().Key, "select")
			bindings = append(bindings, sel)
		}
	case TabStats:
	}
	return append(bindings, k.Clear, k.NextTab, k.Quit)
}

// label is the display form of a binding in prompts.
func label(b key.Binding) string {
	return b.Help().Key
}

// openSearch opens the semantic search prompt for the table of the current
// tab.
func (a *App) openSearch() tea.Cmd {
	scope := state.ScopeLive
	if a.tab == TabHistory {
		scope = state.ScopeHistory
	}
	if a.tab == TabStats {
		a.tab = TabLive
	}
	a.searchScope = scope
	a.queryInput.Reset()
	a.thresholdInput.SetValue(formatFloat(a.config.Search.Threshold))
	a.thresholdInput.Blur()
	a.overlay = OverlaySearch
	return a.queryInput.Focus()
}

func (a *App) toggleSearchFocus() tea.Cmd {
	if a.queryInput.Focused() {
		a.queryInput.Blur()
		return a.thresholdInput.Focus()
	}
	a.thresholdInput.Blur()
	return a.queryInput.Focus()
}

func (a *App) openFind() tea.Cmd {
	scope := a.tableScope()
	a.findScope = scope
	a.findInput.Reset()
	a.findList.SetItems([]list.Item{})
	a.findList.Title = fmt.Sprintf("› find in %s", strings.ToLower(scope.String()))
	a.overlay = OverlayFind
	return tea.Batch(a.findInput.Focus(), a.indexFind(scope))
}

func (a *App) askDelete() tea.Cmd {
	switch a.tab {
	case TabLive:
		id := a.ws.App().Selection.ActiveHistoryID()
		if !a.ws.CanDeleteCurrent() || id == nil {
			return a.setStatus(StatusWarn, "There is no current search to delete")
		}
		a.askConfirm(&confirmation{
			action:   confirmDeleteCurrent,
			title:    "Delete current search",
			subject:  fmt.Sprintf("Search #%d", *id),
			note:     "This removes the run and its articles.",
			recordID: *id,
		})
	case TabHistory:
		rec, ok := a.recordUnderCursor()
		if !ok {
			return a.setStatus(StatusWarn, "Select a history record first")
		}
		a.askConfirm(&confirmation{
			action:   confirmDeleteRecord,
			title:    "Delete search history record",
			subject:  fmt.Sprintf("#%d • %s", rec.ID, rec.Criteria),
			note:     "This removes the record and its articles.",
			recordID: rec.ID,
		})
	}
	return nil
}

func (a *App) askConfirm(c *confirmation) {
	a.confirm = c
	a.overlay = OverlayConfirm
}

func (a *App) runConfirmed(c *confirmation) tea.Cmd {
	switch c.action {
	case confirmDeleteCurrent:
		return tea.Batch(a.startBusy(MsgDeleting), a.deleteCurrent())
	case confirmDeleteRecord:
		return tea.Batch(a.startBusy(MsgDeleting), a.deleteRecord(c.recordID))
	case confirmClearAll:
		a.liveCursor, a.articleCursor = 0, 0
		return tea.Batch(a.startBusy(MsgClearing), a.clearAll())
	}
	return nil
}

func (a *App) closeOverlay() {
	a.overlay = OverlayNone
	a.form = nil
	a.confirm = nil
	a.queryInput.Blur()
	a.thresholdInput.Blur()
	a.findInput.Blur()
}
