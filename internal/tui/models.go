package tui

import (
	"github.com/pders01/newsroom/internal/search"
	"github.com/pders01/newsroom/internal/state"
	"github.com/pders01/newsroom/internal/storage"
	"github.com/pders01/newsroom/internal/workspace"
)

// Tab is one of the three top-level screens.
type Tab int

const (
	TabLive Tab = iota
	TabHistory
	TabStats
)

var tabOrder = []Tab{TabLive, TabHistory, TabStats}

func (t Tab) String() string {
	switch t {
	case TabLive:
		return "live"
	case TabHistory:
		return "history"
	case TabStats:
		return "stats"
	}
	return "unknown"
}

// Overlay is the modal drawn over the current tab, if any.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayJobForm
	OverlaySearch
	OverlayFind
	OverlayConfirm
)

// Pane is the focused half of the history tab.
type Pane int

const (
	PaneRecords Pane = iota
	PaneArticles
)

type confirmAction int

const (
	confirmDeleteCurrent confirmAction = iota
	confirmDeleteRecord
	confirmClearAll
)

type confirmation struct {
	action   confirmAction
	title    string
	subject  string
	note     string
	recordID int64
}

// findItem is one entry of the find overlay list.
type findItem struct {
	result *search.Result
}

func (i findItem) Title() string { return i.result.Title }

func (i findItem) Description() string {
	if len(i.result.Matches) == 0 {
		return ""
	}
	m := i.result.Matches[0]
	return renderMuted(m.Field + ": " + truncateEnd(m.Text, 80))
}

func (i findItem) FilterValue() string { return i.result.Title }

type eventMsg struct {
	event workspace.Event
}

// opDoneMsg reports the end of a workspace call. text is shown as a
// success notice when err is nil.
type opDoneMsg struct {
	op   string
	text string
	err  error
}

type jobStartedMsg struct {
	jobID string
	err   error
}

type resumedMsg struct {
	res workspace.Resumed
	err error
}

type contentRenderedMsg struct {
	key     state.Key
	width   int
	content string
}

type findResultsMsg struct {
	query   string
	results []*search.Result
	err     error
}

type findIndexedMsg struct {
	scope state.Scope
	docs  int
	err   error
}

type findDebounceMsg struct {
	seq int
}

type queriesLoadedMsg struct {
	queries []storage.Query
}

type statusExpiredMsg struct {
	seq int
}

type noticeMsg struct {
	text string
}

type errorMsg struct {
	err error
}
