package workspace

import (
	"github.com/pders01/newsroom/internal/api"
	"github.com/pders01/newsroom/internal/debuglog"
)

type EventKind int

const (
	EventJobStarted EventKind = iota
	EventProgress
	EventJobCompleted
	EventJobFailed
	EventPollTimeout
	// EventRefreshed follows EventJobCompleted once the post-completion
	// hooks have run.
	EventRefreshed
	EventDeleted
	EventCleared
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventJobStarted:
		return "job-started"
	case EventProgress:
		return "progress"
	case EventJobCompleted:
		return "job-completed"
	case EventJobFailed:
		return "job-failed"
	case EventPollTimeout:
		return "poll-timeout"
	case EventRefreshed:
		return "refreshed"
	case EventDeleted:
		return "deleted"
	case EventCleared:
		return "cleared"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event tells listeners that the workspace state changed.
type Event struct {
	Kind     EventKind
	JobID    string
	Snapshot *api.StatusSnapshot
	// Text is the notice to show, if any.
	Text string
	Err  error
}

// Failure reports whether the event should be shown as an error.
func (e Event) Failure() bool {
	return e.Err != nil || e.Kind == EventJobFailed || e.Kind == EventPollTimeout
}

// Listener is called synchronously from the goroutine that changed the
// state. It must not block.
type Listener func(Event)

// Subscribe registers l for every later event.
func (w *Workspace) Subscribe(l Listener) {
	w.mu.Lock()
	w.listeners = append(w.listeners, l)
	w.mu.Unlock()
}

func (w *Workspace) emit(e Event) {
	w.mu.Lock()
	ls := append([]Listener(nil), w.listeners...)
	w.mu.Unlock()

	if e.Kind != EventProgress {
		debuglog.With("event", e.Kind, "job", e.JobID).Debugf("workspace: %s", e.Text)
	}
	for _, l := range ls {
		l(e)
	}
}

func (w *Workspace) emitError(err error) {
	w.emit(Event{Kind: EventError, Err: err, Text: api.UserMessage(err)})
}
