// Package workspace wires the poller, the progress view, the tables and
// the statistics panel into the control flow of one client session. Both
// the TUI and the CLI drive the backend through a Workspace.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pders01/newsroom/internal/api"
	"github.com/pders01/newsroom/internal/config"
	"github.com/pders01/newsroom/internal/debuglog"
	"github.com/pders01/newsroom/internal/history"
	"github.com/pders01/newsroom/internal/plugins"
	"github.com/pders01/newsroom/internal/poller"
	"github.com/pders01/newsroom/internal/progress"
	"github.com/pders01/newsroom/internal/state"
	"github.com/pders01/newsroom/internal/stats"
	"github.com/pders01/newsroom/internal/storage"
	"github.com/pders01/newsroom/internal/table"
	"github.com/pders01/newsroom/internal/validation"
)

// Backend is everything the client asks of the pipeline. *api.Client
// implements it.
type Backend interface {
	history.Backend
	StartJob(ctx context.Context, req api.StartRequest) (string, error)
	Status(ctx context.Context, jobID string) (*api.StatusSnapshot, error)
	ClearAll(ctx context.Context) (string, error)
	Statistics(ctx context.Context) (*api.Statistics, error)
}

// CompletedHook runs after a job completed and its statistics were shown.
type CompletedHook func(ctx context.Context, jobID string, snap *api.StatusSnapshot)

type Option func(*Workspace)

// WithStore persists the session so a later run can resume it.
func WithStore(s *storage.Store) Option {
	return func(w *Workspace) { w.store = s }
}

// WithRegistry rewrites feed URLs through r before validation.
func WithRegistry(r *plugins.Registry) Option {
	return func(w *Workspace) { w.registry = r }
}

// WithValidator replaces the default feed URL validator.
func WithValidator(v *validation.FeedURLValidator) Option {
	return func(w *Workspace) { w.validator = v }
}

// WithStages sets the labels of the progress slots.
func WithStages(s progress.Stages) Option {
	return func(w *Workspace) { w.stages = &s }
}

// OnCompleted appends a hook to the post-completion list.
func OnCompleted(h CompletedHook) Option {
	return func(w *Workspace) { w.hooks = append(w.hooks, h) }
}

type Workspace struct {
	cfg     *config.Config
	backend Backend
	app     *state.App
	poller  *poller.Poller

	Progress *progress.View
	Live     *table.Controller
	History  *history.Controller
	Stats    *stats.View

	store     *storage.Store
	registry  *plugins.Registry
	validator *validation.FeedURLValidator
	stages    *progress.Stages
	hooks     []CompletedHook

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	listeners     []Listener
	deleteCurrent bool
	historyActive bool
	jobFinished   bool
}

// New builds a workspace. The default post-completion hooks refresh the
// general statistics and reload the live table; hooks given as options
// run after them.
func New(cfg *config.Config, b Backend, opts ...Option) *Workspace {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Workspace{
		cfg:     cfg,
		backend: b,
		app:     state.New(),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.validator == nil {
		w.validator = validation.NewFeedURLValidator()
	}
	stages := progress.DefaultStages()
	if w.stages != nil {
		stages = *w.stages
	}

	layout := cfg.UI.DateFormat
	w.poller = poller.New(b, cfg.Backend.PollInterval, poller.WithMaxDuration(cfg.Backend.PollMaxDuration))
	w.Progress = progress.NewView(stages)
	w.Live = table.NewLive(b, w.app, table.WithDateFormat(layout))
	w.History = history.New(b, w.app, history.WithDateFormat(layout), history.OnDeleted(w.historyDeleted))
	w.Stats = stats.New(b)

	w.hooks = append([]CompletedHook{w.refreshStats, w.reloadLive}, w.hooks...)
	return w
}

// App exposes the shared selection and expansion state.
func (w *Workspace) App() *state.App { return w.app }

func (w *Workspace) Config() *config.Config { return w.cfg }

// Poller is the job status poller. Tests use it to count live loops.
func (w *Workspace) Poller() *poller.Poller { return w.poller }

// CanDeleteCurrent reports whether the live run can be deleted.
func (w *Workspace) CanDeleteCurrent() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.deleteCurrent && w.app.Selection.ActiveHistoryID() != nil
}

func (w *Workspace) setDeleteCurrent(on bool) {
	w.mu.Lock()
	w.deleteCurrent = on
	w.mu.Unlock()
}

// SetHistoryActive tells the workspace whether the history tab is shown.
func (w *Workspace) SetHistoryActive(on bool) {
	w.mu.Lock()
	w.historyActive = on
	w.mu.Unlock()
}

func (w *Workspace) historyShown() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.historyActive
}

// StartJob validates req, submits it and starts polling the new job. Feed
// URLs are rewritten by the plugin registry first. Nothing is sent when
// validation fails.
func (w *Workspace) StartJob(ctx context.Context, req api.StartRequest) (string, error) {
	if w.registry != nil {
		req.RSSFeeds = w.registry.ResolveAll(ctx, req.RSSFeeds)
	}
	if err := validation.StartRequest(w.validator, &req); err != nil {
		return "", err
	}

	jobID, err := w.backend.StartJob(ctx, req)
	if err != nil {
		return "", fmt.Errorf("start job: %w", err)
	}
	if jobID == "" {
		return "", &api.MalformedResponseError{Op: "start job", Err: errors.New("empty task_id")}
	}

	w.app.Selection.SetActiveJob(jobID)
	w.Progress.Reset()
	w.Stats.Hide()
	w.Live.ShowPlaceholder(table.PlaceholderWaiting)
	w.mu.Lock()
	w.deleteCurrent = false
	w.jobFinished = false
	w.mu.Unlock()

	w.poller.Start(w.ctx, jobID, w)
	debuglog.With("job", jobID, "feeds", len(req.RSSFeeds)).Infof("workspace: job submitted")

	w.rememberJob(req)
	w.Persist()
	w.emit(Event{Kind: EventJobStarted, JobID: jobID})
	return jobID, nil
}

// OnSnapshot implements poller.Sink.
func (w *Workspace) OnSnapshot(jobID string, snap *api.StatusSnapshot) {
	if jobID != w.app.Selection.ActiveJobID() {
		return
	}
	res := w.Progress.Apply(snap)
	if len(res.Skipped) > 0 {
		debuglog.With("job", jobID, "skipped", res.Skipped).Debugf("workspace: steps without slot")
	}
	w.emit(Event{Kind: EventProgress, JobID: jobID, Snapshot: snap})
}

// OnTerminal implements poller.Sink. The follow-up work runs on its own
// goroutine so the poller is never blocked by it.
func (w *Workspace) OnTerminal(jobID string, snap *api.StatusSnapshot) {
	if jobID != w.app.Selection.ActiveJobID() {
		return
	}
	w.mu.Lock()
	w.jobFinished = true
	w.mu.Unlock()

	if snap.Status == api.JobError {
		msg := snap.ErrorMessage
		if msg == "" {
			msg = "The job failed"
		}
		debuglog.With("job", jobID).Warnf("workspace: job failed: %s", msg)
		w.Persist()
		w.emit(Event{
			Kind:  EventJobFailed,
			JobID: jobID,
			Text:  msg,
			Err:   &api.BackendError{Message: msg},
		})
		return
	}

	w.Stats.ShowRun(snap.Statistics)
	if snap.SearchHistoryID != nil {
		w.app.Selection.AttachHistory(*snap.SearchHistoryID)
		w.setDeleteCurrent(true)
	}
	w.Persist()
	w.emit(Event{Kind: EventJobCompleted, JobID: jobID, Snapshot: snap, Text: "Processing completed"})

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for _, h := range w.hooks {
			if w.ctx.Err() != nil {
				return
			}
			h(w.ctx, jobID, snap)
		}
		w.emit(Event{Kind: EventRefreshed, JobID: jobID})
	}()
}

// OnPollTimeout implements poller.TimeoutSink.
func (w *Workspace) OnPollTimeout(jobID string) {
	w.emit(Event{
		Kind:  EventPollTimeout,
		JobID: jobID,
		Text:  fmt.Sprintf("Stopped waiting for job %s after %s", jobID, w.cfg.Backend.PollMaxDuration),
	})
}

func (w *Workspace) refreshStats(ctx context.Context, _ string, _ *api.StatusSnapshot) {
	if err := w.Stats.Refresh(ctx); err != nil {
		w.emitError(err)
	}
}

func (w *Workspace) reloadLive(ctx context.Context, _ string, _ *api.StatusSnapshot) {
	if err := w.ReloadLive(ctx); err != nil {
		w.emitError(err)
	}
}

// ReloadLive shows the primary listing of the active run.
func (w *Workspace) ReloadLive(ctx context.Context) error {
	err := w.Live.LoadPrimary(ctx, w.app.Selection.ActiveHistoryID())
	if errors.Is(err, table.ErrSuperseded) {
		return nil
	}
	return err
}

// RunLiveSearch runs a semantic search on the live tab and records the
// query in the session cache.
func (w *Workspace) RunLiveSearch(ctx context.Context, query string, threshold float64, limit int) error {
	err := w.Live.RunSemanticSearch(ctx, w.app.Selection.ActiveHistoryID(), query, threshold, limit)
	if api.IsValidation(err) || errors.Is(err, table.ErrSuperseded) {
		return err
	}
	w.recordQuery(query, threshold, state.ScopeLive)
	return err
}

// RunHistorySearch runs a semantic search over the selected history record.
func (w *Workspace) RunHistorySearch(ctx context.Context, query string, threshold float64, limit int) error {
	err := w.History.Search(ctx, query, threshold, limit)
	if api.IsValidation(err) || errors.Is(err, table.ErrSuperseded) {
		return err
	}
	w.recordQuery(query, threshold, state.ScopeHistory)
	return err
}

// ToggleExpansion toggles articleID in the table of scope.
func (w *Workspace) ToggleExpansion(scope state.Scope, articleID int64) (state.Transition, bool) {
	if scope == state.ScopeHistory {
		return w.History.Articles().ToggleExpansion(articleID)
	}
	return w.Live.ToggleExpansion(articleID)
}

// DeleteCurrent deletes the run shown on the live tab. Callers obtain the
// user's confirmation first.
func (w *Workspace) DeleteCurrent(ctx context.Context) (string, error) {
	id := w.app.Selection.ActiveHistoryID()
	if id == nil {
		return "", &api.ValidationError{Message: "There is no current search to delete"}
	}
	msg, err := w.backend.DeleteHistory(ctx, *id)
	if err != nil {
		return "", fmt.Errorf("delete current search: %w", err)
	}
	debuglog.With("id", *id).Infof("workspace: current search deleted")
	if msg == "" {
		msg = "Search deleted"
	}

	w.app.Selection.DetachHistory(*id)
	w.setDeleteCurrent(false)
	w.Persist()

	var errs []error
	if err := w.ReloadLive(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := w.Stats.Refresh(ctx); err != nil {
		errs = append(errs, err)
	}
	if w.historyShown() {
		if err := w.History.Reactivate(ctx); err != nil && !errors.Is(err, table.ErrSuperseded) {
			errs = append(errs, err)
		}
	}
	w.emit(Event{Kind: EventDeleted, Text: msg})
	return msg, errors.Join(errs...)
}

// DeleteHistory deletes a record from the history tab. Callers obtain the
// user's confirmation first.
func (w *Workspace) DeleteHistory(ctx context.Context, id int64) (string, error) {
	msg, err := w.History.Delete(ctx, id)
	if errors.Is(err, table.ErrSuperseded) {
		err = nil
	}
	if msg != "" {
		w.Persist()
		w.emit(Event{Kind: EventDeleted, Text: msg})
	}
	return msg, err
}

// historyDeleted keeps the live tab consistent with a record deleted from
// the history tab.
func (w *Workspace) historyDeleted(ctx context.Context, id int64) {
	if w.app.Selection.DetachHistory(id) {
		w.setDeleteCurrent(false)
		if err := w.ReloadLive(ctx); err != nil {
			w.emitError(err)
		}
	}
	if err := w.Stats.Refresh(ctx); err != nil {
		w.emitError(err)
	}
}

// ClearAll wipes the backend database. Callers obtain the user's
// confirmation first. Polling stops and the live side is reset; the
// history page number is kept.
func (w *Workspace) ClearAll(ctx context.Context) (string, error) {
	msg, err := w.backend.ClearAll(ctx)
	if err != nil {
		return "", fmt.Errorf("clear database: %w", err)
	}
	if msg == "" {
		msg = "Database cleared"
	}
	debuglog.Infof("workspace: database cleared")

	w.poller.Stop()
	w.app.Selection.ClearLive()
	w.Progress.Hide()
	w.Stats.Hide()
	w.mu.Lock()
	w.deleteCurrent = false
	w.jobFinished = false
	w.mu.Unlock()
	w.Persist()

	var errs []error
	if err := w.ReloadLive(ctx); err != nil {
		errs = append(errs, err)
	}
	if w.historyShown() {
		if err := w.History.Reactivate(ctx); err != nil && !errors.Is(err, table.ErrSuperseded) {
			errs = append(errs, err)
		}
	}
	w.emit(Event{Kind: EventCleared, Text: msg})
	return msg, errors.Join(errs...)
}

// Close stops polling and waits for running follow-up work.
func (w *Workspace) Close() {
	w.poller.Stop()
	w.cancel()
	if h, ok := w.poller.Active(); ok {
		<-h.Done()
	}
	w.wg.Wait()
}

// Wait blocks until the follow-up work of completed jobs has finished.
func (w *Workspace) Wait() {
	w.wg.Wait()
}
