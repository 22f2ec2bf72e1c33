package workspace

import (
	"context"
	"errors"

	"github.com/pders01/newsroom/internal/api"
	"github.com/pders01/newsroom/internal/debuglog"
	"github.com/pders01/newsroom/internal/state"
	"github.com/pders01/newsroom/internal/storage"
	"github.com/pders01/newsroom/internal/table"
)

// Persist writes the selection to the session cache. Failures are logged;
// the cache is a convenience and never blocks an operation.
func (w *Workspace) Persist() {
	if w.store == nil {
		return
	}
	snap := w.app.Selection.Snapshot()
	w.mu.Lock()
	finished := w.jobFinished
	w.mu.Unlock()

	sess := storage.Session{
		ActiveJobID:       snap.ActiveJobID,
		JobFinished:       finished,
		ActiveHistoryID:   snap.ActiveHistoryID,
		SelectedHistoryID: snap.SelectedHistoryRecordID,
		HistoryPage:       snap.HistoryPage,
	}
	if err := w.store.SaveSession(sess); err != nil {
		debuglog.Warnf("workspace: saving session: %v", err)
	}
}

func (w *Workspace) rememberJob(req api.StartRequest) {
	if w.store == nil {
		return
	}
	in := storage.JobInput{
		Feeds:               append([]string(nil), req.RSSFeeds...),
		Criteria:            req.Criteria,
		LLMModel:            req.LLMModel,
		LLMTemperature:      req.LLMTemperature,
		SimilarityThreshold: req.SimilarityThreshold,
		RelevanceThreshold:  req.RelevanceThreshold,
	}
	if err := w.store.SaveJobInput(in); err != nil {
		debuglog.Warnf("workspace: saving job input: %v", err)
	}
}

func (w *Workspace) recordQuery(query string, threshold float64, scope state.Scope) {
	if w.store == nil {
		return
	}
	if err := w.store.AddQuery(storage.Query{Text: query, Threshold: threshold, Scope: scope.String()}); err != nil {
		debuglog.Warnf("workspace: recording query: %v", err)
	}
}

// RecentQueries returns the queries of earlier searches, newest first.
func (w *Workspace) RecentQueries(limit int) []storage.Query {
	if w.store == nil {
		return nil
	}
	qs, err := w.store.RecentQueries(limit)
	if err != nil {
		debuglog.Warnf("workspace: reading queries: %v", err)
	}
	return qs
}

// DefaultRequest pre-fills a job form: the last submitted job if one was
// saved, the configured defaults otherwise.
func (w *Workspace) DefaultRequest() api.StartRequest {
	job := w.cfg.Job
	req := api.StartRequest{
		RSSFeeds:            append(api.FeedList(nil), job.RSSFeeds...),
		Criteria:            job.Criteria,
		LLMModel:            job.LLMModel,
		LLMTemperature:      job.LLMTemperature,
		SimilarityThreshold: job.SimilarityThreshold,
		RelevanceThreshold:  job.RelevanceThreshold,
	}
	if w.store == nil {
		return req
	}
	in, ok, err := w.store.LastJobInput()
	if err != nil || !ok {
		return req
	}
	return api.StartRequest{
		RSSFeeds:            api.FeedList(in.Feeds),
		Criteria:            in.Criteria,
		LLMModel:            in.LLMModel,
		LLMTemperature:      in.LLMTemperature,
		SimilarityThreshold: in.SimilarityThreshold,
		RelevanceThreshold:  in.RelevanceThreshold,
	}
}

// Resumed describes what Resume picked up.
type Resumed struct {
	JobID     string
	Polling   bool
	HistoryID *int64
}

// Resume restores the saved session. An unfinished job is polled again;
// the results of a finished one are loaded into the live table.
func (w *Workspace) Resume(ctx context.Context) (Resumed, error) {
	if w.store == nil {
		return Resumed{}, nil
	}
	sess, ok, err := w.store.LoadSession()
	if err != nil || !ok {
		return Resumed{}, err
	}

	w.app.Selection.Restore(state.SelectionSnapshot{
		ActiveJobID:             sess.ActiveJobID,
		ActiveHistoryID:         sess.ActiveHistoryID,
		SelectedHistoryRecordID: sess.SelectedHistoryID,
		HistoryPage:             sess.HistoryPage,
	})
	res := Resumed{JobID: sess.ActiveJobID, HistoryID: sess.ActiveHistoryID}

	w.mu.Lock()
	w.jobFinished = sess.JobFinished
	w.deleteCurrent = sess.ActiveHistoryID != nil
	w.mu.Unlock()

	if sess.ActiveJobID != "" && !sess.JobFinished {
		w.Progress.Reset()
		w.Live.ShowPlaceholder(table.PlaceholderWaiting)
		w.poller.Start(w.ctx, sess.ActiveJobID, w)
		res.Polling = true
		debuglog.With("job", sess.ActiveJobID).Infof("workspace: resumed polling")
		return res, nil
	}

	if err := w.ReloadLive(ctx); err != nil && !errors.Is(err, table.ErrSuperseded) {
		return res, err
	}
	return res, nil
}
