package workspace

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/newsroom/internal/api"
	"github.com/pders01/newsroom/internal/api/apitest"
	"github.com/pders01/newsroom/internal/config"
	"github.com/pders01/newsroom/internal/plugins/user"
	"github.com/pders01/newsroom/internal/progress"
	"github.com/pders01/newsroom/internal/rows"
	"github.com/pders01/newsroom/internal/state"
	"github.com/pders01/newsroom/internal/storage"
	"github.com/pders01/newsroom/internal/table"
)

type harness struct {
	srv    *apitest.Server
	ws     *Workspace
	store  *storage.Store
	events chan Event

	mu    sync.Mutex
	first []progress.Slot
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)

	cfg := config.TestConfig()
	cfg.Backend.BaseURL = srv.URL
	client, err := api.NewClient(cfg)
	require.NoError(t, err)

	store, err := storage.NewStore(filepath.Join(t.TempDir(), "session.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := &harness{srv: srv, store: store, events: make(chan Event, 256)}
	h.ws = New(cfg, client, append([]Option{WithStore(store)}, opts...)...)
	t.Cleanup(h.ws.Close)

	h.ws.Subscribe(func(e Event) {
		if e.Kind == EventProgress {
			h.mu.Lock()
			if h.first == nil {
				h.first = h.ws.Progress.Slots()
			}
			h.mu.Unlock()
		}
		select {
		case h.events <- e:
		default:
		}
	})
	return h
}

func (h *harness) waitFor(t *testing.T, kind EventKind) Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case e := <-h.events:
			if e.Kind == kind {
				return e
			}
		case <-timeout:
			t.Fatalf("no %s event", kind)
			return Event{}
		}
	}
}

func request() api.StartRequest {
	return api.StartRequest{
		RSSFeeds:            api.FeedList{"https://news.example/rss"},
		Criteria:            "central banks",
		LLMModel:            "gpt-4o-mini",
		LLMTemperature:      0.3,
		SimilarityThreshold: 0.85,
		RelevanceThreshold:  0.7,
	}
}

func completedSteps() []map[string]any {
	steps := make([]map[string]any, 5)
	for i := range steps {
		steps[i] = apitest.Step("step", "completed", 100, "")
	}
	return steps
}

func articles(ids ...int64) []api.Article {
	out := make([]api.Article, 0, len(ids))
	for _, id := range ids {
		out = append(out, api.Article{ID: id, Title: "headline", Content: "<p>body</p>", Source: "wire"})
	}
	return out
}

var runStats = api.RunStatistics{Total: 50, Relevant: 12, Duplicates: 8, UniqueNonRelevant: 30}

func TestJobRunsToCompletion(t *testing.T) {
	h := newHarness(t)
	h.srv.QueueTaskIDs("42")
	h.srv.QueueStatus("42",
		apitest.Snap("42", "running", apitest.Step("collect", "running", 40, "")),
		apitest.Snap("42", "running", completedSteps()...).Completed(7, runStats),
	)
	h.srv.SetHistoryArticles(7, articles(1, 2, 3))
	h.srv.SetStatistics(api.Statistics{Total: 50, Relevant: 12})

	jobID, err := h.ws.StartJob(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "42", jobID)

	started := h.srv.Started()
	require.Len(t, started, 1)
	assert.Equal(t, 0.85, started[0].SimilarityThreshold)
	assert.Equal(t, 0.7, started[0].RelevanceThreshold)
	assert.Equal(t, 0.3, started[0].LLMTemperature)

	done := h.waitFor(t, EventJobCompleted)
	assert.Equal(t, "Processing completed", done.Text)
	h.waitFor(t, EventRefreshed)

	h.mu.Lock()
	first := h.first
	h.mu.Unlock()
	require.NotEmpty(t, first)
	assert.Equal(t, api.StepRunning, first[0].Status)
	assert.Equal(t, 40, first[0].Progress)

	require.Eventually(t, func() bool { return h.ws.Poller().LiveTimers() == 0 }, time.Second, 5*time.Millisecond)

	snap := h.ws.Stats.Snapshot()
	assert.True(t, snap.RunVisible)
	assert.Equal(t, runStats, snap.Run)
	require.NotNil(t, snap.General)
	assert.Equal(t, 50, snap.General.Total)

	v := h.ws.Live.View()
	assert.Equal(t, table.ModePrimary, v.Mode)
	require.NotNil(t, v.SelectionID)
	assert.Equal(t, int64(7), *v.SelectionID)
	assert.Equal(t, []int64{1, 2, 3}, rows.IDs(v.Rows))
	assert.Equal(t, 1, h.srv.Hits("/api/results"))

	assert.True(t, h.ws.CanDeleteCurrent())
	for _, slot := range h.ws.Progress.Slots() {
		assert.Equal(t, api.StepCompleted, slot.Status)
	}
}

func TestStartJobShowsWaitingState(t *testing.T) {
	h := newHarness(t)
	release := h.srv.Hold("/api/status/task-1")
	defer release()

	_, err := h.ws.StartJob(context.Background(), request())
	require.NoError(t, err)

	v := h.ws.Live.View()
	assert.Equal(t, table.ModeEmpty, v.Mode)
	assert.Equal(t, table.PlaceholderWaiting, v.Message())
	assert.True(t, h.ws.Progress.Visible())
	assert.Len(t, h.ws.Progress.Slots(), 5)
	assert.False(t, h.ws.CanDeleteCurrent())
	assert.Equal(t, "task-1", h.ws.App().Selection.ActiveJobID())
}

func TestStartJobValidationSendsNothing(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(*api.StartRequest)
		field string
	}{
		{"no feeds", func(r *api.StartRequest) { r.RSSFeeds = nil }, "rss_feeds"},
		{"localhost feed", func(r *api.StartRequest) { r.RSSFeeds = api.FeedList{"http://localhost/rss"} }, "rss_feeds"},
		{"blank criteria", func(r *api.StartRequest) { r.Criteria = "  " }, "criteria"},
		{"temperature", func(r *api.StartRequest) { r.LLMTemperature = 2.5 }, "llm_temperature"},
		{"similarity", func(r *api.StartRequest) { r.SimilarityThreshold = 1.2 }, "similarity_threshold"},
		{"relevance", func(r *api.StartRequest) { r.RelevanceThreshold = -0.1 }, "relevance_threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			req := request()
			tt.mod(&req)

			_, err := h.ws.StartJob(context.Background(), req)
			var ve *api.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.Zero(t, h.srv.TotalHits())
			assert.Zero(t, h.ws.Poller().LiveTimers())
		})
	}
}

func TestStartJobRewritesFeedsThroughPlugins(t *testing.T) {
	h := newHarness(t, WithRegistry(user.NewDefaultRegistry(time.Second)))
	h.srv.QueueStatus("task-1", apitest.Snap("task-1", "running"))

	req := request()
	req.RSSFeeds = api.FeedList{"https://reddit.com/r/golang", "https://news.example/rss"}
	_, err := h.ws.StartJob(context.Background(), req)
	require.NoError(t, err)

	started := h.srv.Started()
	require.Len(t, started, 1)
	assert.Equal(t, api.FeedList{"https://reddit.com/r/golang.rss", "https://news.example/rss"}, started[0].RSSFeeds)
}

func TestStartJobBackendError(t *testing.T) {
	h := newHarness(t)
	h.srv.Fail("/api/start", 400, `{"error": "no RSS feeds reachable"}`)

	_, err := h.ws.StartJob(context.Background(), request())
	var be *api.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "no RSS feeds reachable", api.UserMessage(err))
	assert.Empty(t, h.ws.App().Selection.ActiveJobID())
	assert.Zero(t, h.ws.Poller().LiveTimers())
}

func TestJobFailureKeepsPartialState(t *testing.T) {
	h := newHarness(t)
	h.srv.QueueStatus("task-1",
		apitest.Snap("task-1", "error", apitest.Step("collect", "error", 20, "timeout")).Failed("LLM quota exceeded"),
	)

	_, err := h.ws.StartJob(context.Background(), request())
	require.NoError(t, err)

	e := h.waitFor(t, EventJobFailed)
	assert.Equal(t, "LLM quota exceeded", e.Text)
	assert.True(t, e.Failure())
	var be *api.BackendError
	require.ErrorAs(t, e.Err, &be)

	assert.False(t, h.ws.CanDeleteCurrent())
	assert.False(t, h.ws.Stats.Snapshot().RunVisible)
	assert.Equal(t, table.PlaceholderWaiting, h.ws.Live.View().Message())
	slots := h.ws.Progress.Slots()
	assert.Equal(t, api.StepError, slots[0].Status)
	assert.Equal(t, "timeout", slots[0].Message)
	assert.Zero(t, h.srv.Hits("/api/results"))
}

func TestRestartKeepsOneTimer(t *testing.T) {
	h := newHarness(t)
	h.srv.QueueStatus("task-1", apitest.Snap("task-1", "running", apitest.Step("collect", "running", 10, "")))
	h.srv.QueueStatus("task-2",
		apitest.Snap("task-2", "running", apitest.Step("collect", "running", 10, "")),
		apitest.Snap("task-2", "completed", completedSteps()...).Completed(9, runStats),
	)

	ctx := context.Background()
	_, err := h.ws.StartJob(ctx, request())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.srv.Hits("/api/status/task-1") > 0 }, time.Second, 5*time.Millisecond)

	_, err = h.ws.StartJob(ctx, request())
	require.NoError(t, err)
	assert.LessOrEqual(t, h.ws.Poller().LiveTimers(), 1)

	e := h.waitFor(t, EventJobCompleted)
	assert.Equal(t, "task-2", e.JobID)
	hits := h.srv.Hits("/api/status/task-1")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, hits, h.srv.Hits("/api/status/task-1"), "the first job is no longer polled")

	active := h.ws.App().Selection.ActiveHistoryID()
	require.NotNil(t, active)
	assert.Equal(t, int64(9), *active)
}

func TestCompletedHooksRunAfterStatistics(t *testing.T) {
	var mu sync.Mutex
	var sawRun, sawLive bool
	var ws *Workspace
	hook := OnCompleted(func(ctx context.Context, jobID string, snap *api.StatusSnapshot) {
		mu.Lock()
		defer mu.Unlock()
		sawRun = ws.Stats.Snapshot().RunVisible
		sawLive = ws.Live.View().Mode == table.ModePrimary
	})
	h := newHarness(t, hook)
	ws = h.ws
	h.srv.QueueStatus("task-1", apitest.Snap("task-1", "completed", completedSteps()...).Completed(3, runStats))
	h.srv.SetHistoryArticles(3, articles(5))

	_, err := h.ws.StartJob(context.Background(), request())
	require.NoError(t, err)
	h.waitFor(t, EventRefreshed)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, sawRun, "run statistics are shown before the hooks")
	assert.True(t, sawLive, "the default live reload runs before added hooks")
}

func runToCompletion(t *testing.T, h *harness, historyID int64) {
	t.Helper()
	h.srv.QueueStatus("task-1", apitest.Snap("task-1", "completed", completedSteps()...).Completed(historyID, runStats))
	_, err := h.ws.StartJob(context.Background(), request())
	require.NoError(t, err)
	h.waitFor(t, EventRefreshed)
}

func TestClearAll(t *testing.T) {
	h := newHarness(t)
	h.srv.SetHistoryArticles(7, articles(1, 2))
	h.srv.SetHistory([]api.HistoryRecord{{ID: 7}})
	runToCompletion(t, h, 7)
	h.ws.App().Selection.SetHistoryPage(2)

	msg, err := h.ws.ClearAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "database cleared", msg)

	sel := h.ws.App().Selection.Snapshot()
	assert.Empty(t, sel.ActiveJobID)
	assert.Nil(t, sel.ActiveHistoryID)
	assert.Equal(t, 2, sel.HistoryPage, "pagination survives a clear")

	assert.False(t, h.ws.Progress.Visible())
	assert.False(t, h.ws.Stats.Snapshot().RunVisible)
	assert.False(t, h.ws.CanDeleteCurrent())
	v := h.ws.Live.View()
	assert.Equal(t, table.ModeEmpty, v.Mode)
	assert.Equal(t, table.PlaceholderLive, v.Message())
	h.waitFor(t, EventCleared)
}

func TestClearAllFailureLeavesState(t *testing.T) {
	h := newHarness(t)
	h.srv.SetHistoryArticles(7, articles(1))
	runToCompletion(t, h, 7)
	h.srv.Fail("/api/clear-db", 200, "<html>oops</html>")

	_, err := h.ws.ClearAll(context.Background())
	require.Error(t, err)
	assert.Equal(t, "unexpected server response", api.UserMessage(err))
	assert.NotNil(t, h.ws.App().Selection.ActiveHistoryID())
	assert.Equal(t, []int64{1}, rows.IDs(h.ws.Live.View().Rows))
}

func TestDeleteCurrent(t *testing.T) {
	h := newHarness(t)
	h.srv.SetHistory([]api.HistoryRecord{{ID: 7}, {ID: 6}})
	h.srv.SetHistoryArticles(7, articles(1, 2))
	runToCompletion(t, h, 7)
	statsHits := h.srv.Hits("/api/statistics")

	msg, err := h.ws.DeleteCurrent(context.Background())
	require.NoError(t, err)
	assert.Contains(t, msg, "deleted history record")

	assert.Nil(t, h.ws.App().Selection.ActiveHistoryID())
	assert.False(t, h.ws.CanDeleteCurrent())
	assert.Equal(t, table.ModeEmpty, h.ws.Live.View().Mode)
	assert.Equal(t, statsHits+1, h.srv.Hits("/api/statistics"))
	assert.Zero(t, h.srv.Hits("/api/search-history"), "history tab not shown")

	_, err = h.ws.DeleteCurrent(context.Background())
	assert.True(t, api.IsValidation(err))
}

func TestDeleteCurrentReloadsShownHistory(t *testing.T) {
	h := newHarness(t)
	h.srv.SetHistory([]api.HistoryRecord{{ID: 7}, {ID: 6}})
	runToCompletion(t, h, 7)
	h.ws.SetHistoryActive(true)

	_, err := h.ws.DeleteCurrent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, h.srv.Hits("/api/search-history"))

	v := h.ws.History.View()
	require.Len(t, v.Rows, 1)
	assert.Equal(t, int64(6), v.Rows[0].ID)
}

func TestDeletingLiveRecordFromHistory(t *testing.T) {
	h := newHarness(t)
	h.srv.SetHistory([]api.HistoryRecord{{ID: 7}, {ID: 6}})
	h.srv.SetHistoryArticles(7, articles(1))
	runToCompletion(t, h, 7)

	ctx := context.Background()
	require.NoError(t, h.ws.History.LoadPage(ctx, 1))
	_, err := h.ws.DeleteHistory(ctx, 7)
	require.NoError(t, err)

	assert.Nil(t, h.ws.App().Selection.ActiveHistoryID())
	assert.Nil(t, h.ws.App().Selection.SelectedHistoryRecord())
	assert.False(t, h.ws.CanDeleteCurrent())
	assert.Equal(t, table.ModeEmpty, h.ws.Live.View().Mode)
	assert.Equal(t, table.ModeEmpty, h.ws.History.Articles().View().Mode)
}

func TestExpansionAcrossTabs(t *testing.T) {
	h := newHarness(t)
	h.srv.SetHistory([]api.HistoryRecord{{ID: 7}})
	h.srv.SetHistoryArticles(7, articles(1, 2))
	runToCompletion(t, h, 7)
	require.NoError(t, h.ws.History.LoadPage(context.Background(), 1))

	tr, ok := h.ws.ToggleExpansion(state.ScopeLive, 1)
	require.True(t, ok)
	require.NotNil(t, tr.Expanded)

	tr, ok = h.ws.ToggleExpansion(state.ScopeHistory, 1)
	require.True(t, ok)
	require.NotNil(t, tr.Collapsed)
	assert.Equal(t, state.Key{Scope: state.ScopeLive, ArticleID: 1}, *tr.Collapsed)
	assert.False(t, h.ws.App().Expansion.IsExpanded(state.ScopeLive, 1))
	assert.True(t, h.ws.App().Expansion.IsExpanded(state.ScopeHistory, 1))
}

func TestLiveSearch(t *testing.T) {
	h := newHarness(t)
	h.srv.SetSearch(func(req api.SearchRequest) api.SemanticResult {
		return api.SemanticResult{Query: req.Query, Articles: []api.Article{
			{ID: 4, Title: "rates", SimilarityScore: api.Float64(0.91)},
		}}
	})
	ctx := context.Background()

	err := h.ws.RunLiveSearch(ctx, "   ", 0.7, 10)
	assert.True(t, api.IsValidation(err))
	assert.Zero(t, h.srv.TotalHits())
	assert.Empty(t, h.ws.RecentQueries(0))

	require.NoError(t, h.ws.RunLiveSearch(ctx, "interest rates", 0.7, 10))
	v := h.ws.Live.View()
	assert.Equal(t, table.ModeSemantic, v.Mode)
	require.NotNil(t, v.Header)
	assert.Equal(t, 1, v.Header.Found)

	searches := h.srv.Searches()
	require.Len(t, searches, 1)
	assert.Nil(t, searches[0].SearchHistoryID, "no active run searches every article")

	recent := h.ws.RecentQueries(0)
	require.Len(t, recent, 1)
	assert.Equal(t, "interest rates", recent[0].Text)
	assert.Equal(t, "live", recent[0].Scope)
}

func TestHistorySearchNeedsSelection(t *testing.T) {
	h := newHarness(t)
	err := h.ws.RunHistorySearch(context.Background(), "rates", 0.7, 10)
	var ve *api.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "search_history_id", ve.Field)
	assert.Zero(t, h.srv.TotalHits())
}

func TestResumeUnfinishedJob(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.SaveSession(storage.Session{ActiveJobID: "task-9", HistoryPage: 2}))
	h.srv.QueueStatus("task-9", apitest.Snap("task-9", "completed", completedSteps()...).Completed(3, runStats))
	h.srv.SetHistoryArticles(3, articles(8))

	res, err := h.ws.Resume(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Polling)
	assert.Equal(t, "task-9", res.JobID)
	assert.Equal(t, 2, h.ws.App().Selection.HistoryPage())

	h.waitFor(t, EventRefreshed)
	assert.Equal(t, []int64{8}, rows.IDs(h.ws.Live.View().Rows))

	sess, ok, err := h.store.LoadSession()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, sess.JobFinished)
	require.NotNil(t, sess.ActiveHistoryID)
	assert.Equal(t, int64(3), *sess.ActiveHistoryID)
}

func TestResumeFinishedJob(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.SaveSession(storage.Session{
		ActiveJobID:     "task-9",
		JobFinished:     true,
		ActiveHistoryID: api.Int64(3),
	}))
	h.srv.SetHistoryArticles(3, articles(8, 9))

	res, err := h.ws.Resume(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Polling)
	assert.Zero(t, h.srv.Hits("/api/status/task-9"))
	assert.Equal(t, []int64{8, 9}, rows.IDs(h.ws.Live.View().Rows))
	assert.True(t, h.ws.CanDeleteCurrent())
}

func TestDefaultRequestPrefersLastJob(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, h.ws.Config().Job.LLMModel, h.ws.DefaultRequest().LLMModel)

	h.srv.QueueStatus("task-1", apitest.Snap("task-1", "running"))
	req := request()
	req.Criteria = "energy markets"
	_, err := h.ws.StartJob(context.Background(), req)
	require.NoError(t, err)

	got := h.ws.DefaultRequest()
	assert.Equal(t, "energy markets", got.Criteria)
	assert.Equal(t, api.FeedList{"https://news.example/rss"}, got.RSSFeeds)
}

func TestPollTimeout(t *testing.T) {
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	cfg := config.TestConfig()
	cfg.Backend.BaseURL = srv.URL
	cfg.Backend.PollMaxDuration = 40 * time.Millisecond
	client, err := api.NewClient(cfg)
	require.NoError(t, err)

	ws := New(cfg, client)
	t.Cleanup(ws.Close)
	got := make(chan Event, 64)
	ws.Subscribe(func(e Event) {
		if e.Kind == EventPollTimeout {
			got <- e
		}
	})
	srv.QueueStatus("task-1", apitest.Snap("task-1", "running"))

	_, err = ws.StartJob(context.Background(), request())
	require.NoError(t, err)
	select {
	case e := <-got:
		assert.True(t, e.Failure())
		assert.Contains(t, e.Text, "task-1")
	case <-time.After(2 * time.Second):
		t.Fatal("no timeout event")
	}
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "job-completed", EventJobCompleted.String())
	assert.Equal(t, "unknown", EventKind(99).String())
	assert.False(t, Event{Kind: EventProgress}.Failure())
	assert.True(t, Event{Kind: EventError, Err: errors.New("x")}.Failure())
}
