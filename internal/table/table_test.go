package table

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/newsroom/internal/api"
	"github.com/pders01/newsroom/internal/api/apitest"
	"github.com/pders01/newsroom/internal/config"
	"github.com/pders01/newsroom/internal/rows"
	"github.com/pders01/newsroom/internal/state"
)

func setup(t *testing.T) (*apitest.Server, *api.Client, *state.App) {
	t.Helper()
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)

	cfg := config.TestConfig()
	cfg.Backend.BaseURL = srv.URL
	client, err := api.NewClient(cfg)
	require.NoError(t, err)
	return srv, client, state.New()
}

func articles(ids ...int64) []api.Article {
	out := make([]api.Article, 0, len(ids))
	for _, id := range ids {
		out = append(out, api.Article{
			ID:      id,
			Title:   "article",
			Content: "<p>body</p>",
			Summary: "short",
			Source:  "wire",
		})
	}
	return out
}

func TestNilSelectionIsEmptyWithoutRequest(t *testing.T) {
	srv, client, app := setup(t)
	c := NewLive(client, app)

	require.NoError(t, c.LoadPrimary(context.Background(), nil))
	v := c.View()
	assert.Equal(t, ModeEmpty, v.Mode)
	assert.Equal(t, PlaceholderLive, v.Message())
	assert.Zero(t, srv.TotalHits())
}

func TestLoadPrimaryLive(t *testing.T) {
	srv, client, app := setup(t)
	srv.SetHistoryArticles(7, articles(1, 2, 3))
	c := NewLive(client, app)

	require.NoError(t, c.LoadPrimary(context.Background(), api.Int64(7)))
	v := c.View()
	assert.Equal(t, ModePrimary, v.Mode)
	assert.Equal(t, PhaseReady, v.Phase)
	assert.Equal(t, []int64{1, 2, 3}, rows.IDs(v.Rows))
	require.NotNil(t, v.SelectionID)
	assert.Equal(t, int64(7), *v.SelectionID)

	_, ok := v.Rows[0].Detail(rows.DetailSummary)
	assert.True(t, ok, "live rows carry summaries")
	assert.Equal(t, 1, srv.Hits("/api/results"))
}

func TestLoadPrimaryHistoryHasNoSummaries(t *testing.T) {
	srv, client, app := setup(t)
	srv.SetHistoryArticles(3, articles(10))
	c := NewHistory(client, app)

	require.NoError(t, c.LoadPrimary(context.Background(), api.Int64(3)))
	v := c.View()
	require.Len(t, v.Rows, 1)
	_, ok := v.Rows[0].Detail(rows.DetailSummary)
	assert.False(t, ok)
	assert.Equal(t, state.ScopeHistory, v.Rows[0].Scope)
	assert.Equal(t, 1, srv.Hits("/api/search-history/3/articles"))
}

func TestEmptyPrimaryListing(t *testing.T) {
	_, client, app := setup(t)
	c := NewLive(client, app)

	require.NoError(t, c.LoadPrimary(context.Background(), api.Int64(99)))
	v := c.View()
	assert.Equal(t, ModePrimary, v.Mode)
	assert.Empty(t, v.Rows)
	assert.Equal(t, PlaceholderNoRows, v.Message())
}

func TestPrimaryReloadReplacesSemanticOverlay(t *testing.T) {
	srv, client, app := setup(t)
	srv.SetHistoryArticles(7, articles(1, 2, 3))
	srv.SetSearch(func(api.SearchRequest) api.SemanticResult {
		a := articles(2)
		a[0].SimilarityScore = api.Float64(0.91)
		return api.SemanticResult{Articles: a}
	})
	c := NewLive(client, app)
	ctx := context.Background()

	require.NoError(t, c.LoadPrimary(ctx, api.Int64(7)))
	require.NoError(t, c.RunSemanticSearch(ctx, api.Int64(7), "rates", 0.5, 50))

	v := c.View()
	assert.Equal(t, ModeSemantic, v.Mode)
	assert.Equal(t, []int64{2}, rows.IDs(v.Rows))
	assert.Equal(t, "91%", v.Rows[0].Main.Similarity)
	require.NotNil(t, v.Header)
	assert.Equal(t, 1, v.Header.Found)
	assert.Equal(t, "rates", v.Header.Query)

	require.NoError(t, c.LoadPrimary(ctx, api.Int64(7)))
	v = c.View()
	assert.Equal(t, ModePrimary, v.Mode)
	assert.Nil(t, v.Header)
	assert.Equal(t, []int64{1, 2, 3}, rows.IDs(v.Rows))
	assert.Empty(t, v.Rows[0].Main.Similarity)
}

func TestSemanticSearchValidation(t *testing.T) {
	srv, client, app := setup(t)
	srv.SetHistoryArticles(7, articles(1))
	c := NewLive(client, app)
	ctx := context.Background()
	require.NoError(t, c.LoadPrimary(ctx, api.Int64(7)))
	before := c.View()
	hits := srv.TotalHits()

	cases := []struct {
		name      string
		query     string
		threshold float64
		limit     int
		field     string
	}{
		{"empty query", "", 0.5, 50, "query"},
		{"blank query", "   \t", 0.5, 50, "query"},
		{"threshold above one", "rates", 1.2, 50, "threshold"},
		{"negative threshold", "rates", -0.1, 50, "threshold"},
		{"zero limit", "rates", 0.5, 0, "limit"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := c.RunSemanticSearch(ctx, api.Int64(7), tc.query, tc.threshold, tc.limit)
			var ve *api.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}

	assert.Equal(t, hits, srv.TotalHits(), "no request for invalid input")
	assert.Empty(t, srv.Searches())
	assert.Equal(t, before, c.View())
}

func TestHistorySearchNeedsSelection(t *testing.T) {
	srv, client, app := setup(t)
	c := NewHistory(client, app)

	err := c.RunSemanticSearch(context.Background(), nil, "rates", 0.5, 50)
	assert.True(t, api.IsValidation(err))
	assert.Zero(t, srv.TotalHits())
}

func TestLiveSearchWithoutSelectionCoversEverything(t *testing.T) {
	srv, client, app := setup(t)
	c := NewLive(client, app)

	require.NoError(t, c.RunSemanticSearch(context.Background(), nil, "  rates ", 0.7, 50))
	reqs := srv.Searches()
	require.Len(t, reqs, 1)
	assert.Nil(t, reqs[0].SearchHistoryID)
	assert.Equal(t, "rates", reqs[0].Query)
}

func TestNothingFound(t *testing.T) {
	_, client, app := setup(t)
	c := NewLive(client, app)

	require.NoError(t, c.RunSemanticSearch(context.Background(), api.Int64(7), "quantum", 0.8, 50))
	v := c.View()
	assert.Equal(t, ModeSemantic, v.Mode)
	assert.Empty(t, v.Rows)
	assert.Contains(t, v.Message(), `Nothing found for "quantum"`)
	assert.Contains(t, v.Message(), "0.8")
}

func TestFailedSearchKeepsPreviousRows(t *testing.T) {
	srv, client, app := setup(t)
	srv.SetHistoryArticles(7, articles(1, 2))
	c := NewLive(client, app)
	ctx := context.Background()
	require.NoError(t, c.LoadPrimary(ctx, api.Int64(7)))

	srv.Fail("/api/semantic-search", 500, `{"error":"embedding service down"}`)
	err := c.RunSemanticSearch(ctx, api.Int64(7), "rates", 0.5, 50)
	var be *api.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "embedding service down", be.Message)

	v := c.View()
	assert.Equal(t, PhaseFailed, v.Phase)
	assert.Equal(t, ModePrimary, v.Mode)
	assert.Equal(t, []int64{1, 2}, rows.IDs(v.Rows))
	assert.Error(t, v.Err)
}

func TestFailedReloadReplacesSemanticOverlay(t *testing.T) {
	srv, client, app := setup(t)
	srv.SetHistoryArticles(7, articles(1, 2))
	srv.SetSearch(func(api.SearchRequest) api.SemanticResult {
		return api.SemanticResult{Found: 1, Articles: articles(2)}
	})
	c := NewLive(client, app)
	ctx := context.Background()
	require.NoError(t, c.RunSemanticSearch(ctx, api.Int64(7), "rates", 0.5, 50))
	_, ok := c.ToggleExpansion(2)
	require.True(t, ok)

	srv.Fail("/api/results", 500, `{"error":"database locked"}`)
	err := c.LoadPrimary(ctx, api.Int64(7))
	require.Error(t, err)

	v := c.View()
	assert.Equal(t, PhaseFailed, v.Phase)
	assert.Equal(t, ModePrimary, v.Mode)
	assert.Nil(t, v.Header)
	assert.Empty(t, v.Rows)
	assert.Equal(t, int64(7), *v.SelectionID)
	assert.Equal(t, PlaceholderNoRows, v.Message())
	assert.Error(t, v.Err)
	assert.False(t, app.Expansion.IsExpanded(state.ScopeLive, 2))
}

func TestReloadDropsRowsWhileLoading(t *testing.T) {
	srv, client, app := setup(t)
	srv.SetHistoryArticles(7, articles(1, 2))
	srv.SetSearch(func(api.SearchRequest) api.SemanticResult {
		return api.SemanticResult{Found: 1, Articles: articles(2)}
	})
	c := NewLive(client, app)
	ctx := context.Background()
	require.NoError(t, c.RunSemanticSearch(ctx, api.Int64(7), "rates", 0.5, 50))

	release := srv.Hold("/api/results")
	errc := make(chan error, 1)
	go func() { errc <- c.LoadPrimary(ctx, api.Int64(7)) }()
	require.Eventually(t, func() bool { return srv.Hits("/api/results") == 1 }, time.Second, time.Millisecond)

	v := c.View()
	assert.Equal(t, PhaseLoading, v.Phase)
	assert.Equal(t, ModePrimary, v.Mode)
	assert.Nil(t, v.Header)
	assert.Empty(t, v.Rows)

	release()
	require.NoError(t, <-errc)
	assert.Equal(t, []int64{1, 2}, rows.IDs(c.View().Rows))
}

func TestNewerOperationSupersedesInflightSearch(t *testing.T) {
	srv, client, app := setup(t)
	srv.SetHistoryArticles(7, articles(1, 2, 3))
	srv.SetSearch(func(api.SearchRequest) api.SemanticResult {
		return api.SemanticResult{Articles: articles(2)}
	})
	c := NewLive(client, app)
	ctx := context.Background()

	release := srv.Hold("/api/semantic-search")
	defer release()

	errc := make(chan error, 1)
	go func() { errc <- c.RunSemanticSearch(ctx, api.Int64(7), "rates", 0.5, 50) }()
	require.Eventually(t, func() bool { return srv.Hits("/api/semantic-search") == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, PhaseLoading, c.View().Phase)

	require.NoError(t, c.LoadPrimary(ctx, api.Int64(7)))
	release()

	select {
	case err := <-errc:
		assert.True(t, errors.Is(err, ErrSuperseded), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded search never returned")
	}

	v := c.View()
	assert.Equal(t, ModePrimary, v.Mode)
	assert.Equal(t, PhaseReady, v.Phase)
	assert.Equal(t, []int64{1, 2, 3}, rows.IDs(v.Rows))
}

func TestClearDropsInflightLoad(t *testing.T) {
	srv, client, app := setup(t)
	srv.SetHistoryArticles(7, articles(1))
	c := NewLive(client, app)

	release := srv.Hold("/api/results")
	defer release()

	errc := make(chan error, 1)
	go func() { errc <- c.LoadPrimary(context.Background(), api.Int64(7)) }()
	require.Eventually(t, func() bool { return srv.Hits("/api/results") == 1 }, time.Second, time.Millisecond)

	c.ShowPlaceholder(PlaceholderWaiting)
	release()
	assert.ErrorIs(t, <-errc, ErrSuperseded)

	v := c.View()
	assert.Equal(t, ModeEmpty, v.Mode)
	assert.Equal(t, PlaceholderWaiting, v.Message())
}

func TestExpansionPrunedOnReplace(t *testing.T) {
	srv, client, app := setup(t)
	srv.SetHistoryArticles(7, articles(1, 2, 3))
	srv.SetSearch(func(api.SearchRequest) api.SemanticResult {
		return api.SemanticResult{Articles: articles(3)}
	})
	c := NewLive(client, app)
	ctx := context.Background()
	require.NoError(t, c.LoadPrimary(ctx, api.Int64(7)))

	_, ok := c.ToggleExpansion(1)
	require.True(t, ok)
	assert.True(t, app.Expansion.IsExpanded(state.ScopeLive, 1))

	require.NoError(t, c.RunSemanticSearch(ctx, api.Int64(7), "rates", 0.5, 50))
	assert.False(t, app.Expansion.IsExpanded(state.ScopeLive, 1), "article 1 is gone")

	_, ok = c.ToggleExpansion(3)
	require.True(t, ok)
	require.NoError(t, c.LoadPrimary(ctx, api.Int64(7)))
	assert.True(t, app.Expansion.IsExpanded(state.ScopeLive, 3), "still rendered")
}

func TestExpansionIgnoresUnknownOrContentlessRows(t *testing.T) {
	srv, client, app := setup(t)
	a := articles(1, 2)
	a[1].Content = ""
	srv.SetHistoryArticles(7, a)
	c := NewLive(client, app)
	require.NoError(t, c.LoadPrimary(context.Background(), api.Int64(7)))

	_, ok := c.ToggleExpansion(2)
	assert.False(t, ok)
	_, ok = c.ToggleExpansion(42)
	assert.False(t, ok)
	_, expanded := app.Expansion.Current()
	assert.False(t, expanded)
}

func TestExpansionExclusiveAcrossTables(t *testing.T) {
	srv, client, app := setup(t)
	srv.SetHistoryArticles(7, articles(1))
	srv.SetHistoryArticles(3, articles(1))
	live := NewLive(client, app)
	hist := NewHistory(client, app)
	ctx := context.Background()
	require.NoError(t, live.LoadPrimary(ctx, api.Int64(7)))
	require.NoError(t, hist.LoadPrimary(ctx, api.Int64(3)))

	live.ToggleExpansion(1)
	tr, ok := hist.ToggleExpansion(1)
	require.True(t, ok)
	require.NotNil(t, tr.Collapsed)
	assert.Equal(t, state.ScopeLive, tr.Collapsed.Scope)
	assert.False(t, app.Expansion.IsExpanded(state.ScopeLive, 1))
	assert.True(t, app.Expansion.IsExpanded(state.ScopeHistory, 1))

	hist.Clear()
	_, expanded := app.Expansion.Current()
	assert.False(t, expanded)
}
