package table

import (
	"context"

	"github.com/pders01/newsroom/internal/api"
)

// Backend is the part of *api.Client the tables need.
type Backend interface {
	Results(ctx context.Context, historyID *int64) ([]api.Article, error)
	HistoryArticles(ctx context.Context, historyID int64) ([]api.Article, error)
	SemanticSearch(ctx context.Context, req api.SearchRequest) (*api.SemanticResult, error)
}

// Source fetches the primary listing of one table.
type Source interface {
	Primary(ctx context.Context, selectionID int64) ([]api.Article, error)
	Search(ctx context.Context, req api.SearchRequest) (*api.SemanticResult, error)
}

type liveSource struct{ b Backend }

// LiveSource lists the results of the active job.
func LiveSource(b Backend) Source { return liveSource{b} }

func (s liveSource) Primary(ctx context.Context, id int64) ([]api.Article, error) {
	return s.b.Results(ctx, &id)
}

func (s liveSource) Search(ctx context.Context, req api.SearchRequest) (*api.SemanticResult, error) {
	return s.b.SemanticSearch(ctx, req)
}

type historySource struct{ b Backend }

// HistorySource lists the articles of a stored run.
func HistorySource(b Backend) Source { return historySource{b} }

func (s historySource) Primary(ctx context.Context, id int64) ([]api.Article, error) {
	return s.b.HistoryArticles(ctx, id)
}

func (s historySource) Search(ctx context.Context, req api.SearchRequest) (*api.SemanticResult, error) {
	return s.b.SemanticSearch(ctx, req)
}
