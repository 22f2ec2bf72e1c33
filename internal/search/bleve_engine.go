package search

import (
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/pders01/newsroom/internal/rows"
)

// BleveFinder keeps an in-memory index of the shown rows.
type BleveFinder struct {
	mu  sync.RWMutex
	idx bleve.Index
}

// NewBleveFinder creates an empty in-memory index.
func NewBleveFinder() (*BleveFinder, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, err
	}
	return &BleveFinder{idx: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	dm := bleve.NewDocumentMapping()

	title := bleve.NewTextFieldMapping()
	title.Analyzer = standard.Name
	title.Store = true
	title.IncludeTermVectors = true

	summary := bleve.NewTextFieldMapping()
	summary.Analyzer = standard.Name
	summary.Store = true

	content := bleve.NewTextFieldMapping()
	content.Analyzer = standard.Name
	content.Store = false

	reason := bleve.NewTextFieldMapping()
	reason.Analyzer = standard.Name
	reason.Store = false

	source := bleve.NewTextFieldMapping()
	source.Analyzer = standard.Name
	source.Store = true

	dm.AddFieldMappingsAt("title", title)
	dm.AddFieldMappingsAt("summary", summary)
	dm.AddFieldMappingsAt("content", content)
	dm.AddFieldMappingsAt("reason", reason)
	dm.AddFieldMappingsAt("source", source)

	im.DefaultMapping = dm
	return im
}

// Reset swaps in a fresh index holding sets.
func (b *BleveFinder) Reset(sets []rows.RowSet) error {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return err
	}
	batch := idx.NewBatch()
	for _, rs := range sets {
		d := documentOf(rs)
		if err := batch.Index(docID(d.ID), map[string]any{
			"title":   d.Title,
			"summary": d.Summary,
			"content": d.Content,
			"reason":  d.Reason,
			"source":  d.Source,
		}); err != nil {
			_ = idx.Close()
			return err
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return err
	}

	b.mu.Lock()
	old := b.idx
	b.idx = idx
	b.mu.Unlock()
	return old.Close()
}

var fieldBoosts = []struct {
	field string
	match float64
	pre   float64
}{
	{"title", 4.0, 3.5},
	{"summary", 2.0, 1.8},
	{"content", 1.0, 0.8},
	{"reason", 1.0, 0.8},
	{"source", 0.5, 0.3},
}

// Find runs an OR of per-term match and prefix queries across the fields.
func (b *BleveFinder) Find(query string, limit int) ([]*Result, error) {
	if short(query) {
		return []*Result{}, nil
	}
	var qs []bleveQuery.Query
	for _, tok := range tokenize(query) {
		for _, fb := range fieldBoosts {
			m := bleve.NewMatchQuery(tok)
			m.SetField(fb.field)
			m.SetBoost(fb.match)
			qs = append(qs, m)

			p := bleve.NewPrefixQuery(tok)
			p.SetField(fb.field)
			p.SetBoost(fb.pre)
			qs = append(qs, p)
		}
	}
	if len(qs) == 0 {
		return []*Result{}, nil
	}
	if limit <= 0 {
		limit = 50
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(qs...), limit, 0, false)
	req.Fields = []string{"title", "summary", "source"}

	b.mu.RLock()
	res, err := b.idx.Search(req)
	b.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	out := make([]*Result, 0, len(res.Hits))
	for _, h := range res.Hits {
		id, err := strconv.ParseInt(strings.TrimPrefix(h.ID, "article:"), 10, 64)
		if err != nil {
			continue
		}
		r := &Result{ArticleID: id, Score: h.Score}
		if t, ok := h.Fields["title"].(string); ok {
			r.Title = t
		}
		out = append(out, r)
	}
	return out, nil
}

// DocCount reports total documents in the index.
func (b *BleveFinder) DocCount() (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n, err := b.idx.DocCount()
	return int(n), err
}

func (b *BleveFinder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.idx.Close()
}

func docID(articleID int64) string { return "article:" + strconv.FormatInt(articleID, 10) }
