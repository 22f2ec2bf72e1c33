package search

import (
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/pders01/newsroom/internal/rows"
)

// Engine scores every document on each query without an index. It is
// used when bleve cannot be set up and to find matches inside one
// expanded article.
type Engine struct {
	mu   sync.RWMutex
	docs []document
}

// NewEngine creates an empty engine
func NewEngine() *Engine {
	return &Engine{}
}

func (e *Engine) Reset(sets []rows.RowSet) error {
	docs := make([]document, 0, len(sets))
	for _, rs := range sets {
		docs = append(docs, documentOf(rs))
	}
	e.mu.Lock()
	e.docs = docs
	e.mu.Unlock()
	return nil
}

func (e *Engine) DocCount() (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.docs), nil
}

// Find returns the best matching articles, highest score first.
func (e *Engine) Find(query string, limit int) ([]*Result, error) {
	if short(query) {
		return []*Result{}, nil
	}
	terms := tokenize(query)
	if len(terms) == 0 {
		return []*Result{}, nil
	}

	e.mu.RLock()
	var results []*Result
	for _, d := range e.docs {
		if r := scoreDocument(d, terms); r != nil {
			results = append(results, r)
		}
	}
	e.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// FindIn searches the text of a single row set.
func FindIn(rs rows.RowSet, query string) *Result {
	if short(query) {
		return nil
	}
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil
	}
	return scoreDocument(documentOf(rs), terms)
}

func scoreDocument(d document, terms []string) *Result {
	fields := []struct {
		name   string
		text   string
		weight float64
	}{
		{"title", d.Title, 4.0},
		{"summary", d.Summary, 2.0},
		{"content", d.Content, 1.0},
		{"reason", d.Reason, 1.0},
		{"source", d.Source, 0.5},
	}

	var matches []Match
	var total float64
	for _, f := range fields {
		score := scoreField(f.text, terms, f.weight)
		if score <= 0 {
			continue
		}
		text := f.text
		switch f.name {
		case "content":
			text = bestSnippet(f.text, terms, 200)
		case "summary", "reason":
			text = rows.Truncate(f.text, 150)
		}
		matches = append(matches, Match{Field: f.name, Text: text, Weight: score})
		total += score
	}
	if total <= 0 {
		return nil
	}
	return &Result{ArticleID: d.ID, Title: d.Title, Score: total, Matches: matches}
}

// scoreField calculates relevance score for a field
func scoreField(text string, terms []string, weight float64) float64 {
	if text == "" {
		return 0
	}

	lower := strings.ToLower(text)
	words := tokenize(text)
	if len(words) == 0 {
		return 0
	}

	var score float64
	matchedTerms := 0

	for _, term := range terms {
		// Exact phrase match (highest score)
		if strings.Contains(lower, term) {
			score += 2.0
			matchedTerms++
		}

		for _, word := range words {
			switch {
			case word == term:
				score += 1.5
				matchedTerms++
			case strings.HasPrefix(word, term) || strings.HasSuffix(word, term):
				score += 1.0
				matchedTerms++
			case strings.Contains(word, term):
				score += 0.5
				matchedTerms++
			}
		}
	}

	// Boost score if multiple terms match
	if len(terms) > 1 && matchedTerms > 1 {
		score *= 1.0 + float64(matchedTerms)/float64(len(terms))
	}

	tf := float64(matchedTerms) / float64(len(words))
	score *= 1.0 + math.Log(1.0+tf)

	return score * weight
}

// bestSnippet finds the window of text with the most search terms.
func bestSnippet(text string, terms []string, maxLength int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	windowSize := maxLength / 8 // Approximate words in snippet
	if windowSize >= len(words) {
		return rows.Truncate(text, maxLength)
	}

	bestScore := 0
	bestStart := 0
	for i := 0; i <= len(words)-windowSize; i++ {
		window := strings.ToLower(strings.Join(words[i:i+windowSize], " "))
		score := 0
		for _, term := range terms {
			if strings.Contains(window, term) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestStart = i
		}
	}

	return rows.Truncate(strings.Join(words[bestStart:bestStart+windowSize], " "), maxLength)
}

// tokenize breaks text into lower-cased terms of two or more characters.
func tokenize(text string) []string {
	var terms []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			if term := current.String(); len([]rune(term)) > 1 {
				terms = append(terms, term)
			}
			current.Reset()
		}
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			current.WriteRune(unicode.ToLower(r))
			continue
		}
		flush()
	}
	flush()
	return terms
}
