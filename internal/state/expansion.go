package state

import "sync"

// Scope names the table an article is rendered in.
type Scope int

const (
	ScopeLive Scope = iota
	ScopeHistory
)

func (s Scope) String() string {
	switch s {
	case ScopeLive:
		return "live"
	case ScopeHistory:
		return "history"
	default:
		return "unknown"
	}
}

// Key identifies an expanded article.
type Key struct {
	Scope     Scope
	ArticleID int64
}

// Transition reports what a toggle changed. Collapsed and Expanded are nil
// when nothing was collapsed or expanded.
type Transition struct {
	Collapsed *Key
	Expanded  *Key
}

// Expansion allows at most one article to be expanded across all scopes.
type Expansion struct {
	mu      sync.Mutex
	current *Key
}

// Toggle collapses the pair if it is the expanded one. Otherwise it
// collapses whatever is expanded, in any scope, and expands the pair.
func (e *Expansion) Toggle(scope Scope, articleID int64) Transition {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := Key{Scope: scope, ArticleID: articleID}
	prev := e.current

	if prev != nil && *prev == next {
		e.current = nil
		return Transition{Collapsed: prev}
	}

	e.current = &next
	expanded := next
	return Transition{Collapsed: prev, Expanded: &expanded}
}

func (e *Expansion) IsExpanded(scope Scope, articleID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil && e.current.Scope == scope && e.current.ArticleID == articleID
}

// Current returns the expanded pair, if any.
func (e *Expansion) Current() (Key, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return Key{}, false
	}
	return *e.current, true
}

func (e *Expansion) Clear() {
	e.mu.Lock()
	e.current = nil
	e.mu.Unlock()
}

// ClearScope drops the expansion if it belongs to scope.
func (e *Expansion) ClearScope(scope Scope) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil && e.current.Scope == scope {
		e.current = nil
	}
}

// Prune clears an expansion of scope whose article is no longer rendered.
// It reports whether anything was cleared.
func (e *Expansion) Prune(scope Scope, rendered func(articleID int64) bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil || e.current.Scope != scope {
		return false
	}
	if rendered(e.current.ArticleID) {
		return false
	}
	e.current = nil
	return true
}
