// Package apitest provides an in-process fake of the pipeline backend.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/pders01/newsroom/internal/api"
)

// Snapshot is the wire form of one status response.
type Snapshot map[string]any

// Step builds a wire step.
func Step(name, status string, progress int, message string) map[string]any {
	return map[string]any{"name": name, "status": status, "progress": progress, "message": message}
}

// Snap builds a status body with the given steps.
func Snap(taskID, status string, steps ...map[string]any) Snapshot {
	if steps == nil {
		steps = []map[string]any{}
	}
	return Snapshot{
		"task_id":           taskID,
		"status":            status,
		"current_step":      0,
		"total_steps":       len(steps),
		"steps":             steps,
		"error_message":     nil,
		"statistics":        map[string]any{},
		"search_history_id": nil,
	}
}

// Completed marks the snapshot completed with a history id and statistics.
func (s Snapshot) Completed(historyID int64, stats api.RunStatistics) Snapshot {
	s["status"] = "completed"
	s["search_history_id"] = historyID
	s["statistics"] = stats
	return s
}

// Failed marks the snapshot as errored with msg.
func (s Snapshot) Failed(msg string) Snapshot {
	s["status"] = "error"
	s["error_message"] = msg
	return s
}

// Server is a fake backend. Zero-valued fields produce empty replies.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	nextTask  int
	taskIDs   []string
	statuses  map[string][]Snapshot
	live      []api.Article
	byHistory map[int64][]api.Article
	history   []api.HistoryRecord
	stats     api.Statistics
	search    func(api.SearchRequest) api.SemanticResult
	failures  map[string]failure
	holds     map[string]chan struct{}
	hits      map[string]int
	started   []api.StartRequest
	searches  []api.SearchRequest
	perPage   int
}

type failure struct {
	status int
	body   string
}

func NewServer() *Server {
	s := &Server{
		statuses:  make(map[string][]Snapshot),
		byHistory: make(map[int64][]api.Article),
		failures:  make(map[string]failure),
		holds:     make(map[string]chan struct{}),
		hits:      make(map[string]int),
		perPage:   5,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// QueueStatus appends snapshots for taskID. The last one repeats forever.
func (s *Server) QueueStatus(taskID string, snaps ...Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[taskID] = append(s.statuses[taskID], snaps...)
}

// QueueTaskIDs makes the next start requests answer with ids, in order.
func (s *Server) QueueTaskIDs(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taskIDs = append(s.taskIDs, ids...)
}

func (s *Server) SetLiveArticles(articles []api.Article) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = articles
}

func (s *Server) SetHistoryArticles(historyID int64, articles []api.Article) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byHistory[historyID] = articles
}

// SetHistory replaces the records served by the paginated listing, most
// recent first.
func (s *Server) SetHistory(records []api.HistoryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = records
}

func (s *Server) SetStatistics(stats api.Statistics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
}

func (s *Server) SetSearch(fn func(api.SearchRequest) api.SemanticResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.search = fn
}

// Fail makes every request to path answer with status and body.
func (s *Server) Fail(path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = failure{status: status, body: body}
}

func (s *Server) ClearFailure(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, path)
}

// Hold blocks requests to path until the returned release func is called.
func (s *Server) Hold(path string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.holds[path] = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.holds[path] == ch {
				delete(s.holds, path)
			}
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Hits returns how many requests reached path.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *Server) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.hits {
		n += v
	}
	return n
}

func (s *Server) Started() []api.StartRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.StartRequest(nil), s.started...)
}

func (s *Server) Searches() []api.SearchRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.SearchRequest(nil), s.searches...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	s.mu.Lock()
	s.hits[path]++
	hold := s.holds[path]
	fail, failing := s.failures[path]
	s.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-r.Context().Done():
			return
		}
	}

	if failing {
		w.WriteHeader(fail.status)
		_, _ = w.Write([]byte(fail.body))
		return
	}

	switch {
	case path == "/api/start" && r.Method == http.MethodPost:
		s.handleStart(w, r)
	case strings.HasPrefix(path, "/api/status/"):
		s.handleStatus(w, strings.TrimPrefix(path, "/api/status/"))
	case path == "/api/results":
		s.handleResults(w, r)
	case path == "/api/semantic-search" && r.Method == http.MethodPost:
		s.handleSearch(w, r)
	case path == "/api/search-history":
		s.handleHistory(w, r)
	case strings.HasPrefix(path, "/api/search-history/"):
		s.handleHistoryItem(w, r, strings.TrimPrefix(path, "/api/search-history/"))
	case path == "/api/clear-db" && r.Method == http.MethodPost:
		s.handleClear(w)
	case path == "/api/statistics":
		s.mu.Lock()
		stats := s.stats
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, stats)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req api.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if len(req.RSSFeeds) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no RSS feeds given"})
		return
	}

	s.mu.Lock()
	s.nextTask++
	id := fmt.Sprintf("task-%d", s.nextTask)
	if len(s.taskIDs) > 0 {
		id, s.taskIDs = s.taskIDs[0], s.taskIDs[1:]
	}
	s.started = append(s.started, req)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"task_id": id})
}

func (s *Server) handleStatus(w http.ResponseWriter, taskID string) {
	s.mu.Lock()
	queue := s.statuses[taskID]
	var snap Snapshot
	if len(queue) > 0 {
		snap = queue[0]
		if len(queue) > 1 {
			s.statuses[taskID] = queue[1:]
		}
	}
	s.mu.Unlock()

	if snap == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	articles := s.live
	if raw := r.URL.Query().Get("search_history_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			articles = s.byHistory[id]
		}
	}
	if articles == nil {
		articles = []api.Article{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"articles": articles})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req api.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty query"})
		return
	}

	s.mu.Lock()
	s.searches = append(s.searches, req)
	fn := s.search
	s.mu.Unlock()

	result := api.SemanticResult{Query: req.Query, Articles: []api.Article{}}
	if fn != nil {
		result = fn(req)
	}
	result.Found = len(result.Articles)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.history)
	start := (page - 1) * s.perPage
	end := start + s.perPage
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	records := append([]api.HistoryRecord{}, s.history[start:end]...)

	writeJSON(w, http.StatusOK, api.HistoryPage{
		History:    records,
		Total:      total,
		Page:       page,
		PerPage:    s.perPage,
		TotalPages: (total + s.perPage - 1) / s.perPage,
	})
}

func (s *Server) handleHistoryItem(w http.ResponseWriter, r *http.Request, rest string) {
	idPart, suffix, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case suffix == "articles" && r.Method == http.MethodGet:
		articles := s.byHistory[id]
		if articles == nil {
			articles = []api.Article{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"articles": articles})
	case suffix == "" && r.Method == http.MethodDelete:
		idx := -1
		for i, rec := range s.history {
			if rec.ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "history record not found"})
			return
		}
		count := len(s.byHistory[id])
		s.history = append(s.history[:idx], s.history[idx+1:]...)
		delete(s.byHistory, id)
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": fmt.Sprintf("deleted history record and %d related articles", count),
		})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (s *Server) handleClear(w http.ResponseWriter) {
	s.mu.Lock()
	s.live = nil
	s.history = nil
	s.byHistory = make(map[int64][]api.Article)
	s.stats = api.Statistics{}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "database cleared"})
}
