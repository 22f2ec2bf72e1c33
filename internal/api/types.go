package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// JobStatus is the lifecycle state of a pipeline run.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobError     JobStatus = "error"
)

// Terminal reports whether polling should stop at this status.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobError
}

type StepStatus string

const (
	StepWaiting   StepStatus = "waiting"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepError     StepStatus = "error"
)

// normalizeStepStatus maps backend spellings onto the four step states.
func normalizeStepStatus(s string) StepStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "running":
		return StepRunning
	case "completed", "done":
		return StepCompleted
	case "error", "failed":
		return StepError
	default:
		return StepWaiting
	}
}

// Step is one stage of a run as reported by the backend.
type Step struct {
	Index    int
	Name     string
	Status   StepStatus
	Progress int
	Message  string
}

type wireStep struct {
	Index    *int     `json:"index"`
	Name     string   `json:"name"`
	Status   string   `json:"status"`
	Progress *float64 `json:"progress"`
	Message  *string  `json:"message"`
}

func (w wireStep) step(pos int) Step {
	s := Step{
		Index:  pos,
		Name:   w.Name,
		Status: normalizeStepStatus(w.Status),
	}
	if w.Index != nil {
		s.Index = *w.Index
	}
	if w.Progress != nil {
		s.Progress = int(math.Round(*w.Progress))
	}
	if w.Message != nil {
		s.Message = *w.Message
	}
	return s
}

// RunStatistics summarises a finished run.
type RunStatistics struct {
	Total             int    `json:"total"`
	Relevant          int    `json:"relevant"`
	Duplicates        int    `json:"duplicates"`
	UniqueNonRelevant int    `json:"unique_non_relevant"`
	Message           string `json:"message,omitempty"`
}

// StatusSnapshot is one poll response for a job.
type StatusSnapshot struct {
	TaskID          string
	Status          JobStatus
	CurrentStep     int
	TotalSteps      int
	Steps           []Step
	ErrorMessage    string
	Statistics      *RunStatistics
	SearchHistoryID *int64
}

type wireSnapshot struct {
	TaskID          string          `json:"task_id"`
	Status          string          `json:"status"`
	CurrentStep     int             `json:"current_step"`
	TotalSteps      int             `json:"total_steps"`
	Steps           []wireStep      `json:"steps"`
	ErrorMessage    *string         `json:"error_message"`
	Statistics      json.RawMessage `json:"statistics"`
	SearchHistoryID *int64          `json:"search_history_id"`
}

func (s *StatusSnapshot) UnmarshalJSON(data []byte) error {
	var w wireSnapshot
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*s = StatusSnapshot{
		TaskID:          w.TaskID,
		Status:          JobStatus(strings.ToLower(w.Status)),
		CurrentStep:     w.CurrentStep,
		TotalSteps:      w.TotalSteps,
		SearchHistoryID: w.SearchHistoryID,
	}
	if w.ErrorMessage != nil {
		s.ErrorMessage = *w.ErrorMessage
	}
	for i, ws := range w.Steps {
		s.Steps = append(s.Steps, ws.step(i))
	}

	// The backend sends {} until the run has finished
	raw := bytes.TrimSpace(w.Statistics)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) && !bytes.Equal(raw, []byte("{}")) {
		var rs RunStatistics
		if err := json.Unmarshal(raw, &rs); err != nil {
			return fmt.Errorf("statistics: %w", err)
		}
		s.Statistics = &rs
	}
	return nil
}

// Timestamp accepts RFC 3339 and the zone-less ISO form the backend emits.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format("2006-01-02T15:04:05"))
}

// Format renders the timestamp in local time, or "" when unset.
func (t Timestamp) Format(layout string) string {
	if t.IsZero() {
		return ""
	}
	return t.Time.Local().Format(layout)
}

// FeedList travels as one newline-separated string. Arrays are accepted on
// input as well.
type FeedList []string

func (f *FeedList) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if bytes.Equal(raw, []byte("null")) {
		*f = nil
		return nil
	}
	if len(raw) > 0 && raw[0] == '[' {
		var list []string
		if err := json.Unmarshal(raw, &list); err != nil {
			return err
		}
		*f = FeedList(list).compact()
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	*f = FeedList(strings.Split(s, "\n")).compact()
	return nil
}

func (f FeedList) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

func (f FeedList) String() string {
	return strings.Join(f.compact(), "\n")
}

func (f FeedList) compact() FeedList {
	out := make(FeedList, 0, len(f))
	for _, u := range f {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// Article is a classified feed item. Clients never construct these outside
// tests.
type Article struct {
	ID                   int64     `json:"id"`
	Title                string    `json:"title"`
	Content              string    `json:"content"`
	Summary              string    `json:"summary"`
	Link                 string    `json:"link"`
	Source               string    `json:"source"`
	PublishedAt          Timestamp `json:"published_at"`
	RelevanceScore       *float64  `json:"relevance_score"`
	IsRelevant           bool      `json:"is_relevant"`
	ClassificationReason string    `json:"classification_reason"`
	SearchHistoryID      *int64    `json:"search_history_id,omitempty"`
	SimilarityScore      *float64  `json:"similarity_score,omitempty"`
}

// HistoryRecord is an immutable completed run.
type HistoryRecord struct {
	ID                  int64         `json:"id"`
	CreatedAt           Timestamp     `json:"created_at"`
	RSSFeeds            FeedList      `json:"rss_feeds"`
	SelectionCriteria   string        `json:"selection_criteria"`
	LLMModel            string        `json:"llm_model"`
	LLMTemperature      *float64      `json:"llm_temperature"`
	SimilarityThreshold *float64      `json:"similarity_threshold"`
	APIBase             string        `json:"openai_api_base"`
	ResultsData         RunStatistics `json:"results_data"`
}

type HistoryPage struct {
	History    []HistoryRecord `json:"history"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	PerPage    int             `json:"per_page"`
	TotalPages int             `json:"total_pages"`
}

type SemanticResult struct {
	Articles []Article `json:"articles"`
	Query    string    `json:"query"`
	Found    int       `json:"found"`
}

type SourceCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type SearchCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Statistics is the general, cross-run summary.
type Statistics struct {
	Total             int           `json:"total"`
	Relevant          int           `json:"relevant"`
	Duplicates        int           `json:"duplicates"`
	UniqueNonRelevant int           `json:"unique_non_relevant"`
	Sources           []SourceCount `json:"sources"`
	LastSearches      []SearchCount `json:"last_searches"`
}

type StartRequest struct {
	RSSFeeds            FeedList `json:"rss_feeds"`
	Criteria            string   `json:"criteria"`
	LLMModel            string   `json:"llm_model"`
	LLMTemperature      float64  `json:"llm_temperature"`
	SimilarityThreshold float64  `json:"similarity_threshold"`
	RelevanceThreshold  float64  `json:"relevance_threshold"`
}

type SearchRequest struct {
	Query           string  `json:"query"`
	Threshold       float64 `json:"threshold"`
	Limit           int     `json:"limit"`
	SearchHistoryID *int64  `json:"search_history_id,omitempty"`
}

type startResponse struct {
	TaskID string `json:"task_id"`
}

type articlesResponse struct {
	Articles []Article `json:"articles"`
}

type ackResponse struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 {
	return &v
}
