package storage

import (
	"time"
)

// Session is the client state restored on the next start.
type Session struct {
	ActiveJobID       string    `json:"active_job_id"`
	JobFinished       bool      `json:"job_finished"`
	ActiveHistoryID   *int64    `json:"active_history_id,omitempty"`
	SelectedHistoryID *int64    `json:"selected_history_id,omitempty"`
	HistoryPage       int       `json:"history_page"`
	SavedAt           time.Time `json:"saved_at"`
}

// Query is a semantic search the user ran.
type Query struct {
	Text      string    `json:"text"`
	Threshold float64   `json:"threshold"`
	Scope     string    `json:"scope"`
	RanAt     time.Time `json:"ran_at"`
}

// JobInput is the last submitted job form.
type JobInput struct {
	Feeds               []string  `json:"feeds"`
	Criteria            string    `json:"criteria"`
	LLMModel            string    `json:"llm_model"`
	LLMTemperature      float64   `json:"llm_temperature"`
	SimilarityThreshold float64   `json:"similarity_threshold"`
	RelevanceThreshold  float64   `json:"relevance_threshold"`
	SubmittedAt         time.Time `json:"submitted_at"`
}
