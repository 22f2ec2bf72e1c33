package validation

import (
	"fmt"
	"math"
	"strings"

	"github.com/pders01/newsroom/internal/api"
)

const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
)

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}

// Threshold checks a similarity or relevance threshold.
func Threshold(field string, v float64) error {
	if !inRange(v, 0, 1) {
		return &api.ValidationError{Field: field, Message: fmt.Sprintf("%s must be between 0.0 and 1.0", field)}
	}
	return nil
}

// StartRequest validates and normalizes a run submission in place.
func StartRequest(v *FeedURLValidator, req *api.StartRequest) error {
	feeds, err := v.ValidateFeedList(req.RSSFeeds)
	if err != nil {
		return err
	}
	req.RSSFeeds = feeds

	req.Criteria = strings.TrimSpace(req.Criteria)
	if req.Criteria == "" {
		return &api.ValidationError{Field: "criteria", Message: "selection criteria cannot be empty"}
	}
	req.LLMModel = strings.TrimSpace(req.LLMModel)

	if !inRange(req.LLMTemperature, MinTemperature, MaxTemperature) {
		return &api.ValidationError{Field: "llm_temperature", Message: "temperature must be between 0.0 and 2.0"}
	}
	if err := Threshold("similarity_threshold", req.SimilarityThreshold); err != nil {
		return err
	}
	return Threshold("relevance_threshold", req.RelevanceThreshold)
}

// Search validates a semantic search and returns the trimmed query.
func Search(query string, threshold float64, limit int) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", &api.ValidationError{Field: "query", Message: "enter a search query"}
	}
	if err := Threshold("threshold", threshold); err != nil {
		return "", err
	}
	if limit < 1 {
		return "", &api.ValidationError{Field: "limit", Message: "limit must be at least 1"}
	}
	return query, nil
}
