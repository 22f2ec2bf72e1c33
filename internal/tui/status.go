package tui

import (
	"fmt"
	"strings"

	"github.com/pders01/newsroom/internal/workspace"
)

// Canonical short status messages used across the app.
const (
	MsgSubmitting     = "Submitting job…"
	MsgSearching      = "Searching…"
	MsgLoading        = "Loading…"
	MsgDeleting       = "Deleting…"
	MsgClearing       = "Clearing database…"
	MsgRendering      = "Rendering…"
	MsgNoResults      = "No results"
	MsgNoLink         = "This article has no link"
	MsgNothingToMatch = "Nothing to search in"
	MsgRefreshed      = "Results updated"
)

func MsgJobStarted(jobID string) string {
	return fmt.Sprintf("Job %s started", jobID)
}

func MsgResumed(res workspace.Resumed) string {
	switch {
	case res.Polling:
		return fmt.Sprintf("Resumed polling job %s", res.JobID)
	case res.HistoryID != nil:
		return fmt.Sprintf("Showing results of search #%d", *res.HistoryID)
	}
	return ""
}

func MsgResultsCount(n int) string {
	if n == 1 {
		return "1 result"
	}
	return fmt.Sprintf("%d results", n)
}

func MsgFindSummary(query string, n, docCount int) string {
	base := fmt.Sprintf("%s for %q", MsgResultsCount(n), strings.TrimSpace(query))
	if docCount >= 0 {
		base += fmt.Sprintf(" • idx: %d docs", docCount)
	}
	return base
}

func MsgIndexed(docs int) string {
	if docs == 1 {
		return "1 article indexed"
	}
	return fmt.Sprintf("%d articles indexed", docs)
}
