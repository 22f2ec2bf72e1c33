package state

import "sync"

// SelectionSnapshot is a copy of the selection at one point in time.
type SelectionSnapshot struct {
	ActiveJobID             string
	ActiveHistoryID         *int64
	SelectedHistoryRecordID *int64
	HistoryPage             int
}

// Selection tracks which job, run and history record the views point at.
// The live and history sides are independent of each other.
type Selection struct {
	mu                      sync.Mutex
	activeJobID             string
	activeHistoryID         *int64
	selectedHistoryRecordID *int64
	historyPage             int
}

func ptr(v int64) *int64 { return &v }

func (s *Selection) ActiveJobID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeJobID
}

// SetActiveJob makes jobID the tracked job. The previous run's history id
// is discarded.
func (s *Selection) SetActiveJob(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeJobID = jobID
	s.activeHistoryID = nil
}

func (s *Selection) ActiveHistoryID() *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeHistoryID == nil {
		return nil
	}
	return ptr(*s.activeHistoryID)
}

// AttachHistory records the history id a completed job produced.
func (s *Selection) AttachHistory(id int64) {
	s.mu.Lock()
	s.activeHistoryID = ptr(id)
	s.mu.Unlock()
}

// DetachHistory clears the live history id if it equals id. It reports
// whether it did.
func (s *Selection) DetachHistory(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeHistoryID == nil || *s.activeHistoryID != id {
		return false
	}
	s.activeHistoryID = nil
	return true
}

// ClearLive resets the live side only.
func (s *Selection) ClearLive() {
	s.mu.Lock()
	s.activeJobID = ""
	s.activeHistoryID = nil
	s.mu.Unlock()
}

func (s *Selection) SelectedHistoryRecord() *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selectedHistoryRecordID == nil {
		return nil
	}
	return ptr(*s.selectedHistoryRecordID)
}

func (s *Selection) SelectHistoryRecord(id int64) {
	s.mu.Lock()
	s.selectedHistoryRecordID = ptr(id)
	s.mu.Unlock()
}

// ClearHistoryRecord deselects the history tab's record.
func (s *Selection) ClearHistoryRecord() {
	s.mu.Lock()
	s.selectedHistoryRecordID = nil
	s.mu.Unlock()
}

// HistoryPage is 1-based; zero means no page has been loaded yet.
func (s *Selection) HistoryPage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyPage
}

func (s *Selection) SetHistoryPage(page int) {
	s.mu.Lock()
	s.historyPage = page
	s.mu.Unlock()
}

func (s *Selection) Snapshot() SelectionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := SelectionSnapshot{
		ActiveJobID: s.activeJobID,
		HistoryPage: s.historyPage,
	}
	if s.activeHistoryID != nil {
		snap.ActiveHistoryID = ptr(*s.activeHistoryID)
	}
	if s.selectedHistoryRecordID != nil {
		snap.SelectedHistoryRecordID = ptr(*s.selectedHistoryRecordID)
	}
	return snap
}

// Restore loads a previously saved snapshot.
func (s *Selection) Restore(snap SelectionSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeJobID = snap.ActiveJobID
	s.activeHistoryID = nil
	if snap.ActiveHistoryID != nil {
		s.activeHistoryID = ptr(*snap.ActiveHistoryID)
	}
	s.selectedHistoryRecordID = nil
	if snap.SelectedHistoryRecordID != nil {
		s.selectedHistoryRecordID = ptr(*snap.SelectedHistoryRecordID)
	}
	s.historyPage = snap.HistoryPage
}
