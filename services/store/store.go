package store

import (
	"sync"
	"time"

	"ema_scanner_backend/models"
)

// Snapshot is the immutable output of one completed scan pass. A new pass
// replaces the whole snapshot; nothing ever mutates one in place, which is
// what lets readers hold it without locks.
type Snapshot struct {
	Results     []models.ScanResult
	GeneratedAt time.Time
}

// PageResult is one page of the current snapshot.
type PageResult struct {
	Results     []models.ScanResult `json:"results"`
	Total       int                 `json:"total"`
	Page        int                 `json:"page"`
	PerPage     int                 `json:"per_page"`
	TotalPages  int                 `json:"total_pages"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// ResultStore holds the latest scan snapshot. Single writer (the scan
// orchestrator), many concurrent readers (page requests). The RWMutex only
// guards the pointer swap, so readers can never observe a partially written
// result sequence.
type ResultStore struct {
	mu   sync.RWMutex
	snap *Snapshot
}

// NewResultStore creates an empty store.
func NewResultStore() *ResultStore {
	return &ResultStore{snap: &Snapshot{Results: []models.ScanResult{}}}
}

// Replace publishes a completed scan's results wholesale. The input is
// copied so later caller mutations cannot leak into a published snapshot.
func (s *ResultStore) Replace(results []models.ScanResult, generatedAt time.Time) {
	owned := make([]models.ScanResult, len(results))
	copy(owned, results)

	snap := &Snapshot{Results: owned, GeneratedAt: generatedAt}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

// Latest returns the current snapshot.
func (s *ResultStore) Latest() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Page slices the current snapshot into a fixed-size page. With no data the
// page is returned empty with zero total pages and the requested page number
// untouched. With data the page number is clamped into [1, totalPages], so a
// caller asking past the end gets the final page instead of an empty slice.
func (s *ResultStore) Page(page, perPage int) PageResult {
	snap := s.Latest()
	total := len(snap.Results)

	if total == 0 {
		return PageResult{
			Results:     []models.ScanResult{},
			Total:       0,
			Page:        page,
			PerPage:     perPage,
			TotalPages:  0,
			GeneratedAt: snap.GeneratedAt,
		}
	}

	totalPages := (total + perPage - 1) / perPage
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	start := (page - 1) * perPage
	end := start + perPage
	if end > total {
		end = total
	}

	return PageResult{
		Results:     snap.Results[start:end],
		Total:       total,
		Page:        page,
		PerPage:     perPage,
		TotalPages:  totalPages,
		GeneratedAt: snap.GeneratedAt,
	}
}
