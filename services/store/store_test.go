package store

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"ema_scanner_backend/models"
)

func rows(n int) []models.ScanResult {
	out := make([]models.ScanResult, n)
	for i := range out {
		out[i] = models.ScanResult{Symbol: fmt.Sprintf("T%02d", i), Date: "2024-06-10"}
	}
	return out
}

func TestPage_Empty(t *testing.T) {
	s := NewResultStore()
	page := s.Page(3, 20)
	if page.Total != 0 || page.TotalPages != 0 {
		t.Errorf("empty store: total=%d totalPages=%d, want 0/0", page.Total, page.TotalPages)
	}
	if page.Page != 3 {
		t.Errorf("empty store should echo the requested page, got %d", page.Page)
	}
	if page.Results == nil || len(page.Results) != 0 {
		t.Errorf("empty store should return an empty (non-nil) slice, got %v", page.Results)
	}
}

func TestPage_Slicing(t *testing.T) {
	s := NewResultStore()
	now := time.Now().UTC()
	s.Replace(rows(45), now)

	tests := []struct {
		name      string
		page      int
		perPage   int
		wantPage  int
		wantCount int
		wantFirst string
	}{
		{"first page", 1, 20, 1, 20, "T00"},
		{"middle page", 2, 20, 2, 20, "T20"},
		{"last partial page", 3, 20, 3, 5, "T40"},
		{"past the end clamps to last", 4, 20, 3, 5, "T40"},
		{"below one clamps to first", 0, 20, 1, 20, "T00"},
		{"single row pages", 45, 1, 45, 1, "T44"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := s.Page(tt.page, tt.perPage)
			if page.Page != tt.wantPage {
				t.Errorf("page = %d, want %d", page.Page, tt.wantPage)
			}
			if len(page.Results) != tt.wantCount {
				t.Fatalf("len = %d, want %d", len(page.Results), tt.wantCount)
			}
			if page.Results[0].Symbol != tt.wantFirst {
				t.Errorf("first symbol = %s, want %s", page.Results[0].Symbol, tt.wantFirst)
			}
			if page.Total != 45 {
				t.Errorf("total = %d, want 45", page.Total)
			}
			if page.TotalPages != (45+tt.perPage-1)/tt.perPage {
				t.Errorf("totalPages = %d", page.TotalPages)
			}
			if !page.GeneratedAt.Equal(now) {
				t.Errorf("generatedAt = %v, want %v", page.GeneratedAt, now)
			}
		})
	}
}

func TestReplace_CopiesInput(t *testing.T) {
	s := NewResultStore()
	input := rows(3)
	s.Replace(input, time.Now())

	input[0].Symbol = "MUTATED"

	if got := s.Latest().Results[0].Symbol; got == "MUTATED" {
		t.Error("caller mutation leaked into the published snapshot")
	}
}

func TestReplace_SwapsWholeSnapshot(t *testing.T) {
	s := NewResultStore()
	s.Replace(rows(45), time.Now())
	s.Replace(rows(2), time.Now())

	if got := s.Page(1, 20).Total; got != 2 {
		t.Errorf("second publish should fully replace the first, total = %d", got)
	}
}

func TestReplace_SameInputIsIdempotent(t *testing.T) {
	s := NewResultStore()
	input := rows(45)
	now := time.Now().UTC()

	s.Replace(input, now)
	first := s.Page(1, 20)

	s.Replace(input, now)
	second := s.Page(1, 20)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated publish of the same rows changed the page:\nfirst:  %+v\nsecond: %+v", first, second)
	}
	if last := s.Page(3, 20); len(last.Results) != 5 {
		t.Errorf("final page has %d rows after republish, want 5", len(last.Results))
	}
}

func TestStore_ConcurrentReadersAndWriter(t *testing.T) {
	s := NewResultStore()
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			s.Replace(rows(i%50), time.Now())
		}
		close(stop)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				page := s.Page(1, 20)
				if page.Total > 0 && len(page.Results) == 0 {
					t.Error("non-empty snapshot returned an empty first page")
					return
				}
			}
		}()
	}
	wg.Wait()
}
