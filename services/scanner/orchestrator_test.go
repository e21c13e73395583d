package scanner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ema_scanner_backend/models"
	"ema_scanner_backend/services/marketdata"
	"ema_scanner_backend/services/store"
)

// fakeProvider serves canned enriched bars per ticker and fails the tickers
// listed in errs. Request times are recorded so pacing can be asserted.
type fakeProvider struct {
	bars    map[string][]models.EnrichedBar
	errs    map[string]error
	calls   map[string]int
	onFetch func(symbol string)

	probeTimes []time.Time
	fetchTimes []time.Time
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		bars:  make(map[string][]models.EnrichedBar),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) FetchDailyBars(_ context.Context, symbol string, _, end time.Time) ([]models.DailyBar, error) {
	// Trading-day probe: every requested day is a trading day.
	f.probeTimes = append(f.probeTimes, time.Now())
	return []models.DailyBar{{Date: end, Close: 100, Volume: 1}}, nil
}

func (f *fakeProvider) FetchEnrichedBars(_ context.Context, symbol string, _, _ time.Time) ([]models.EnrichedBar, error) {
	f.calls[symbol]++
	f.fetchTimes = append(f.fetchTimes, time.Now())
	if f.onFetch != nil {
		f.onFetch(symbol)
	}
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	return f.bars[symbol], nil
}

// history builds n ascending enriched bars ending at the given day, with all
// indicator readings present.
func history(n int, last time.Time, volume int64) []models.EnrichedBar {
	bars := make([]models.EnrichedBar, n)
	for i := range bars {
		bars[i] = models.EnrichedBar{
			DailyBar: models.DailyBar{
				Date:   last.AddDate(0, 0, i-n+1),
				Close:  100 + float64(i),
				Volume: volume,
			},
			EMA8:  models.Indicator(100 + float64(i)),
			EMA21: models.Indicator(99 + float64(i)),
		}
	}
	return bars
}

func quickRetry() marketdata.RetryPolicy {
	return marketdata.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, Multiplier: 2}
}

func TestScan_PublishesSortedSnapshot(t *testing.T) {
	last := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	provider := newFakeProvider()
	provider.bars["SPY"] = history(25, last, 2_000_000)
	provider.bars["QQQ"] = history(25, last, 2_000_000)

	resultStore := store.NewResultStore()
	s := NewUniverseScanner(provider, resultStore, Options{
		Tickers: []string{"SPY", "QQQ"},
		Retry:   quickRetry(),
	})

	if err := s.Scan(context.Background()); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	snap := resultStore.Latest()
	if snap == nil {
		t.Fatal("expected a published snapshot")
	}
	// 25 bars per ticker -> 23 windows each.
	if len(snap.Results) != 46 {
		t.Fatalf("expected 46 rows, got %d", len(snap.Results))
	}
	for i := 1; i < len(snap.Results); i++ {
		if snap.Results[i].Date > snap.Results[i-1].Date {
			t.Fatalf("rows not in descending date order at %d: %s after %s",
				i, snap.Results[i].Date, snap.Results[i-1].Date)
		}
	}
	// Equal dates keep universe order: SPY before QQQ.
	if snap.Results[0].Symbol != "SPY" || snap.Results[1].Symbol != "QQQ" {
		t.Errorf("tie order broken: %s, %s", snap.Results[0].Symbol, snap.Results[1].Symbol)
	}
	if !s.HasCompleted() {
		t.Error("HasCompleted should report true after a pass")
	}
}

func TestScan_SkipsFailingTicker(t *testing.T) {
	last := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	provider := newFakeProvider()
	provider.bars["SPY"] = history(25, last, 500_000)
	provider.errs["QQQ"] = errors.New("upstream 500")
	provider.bars["IWM"] = history(25, last, 500_000)

	resultStore := store.NewResultStore()
	s := NewUniverseScanner(provider, resultStore, Options{
		Tickers: []string{"SPY", "QQQ", "IWM"},
		Retry:   quickRetry(),
	})

	if err := s.Scan(context.Background()); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	snap := resultStore.Latest()
	for _, r := range snap.Results {
		if r.Symbol == "QQQ" {
			t.Fatal("failing ticker must not appear in the snapshot")
		}
	}
	if len(snap.Results) != 46 {
		t.Errorf("expected 46 rows from the two healthy tickers, got %d", len(snap.Results))
	}
	if provider.calls["QQQ"] != 2 {
		t.Errorf("expected 2 attempts for the failing ticker, got %d", provider.calls["QQQ"])
	}
	status := s.Status()
	if status.Running {
		t.Error("status should report not running after the pass")
	}
}

func TestScan_InsufficientHistorySkipped(t *testing.T) {
	last := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	provider := newFakeProvider()
	provider.bars["SPY"] = history(10, last, 500_000) // below the 21-bar floor

	resultStore := store.NewResultStore()
	s := NewUniverseScanner(provider, resultStore, Options{
		Tickers: []string{"SPY"},
		Retry:   quickRetry(),
	})

	if err := s.Scan(context.Background()); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if snap := resultStore.Latest(); len(snap.Results) != 0 {
		t.Errorf("short history should yield no rows, got %d", len(snap.Results))
	}
}

func TestScan_CancellationKeepsPreviousSnapshot(t *testing.T) {
	last := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	provider := newFakeProvider()
	provider.bars["SPY"] = history(25, last, 500_000)

	resultStore := store.NewResultStore()
	seededAt := time.Now().UTC().Add(-time.Hour)
	resultStore.Replace([]models.ScanResult{{Symbol: "SEED", Date: "2024-06-09"}}, seededAt)

	s := NewUniverseScanner(provider, resultStore, Options{
		Tickers: []string{"SPY"},
		Retry:   quickRetry(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Scan(ctx)
	if err == nil {
		t.Fatal("expected an error from a cancelled pass")
	}
	if !strings.Contains(err.Error(), "cancelled") {
		t.Errorf("unexpected error: %v", err)
	}

	snap := resultStore.Latest()
	if len(snap.Results) != 1 || snap.Results[0].Symbol != "SEED" {
		t.Error("cancelled pass must not replace the previous snapshot")
	}
	if !snap.GeneratedAt.Equal(seededAt) {
		t.Errorf("snapshot timestamp changed: %v", snap.GeneratedAt)
	}
}

func TestScan_RejectsConcurrentPass(t *testing.T) {
	provider := newFakeProvider()
	resultStore := store.NewResultStore()
	s := NewUniverseScanner(provider, resultStore, Options{
		Tickers: []string{"SPY"},
		Retry:   quickRetry(),
	})

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	if err := s.Scan(context.Background()); err == nil {
		t.Error("expected conflict while a pass is running")
	}
	if err := s.TriggerAsync(context.Background()); err == nil {
		t.Error("expected conflict from TriggerAsync while a pass is running")
	}
}

func TestScan_PacesBetweenTickers(t *testing.T) {
	last := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	provider := newFakeProvider()
	provider.bars["SPY"] = history(25, last, 500_000)
	provider.bars["QQQ"] = history(25, last, 500_000)

	pacing := 40 * time.Millisecond
	resultStore := store.NewResultStore()
	s := NewUniverseScanner(provider, resultStore, Options{
		Tickers: []string{"SPY", "QQQ"},
		Pacing:  pacing,
		Retry:   quickRetry(),
	})

	if err := s.Scan(context.Background()); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(provider.fetchTimes) != 2 {
		t.Fatalf("expected 2 ticker fetches, got %d", len(provider.fetchTimes))
	}
	if gap := provider.fetchTimes[1].Sub(provider.fetchTimes[0]); gap < pacing {
		t.Errorf("gap between ticker fetches = %v, want at least %v", gap, pacing)
	}

	// The probe burst also gets absorbed before the first ticker fetch.
	if len(provider.probeTimes) == 0 {
		t.Fatal("expected at least one trading-day probe")
	}
	lastProbe := provider.probeTimes[len(provider.probeTimes)-1]
	if gap := provider.fetchTimes[0].Sub(lastProbe); gap < pacing {
		t.Errorf("gap between probe and first fetch = %v, want at least %v", gap, pacing)
	}
}

func TestScan_CancelledDuringPaceKeepsPreviousSnapshot(t *testing.T) {
	last := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := newFakeProvider()
	provider.bars["SPY"] = history(25, last, 500_000)
	provider.bars["QQQ"] = history(25, last, 500_000)
	// Cancel mid-pass: the wait before the second ticker aborts.
	provider.onFetch = func(symbol string) {
		if symbol == "SPY" {
			cancel()
		}
	}

	resultStore := store.NewResultStore()
	seededAt := time.Now().UTC().Add(-time.Hour)
	resultStore.Replace([]models.ScanResult{{Symbol: "SEED", Date: "2024-06-09"}}, seededAt)

	s := NewUniverseScanner(provider, resultStore, Options{
		Tickers: []string{"SPY", "QQQ"},
		Pacing:  50 * time.Millisecond,
		Retry:   quickRetry(),
	})

	err := s.Scan(ctx)
	if err == nil {
		t.Fatal("expected an error from the pass cancelled during pacing")
	}
	if !strings.Contains(err.Error(), "cancelled") {
		t.Errorf("unexpected error: %v", err)
	}
	if provider.calls["QQQ"] != 0 {
		t.Errorf("second ticker must not be fetched after cancellation, got %d calls", provider.calls["QQQ"])
	}

	snap := resultStore.Latest()
	if len(snap.Results) != 1 || snap.Results[0].Symbol != "SEED" {
		t.Error("cancelled pass must not replace the previous snapshot")
	}
}

type recordingNotifier struct {
	total, matched int
	notified       bool
}

func (n *recordingNotifier) ScanCompleted(total, matched int, _ time.Time) {
	n.total, n.matched, n.notified = total, matched, true
}

func TestScan_NotifiesOnPublish(t *testing.T) {
	last := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	provider := newFakeProvider()
	provider.bars["SPY"] = history(25, last, 500_000)

	notifier := &recordingNotifier{}
	resultStore := store.NewResultStore()
	s := NewUniverseScanner(provider, resultStore, Options{
		Tickers:  []string{"SPY"},
		Retry:    quickRetry(),
		Notifier: notifier,
	})

	if err := s.Scan(context.Background()); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if !notifier.notified {
		t.Fatal("notifier was not told about the completed pass")
	}
	if notifier.total != 23 {
		t.Errorf("notifier total = %d, want 23", notifier.total)
	}
}
