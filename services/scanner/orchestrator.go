package scanner

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"ema_scanner_backend/models"
	"ema_scanner_backend/services/analysis"
	"ema_scanner_backend/services/marketdata"
	"ema_scanner_backend/services/store"
)

// Notifier is told when a scan pass publishes a new snapshot.
type Notifier interface {
	ScanCompleted(total, matched int, generatedAt time.Time)
}

// Status is a point-in-time view of the orchestrator for the status endpoint.
type Status struct {
	Running      bool      `json:"running"`
	LastRun      time.Time `json:"last_run"`
	LastError    string    `json:"last_error"`
	LastDuration string    `json:"last_duration"`
	UniverseSize int       `json:"universe_size"`
	Provider     string    `json:"provider"`
}

// UniverseScanner runs the full scan pass: a strictly sequential loop over
// the ticker universe with pacing sleeps between instruments, per-instrument
// retry, and one atomic snapshot publish at the end. The provider enforces a
// rate limit the pacing budget is tuned against, so there is no parallel
// fan-out.
type UniverseScanner struct {
	provider marketdata.Provider
	store    *store.ResultStore
	archive  store.Archive // nil when no archive is configured
	notifier Notifier      // nil when nobody listens

	tickers      []string
	pacing       time.Duration
	lookbackDays int
	retry        marketdata.RetryPolicy

	mu       sync.Mutex
	running  bool
	lastRun  time.Time
	lastErr  string
	lastTook time.Duration
}

// Options configures a UniverseScanner.
type Options struct {
	Tickers      []string
	Pacing       time.Duration
	LookbackDays int
	Retry        marketdata.RetryPolicy
	Archive      store.Archive
	Notifier     Notifier
}

// NewUniverseScanner creates the scan orchestrator.
func NewUniverseScanner(provider marketdata.Provider, resultStore *store.ResultStore, opts Options) *UniverseScanner {
	tickers := opts.Tickers
	if len(tickers) == 0 {
		tickers = models.DefaultUniverse
	}
	lookback := opts.LookbackDays
	if lookback <= 0 {
		lookback = 30
	}
	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry = marketdata.DefaultRetryPolicy()
	}

	return &UniverseScanner{
		provider:     provider,
		store:        resultStore,
		archive:      opts.Archive,
		notifier:     opts.Notifier,
		tickers:      tickers,
		pacing:       opts.Pacing,
		lookbackDays: lookback,
		retry:        retry,
	}
}

// Status reports the current orchestrator state.
func (s *UniverseScanner) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:      s.running,
		LastRun:      s.lastRun,
		LastError:    s.lastErr,
		LastDuration: s.lastTook.Round(time.Second).String(),
		UniverseSize: len(s.tickers),
		Provider:     s.provider.Name(),
	}
}

// HasCompleted reports whether at least one scan pass has published.
func (s *UniverseScanner) HasCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.lastRun.IsZero()
}

// TriggerAsync starts a scan in the background unless one is already
// running, in which case it reports the conflict to the caller.
func (s *UniverseScanner) TriggerAsync(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("a scan is already in progress")
	}
	s.running = true
	s.mu.Unlock()

	go func() {
		if err := s.run(ctx); err != nil {
			log.Printf("Scan pass failed: %v", err)
		}
	}()
	return nil
}

// Scan runs one full pass synchronously. Returns an error only when the pass
// could not publish at all (cancellation); individual ticker failures are
// logged and skipped.
func (s *UniverseScanner) Scan(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("a scan is already in progress")
	}
	s.running = true
	s.mu.Unlock()

	return s.run(ctx)
}

// run assumes the running flag is held and releases it on exit.
func (s *UniverseScanner) run(ctx context.Context) error {
	start := time.Now()
	finish := func(err error) error {
		s.mu.Lock()
		s.running = false
		s.lastTook = time.Since(start)
		if err != nil {
			s.lastErr = err.Error()
		} else {
			s.lastErr = ""
			s.lastRun = time.Now()
		}
		s.mu.Unlock()
		return err
	}

	log.Printf("Starting scan pass: %d tickers via %s", len(s.tickers), s.provider.Name())

	end := marketdata.MostRecentTradingDay(ctx, s.provider, s.tickers[0], time.Now())
	begin := end.AddDate(0, 0, -s.lookbackDays)
	generatedAt := time.Now().UTC()

	// The probe already spent provider requests; absorb them before the
	// first ticker fetch so the request rate stays uniform.
	if err := s.pace(ctx); err != nil {
		return finish(fmt.Errorf("scan cancelled before first ticker: %w", err))
	}

	var all []models.ScanResult
	scanned, skipped := 0, 0

	for i, ticker := range s.tickers {
		if i > 0 {
			if err := s.pace(ctx); err != nil {
				// Cancelled mid-pass: keep the previous snapshot intact.
				return finish(fmt.Errorf("scan cancelled after %d tickers: %w", i, err))
			}
		}

		rows, err := s.scanTicker(ctx, ticker, begin, end, generatedAt)
		if err != nil {
			if ctx.Err() != nil {
				return finish(fmt.Errorf("scan cancelled at %s: %w", ticker, ctx.Err()))
			}
			log.Printf("Skipping %s: %v", ticker, err)
			skipped++
			continue
		}

		all = append(all, rows...)
		scanned++
	}

	// Whole-universe ordering: most recent day first, stable so equally
	// dated rows keep universe order.
	sort.SliceStable(all, func(i, j int) bool { return all[i].Date > all[j].Date })

	s.store.Replace(all, generatedAt)

	matched := 0
	for _, r := range all {
		if r.Matched {
			matched++
		}
	}
	log.Printf("Scan pass complete: %d rows (%d matched) from %d tickers, %d skipped, took %s",
		len(all), matched, scanned, skipped, time.Since(start).Round(time.Second))

	if s.archive != nil {
		if err := s.archive.SaveResults(ctx, all); err != nil {
			log.Printf("Warning: failed to archive scan results: %v", err)
		}
	}
	if s.notifier != nil {
		s.notifier.ScanCompleted(len(all), matched, generatedAt)
	}

	return finish(nil)
}

// scanTicker fetches and classifies one instrument under the retry policy.
func (s *UniverseScanner) scanTicker(ctx context.Context, ticker string, begin, end time.Time, generatedAt time.Time) ([]models.ScanResult, error) {
	var enriched []models.EnrichedBar

	err := s.retry.Do(ctx, func(attempt int) error {
		if attempt > 1 {
			log.Printf("Retry attempt %d for %s", attempt, ticker)
		}

		bars, err := s.provider.FetchEnrichedBars(ctx, ticker, begin, end)
		if err != nil {
			return err
		}
		if usable := analysis.UsableBars(bars); usable < analysis.MinimumHistory {
			return fmt.Errorf("insufficient history: %d usable bars, need %d", usable, analysis.MinimumHistory)
		}
		enriched = bars
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Providers return ascending order for EMA seeding; the window slide
	// wants most recent first.
	descending := make([]models.EnrichedBar, len(enriched))
	for i, b := range enriched {
		descending[len(enriched)-1-i] = b
	}

	return ScanInstrument(ticker, descending, generatedAt), nil
}

// pace waits the inter-request interval, honoring cancellation.
func (s *UniverseScanner) pace(ctx context.Context) error {
	if s.pacing <= 0 {
		return nil
	}
	timer := time.NewTimer(s.pacing)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
