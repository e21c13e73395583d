package scheduler

import (
	"context"
	"log"
	"time"

	"ema_scanner_backend/config"
	"ema_scanner_backend/services/scanner"

	"github.com/go-co-op/gocron"
)

// Scheduler manages the recurring scan jobs.
type Scheduler struct {
	cron    *gocron.Scheduler
	scanner *scanner.UniverseScanner
	cfg     *config.Config
	ctx     context.Context
}

// NewScheduler creates a scheduler running in US-Eastern time so the daily
// job fires relative to the exchange session, not the server's zone.
func NewScheduler(ctx context.Context, cfg *config.Config, sc *scanner.UniverseScanner) *Scheduler {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		log.Printf("Warning: could not load America/New_York for scheduling: %v", err)
		loc = time.UTC
	}
	return &Scheduler{
		cron:    gocron.NewScheduler(loc),
		scanner: sc,
		cfg:     cfg,
		ctx:     ctx,
	}
}

// Start registers the jobs and starts the scheduler asynchronously.
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	// Daily scan after the US close.
	s.cron.Every(1).Day().At(s.cfg.ScanSchedule).Do(func() {
		s.runScan("scheduled daily")
	})

	// Optional intraday rescan.
	if s.cfg.ScanIntervalMin > 0 {
		s.cron.Every(s.cfg.ScanIntervalMin).Minutes().Do(func() {
			s.runScan("interval")
		})
	}

	s.cron.StartAsync()
	log.Printf("Scheduler started: daily scan at %s ET", s.cfg.ScanSchedule)
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}

func (s *Scheduler) runScan(trigger string) {
	log.Printf("Running %s scan...", trigger)
	if err := s.scanner.Scan(s.ctx); err != nil {
		log.Printf("%s scan did not complete: %v", trigger, err)
	}
}
