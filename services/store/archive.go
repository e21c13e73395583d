package store

import (
	"context"

	"ema_scanner_backend/models"
)

// Archive is the optional durable home for scan results, one document per
// instrument-day keyed "{symbol}_{date}". The in-memory snapshot is always
// authoritative for /scan; the archive only accumulates history across
// restarts and serves the history endpoint.
type Archive interface {
	Name() string

	// SaveResults upserts each result under its archive key. Rows for days a
	// later scan re-evaluates are overwritten; older rows persist.
	SaveResults(ctx context.Context, results []models.ScanResult) error

	// RecentResults returns archived rows ordered newest first, optionally
	// filtered by symbol. limit caps the row count.
	RecentResults(ctx context.Context, symbol string, limit int) ([]models.ScanResult, error)

	Close(ctx context.Context) error
}
