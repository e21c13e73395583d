package marketdata

import (
	"context"
	"log"
	"time"

	"ema_scanner_backend/models"
)

// Provider is a daily time-series source for one instrument. Implementations
// normalize whatever the upstream API returns into ascending-by-date bars.
//
// An empty slice with a nil error means the provider has no data for the
// range. Callers treat that as "skip this instrument", never as a failure.
type Provider interface {
	Name() string

	// FetchDailyBars returns raw close/volume history, ascending by date.
	FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]models.DailyBar, error)

	// FetchEnrichedBars returns bars with EMA8/EMA21 attached, ascending by
	// date: either the provider's own indicator series reconciled by trading
	// date, or locally computed values.
	FetchEnrichedBars(ctx context.Context, symbol string, start, end time.Time) ([]models.EnrichedBar, error)
}

// eastern is the exchange-local zone used to bucket UTC millisecond
// timestamps into trading days.
var eastern *time.Location

func init() {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		log.Printf("Warning: could not load America/New_York, trading dates fall back to UTC: %v", err)
		loc = time.UTC
	}
	eastern = loc
}

// tradingDate normalizes a provider timestamp (ms since epoch, UTC) to the
// US-Eastern calendar day it belongs to, represented as midnight UTC so
// date arithmetic and formatting stay zone-free downstream.
func tradingDate(ms int64) time.Time {
	t := time.UnixMilli(ms).In(eastern)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
