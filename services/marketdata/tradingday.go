package marketdata

import (
	"context"
	"log"
	"time"
)

// tradingDayProbeLimit bounds the walk back from today; the longest US
// market closure in a normal year is a 3-day holiday weekend.
const tradingDayProbeLimit = 5

// MostRecentTradingDay walks back from now up to five calendar days and
// returns the first day the provider has at least one bar for the reference
// symbol. If no day qualifies, today is returned and the scan's own
// per-ticker fetches decide what to do with it.
func MostRecentTradingDay(ctx context.Context, p Provider, reference string, now time.Time) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	for i := 0; i < tradingDayProbeLimit; i++ {
		probe := day.AddDate(0, 0, -i)
		bars, err := p.FetchDailyBars(ctx, reference, probe, probe)
		if err != nil {
			log.Printf("Trading day probe for %s on %s failed: %v", reference, probe.Format("2006-01-02"), err)
			continue
		}
		if len(bars) > 0 {
			return probe
		}
	}
	return day
}
