package scanner

import (
	"math"
	"time"

	"ema_scanner_backend/models"

	"github.com/shopspring/decimal"
)

// VolumeThreshold is the minimum today-volume for a window to match.
const VolumeThreshold = 1_000_000

// windowSize is how many consecutive trading days one evaluation covers.
const windowSize = 3

// ScanInstrument slides a 3-day window over bars ordered descending by date
// and classifies every position. N bars yield N-2 results; fewer than 3 bars
// yield none.
//
// The matched condition uses the strict bullish pattern (yesterday's EMA8
// above EMA21 while the day before had EMA21 above EMA8, meaning the fast
// average crossed up between dayBefore and yesterday) combined with today's
// volume above the threshold. The crossover-point flags are broader: they
// mark any up or down crossing at today, yesterday and (when a fourth bar
// exists) the day before, for dashboard highlighting.
func ScanInstrument(symbol string, bars []models.EnrichedBar, generatedAt time.Time) []models.ScanResult {
	if len(bars) < windowSize {
		return nil
	}

	results := make([]models.ScanResult, 0, len(bars)-windowSize+1)
	for i := 0; i+windowSize <= len(bars); i++ {
		today := bars[i]
		yesterday := bars[i+1]
		dayBefore := bars[i+2]

		points := models.CrossoverPoints{
			TodayUp:       crossesUp(today, yesterday),
			TodayDown:     crossesDown(today, yesterday),
			YesterdayUp:   crossesUp(yesterday, dayBefore),
			YesterdayDown: crossesDown(yesterday, dayBefore),
		}
		if i+windowSize < len(bars) {
			twoDaysBefore := bars[i+3]
			points.DayBeforeUp = crossesUp(dayBefore, twoDaysBefore)
			points.DayBeforeDown = crossesDown(dayBefore, twoDaysBefore)
		}

		volumeCondition := today.Volume > VolumeThreshold
		crossoverCondition := strictBullishCross(yesterday, dayBefore)

		results = append(results, models.ScanResult{
			Symbol: symbol,

			Date:   today.DateString(),
			Price:  round2(today.Close),
			Volume: today.Volume,
			EMA8:   round2(indicatorValue(today.EMA8)),
			EMA21:  round2(indicatorValue(today.EMA21)),

			YesterdayDate:   yesterday.DateString(),
			YesterdayPrice:  round2(yesterday.Close),
			YesterdayVolume: yesterday.Volume,
			YesterdayEMA8:   round2(indicatorValue(yesterday.EMA8)),
			YesterdayEMA21:  round2(indicatorValue(yesterday.EMA21)),

			DayBeforeDate:   dayBefore.DateString(),
			DayBeforePrice:  round2(dayBefore.Close),
			DayBeforeVolume: dayBefore.Volume,
			DayBeforeEMA8:   round2(indicatorValue(dayBefore.EMA8)),
			DayBeforeEMA21:  round2(indicatorValue(dayBefore.EMA21)),

			Matched:         volumeCondition && crossoverCondition,
			CrossoverPoints: points,

			GeneratedAt: generatedAt,
		})
	}
	return results
}

// strictBullishCross reports whether the fast EMA crossed above the slow EMA
// between dayBefore and yesterday. Absent indicator readings never match.
func strictBullishCross(yesterday, dayBefore models.EnrichedBar) bool {
	if !yesterday.EMA8.Valid || !yesterday.EMA21.Valid || !dayBefore.EMA8.Valid || !dayBefore.EMA21.Valid {
		return false
	}
	return yesterday.EMA8.Value > yesterday.EMA21.Value &&
		dayBefore.EMA21.Value > dayBefore.EMA8.Value
}

// crossesUp reports a fast-over-slow transition at day relative to prev:
// fast(day) > slow(day) while fast(prev) <= slow(prev).
func crossesUp(day, prev models.EnrichedBar) bool {
	if !day.EMA8.Valid || !day.EMA21.Valid || !prev.EMA8.Valid || !prev.EMA21.Valid {
		return false
	}
	return day.EMA8.Value > day.EMA21.Value && prev.EMA8.Value <= prev.EMA21.Value
}

// crossesDown is the symmetric slow-over-fast transition.
func crossesDown(day, prev models.EnrichedBar) bool {
	if !day.EMA8.Valid || !day.EMA21.Valid || !prev.EMA8.Valid || !prev.EMA21.Valid {
		return false
	}
	return day.EMA8.Value < day.EMA21.Value && prev.EMA8.Value >= prev.EMA21.Value
}

// indicatorValue unwraps an EMA reading, reporting absent values as 0 so the
// row stays fully populated on the wire.
func indicatorValue(v models.IndicatorValue) float64 {
	if !v.Valid {
		return 0
	}
	return v.Value
}

// round2 rounds to two decimal places for display, coercing NaN/Inf to 0 so
// rows always serialize.
func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
