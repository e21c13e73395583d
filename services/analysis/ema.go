package analysis

import (
	"ema_scanner_backend/models"
)

const (
	// FastWindow and SlowWindow are the two EMA lengths the scanner compares.
	FastWindow = 8
	SlowWindow = 21

	// MinimumHistory is the least number of usable EMA-aligned bars an
	// instrument must yield; below this the instrument is skipped for the
	// cycle so the slow EMA has settled before any window is evaluated.
	MinimumHistory = 21
)

// ComputeEMASeries computes the exponential moving average over prices
// ordered ascending by date. The series is seeded at the first observation
// (ema[0] = price[0]) and smoothed recursively with weight 2/(window+1),
// with no bias correction.
func ComputeEMASeries(prices []float64, window int) []float64 {
	if len(prices) == 0 {
		return nil
	}

	k := 2.0 / float64(window+1)
	ema := make([]float64, len(prices))
	ema[0] = prices[0]
	for i := 1; i < len(prices); i++ {
		ema[i] = prices[i]*k + ema[i-1]*(1-k)
	}
	return ema
}

// EnrichComputed attaches locally computed EMA8/EMA21 readings to bars
// ordered ascending by date. Every reading is valid because the recurrence
// is seeded at the first bar.
func EnrichComputed(bars []models.DailyBar) []models.EnrichedBar {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	ema8 := ComputeEMASeries(closes, FastWindow)
	ema21 := ComputeEMASeries(closes, SlowWindow)

	enriched := make([]models.EnrichedBar, len(bars))
	for i, b := range bars {
		enriched[i] = models.EnrichedBar{
			DailyBar: b,
			EMA8:     models.Indicator(ema8[i]),
			EMA21:    models.Indicator(ema21[i]),
		}
	}
	return enriched
}

// EnrichFromProvider reconciles provider-supplied EMA series onto bars
// ordered ascending by date. A date missing from a series is forward-filled
// from the nearest earlier reading; with no earlier reading the indicator is
// marked absent rather than zero-filled, so consumers can tell "no data"
// apart from a genuine 0.0.
func EnrichFromProvider(bars []models.DailyBar, ema8, ema21 map[string]float64) []models.EnrichedBar {
	enriched := make([]models.EnrichedBar, len(bars))

	var last8, last21 models.IndicatorValue
	for i, b := range bars {
		key := b.DateString()
		if v, ok := ema8[key]; ok {
			last8 = models.Indicator(v)
		}
		if v, ok := ema21[key]; ok {
			last21 = models.Indicator(v)
		}
		enriched[i] = models.EnrichedBar{
			DailyBar: b,
			EMA8:     last8,
			EMA21:    last21,
		}
	}
	return enriched
}

// UsableBars counts bars carrying both EMA readings. Instruments with fewer
// than MinimumHistory usable bars are skipped for the scan cycle.
func UsableBars(bars []models.EnrichedBar) int {
	n := 0
	for _, b := range bars {
		if b.EMA8.Valid && b.EMA21.Valid {
			n++
		}
	}
	return n
}
