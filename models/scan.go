package models

import (
	"fmt"
	"time"
)

// DateLayout is the canonical trading-date format used in JSON payloads,
// archive keys and sorting. Lexicographic order equals chronological order.
const DateLayout = "2006-01-02"

// DailyBar is one normalized day of price/volume history for an instrument.
type DailyBar struct {
	Date   time.Time `json:"date"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// DateString returns the bar's trading date in YYYY-MM-DD form.
func (b DailyBar) DateString() string {
	return b.Date.Format(DateLayout)
}

// IndicatorValue is an EMA reading that may be absent. A zero reading and
// "no data yet" are different things; Valid distinguishes them so downstream
// logic never mistakes a fill-in 0.0 for a real indicator value.
type IndicatorValue struct {
	Value float64
	Valid bool
}

// Indicator returns a present IndicatorValue.
func Indicator(v float64) IndicatorValue {
	return IndicatorValue{Value: v, Valid: true}
}

// EnrichedBar is a DailyBar carrying its fast and slow EMA readings.
// Created fresh each scan cycle and never mutated afterwards.
type EnrichedBar struct {
	DailyBar
	EMA8  IndicatorValue
	EMA21 IndicatorValue
}

// CrossoverPoints flags which of the window's days saw the fast EMA cross
// the slow EMA relative to the immediately preceding day. They are computed
// independently of the matched condition and drive dashboard cell highlighting.
type CrossoverPoints struct {
	TodayUp       bool `json:"today_up" bson:"today_up"`
	TodayDown     bool `json:"today_down" bson:"today_down"`
	YesterdayUp   bool `json:"yesterday_up" bson:"yesterday_up"`
	YesterdayDown bool `json:"yesterday_down" bson:"yesterday_down"`
	DayBeforeUp   bool `json:"day_before_up" bson:"day_before_up"`
	DayBeforeDown bool `json:"day_before_down" bson:"day_before_down"`
}

// ScanResult is one evaluated 3-day window for one instrument. All fields are
// always present on the wire (0/false defaults) so the dashboard contract
// stays stable. Immutable once created.
type ScanResult struct {
	Symbol string `json:"symbol" bson:"symbol"`

	Date   string  `json:"date" bson:"date"`
	Price  float64 `json:"price" bson:"price"`
	Volume int64   `json:"volume" bson:"volume"`
	EMA8   float64 `json:"ema8" bson:"ema8"`
	EMA21  float64 `json:"ema21" bson:"ema21"`

	YesterdayDate   string  `json:"yesterday_date" bson:"yesterday_date"`
	YesterdayPrice  float64 `json:"yesterday_price" bson:"yesterday_price"`
	YesterdayVolume int64   `json:"yesterday_volume" bson:"yesterday_volume"`
	YesterdayEMA8   float64 `json:"yesterday_ema8" bson:"yesterday_ema8"`
	YesterdayEMA21  float64 `json:"yesterday_ema21" bson:"yesterday_ema21"`

	DayBeforeDate   string  `json:"day_before_date" bson:"day_before_date"`
	DayBeforePrice  float64 `json:"day_before_price" bson:"day_before_price"`
	DayBeforeVolume int64   `json:"day_before_volume" bson:"day_before_volume"`
	DayBeforeEMA8   float64 `json:"day_before_ema8" bson:"day_before_ema8"`
	DayBeforeEMA21  float64 `json:"day_before_ema21" bson:"day_before_ema21"`

	Matched         bool            `json:"matched" bson:"matched"`
	CrossoverPoints CrossoverPoints `json:"crossover_points" bson:"crossover_points"`

	GeneratedAt time.Time `json:"generated_at" bson:"generated_at"`
}

// ArchiveKey is the document key for persisted results: one row per
// instrument-day, overwritten in place when a later scan re-evaluates it.
func (r ScanResult) ArchiveKey() string {
	return fmt.Sprintf("%s_%s", r.Symbol, r.Date)
}
