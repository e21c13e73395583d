package marketdata

import (
	"context"
	"fmt"
	"time"

	"ema_scanner_backend/models"
	"ema_scanner_backend/services/analysis"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

// AlpacaProvider fetches daily bars through the official Alpaca market-data
// SDK. Alpaca has no indicator endpoint, so EMA series are computed locally.
type AlpacaProvider struct {
	client *marketdata.Client
}

// NewAlpacaProvider creates an Alpaca provider.
func NewAlpacaProvider(apiKey, apiSecret string) *AlpacaProvider {
	return &AlpacaProvider{
		client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
		}),
	}
}

func (a *AlpacaProvider) Name() string { return "alpaca" }

// FetchDailyBars fetches split-adjusted daily bars, ascending by trading date.
func (a *AlpacaProvider) FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]models.DailyBar, error) {
	bars, err := a.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Adjustment: marketdata.Split,
		Start:      start,
		// End is exclusive of the session still in progress; pad a day so the
		// most recent close is included.
		End: end.AddDate(0, 0, 1),
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca bars request failed for %s: %w", symbol, err)
	}

	daily := make([]models.DailyBar, 0, len(bars))
	for _, b := range bars {
		daily = append(daily, models.DailyBar{
			Date:   tradingDate(b.Timestamp.UnixMilli()),
			Close:  b.Close,
			Volume: int64(b.Volume),
		})
	}
	return daily, nil
}

// FetchEnrichedBars fetches bars and attaches locally computed EMA readings.
func (a *AlpacaProvider) FetchEnrichedBars(ctx context.Context, symbol string, start, end time.Time) ([]models.EnrichedBar, error) {
	bars, err := a.FetchDailyBars(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, nil
	}
	return analysis.EnrichComputed(bars), nil
}
