package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"ema_scanner_backend/models"
	"ema_scanner_backend/services/analysis"
)

// PolygonProvider fetches daily history from the Polygon.io REST API. It
// prefers the indicator endpoint with expand_underlying so one call per EMA
// window yields both the precomputed series and the raw aggregates.
type PolygonProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewPolygonProvider creates a Polygon.io provider.
func NewPolygonProvider(apiKey, baseURL string) *PolygonProvider {
	if baseURL == "" {
		baseURL = "https://api.polygon.io"
	}
	return &PolygonProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (p *PolygonProvider) Name() string { return "polygon" }

// polygonAgg represents one daily aggregate bar from Polygon
type polygonAgg struct {
	Timestamp int64   `json:"t"` // ms since epoch, UTC
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
}

// polygonEMAResponse represents the /v1/indicators/ema response structure
type polygonEMAResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Results struct {
		Values []struct {
			Timestamp int64   `json:"timestamp"`
			Value     float64 `json:"value"`
		} `json:"values"`
		Underlying struct {
			Aggregates []polygonAgg `json:"aggregates"`
		} `json:"underlying"`
	} `json:"results"`
}

// polygonAggsResponse represents the /v2/aggs response structure
type polygonAggsResponse struct {
	Status       string       `json:"status"`
	Error        string       `json:"error"`
	ResultsCount int          `json:"resultsCount"`
	Results      []polygonAgg `json:"results"`
}

// FetchDailyBars fetches raw daily aggregates, ascending by trading date.
func (p *PolygonProvider) FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]models.DailyBar, error) {
	endpoint := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/1/day/%s/%s",
		p.baseURL, url.PathEscape(symbol),
		start.Format(models.DateLayout), end.Format(models.DateLayout))

	q := url.Values{}
	q.Set("adjusted", "true")
	q.Set("sort", "asc")
	q.Set("limit", "120")
	q.Set("apiKey", p.apiKey)

	var resp polygonAggsResponse
	if err := p.get(ctx, endpoint+"?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("polygon aggs error for %s: %s", symbol, resp.Error)
	}

	bars := aggsToBars(resp.Results)
	return bars, nil
}

// FetchEnrichedBars fetches the provider's EMA8/EMA21 series (EMA8 with the
// underlying aggregates expanded) and reconciles them onto the daily bars by
// trading date.
func (p *PolygonProvider) FetchEnrichedBars(ctx context.Context, symbol string, start, end time.Time) ([]models.EnrichedBar, error) {
	ema8, aggs, err := p.fetchEMA(ctx, symbol, analysis.FastWindow, start, end, true)
	if err != nil {
		return nil, err
	}
	ema21, _, err := p.fetchEMA(ctx, symbol, analysis.SlowWindow, start, end, false)
	if err != nil {
		return nil, err
	}

	bars := aggsToBars(aggs)
	if len(bars) == 0 {
		return nil, nil
	}
	return analysis.EnrichFromProvider(bars, ema8, ema21), nil
}

// fetchEMA calls the indicator endpoint for one window and returns the EMA
// values keyed by trading date, plus the underlying aggregates when expanded.
func (p *PolygonProvider) fetchEMA(ctx context.Context, symbol string, window int, start, end time.Time, expand bool) (map[string]float64, []polygonAgg, error) {
	endpoint := fmt.Sprintf("%s/v1/indicators/ema/%s", p.baseURL, url.PathEscape(symbol))

	q := url.Values{}
	q.Set("timestamp.gte", start.Format(models.DateLayout))
	q.Set("timestamp.lte", end.Format(models.DateLayout))
	q.Set("timespan", "day")
	q.Set("adjusted", "true")
	q.Set("window", fmt.Sprintf("%d", window))
	q.Set("series_type", "close")
	q.Set("order", "desc")
	q.Set("limit", "120")
	if expand {
		q.Set("expand_underlying", "true")
	}
	q.Set("apiKey", p.apiKey)

	var resp polygonEMAResponse
	if err := p.get(ctx, endpoint+"?"+q.Encode(), &resp); err != nil {
		return nil, nil, err
	}
	if resp.Error != "" {
		return nil, nil, fmt.Errorf("polygon ema%d error for %s: %s", window, symbol, resp.Error)
	}

	values := make(map[string]float64, len(resp.Results.Values))
	for _, v := range resp.Results.Values {
		values[tradingDate(v.Timestamp).Format(models.DateLayout)] = v.Value
	}
	return values, resp.Results.Underlying.Aggregates, nil
}

// get performs an HTTP GET and decodes the JSON body into out.
func (p *PolygonProvider) get(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("polygon request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read polygon response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("polygon rate limit hit (429)")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("polygon returned status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse polygon response: %w", err)
	}
	return nil
}

// aggsToBars normalizes aggregates into DailyBars, ascending by trading date.
// Missing numeric fields decode as zero and are kept: rows must always
// serialize, so zeros beat dropped days here.
func aggsToBars(aggs []polygonAgg) []models.DailyBar {
	bars := make([]models.DailyBar, 0, len(aggs))
	for _, a := range aggs {
		bars = append(bars, models.DailyBar{
			Date:   tradingDate(a.Timestamp),
			Close:  a.Close,
			Volume: int64(a.Volume),
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
