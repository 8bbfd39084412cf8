package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"gapup-lab/internal/domain"
)

// DefaultEODHDBaseURL is the base URL for the EODHD API.
const DefaultEODHDBaseURL = "https://eodhd.com/api"

// EODHDClient fetches end-of-day bars from EODHD.
type EODHDClient struct {
	t      *transport
	apiKey string
}

// NewEODHDClient creates a new EODHD API client.
func NewEODHDClient(apiKey string, opts ...Option) *EODHDClient {
	return &EODHDClient{t: newTransport(DefaultEODHDBaseURL, opts...), apiKey: apiKey}
}

// Name returns the provider name.
func (c *EODHDClient) Name() string { return ProviderEODHD }

// eodRow represents a single day of EOD data.
type eodRow struct {
	DateStr       string  `json:"date"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	AdjustedClose float64 `json:"adjusted_close"`
	Volume        int64   `json:"volume"`
}

// eodSymbol appends the US exchange suffix when none is given.
// Format: TICKER.EXCHANGE (e.g., "QQQ.US").
func eodSymbol(symbol string) string {
	if strings.Contains(symbol, ".") {
		return symbol
	}
	return symbol + ".US"
}

// FetchDaily requests bars in [r.Start, r.End). EODHD treats "to" as
// inclusive, so the last day of the range is sent.
func (c *EODHDClient) FetchDaily(ctx context.Context, symbol string, r domain.DateRange) (domain.PriceSeries, error) {
	params := url.Values{}
	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")
	params.Set("period", "d")
	params.Set("order", "a")
	if !r.Start.IsZero() {
		params.Set("from", r.Start.Format(domain.DateLayout))
	}
	if !r.End.IsZero() {
		params.Set("to", r.LastDay().Format(domain.DateLayout))
	}

	var rows []eodRow
	if err := c.t.getJSON(ctx, "/eod/"+url.PathEscape(eodSymbol(symbol)), params, &rows); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return domain.PriceSeries{}, fmt.Errorf("%w: %w", domain.ErrDataUnavailable, err)
		}
		return domain.PriceSeries{}, fmt.Errorf("eodhd eod %s: %w", symbol, err)
	}

	bars := make([]domain.PriceBar, 0, len(rows))
	for _, row := range rows {
		date, err := domain.ParseDate(row.DateStr)
		if err != nil {
			return domain.PriceSeries{}, fmt.Errorf("eodhd eod %s: %w", symbol, err)
		}
		b := domain.PriceBar{
			Date:   date,
			Open:   row.Open,
			High:   row.High,
			Low:    row.Low,
			Close:  row.Close,
			Volume: row.Volume,
		}
		if c.t.adjusted {
			b = adjust(b, row.AdjustedClose)
		}
		bars = append(bars, b)
	}

	c.t.logger.Debug().
		Str("symbol", symbol).
		Int("bars", len(bars)).
		Msg("eodhd eod fetched")

	return finish(ProviderEODHD, symbol, r, bars)
}
