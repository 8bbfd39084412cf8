package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"gapup-lab/internal/domain"
)

// DefaultYahooBaseURL is the public chart API host.
const DefaultYahooBaseURL = "https://query1.finance.yahoo.com"

// YahooClient fetches daily bars from the Yahoo Finance chart API.
type YahooClient struct {
	t *transport
}

// NewYahooClient creates a chart API client.
func NewYahooClient(opts ...Option) *YahooClient {
	return &YahooClient{t: newTransport(DefaultYahooBaseURL, opts...)}
}

// Name returns the provider name.
func (c *YahooClient) Name() string { return ProviderYahoo }

// chartResponse mirrors /v8/finance/chart. Quote arrays hold nulls for
// sessions without data, hence the pointer elements.
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta struct {
		Symbol               string `json:"symbol"`
		ExchangeTimezoneName string `json:"exchangeTimezoneName"`
		GMTOffset            int    `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*int64   `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// FetchDaily requests [r.Start, r.End) at daily interval. period2 is
// exclusive on the Yahoo side as well.
func (c *YahooClient) FetchDaily(ctx context.Context, symbol string, r domain.DateRange) (domain.PriceSeries, error) {
	params := url.Values{}
	params.Set("period1", strconv.FormatInt(domain.TruncateDay(r.Start).Unix(), 10))
	params.Set("period2", strconv.FormatInt(domain.TruncateDay(r.End).Unix(), 10))
	params.Set("interval", "1d")
	params.Set("includeAdjustedClose", "true")
	params.Set("events", "div|split")

	var resp chartResponse
	err := c.t.getJSON(ctx, "/v8/finance/chart/"+url.PathEscape(symbol), params, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return domain.PriceSeries{}, fmt.Errorf("%w: %w", domain.ErrDataUnavailable, err)
		}
		return domain.PriceSeries{}, fmt.Errorf("yahoo chart %s: %w", symbol, err)
	}

	if resp.Chart.Error != nil {
		return domain.PriceSeries{}, fmt.Errorf("%w: yahoo %s: %s", domain.ErrDataUnavailable,
			resp.Chart.Error.Code, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return domain.PriceSeries{}, fmt.Errorf("%w: yahoo returned no result for %s", domain.ErrDataUnavailable, symbol)
	}

	bars := c.toBars(resp.Chart.Result[0])
	c.t.logger.Debug().
		Str("symbol", symbol).
		Int("bars", len(bars)).
		Msg("yahoo chart fetched")

	return finish(ProviderYahoo, symbol, r, bars)
}

func (c *YahooClient) toBars(res chartResult) []domain.PriceBar {
	if len(res.Indicators.Quote) == 0 {
		return nil
	}
	q := res.Indicators.Quote[0]
	var adj []*float64
	if len(res.Indicators.AdjClose) > 0 {
		adj = res.Indicators.AdjClose[0].AdjClose
	}

	loc := exchangeLocation(res.Meta.ExchangeTimezoneName, res.Meta.GMTOffset)

	bars := make([]domain.PriceBar, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		open, high, low, closePx := at(q.Open, i), at(q.High, i), at(q.Low, i), at(q.Close, i)
		if open == nil || high == nil || low == nil || closePx == nil {
			continue
		}
		var volume int64
		if i < len(q.Volume) && q.Volume[i] != nil {
			volume = *q.Volume[i]
		}

		b := domain.PriceBar{
			Date:   domain.TruncateDay(localDate(time.Unix(ts, 0), loc)),
			Open:   *open,
			High:   *high,
			Low:    *low,
			Close:  *closePx,
			Volume: volume,
		}
		if c.t.adjusted {
			if a := at(adj, i); a != nil {
				b = adjust(b, *a)
			}
		}
		bars = append(bars, b)
	}
	return bars
}

func at(values []*float64, i int) *float64 {
	if i >= len(values) {
		return nil
	}
	return values[i]
}

// exchangeLocation resolves the exchange time zone, falling back to a fixed
// offset when the tz database lacks the name.
func exchangeLocation(name string, gmtOffset int) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.FixedZone("exchange", gmtOffset)
}

// localDate returns t's calendar date in loc, expressed at UTC midnight.
func localDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
