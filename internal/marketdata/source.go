// Package marketdata fetches daily OHLCV series from remote providers.
package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gapup-lab/internal/domain"
)

// Provider names.
const (
	ProviderYahoo = "yahoo"
	ProviderEODHD = "eodhd"
)

// Source returns daily bars for a symbol over a half-open date range
// [Start, End). Implementations return an error wrapping
// domain.ErrDataUnavailable when no bars fall inside the range.
type Source interface {
	Name() string
	FetchDaily(ctx context.Context, symbol string, r domain.DateRange) (domain.PriceSeries, error)
}

// RangeForYears returns the range covering the last years*365 days up to and
// including today. End is tomorrow because ranges are end-exclusive.
func RangeForYears(now time.Time, years int) domain.DateRange {
	end := domain.TruncateDay(now).AddDate(0, 0, 1)
	return domain.DateRange{
		Start: end.AddDate(0, 0, -365*years),
		End:   end,
	}
}

// New builds a Source by provider name.
func New(provider, apiKey string, opts ...Option) (Source, error) {
	switch strings.ToLower(provider) {
	case "", ProviderYahoo:
		return NewYahooClient(opts...), nil
	case ProviderEODHD:
		if apiKey == "" {
			return nil, fmt.Errorf("%w: eodhd requires an api key", domain.ErrInvalidInput)
		}
		return NewEODHDClient(apiKey, opts...), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidInput, provider)
	}
}

// finish filters bars to the range, normalizes them into a series and
// reports ErrDataUnavailable for an empty result.
func finish(provider, symbol string, r domain.DateRange, bars []domain.PriceBar) (domain.PriceSeries, error) {
	kept := bars[:0]
	for _, b := range bars {
		if r.Contains(b.Date) {
			kept = append(kept, b)
		}
	}
	if len(kept) == 0 {
		return domain.PriceSeries{}, fmt.Errorf("%w: %s returned no bars for %s between %s and %s",
			domain.ErrDataUnavailable, provider, symbol,
			r.Start.Format(domain.DateLayout), r.LastDay().Format(domain.DateLayout))
	}
	return domain.NewPriceSeries(symbol, kept), nil
}

// adjust scales open/high/low/close by adjClose/close. Volume is left as is.
func adjust(b domain.PriceBar, adjClose float64) domain.PriceBar {
	if adjClose <= 0 || b.Close <= 0 {
		return b
	}
	f := adjClose / b.Close
	b.Open *= f
	b.High *= f
	b.Low *= f
	b.Close = adjClose
	return b
}
