package domain

import (
	"fmt"
	"sort"
	"time"
)

// DateLayout is the calendar date format used in storage keys, exports and APIs.
const DateLayout = "2006-01-02"

// PriceBar is one trading day of OHLCV data.
// Date carries calendar-day granularity and is normalized to midnight UTC.
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// DateKey returns the bar date formatted as YYYY-MM-DD.
func (b PriceBar) DateKey() string {
	return b.Date.Format(DateLayout)
}

// PriceSeries is an ordered, deduplicated daily series for one symbol.
type PriceSeries struct {
	Symbol string     `json:"symbol"`
	Bars   []PriceBar `json:"bars"`
}

// Len returns the number of bars.
func (s PriceSeries) Len() int {
	return len(s.Bars)
}

// First returns the first bar date, zero time if empty.
func (s PriceSeries) First() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[0].Date
}

// Last returns the last bar date, zero time if empty.
func (s PriceSeries) Last() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[len(s.Bars)-1].Date
}

// NewPriceSeries normalizes dates to UTC midnight, sorts bars by date ASC and
// drops duplicate dates keeping the last occurrence in input order.
func NewPriceSeries(symbol string, bars []PriceBar) PriceSeries {
	byDate := make(map[time.Time]int, len(bars))
	out := make([]PriceBar, 0, len(bars))
	for _, b := range bars {
		b.Date = TruncateDay(b.Date)
		if idx, ok := byDate[b.Date]; ok {
			out[idx] = b
			continue
		}
		byDate[b.Date] = len(out)
		out = append(out, b)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})

	return PriceSeries{Symbol: symbol, Bars: out}
}

// Validate checks ordering, uniqueness and value ranges.
func (s PriceSeries) Validate() error {
	for i, b := range s.Bars {
		if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
			return fmt.Errorf("%w: bar %s has non-positive price", ErrInvalidInput, b.DateKey())
		}
		if b.High < b.Low {
			return fmt.Errorf("%w: bar %s has high below low", ErrInvalidInput, b.DateKey())
		}
		if b.Volume < 0 {
			return fmt.Errorf("%w: bar %s has negative volume", ErrInvalidInput, b.DateKey())
		}
		if i > 0 && !s.Bars[i-1].Date.Before(b.Date) {
			return fmt.Errorf("%w: bar %s is not after %s", ErrInvalidInput, b.DateKey(), s.Bars[i-1].DateKey())
		}
	}
	return nil
}

// TruncateDay returns the calendar date of t as midnight UTC.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}
