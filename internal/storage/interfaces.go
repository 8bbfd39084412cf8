package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gapup-lab/internal/domain"
)

// BarStore is a local cache of daily bars keyed by (symbol, date).
type BarStore interface {
	// Upsert stores bars for a symbol. Existing (symbol, date) rows are
	// replaced, so saving the same series twice is idempotent. Metadata for
	// the symbol is refreshed.
	Upsert(ctx context.Context, symbol string, bars []domain.PriceBar) error

	// GetRange retrieves bars within [start, end] (inclusive, by date),
	// ordered by date ASC. A zero start or end leaves that side open.
	// Returns ErrNotFound if nothing matches.
	GetRange(ctx context.Context, symbol string, start, end time.Time) ([]domain.PriceBar, error)

	// Metadata returns what the cache holds for a symbol. Returns ErrNotFound
	// if the symbol was never stored.
	Metadata(ctx context.Context, symbol string) (*domain.CacheMetadata, error)

	// ListMetadata returns metadata for every cached symbol, ordered by symbol.
	ListMetadata(ctx context.Context) ([]*domain.CacheMetadata, error)

	// Clear removes one symbol, or everything when symbol is empty.
	Clear(ctx context.Context, symbol string) error

	// Close releases the underlying connection or file handle.
	Close() error
}

// NormalizeSymbol upper-cases and trims a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ValidateUpsert checks the symbol and bars of an upsert call and returns the
// normalized symbol.
func ValidateUpsert(symbol string, bars []domain.PriceBar) (string, error) {
	sym := NormalizeSymbol(symbol)
	if sym == "" {
		return "", fmt.Errorf("%w: empty symbol", ErrInvalidInput)
	}
	for _, b := range bars {
		if b.Date.IsZero() {
			return "", fmt.Errorf("%w: bar without date", ErrInvalidInput)
		}
	}
	return sym, nil
}

// InRange reports whether day lies in [start, end]; zero bounds are open.
func InRange(day, start, end time.Time) bool {
	day = domain.TruncateDay(day)
	if !start.IsZero() && day.Before(domain.TruncateDay(start)) {
		return false
	}
	if !end.IsZero() && day.After(domain.TruncateDay(end)) {
		return false
	}
	return true
}

// Summarize builds metadata from the full set of stored bars for a symbol.
func Summarize(symbol string, bars []domain.PriceBar, updated time.Time) *domain.CacheMetadata {
	m := &domain.CacheMetadata{
		Symbol:      symbol,
		LastUpdated: updated.UTC(),
		Rows:        len(bars),
	}
	for i, b := range bars {
		d := domain.TruncateDay(b.Date)
		if i == 0 || d.Before(m.StartDate) {
			m.StartDate = d
		}
		if i == 0 || d.After(m.EndDate) {
			m.EndDate = d
		}
	}
	return m
}
