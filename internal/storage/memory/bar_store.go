// Package memory provides a map-backed BarStore for tests and ephemeral runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"gapup-lab/internal/domain"
	"gapup-lab/internal/storage"
)

// BarStore is an in-memory implementation of storage.BarStore.
type BarStore struct {
	mu      sync.RWMutex
	bars    map[string]map[string]domain.PriceBar // symbol -> date key -> bar
	updated map[string]time.Time
	clock   func() time.Time
}

// NewBarStore creates a new in-memory bar store.
func NewBarStore() *BarStore {
	return &BarStore{
		bars:    make(map[string]map[string]domain.PriceBar),
		updated: make(map[string]time.Time),
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock for last_updated stamps.
func (s *BarStore) WithClock(clock func() time.Time) *BarStore {
	s.clock = clock
	return s
}

// Upsert replaces bars by (symbol, date).
func (s *BarStore) Upsert(_ context.Context, symbol string, bars []domain.PriceBar) error {
	sym, err := storage.ValidateUpsert(symbol, bars)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byDate, ok := s.bars[sym]
	if !ok {
		byDate = make(map[string]domain.PriceBar, len(bars))
		s.bars[sym] = byDate
	}
	for _, b := range bars {
		b.Date = domain.TruncateDay(b.Date)
		byDate[b.DateKey()] = b
	}
	s.updated[sym] = s.clock()
	return nil
}

// GetRange retrieves bars within [start, end] (inclusive), ordered by date ASC.
func (s *BarStore) GetRange(_ context.Context, symbol string, start, end time.Time) ([]domain.PriceBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.PriceBar
	for _, b := range s.bars[storage.NormalizeSymbol(symbol)] {
		if storage.InRange(b.Date, start, end) {
			result = append(result, b)
		}
	}
	if len(result) == 0 {
		return nil, storage.ErrNotFound
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

// Metadata returns cache metadata for a symbol.
func (s *BarStore) Metadata(_ context.Context, symbol string) (*domain.CacheMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.metadataLocked(storage.NormalizeSymbol(symbol))
}

// ListMetadata returns metadata for all symbols, ordered by symbol.
func (s *BarStore) ListMetadata(_ context.Context) ([]*domain.CacheMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols := make([]string, 0, len(s.bars))
	for sym := range s.bars {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	result := make([]*domain.CacheMetadata, 0, len(symbols))
	for _, sym := range symbols {
		m, err := s.metadataLocked(sym)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, nil
}

func (s *BarStore) metadataLocked(sym string) (*domain.CacheMetadata, error) {
	byDate, ok := s.bars[sym]
	if !ok {
		return nil, storage.ErrNotFound
	}
	bars := make([]domain.PriceBar, 0, len(byDate))
	for _, b := range byDate {
		bars = append(bars, b)
	}
	return storage.Summarize(sym, bars, s.updated[sym]), nil
}

// Clear removes one symbol, or all data when symbol is empty.
func (s *BarStore) Clear(_ context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sym := storage.NormalizeSymbol(symbol)
	if sym == "" {
		s.bars = make(map[string]map[string]domain.PriceBar)
		s.updated = make(map[string]time.Time)
		return nil
	}
	delete(s.bars, sym)
	delete(s.updated, sym)
	return nil
}

// Close is a no-op.
func (s *BarStore) Close() error { return nil }

var _ storage.BarStore = (*BarStore)(nil)
