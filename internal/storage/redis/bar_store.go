package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"gapup-lab/internal/domain"
	"gapup-lab/internal/storage"
)

const fieldLastUpdated = "last_updated"

// BarStore implements storage.BarStore with Redis hashes.
type BarStore struct {
	client *Client
	clock  func() time.Time
}

// NewBarStore creates a store on a connected client.
func NewBarStore(client *Client) *BarStore {
	return &BarStore{
		client: client,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock for last_updated stamps.
func (s *BarStore) WithClock(clock func() time.Time) *BarStore {
	s.clock = clock
	return s
}

func (s *BarStore) barsKey(sym string) string { return s.client.wrapKey("bars", sym) }
func (s *BarStore) metaKey(sym string) string { return s.client.wrapKey("meta", sym) }
func (s *BarStore) symbolsKey() string        { return s.client.wrapKey("symbols") }

// Upsert writes bars by date field in a single MULTI/EXEC.
func (s *BarStore) Upsert(ctx context.Context, symbol string, bars []domain.PriceBar) error {
	sym, err := storage.ValidateUpsert(symbol, bars)
	if err != nil {
		return err
	}

	values := make(map[string]any, len(bars))
	for _, b := range bars {
		b.Date = domain.TruncateDay(b.Date)
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("marshal bar %s: %w", b.DateKey(), err)
		}
		values[b.DateKey()] = data
	}

	pipe := s.client.rdb.TxPipeline()
	if len(values) > 0 {
		pipe.HSet(ctx, s.barsKey(sym), values)
	}
	pipe.HSet(ctx, s.metaKey(sym), fieldLastUpdated, s.clock().UTC().Format(time.RFC3339Nano))
	pipe.SAdd(ctx, s.symbolsKey(), sym)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("upsert %s: %w", sym, err)
	}
	return nil
}

func (s *BarStore) all(ctx context.Context, sym string) ([]domain.PriceBar, error) {
	raw, err := s.client.rdb.HGetAll(ctx, s.barsKey(sym)).Result()
	if err != nil {
		return nil, fmt.Errorf("read bars %s: %w", sym, err)
	}

	bars := make([]domain.PriceBar, 0, len(raw))
	for date, data := range raw {
		var b domain.PriceBar
		if err := json.Unmarshal([]byte(data), &b); err != nil {
			return nil, fmt.Errorf("decode bar %s %s: %w", sym, date, err)
		}
		b.Date = domain.TruncateDay(b.Date)
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Date.Before(bars[j].Date)
	})
	return bars, nil
}

// GetRange retrieves bars within [start, end] (inclusive), ordered by date ASC.
func (s *BarStore) GetRange(ctx context.Context, symbol string, start, end time.Time) ([]domain.PriceBar, error) {
	all, err := s.all(ctx, storage.NormalizeSymbol(symbol))
	if err != nil {
		return nil, err
	}

	var result []domain.PriceBar
	for _, b := range all {
		if storage.InRange(b.Date, start, end) {
			result = append(result, b)
		}
	}
	if len(result) == 0 {
		return nil, storage.ErrNotFound
	}
	return result, nil
}

// Metadata returns cache metadata for a symbol.
func (s *BarStore) Metadata(ctx context.Context, symbol string) (*domain.CacheMetadata, error) {
	sym := storage.NormalizeSymbol(symbol)

	raw, err := s.client.rdb.HGet(ctx, s.metaKey(sym), fieldLastUpdated).Result()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata %s: %w", sym, err)
	}
	updated, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("parse last_updated: %w", err)
	}

	bars, err := s.all(ctx, sym)
	if err != nil {
		return nil, err
	}
	return storage.Summarize(sym, bars, updated), nil
}

// ListMetadata returns metadata for all symbols, ordered by symbol.
func (s *BarStore) ListMetadata(ctx context.Context) ([]*domain.CacheMetadata, error) {
	symbols, err := s.client.rdb.SMembers(ctx, s.symbolsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	sort.Strings(symbols)

	result := make([]*domain.CacheMetadata, 0, len(symbols))
	for _, sym := range symbols {
		m, err := s.Metadata(ctx, sym)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, nil
}

// Clear removes one symbol, or every cached symbol when symbol is empty.
func (s *BarStore) Clear(ctx context.Context, symbol string) error {
	sym := storage.NormalizeSymbol(symbol)

	symbols := []string{sym}
	if sym == "" {
		var err error
		symbols, err = s.client.rdb.SMembers(ctx, s.symbolsKey()).Result()
		if err != nil {
			return fmt.Errorf("list symbols: %w", err)
		}
	}

	pipe := s.client.rdb.TxPipeline()
	for _, ss := range symbols {
		pipe.Unlink(ctx, s.barsKey(ss), s.metaKey(ss))
		pipe.SRem(ctx, s.symbolsKey(), ss)
	}
	if sym == "" {
		pipe.Unlink(ctx, s.symbolsKey())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *BarStore) Close() error {
	return s.client.Close()
}

var _ storage.BarStore = (*BarStore)(nil)
