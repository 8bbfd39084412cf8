package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"gapup-lab/internal/domain"
	"gapup-lab/internal/storage"
)

// barRecord is the persisted form of a bar, keyed by "SYMBOL|YYYY-MM-DD".
type barRecord struct {
	Symbol string `badgerholdIndex:"Symbol"`
	Date   string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// metaRecord keeps the last upsert time per symbol.
type metaRecord struct {
	Symbol      string
	LastUpdated time.Time
}

func barKey(symbol, date string) string {
	return symbol + "|" + date
}

// BarStore implements storage.BarStore with badgerhold.
type BarStore struct {
	db    *DB
	clock func() time.Time
}

// NewBarStore creates a store on an opened database.
func NewBarStore(db *DB) *BarStore {
	return &BarStore{
		db:    db,
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock for last_updated stamps.
func (s *BarStore) WithClock(clock func() time.Time) *BarStore {
	s.clock = clock
	return s
}

// Upsert replaces bars by (symbol, date). Bars and metadata are written in
// one transaction, so a failed call leaves the symbol unchanged.
func (s *BarStore) Upsert(_ context.Context, symbol string, bars []domain.PriceBar) error {
	sym, err := storage.ValidateUpsert(symbol, bars)
	if err != nil {
		return err
	}

	meta := metaRecord{Symbol: sym, LastUpdated: s.clock().UTC()}
	return s.db.Store().Badger().Update(func(tx *badgerdb.Txn) error {
		return s.writeBars(tx, sym, bars, &meta)
	})
}

// writeBars stages bars and metadata in tx.
func (s *BarStore) writeBars(tx *badgerdb.Txn, sym string, bars []domain.PriceBar, meta *metaRecord) error {
	store := s.db.Store()
	for _, b := range bars {
		rec := barRecord{
			Symbol: sym,
			Date:   b.DateKey(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
		if err := store.TxUpsert(tx, barKey(sym, rec.Date), &rec); err != nil {
			return fmt.Errorf("failed to upsert bar %s %s: %w", sym, rec.Date, err)
		}
	}
	if err := store.TxUpsert(tx, sym, meta); err != nil {
		return fmt.Errorf("failed to upsert metadata %s: %w", sym, err)
	}
	return nil
}

func (s *BarStore) find(sym string) ([]domain.PriceBar, error) {
	var records []barRecord
	query := badgerhold.Where("Symbol").Eq(sym).Index("Symbol").SortBy("Date")
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}

	bars := make([]domain.PriceBar, 0, len(records))
	for _, r := range records {
		date, err := domain.ParseDate(r.Date)
		if err != nil {
			return nil, err
		}
		bars = append(bars, domain.PriceBar{
			Date:   date,
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}
	return bars, nil
}

// GetRange retrieves bars within [start, end] (inclusive), ordered by date ASC.
func (s *BarStore) GetRange(_ context.Context, symbol string, start, end time.Time) ([]domain.PriceBar, error) {
	all, err := s.find(storage.NormalizeSymbol(symbol))
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
func (s *BarStore) Metadata(_ context.Context, symbol string) (*domain.CacheMetadata, error) {
	sym := storage.NormalizeSymbol(symbol)

	var meta metaRecord
	err := s.db.Store().Get(sym, &meta)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata: %w", err)
	}

	bars, err := s.find(sym)
	if err != nil {
		return nil, err
	}
	return storage.Summarize(sym, bars, meta.LastUpdated), nil
}

// ListMetadata returns metadata for all symbols, ordered by symbol.
func (s *BarStore) ListMetadata(ctx context.Context) ([]*domain.CacheMetadata, error) {
	var metas []metaRecord
	if err := s.db.Store().Find(&metas, badgerhold.Where("Symbol").Ne("").SortBy("Symbol")); err != nil {
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}

	result := make([]*domain.CacheMetadata, 0, len(metas))
	for _, m := range metas {
		md, err := s.Metadata(ctx, m.Symbol)
		if err != nil {
			return nil, err
		}
		result = append(result, md)
	}
	return result, nil
}

// Clear removes one symbol, or all data when symbol is empty.
func (s *BarStore) Clear(_ context.Context, symbol string) error {
	sym := storage.NormalizeSymbol(symbol)

	var barQuery, metaQuery *badgerhold.Query
	if sym != "" {
		barQuery = badgerhold.Where("Symbol").Eq(sym).Index("Symbol")
		metaQuery = badgerhold.Where("Symbol").Eq(sym)
	}

	if err := s.db.Store().DeleteMatching(&barRecord{}, barQuery); err != nil {
		return fmt.Errorf("failed to clear bars: %w", err)
	}
	if err := s.db.Store().DeleteMatching(&metaRecord{}, metaQuery); err != nil {
		return fmt.Errorf("failed to clear metadata: %w", err)
	}

	s.db.logger.Debug().Str("symbol", sym).Msg("cache cleared")
	return nil
}

// Close closes the underlying database.
func (s *BarStore) Close() error {
	return s.db.Close()
}

var _ storage.BarStore = (*BarStore)(nil)
