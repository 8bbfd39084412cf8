package observability

import (
	"context"
	"errors"
	"time"

	"gapup-lab/internal/domain"
	"gapup-lab/internal/storage"
)

// instrumentedStore times every cache call. storage.ErrNotFound is an
// expected answer and is not counted as an error.
type instrumentedStore struct {
	storage.BarStore
	backend string
	metrics *Metrics
}

// InstrumentStore wraps s so that each operation is recorded under backend.
func InstrumentStore(backend string, s storage.BarStore, m *Metrics) storage.BarStore {
	if m == nil {
		return s
	}
	return &instrumentedStore{BarStore: s, backend: backend, metrics: m}
}

func (s *instrumentedStore) observe(op string, start time.Time, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		err = nil
	}
	s.metrics.RecordCacheOp(s.backend, op, time.Since(start), err)
}

func (s *instrumentedStore) Upsert(ctx context.Context, symbol string, bars []domain.PriceBar) error {
	start := time.Now()
	err := s.BarStore.Upsert(ctx, symbol, bars)
	s.observe("upsert", start, err)
	return err
}

func (s *instrumentedStore) GetRange(ctx context.Context, symbol string, from, to time.Time) ([]domain.PriceBar, error) {
	start := time.Now()
	bars, err := s.BarStore.GetRange(ctx, symbol, from, to)
	s.observe("get_range", start, err)
	return bars, err
}

func (s *instrumentedStore) Metadata(ctx context.Context, symbol string) (*domain.CacheMetadata, error) {
	start := time.Now()
	meta, err := s.BarStore.Metadata(ctx, symbol)
	s.observe("metadata", start, err)
	return meta, err
}

func (s *instrumentedStore) ListMetadata(ctx context.Context) ([]*domain.CacheMetadata, error) {
	start := time.Now()
	metas, err := s.BarStore.ListMetadata(ctx)
	s.observe("list_metadata", start, err)
	return metas, err
}

func (s *instrumentedStore) Clear(ctx context.Context, symbol string) error {
	start := time.Now()
	err := s.BarStore.Clear(ctx, symbol)
	s.observe("clear", start, err)
	return err
}
