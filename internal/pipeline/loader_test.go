package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gapup-lab/internal/decision"
	"gapup-lab/internal/domain"
	"gapup-lab/internal/observability"
	"gapup-lab/internal/storage"
	"gapup-lab/internal/storage/memory"
)

var loaderNow = time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)

// stubSource serves a fixed series and counts calls.
type stubSource struct {
	series domain.PriceSeries
	err    error
	calls  int
	ranges []domain.DateRange
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) FetchDaily(_ context.Context, symbol string, r domain.DateRange) (domain.PriceSeries, error) {
	s.calls++
	s.ranges = append(s.ranges, r)
	if s.err != nil {
		return domain.PriceSeries{}, s.err
	}
	out := s.series
	out.Symbol = symbol
	return out, nil
}

func febBars(n int) []domain.PriceBar {
	bars := make([]domain.PriceBar, n)
	for i := range bars {
		bars[i] = domain.PriceBar{
			Date:   time.Date(2024, 2, 1+i, 0, 0, 0, 0, time.UTC),
			Open:   100,
			High:   101,
			Low:    99,
			Close:  100,
			Volume: 1000,
		}
	}
	return bars
}

func newStub(n int) *stubSource {
	return &stubSource{series: domain.NewPriceSeries("", febBars(n))}
}

func TestLoader_CachesFetchedSeries(t *testing.T) {
	ctx := context.Background()
	src := newStub(5)
	store := memory.NewBarStore()
	m := observability.NewMetrics("test")
	loader := NewLoader(src, store,
		WithLoaderClock(func() time.Time { return loaderNow }),
		WithLoaderMetrics(m),
	)

	first, err := loader.Load(ctx, Request{Symbol: "qqq", Years: 1, UseCache: true})
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, "QQQ", first.Series.Symbol)
	assert.Equal(t, 5, first.Series.Len())
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), first.Range.End)

	second, err := loader.Load(ctx, Request{Symbol: "QQQ", Years: 1, UseCache: true})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Series.Bars, second.Series.Bars)

	assert.Equal(t, 1, src.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.BarsFetched.WithLabelValues("stub")))
}

func TestLoader_NoCache(t *testing.T) {
	ctx := context.Background()
	src := newStub(3)
	store := memory.NewBarStore()
	loader := NewLoader(src, store, WithLoaderClock(func() time.Time { return loaderNow }))

	for i := 0; i < 2; i++ {
		loaded, err := loader.Load(ctx, Request{Symbol: "QQQ", Years: 5})
		require.NoError(t, err)
		assert.False(t, loaded.FromCache)
	}

	assert.Equal(t, 2, src.calls)
	_, err := store.Metadata(ctx, "QQQ")
	assert.ErrorIs(t, err, storage.ErrNotFound, "--no-cache must not write")
}

func TestLoader_NilStore(t *testing.T) {
	src := newStub(3)
	loaded, err := NewLoader(src, nil).Load(context.Background(), Request{Symbol: "QQQ", Years: 1, UseCache: true})
	require.NoError(t, err)
	assert.False(t, loaded.FromCache)
}

func TestLoader_DataUnavailable(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{err: fmt.Errorf("%w: nothing", domain.ErrDataUnavailable)}
	store := memory.NewBarStore()

	_, err := NewLoader(src, store).Load(ctx, Request{Symbol: "ZZZZ", Years: 1, UseCache: true})
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)

	_, err = store.Metadata(ctx, "ZZZZ")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLoader_EmptyFetchIsUnavailable(t *testing.T) {
	src := &stubSource{}
	_, err := NewLoader(src, nil).Load(context.Background(), Request{Symbol: "QQQ", Years: 1})
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestLoader_StaleCacheRefetches(t *testing.T) {
	ctx := context.Background()
	src := newStub(4)
	store := memory.NewBarStore().WithClock(func() time.Time { return loaderNow.Add(-48 * time.Hour) })
	require.NoError(t, store.Upsert(ctx, "QQQ", febBars(2)))

	loader := NewLoader(src, store,
		WithLoaderClock(func() time.Time { return loaderNow }),
		WithMaxAge(24*time.Hour),
	)
	loaded, err := loader.Load(ctx, Request{Symbol: "QQQ", Years: 1, UseCache: true})
	require.NoError(t, err)
	assert.False(t, loaded.FromCache)
	assert.Equal(t, 1, src.calls)

	bars, err := store.GetRange(ctx, "QQQ", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, bars, 4)
}

func TestLoader_FreshCacheWithinMaxAge(t *testing.T) {
	ctx := context.Background()
	src := newStub(4)
	store := memory.NewBarStore().WithClock(func() time.Time { return loaderNow.Add(-time.Hour) })
	require.NoError(t, store.Upsert(ctx, "QQQ", febBars(2)))

	loader := NewLoader(src, store,
		WithLoaderClock(func() time.Time { return loaderNow }),
		WithMaxAge(24*time.Hour),
	)
	loaded, err := loader.Load(ctx, Request{Symbol: "QQQ", Years: 1, UseCache: true})
	require.NoError(t, err)
	assert.True(t, loaded.FromCache)
	assert.Equal(t, 2, loaded.Series.Len())
	assert.Zero(t, src.calls)
}

func TestLoader_CacheOutsideRangeIsMiss(t *testing.T) {
	ctx := context.Background()
	src := newStub(2)
	store := memory.NewBarStore()
	old := []domain.PriceBar{{Date: time.Date(2019, 5, 1, 0, 0, 0, 0, time.UTC), Open: 1, High: 1, Low: 1, Close: 1}}
	require.NoError(t, store.Upsert(ctx, "QQQ", old))

	loader := NewLoader(src, store, WithLoaderClock(func() time.Time { return loaderNow }))
	loaded, err := loader.Load(ctx, Request{Symbol: "QQQ", Years: 1, UseCache: true})
	require.NoError(t, err)
	assert.False(t, loaded.FromCache)
	assert.Equal(t, 1, src.calls)
}

func TestLoader_InvalidRequest(t *testing.T) {
	loader := NewLoader(newStub(1), nil)

	_, err := loader.Load(context.Background(), Request{Symbol: " ", Years: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = loader.Load(context.Background(), Request{Symbol: "QQQ", Years: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestService_Analyze(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{series: dropSeries()}
	m := observability.NewMetrics("test")

	// dropSeries covers January 2024; a one-year window from loaderNow includes it.
	loader := NewLoader(src, memory.NewBarStore(), WithLoaderClock(func() time.Time { return loaderNow }))
	svc := NewService(loader, NewAnalyzer(decision.DefaultRules()), m, zerolog.Nop())

	result, loaded, err := svc.Analyze(ctx, Request{Symbol: "QQQ", Years: 1, UseCache: true}, Params{})
	require.NoError(t, err)
	assert.Equal(t, 25, loaded.Series.Len())
	assert.Equal(t, 1, result.Report.TotalDays)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(observability.StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SampleSize))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PointEstimate))

	src.err = errors.New("provider down")
	_, _, err = svc.Analyze(ctx, Request{Symbol: "SPY", Years: 1}, Params{})
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(observability.StatusError)))
}
