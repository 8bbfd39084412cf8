package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"gapup-lab/internal/domain"
	"gapup-lab/internal/marketdata"
	"gapup-lab/internal/observability"
	"gapup-lab/internal/storage"
)

// Request selects the data a run is computed over.
type Request struct {
	Symbol   string
	Years    int
	UseCache bool
}

// Loaded is a price series plus where it came from.
type Loaded struct {
	Series    domain.PriceSeries
	Range     domain.DateRange
	FromCache bool
}

// Loader reads daily bars from the local cache, falling back to the market
// data source. Fetched series are saved back when the cache is in use.
type Loader struct {
	source  marketdata.Source
	store   storage.BarStore
	logger  zerolog.Logger
	metrics *observability.Metrics
	clock   func() time.Time
	maxAge  time.Duration
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLoaderLogger sets a logger.
func WithLoaderLogger(logger zerolog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithLoaderMetrics records cache hits, misses and fetch latency.
func WithLoaderMetrics(m *observability.Metrics) LoaderOption {
	return func(l *Loader) {
		l.metrics = m
	}
}

// WithLoaderClock sets a custom clock function.
func WithLoaderClock(clock func() time.Time) LoaderOption {
	return func(l *Loader) {
		l.clock = clock
	}
}

// WithMaxAge makes cached data older than d count as a miss. Zero keeps
// cached data forever.
func WithMaxAge(d time.Duration) LoaderOption {
	return func(l *Loader) {
		l.maxAge = d
	}
}

// NewLoader creates a loader. store may be nil, which disables caching.
func NewLoader(source marketdata.Source, store storage.BarStore, opts ...LoaderOption) *Loader {
	l := &Loader{
		source: source,
		store:  store,
		logger: zerolog.Nop(),
		clock:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the series for req. A source that yields nothing fails with
// domain.ErrDataUnavailable and nothing is written to the cache.
func (l *Loader) Load(ctx context.Context, req Request) (*Loaded, error) {
	symbol := storage.NormalizeSymbol(req.Symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", domain.ErrInvalidInput)
	}
	if req.Years <= 0 {
		return nil, fmt.Errorf("%w: years must be positive, got %d", domain.ErrInvalidInput, req.Years)
	}

	r := marketdata.RangeForYears(l.clock(), req.Years)
	useCache := req.UseCache && l.store != nil

	if useCache {
		series, ok, err := l.fromCache(ctx, symbol, r)
		if err != nil {
			return nil, err
		}
		if ok {
			l.recordHit()
			return &Loaded{Series: series, Range: r, FromCache: true}, nil
		}
		l.recordMiss()
	}

	start := time.Now()
	series, err := l.source.FetchDaily(ctx, symbol, r)
	if l.metrics != nil {
		l.metrics.RecordFetch(l.source.Name(), time.Since(start), series.Len(), err)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s from %s: %w", symbol, l.source.Name(), err)
	}
	if series.Len() == 0 {
		return nil, fmt.Errorf("%w: %s returned no bars for %s", domain.ErrDataUnavailable, l.source.Name(), symbol)
	}
	series.Symbol = symbol

	l.logger.Info().
		Str("symbol", symbol).
		Str("provider", l.source.Name()).
		Int("bars", series.Len()).
		Msg("fetched daily bars")

	if useCache {
		if err := l.store.Upsert(ctx, symbol, series.Bars); err != nil {
			return nil, fmt.Errorf("save %s to cache: %w", symbol, err)
		}
		l.logger.Debug().Str("symbol", symbol).Msg("saved bars to cache")
	}

	return &Loaded{Series: series, Range: r}, nil
}

// fromCache reads [r.Start, r.LastDay()] from the store. Missing or stale
// data is reported as ok=false.
func (l *Loader) fromCache(ctx context.Context, symbol string, r domain.DateRange) (domain.PriceSeries, bool, error) {
	if l.maxAge > 0 {
		meta, err := l.store.Metadata(ctx, symbol)
		if errors.Is(err, storage.ErrNotFound) {
			return domain.PriceSeries{}, false, nil
		}
		if err != nil {
			return domain.PriceSeries{}, false, fmt.Errorf("read cache metadata: %w", err)
		}
		if age := l.clock().Sub(meta.LastUpdated); age > l.maxAge {
			l.logger.Info().
				Str("symbol", symbol).
				Dur("age", age).
				Msg("cached data is stale")
			return domain.PriceSeries{}, false, nil
		}
	}

	bars, err := l.store.GetRange(ctx, symbol, r.Start, r.LastDay())
	if errors.Is(err, storage.ErrNotFound) {
		return domain.PriceSeries{}, false, nil
	}
	if err != nil {
		return domain.PriceSeries{}, false, fmt.Errorf("read cache: %w", err)
	}

	l.logger.Info().
		Str("symbol", symbol).
		Int("bars", len(bars)).
		Msg("loaded daily bars from cache")
	return domain.NewPriceSeries(symbol, bars), true, nil
}

func (l *Loader) recordHit() {
	if l.metrics != nil {
		l.metrics.RecordCacheHit()
	}
}

func (l *Loader) recordMiss() {
	if l.metrics != nil {
		l.metrics.RecordCacheMiss()
	}
}
