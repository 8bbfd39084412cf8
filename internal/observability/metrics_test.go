package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gapup-lab/internal/domain"
	"gapup-lab/internal/storage"
	"gapup-lab/internal/storage/memory"
)

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	a := NewMetrics("")
	b := NewMetrics("")

	a.RecordCacheHit()
	a.RecordCacheHit()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.CacheHits))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.CacheHits))
}

func TestRecordRun(t *testing.T) {
	m := NewMetrics("test")

	m.RecordRun(StatusSuccess, 150*time.Millisecond, &RunStats{
		Events:        4,
		SampleSize:    3,
		PointEstimate: 2.0 / 3.0,
		CILower:       0.2,
		CIUpper:       0.94,
	})
	m.RecordRun(StatusError, time.Millisecond, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(StatusError)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.EventsSelected))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SampleSize))
	assert.InDelta(t, 0.6667, testutil.ToFloat64(m.PointEstimate), 1e-4)
	assert.Equal(t, 0.2, testutil.ToFloat64(m.CILower))
	assert.Equal(t, 0.94, testutil.ToFloat64(m.CIUpper))
	assert.Greater(t, testutil.ToFloat64(m.LastSuccessfulRun), 0.0)
}

func TestRecordFetch(t *testing.T) {
	m := NewMetrics("test")

	m.RecordFetch("yahoo", time.Second, 250, nil)
	m.RecordFetch("yahoo", time.Second, 0, errors.New("boom"))

	assert.Equal(t, 250.0, testutil.ToFloat64(m.BarsFetched.WithLabelValues("yahoo")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchErrors.WithLabelValues("yahoo")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.FetchLatency))
}

func TestHandler(t *testing.T) {
	m := NewMetrics("test")
	m.RecordHTTPRequest(http.MethodGet, "/healthz", http.StatusOK)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_http_requests_total{code="200",method="GET",route="/healthz"} 1`)
}

func TestWriteTextfile(t *testing.T) {
	m := NewMetrics("test")
	m.RecordCacheMiss()

	path := filepath.Join(t.TempDir(), "gapup.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "test_cache_misses_total 1")
}

func TestInstrumentStore(t *testing.T) {
	ctx := context.Background()
	m := NewMetrics("test")
	store := InstrumentStore("memory", memory.NewBarStore(), m)

	_, err := store.GetRange(ctx, "QQQ", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	bar := domain.PriceBar{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: 1, High: 1, Low: 1, Close: 1}
	require.NoError(t, store.Upsert(ctx, "QQQ", []domain.PriceBar{bar}))

	err = store.Upsert(ctx, "", []domain.PriceBar{bar})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.CacheOpErrors.WithLabelValues("memory", "get_range")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheOpErrors.WithLabelValues("memory", "upsert")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.CacheOpDuration))
}

func TestInstrumentStore_NilMetrics(t *testing.T) {
	s := memory.NewBarStore()
	assert.Same(t, s, InstrumentStore("memory", s, nil))
}
