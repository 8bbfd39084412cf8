package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gapup-lab/internal/decision"
	"gapup-lab/internal/domain"
	"gapup-lab/internal/observability"
	"gapup-lab/internal/pipeline"
	"gapup-lab/internal/storage/memory"
)

var testNow = time.Date(2024, 1, 26, 12, 0, 0, 0, time.UTC)

type stubSource struct {
	series domain.PriceSeries
	err    error
	calls  int
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) FetchDaily(_ context.Context, symbol string, _ domain.DateRange) (domain.PriceSeries, error) {
	s.calls++
	if s.err != nil {
		return domain.PriceSeries{}, s.err
	}
	return domain.NewPriceSeries(symbol, s.series.Bars), nil
}

// dropSeries has one 4% drop on 2024-01-23 followed by a 1% gap up.
func dropSeries() domain.PriceSeries {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.PriceBar, 25)
	for i := range bars {
		open, closePx := 100.0, 100.0
		switch {
		case i == 22:
			closePx = 96.0
		case i > 22:
			open, closePx = 96.96, 96.96
		}
		bars[i] = domain.PriceBar{
			Date:   start.AddDate(0, 0, i),
			Open:   open,
			High:   math.Max(open, closePx) + 1,
			Low:    math.Min(open, closePx) - 1,
			Close:  closePx,
			Volume: 1000,
		}
	}
	return domain.NewPriceSeries("QQQ", bars)
}

type fixture struct {
	server  *Server
	source  *stubSource
	store   *memory.BarStore
	metrics *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	src := &stubSource{series: dropSeries()}
	store := memory.NewBarStore()
	m := observability.NewMetrics("test")

	loader := pipeline.NewLoader(src, store,
		pipeline.WithLoaderClock(func() time.Time { return testNow }),
		pipeline.WithLoaderMetrics(m),
	)
	svc := pipeline.NewService(loader, pipeline.NewAnalyzer(decision.DefaultRules()), m, zerolog.Nop())
	h := NewHandler(svc, WithStore(store))

	return &fixture{
		server:  NewServer(h, WithMetrics(m)),
		source:  src,
		store:   store,
		metrics: m,
	}
}

func (f *fixture) do(t *testing.T, method, target string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	f.server.Echo().ServeHTTP(rec, req)

	var resp APIResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func decodeData(t *testing.T, resp APIResponse, v any) {
	t.Helper()
	b, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, v))
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec, resp := f.do(t, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestAnalyze_Defaults(t *testing.T) {
	f := newFixture(t)

	rec, resp := f.do(t, http.MethodGet, "/api/v1/analysis?years=1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got struct {
		Symbol    string `json:"symbol"`
		FromCache bool   `json:"from_cache"`
		End       string `json:"end"`
		Events    struct {
			Mode   string  `json:"mode"`
			Cutoff float64 `json:"cutoff"`
		} `json:"events"`
		Report struct {
			TotalDays     int     `json:"total_days"`
			GapUpDays     int     `json:"gap_up_days"`
			PointEstimate float64 `json:"point_estimate"`
			LowSample     bool    `json:"low_sample"`
		} `json:"report"`
		Current struct {
			State string `json:"state"`
		} `json:"current"`
	}
	decodeData(t, resp, &got)

	assert.Equal(t, "QQQ", got.Symbol)
	assert.False(t, got.FromCache)
	assert.Equal(t, "2024-01-26", got.End)
	assert.Equal(t, -3.0, got.Events.Cutoff)
	assert.Equal(t, 1, got.Report.TotalDays)
	assert.Equal(t, 1, got.Report.GapUpDays)
	assert.Equal(t, 1.0, got.Report.PointEstimate)
	assert.True(t, got.Report.LowSample)
	assert.Equal(t, string(decision.StateInactive), got.Current.State)

	// Second request is served from the cache.
	rec, resp = f.do(t, http.MethodGet, "/api/v1/analysis?years=1")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, resp, &got)
	assert.True(t, got.FromCache)
	assert.Equal(t, 1, f.source.calls)
}

func TestAnalyze_ThresholdAndPercentile(t *testing.T) {
	f := newFixture(t)

	rec, resp := f.do(t, http.MethodGet, "/api/v1/analysis?symbol=qqq&years=1&threshold=-5&no_cache=true")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got struct {
		Report struct {
			TotalDays int `json:"total_days"`
		} `json:"report"`
	}
	decodeData(t, resp, &got)
	assert.Equal(t, 0, got.Report.TotalDays, "a 4% drop is above -5%")

	rec, resp = f.do(t, http.MethodGet, "/api/v1/analysis?years=1&percentile=100&no_cache=true")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeData(t, resp, &got)
	assert.Equal(t, 23, got.Report.TotalDays)
	assert.Equal(t, 2, f.source.calls)
}

func TestAnalyze_BadRequest(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"negative years", "years=-1"},
		{"zero years", "years=0"},
		{"too many years", "years=51"},
		{"fractional years", "years=1.5"},
		{"both rules", "threshold=-3&percentile=5"},
		{"non-numeric threshold", "threshold=abc"},
		{"percentile out of range", "percentile=150"},
		{"symbol too long", "symbol=ABCDEFGHIJKLMNOPQRSTUVWXYZ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec, resp := f.do(t, http.MethodGet, "/api/v1/analysis?"+tt.query)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, http.StatusBadRequest, resp.Status)
		})
	}
}

func TestAnalyze_DataUnavailable(t *testing.T) {
	f := newFixture(t)
	f.source.err = domain.ErrDataUnavailable

	rec, _ := f.do(t, http.MethodGet, "/api/v1/analysis?symbol=NOPE")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyze_ProviderFailure(t *testing.T) {
	f := newFixture(t)
	f.source.err = errors.New("connection reset")

	rec, resp := f.do(t, http.MethodGet, "/api/v1/analysis")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Something went wrong", resp.Data)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RunsTotal.WithLabelValues(observability.StatusError)))
}

func TestCacheEndpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Upsert(ctx, "QQQ", dropSeries().Bars))

	rec, resp := f.do(t, http.MethodGet, "/api/v1/cache")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []domain.CacheMetadata
	decodeData(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "QQQ", list[0].Symbol)
	assert.Equal(t, 25, list[0].Rows)

	rec, resp = f.do(t, http.MethodGet, "/api/v1/cache/qqq")
	require.Equal(t, http.StatusOK, rec.Code)
	var meta domain.CacheMetadata
	decodeData(t, resp, &meta)
	assert.Equal(t, 25, meta.Rows)

	rec, _ = f.do(t, http.MethodDelete, "/api/v1/cache/qqq")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/cache/QQQ")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCacheEndpoints_Disabled(t *testing.T) {
	src := &stubSource{series: dropSeries()}
	svc := pipeline.NewService(pipeline.NewLoader(src, nil), pipeline.NewAnalyzer(decision.DefaultRules()), nil, zerolog.Nop())
	srv := NewServer(NewHandler(svc))

	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache/QQQ", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "no metrics endpoint without metrics")
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/healthz")

	rec := httptest.NewRecorder()
	f.server.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_http_requests_total{code="200",method="GET",route="/healthz"} 1`)
}

func TestRecover(t *testing.T) {
	f := newFixture(t)
	f.server.Echo().GET("/panic", func(c echo.Context) error { panic("boom") })

	rec, resp := f.do(t, http.MethodGet, "/panic")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
}
