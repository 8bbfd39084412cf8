package api

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"gapup-lab/internal/domain"
	"gapup-lab/internal/metrics"
	"gapup-lab/internal/pipeline"
	"gapup-lab/internal/selection"
	"gapup-lab/internal/storage"
)

// AnalysisRequest is the query of GET /api/v1/analysis.
type AnalysisRequest struct {
	Symbol     string `query:"symbol" default:"QQQ" validate:"required,max=15"`
	Years      string `query:"years" default:"5" validate:"number"`
	Threshold  string `query:"threshold" validate:"omitempty,numeric,excluded_with=Percentile"`
	Percentile string `query:"percentile" validate:"omitempty,numeric"`
	NoCache    bool   `query:"no_cache"`
}

// AnalysisResponse is the payload of a completed analysis.
type AnalysisResponse struct {
	*pipeline.Result
	FromCache bool   `json:"from_cache"`
	Start     string `json:"start"`
	End       string `json:"end"`
}

// Handler serves the analysis and cache endpoints.
type Handler struct {
	service   *pipeline.Service
	store     storage.BarStore
	estimator metrics.Options
	threshold float64
	logger    zerolog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithStore exposes the cache endpoints over store.
func WithStore(store storage.BarStore) HandlerOption {
	return func(h *Handler) {
		h.store = store
	}
}

// WithEstimator sets the confidence level and minimum sample size.
func WithEstimator(opts metrics.Options) HandlerOption {
	return func(h *Handler) {
		h.estimator = opts
	}
}

// WithDefaultThreshold sets the drop threshold used when a request names no rule.
func WithDefaultThreshold(threshold float64) HandlerOption {
	return func(h *Handler) {
		h.threshold = threshold
	}
}

// WithLogger sets a logger.
func WithLogger(logger zerolog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler creates a handler. Without WithStore the cache endpoints
// report the cache as disabled.
func NewHandler(service *pipeline.Service, opts ...HandlerOption) *Handler {
	h := &Handler{
		service:   service,
		estimator: metrics.DefaultOptions(),
		threshold: selection.DefaultThreshold,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts the API under /api/v1 plus /healthz.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	v1 := e.Group("/api/v1")
	v1.GET("/analysis", h.Analyze)
	v1.GET("/cache", h.ListCache)
	v1.GET("/cache/:symbol", h.CacheInfo)
	v1.DELETE("/cache/:symbol", h.ClearCache)
}

// Health reports liveness.
func (h *Handler) Health(c echo.Context) error {
	return SuccessResponse(c, map[string]string{"status": "ok"})
}

// Analyze runs the full analysis for the queried symbol.
func (h *Handler) Analyze(c echo.Context) error {
	req := &AnalysisRequest{}
	if errs := ReadAndValidateRequest(c, req); errs != nil {
		return BadRequestResponse(c, errs)
	}

	years, err := req.years()
	if err != nil {
		return BadRequestResponse(c, []ValidationError{{Code: "ERR_INVALID", Field: "years", Message: err.Error()}})
	}
	criteria, err := req.criteria(h.threshold)
	if err != nil {
		return BadRequestResponse(c, []ValidationError{{Code: "ERR_INVALID", Message: err.Error()}})
	}

	result, loaded, err := h.service.Analyze(c.Request().Context(),
		pipeline.Request{Symbol: req.Symbol, Years: years, UseCache: !req.NoCache},
		pipeline.Params{Criteria: criteria, Estimator: h.estimator},
	)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return SuccessResponse(c, AnalysisResponse{
		Result:    result,
		FromCache: loaded.FromCache,
		Start:     loaded.Range.Start.Format(domain.DateLayout),
		End:       loaded.Range.LastDay().Format(domain.DateLayout),
	})
}

// maxYears bounds the history a single request may pull.
const maxYears = 50

// years parses the lookback. It is bound as a string so an explicit 0 is
// rejected rather than replaced by the default.
func (r *AnalysisRequest) years() (int, error) {
	n, err := strconv.Atoi(r.Years)
	if err != nil {
		return 0, fmt.Errorf("years must be an integer, got %q", r.Years)
	}
	if n <= 0 || n > maxYears {
		return 0, fmt.Errorf("years must be in [1, %d], got %d", maxYears, n)
	}
	return n, nil
}

func (r *AnalysisRequest) criteria(threshold float64) (selection.Criteria, error) {
	var c selection.Criteria
	if r.Threshold != "" {
		v, err := strconv.ParseFloat(r.Threshold, 64)
		if err != nil {
			return c, err
		}
		c.Threshold = &v
	}
	if r.Percentile != "" {
		v, err := strconv.ParseFloat(r.Percentile, 64)
		if err != nil {
			return c, err
		}
		c.Percentile = &v
	}
	if c.Threshold == nil && c.Percentile == nil {
		c.Threshold = &threshold
	}
	return c, c.Validate()
}

// ListCache returns metadata for every cached symbol.
func (h *Handler) ListCache(c echo.Context) error {
	if h.store == nil {
		return SuccessResponse(c, []*domain.CacheMetadata{})
	}
	metas, err := h.store.ListMetadata(c.Request().Context())
	if err != nil {
		return h.errorResponse(c, err)
	}
	return SuccessResponse(c, metas)
}

// CacheInfo returns what the cache holds for one symbol.
func (h *Handler) CacheInfo(c echo.Context) error {
	if h.store == nil {
		return NotFoundResponse(c, "cache disabled")
	}
	meta, err := h.store.Metadata(c.Request().Context(), c.Param("symbol"))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return SuccessResponse(c, meta)
}

// ClearCache removes a symbol from the cache.
func (h *Handler) ClearCache(c echo.Context) error {
	if h.store == nil {
		return NotFoundResponse(c, "cache disabled")
	}
	symbol := storage.NormalizeSymbol(c.Param("symbol"))
	if err := h.store.Clear(c.Request().Context(), symbol); err != nil {
		return h.errorResponse(c, err)
	}
	h.logger.Info().Str("symbol", symbol).Msg("cache cleared")
	return SuccessResponse(c, map[string]string{"cleared": symbol})
}

// errorResponse maps domain and storage errors to HTTP statuses.
func (h *Handler) errorResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, storage.ErrInvalidInput):
		return BadRequestResponse(c, []ValidationError{{Code: "ERR_INVALID", Message: err.Error()}})
	case errors.Is(err, domain.ErrDataUnavailable), errors.Is(err, storage.ErrNotFound):
		return NotFoundResponse(c, err.Error())
	default:
		h.logger.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		return InternalServerErrorResponse(c)
	}
}
