package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"gapup-lab/internal/observability"
)

// Service loads a series and analyzes it, recording run metrics.
type Service struct {
	loader   *Loader
	analyzer *Analyzer
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// NewService creates a service. metrics may be nil.
func NewService(loader *Loader, analyzer *Analyzer, metrics *observability.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		loader:   loader,
		analyzer: analyzer,
		metrics:  metrics,
		logger:   logger,
	}
}

// Analyze loads the requested series and runs every analysis stage on it.
func (s *Service) Analyze(ctx context.Context, req Request, params Params) (*Result, *Loaded, error) {
	start := time.Now()

	loaded, err := s.loader.Load(ctx, req)
	if err != nil {
		s.record(observability.StatusError, start, nil)
		return nil, nil, err
	}

	result, err := s.analyzer.Run(loaded.Series, params)
	if err != nil {
		s.record(observability.StatusError, start, nil)
		return nil, nil, err
	}

	status := observability.StatusSuccess
	if result.Report.Empty() {
		status = observability.StatusEmptySample
	}
	s.record(status, start, result)

	s.logger.Info().
		Str("run_id", result.RunID.String()).
		Str("symbol", result.Symbol).
		Int("bars", loaded.Series.Len()).
		Int("events", result.Events.Len()).
		Int("sample", result.Report.TotalDays).
		Float64("p_gap_up", result.Report.PointEstimate).
		Str("state", string(result.Current.State)).
		Msg("analysis complete")

	return result, loaded, nil
}

func (s *Service) record(status string, start time.Time, result *Result) {
	if s.metrics == nil {
		return
	}
	var stats *observability.RunStats
	if result != nil {
		stats = &observability.RunStats{
			Events:        result.Events.Len(),
			SampleSize:    result.Report.TotalDays,
			PointEstimate: result.Report.PointEstimate,
			CILower:       result.Report.CILower,
			CIUpper:       result.Report.CIUpper,
		}
	}
	s.metrics.RecordRun(status, time.Since(start), stats)
}
