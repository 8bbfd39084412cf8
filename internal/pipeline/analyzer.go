// Package pipeline wires data loading and the analytical stages into one run.
package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"gapup-lab/internal/decision"
	"gapup-lab/internal/domain"
	"gapup-lab/internal/indicators"
	"gapup-lab/internal/metrics"
	"gapup-lab/internal/outcome"
	"gapup-lab/internal/selection"
)

// Params configures one analysis run.
type Params struct {
	Criteria  selection.Criteria
	Estimator metrics.Options
}

// Result is everything one run produced. Every stage output is a fresh value;
// the input series is never modified.
type Result struct {
	RunID     uuid.UUID                `json:"run_id"`
	Symbol    string                   `json:"symbol"`
	CreatedAt time.Time                `json:"created_at"`
	Bars      []domain.IndicatorBar    `json:"-"`
	Events    *domain.EventSet         `json:"events"`
	Report    *domain.AnalysisReport   `json:"report"`
	Current   *decision.Classification `json:"current"`
}

// Latest returns the most recent annotated bar.
func (r *Result) Latest() domain.IndicatorBar {
	return r.Bars[len(r.Bars)-1]
}

// Analyzer runs indicators, selection, outcome mapping, estimation and
// classification over a price series.
type Analyzer struct {
	classifier *decision.Classifier
	clock      func() time.Time
}

// NewAnalyzer creates an analyzer classifying with rules.
func NewAnalyzer(rules decision.Rules) *Analyzer {
	return &Analyzer{
		classifier: decision.NewClassifier(rules),
		clock:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (a *Analyzer) WithClock(clock func() time.Time) *Analyzer {
	a.clock = clock
	return a
}

// Run executes every stage in order. Selection errors abort the run before
// any outcome is mapped.
func (a *Analyzer) Run(series domain.PriceSeries, params Params) (*Result, error) {
	bars, err := indicators.Compute(series)
	if err != nil {
		return nil, fmt.Errorf("compute indicators: %w", err)
	}

	events, err := selection.Select(bars, params.Criteria)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}

	sample := outcome.Map(bars, events.Events)

	report, err := metrics.Estimate(sample, params.Estimator)
	if err != nil {
		return nil, fmt.Errorf("estimate: %w", err)
	}

	latest := bars[len(bars)-1]
	current := a.classifier.Classify(decision.Input{
		Date:          latest.DateKey(),
		DailyReturn:   latest.DailyReturn,
		RVOL:          latest.RVOL,
		CloseLoc:      latest.CloseLoc,
		Cutoff:        events.Cutoff,
		PointEstimate: report.PointEstimate,
		CILower:       report.CILower,
		CIUpper:       report.CIUpper,
		SampleSize:    report.TotalDays,
	})

	return &Result{
		RunID:     uuid.New(),
		Symbol:    series.Symbol,
		CreatedAt: a.clock(),
		Bars:      bars,
		Events:    events,
		Report:    report,
		Current:   current,
	}, nil
}
