// Package reporting renders analysis results for the console and exports.
package reporting

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"gapup-lab/internal/decision"
	"gapup-lab/internal/domain"
	"gapup-lab/internal/pipeline"
)

// Report is a rendered-ready view of one analysis run.
type Report struct {
	// Run metadata
	RunID       uuid.UUID
	Symbol      string
	Years       int
	GeneratedAt time.Time
	Range       domain.DateRange
	FromCache   bool

	// Selection rule
	Mode       domain.SelectionMode
	Threshold  *float64 // percent, threshold mode
	Percentile *float64 // requested percentile, percentile mode
	Cutoff     float64
	Events     int

	Analysis *domain.AnalysisReport
	Latest   *domain.IndicatorBar
	Current  *decision.Classification
}

// NewReport builds a Report from a pipeline run.
func NewReport(result *pipeline.Result, loaded *pipeline.Loaded, years int) *Report {
	r := &Report{
		RunID:       result.RunID,
		Symbol:      result.Symbol,
		Years:       years,
		GeneratedAt: result.CreatedAt,
		Mode:        result.Events.Mode,
		Percentile:  result.Events.Percentile,
		Cutoff:      result.Events.Cutoff,
		Events:      result.Events.Len(),
		Analysis:    result.Report,
		Current:     result.Current,
	}
	if r.Mode == domain.SelectionThreshold {
		cutoff := result.Events.Cutoff
		r.Threshold = &cutoff
	}
	if loaded != nil {
		r.Range = loaded.Range
		r.FromCache = loaded.FromCache
	}
	if len(result.Bars) > 0 {
		latest := result.Latest()
		r.Latest = &latest
	}
	return r
}

// RuleString describes the selection rule, e.g. "daily_return < -3.00%".
func (r *Report) RuleString() string {
	if r.Mode == domain.SelectionPercentile && r.Percentile != nil {
		return fmt.Sprintf("daily_return <= %.2f%% (percentile %g)", r.Cutoff, *r.Percentile)
	}
	return fmt.Sprintf("daily_return < %.2f%%", r.Cutoff)
}

// pct formats an optional percent value.
func pct(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", *v)
}

// num formats an optional plain value.
func num(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *v)
}

// raw formats an optional value for machine-readable output; undefined is empty.
func raw(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.6f", *v)
}
