package domain

import "time"

// GapOutcome records how the session after an extreme drop opened.
type GapOutcome struct {
	Date           time.Time `json:"date"`
	DropReturn     float64   `json:"drop_return"`
	RVOL           *float64  `json:"rvol"`
	CloseLoc       float64   `json:"close_loc"`
	NextGapPercent float64   `json:"next_gap_percent"`
	GapUp          bool      `json:"gap_up"`
}

// FactorSummary holds descriptive means for one gap direction subgroup.
type FactorSummary struct {
	Count        int      `json:"count"`
	MeanRVOL     *float64 `json:"mean_rvol"` // nil when no member has a defined RVOL
	MeanCloseLoc float64  `json:"mean_close_loc"`
}

// AnalysisReport is the immutable summary of a completed gap sample.
// Probabilities are fractions in [0,1].
type AnalysisReport struct {
	Sample []GapOutcome `json:"sample"`

	TotalDays   int `json:"total_days"`
	GapUpDays   int `json:"gap_up_days"`
	GapDownDays int `json:"gap_down_days"`

	Confidence    float64 `json:"confidence"`
	PointEstimate float64 `json:"point_estimate"`
	CILower       float64 `json:"ci_lower"`
	CIUpper       float64 `json:"ci_upper"`

	AvgGap    *float64 `json:"avg_gap"`
	MedianGap *float64 `json:"median_gap"`
	StdGap    *float64 `json:"std_gap"` // sample stddev, nil when fewer than 2 outcomes

	AvgDrop *float64 `json:"avg_drop"`
	MinDrop *float64 `json:"min_drop"`
	MaxDrop *float64 `json:"max_drop"`

	GapUpFactors   FactorSummary `json:"gap_up_factors"`
	GapDownFactors FactorSummary `json:"gap_down_factors"`

	MinSampleSize int  `json:"min_sample_size"`
	LowSample     bool `json:"low_sample"`
}

// Empty reports whether no outcomes were available.
func (r *AnalysisReport) Empty() bool {
	return r == nil || r.TotalDays == 0
}
