package metrics

import (
	"gapup-lab/internal/domain"
)

// DefaultMinSampleSize is the sample size below which a report is flagged
// as statistically weak.
const DefaultMinSampleSize = 10

// Options configures Estimate.
type Options struct {
	Confidence    float64
	MinSampleSize int
}

// DefaultOptions returns the 95% / 10-sample defaults.
func DefaultOptions() Options {
	return Options{Confidence: DefaultConfidence, MinSampleSize: DefaultMinSampleSize}
}

// Estimate summarizes a gap sample. An empty sample yields a report with
// zero counts, a (0,0,0) interval and nil gap and drop statistics.
func Estimate(sample []domain.GapOutcome, opts Options) (*domain.AnalysisReport, error) {
	if opts.Confidence == 0 {
		opts.Confidence = DefaultConfidence
	}
	if opts.MinSampleSize <= 0 {
		opts.MinSampleSize = DefaultMinSampleSize
	}

	report := &domain.AnalysisReport{
		Sample:        append([]domain.GapOutcome(nil), sample...),
		TotalDays:     len(sample),
		Confidence:    opts.Confidence,
		MinSampleSize: opts.MinSampleSize,
		LowSample:     len(sample) < opts.MinSampleSize,
	}

	var up, down []domain.GapOutcome
	gaps := make([]float64, 0, len(sample))
	drops := make([]float64, 0, len(sample))
	for _, o := range sample {
		if o.GapUp {
			up = append(up, o)
		} else {
			down = append(down, o)
		}
		gaps = append(gaps, o.NextGapPercent)
		drops = append(drops, o.DropReturn)
	}
	report.GapUpDays = len(up)
	report.GapDownDays = len(down)

	ci, err := Wilson(report.GapUpDays, report.TotalDays, opts.Confidence)
	if err != nil {
		return nil, err
	}
	report.PointEstimate = ci.PointEstimate
	report.CILower = ci.Lower
	report.CIUpper = ci.Upper

	if len(sample) > 0 {
		report.AvgGap = ptr(Mean(gaps))
		report.MedianGap = ptr(Median(gaps))
		if sd, ok := Stddev(gaps); ok {
			report.StdGap = ptr(sd)
		}
		lo, hi := MinMax(drops)
		report.AvgDrop = ptr(Mean(drops))
		report.MinDrop = ptr(lo)
		report.MaxDrop = ptr(hi)
	}

	report.GapUpFactors = summarize(up)
	report.GapDownFactors = summarize(down)

	return report, nil
}

// summarize computes subgroup means. An empty subgroup has zero means.
// MeanRVOL skips undefined values and stays nil when none is defined.
func summarize(group []domain.GapOutcome) domain.FactorSummary {
	fs := domain.FactorSummary{Count: len(group)}
	if len(group) == 0 {
		fs.MeanRVOL = ptr(0)
		return fs
	}

	locs := make([]float64, 0, len(group))
	var rvols []float64
	for _, o := range group {
		locs = append(locs, o.CloseLoc)
		if o.RVOL != nil {
			rvols = append(rvols, *o.RVOL)
		}
	}
	fs.MeanCloseLoc = Mean(locs)
	if len(rvols) > 0 {
		fs.MeanRVOL = ptr(Mean(rvols))
	}
	return fs
}

func ptr(v float64) *float64 { return &v }
