package reporting

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gapup-lab/internal/domain"
)

// OutcomeColumns is the header of the outcome table.
var OutcomeColumns = []string{"date", "drop_return", "rvol", "close_loc", "next_gap_percent", "gap_up"}

// RenderCSV renders a header block of run metadata and statistics as
// comment and key,value lines, followed by the outcome table.
func RenderCSV(r *Report) (string, error) {
	var sb strings.Builder

	// Header
	sb.WriteString("# GAP-UP ANALYSIS\n")
	sb.WriteString(fmt.Sprintf("# Symbol: %s\n", r.Symbol))
	sb.WriteString(fmt.Sprintf("# Period: last %d years\n", r.Years))
	if r.Threshold != nil {
		sb.WriteString(fmt.Sprintf("# Threshold: %.2f%%\n", *r.Threshold))
	}
	if r.Percentile != nil {
		sb.WriteString(fmt.Sprintf("# Percentile: %g (cutoff %.2f%%)\n", *r.Percentile, r.Cutoff))
	}
	sb.WriteString(fmt.Sprintf("# Run ID: %s\n", r.RunID))
	sb.WriteString(fmt.Sprintf("# Exported: %s\n", r.GeneratedAt.Format(time.DateTime)))
	sb.WriteString("#\n")

	a := r.Analysis
	w := csv.NewWriter(&sb)

	sb.WriteString("# STATISTICS\n")
	rows := [][]string{
		{"total_days", strconv.Itoa(a.TotalDays)},
		{"gap_up_days", strconv.Itoa(a.GapUpDays)},
		{"gap_down_days", strconv.Itoa(a.GapDownDays)},
		{"confidence", fmt.Sprintf("%g", a.Confidence)},
		{"point_estimate", fmt.Sprintf("%.6f", a.PointEstimate)},
		{"ci_lower", fmt.Sprintf("%.6f", a.CILower)},
		{"ci_upper", fmt.Sprintf("%.6f", a.CIUpper)},
		{"avg_gap", raw(a.AvgGap)},
		{"median_gap", raw(a.MedianGap)},
		{"std_gap", raw(a.StdGap)},
		{"avg_drop", raw(a.AvgDrop)},
		{"min_drop", raw(a.MinDrop)},
		{"max_drop", raw(a.MaxDrop)},
		{"gap_up_mean_rvol", raw(a.GapUpFactors.MeanRVOL)},
		{"gap_up_mean_close_loc", fmt.Sprintf("%.6f", a.GapUpFactors.MeanCloseLoc)},
		{"gap_down_mean_rvol", raw(a.GapDownFactors.MeanRVOL)},
		{"gap_down_mean_close_loc", fmt.Sprintf("%.6f", a.GapDownFactors.MeanCloseLoc)},
		{"min_sample_size", strconv.Itoa(a.MinSampleSize)},
		{"low_sample", strconv.FormatBool(a.LowSample)},
	}
	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("write statistics: %w", err)
	}

	sb.WriteString("#\n")
	sb.WriteString("# OUTCOMES\n")
	if err := w.Write(OutcomeColumns); err != nil {
		return "", fmt.Errorf("write outcome header: %w", err)
	}
	for _, o := range a.Sample {
		if err := w.Write(outcomeRecord(o)); err != nil {
			return "", fmt.Errorf("write outcome %s: %w", o.Date.Format(domain.DateLayout), err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	return sb.String(), nil
}

func outcomeRecord(o domain.GapOutcome) []string {
	return []string{
		o.Date.Format(domain.DateLayout),
		fmt.Sprintf("%.6f", o.DropReturn),
		raw(o.RVOL),
		fmt.Sprintf("%.6f", o.CloseLoc),
		fmt.Sprintf("%.6f", o.NextGapPercent),
		strconv.FormatBool(o.GapUp),
	}
}
