package reporting

import (
	"fmt"
	"strings"
	"time"

	"gapup-lab/internal/decision"
	"gapup-lab/internal/domain"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder
	a := r.Analysis

	// Header
	sb.WriteString(fmt.Sprintf("# Gap-Up Analysis: %s\n\n", r.Symbol))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Run ID: `%s`\n\n", r.RunID))

	// Parameters
	sb.WriteString("## Parameters\n\n")
	sb.WriteString("| Parameter | Value |\n")
	sb.WriteString("|-----------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Period | last %d years |\n", r.Years))
	if !r.Range.Start.IsZero() {
		sb.WriteString(fmt.Sprintf("| Range | %s to %s |\n",
			r.Range.Start.Format(domain.DateLayout), r.Range.LastDay().Format(domain.DateLayout)))
	}
	sb.WriteString(fmt.Sprintf("| Rule | %s |\n", r.RuleString()))
	sb.WriteString(fmt.Sprintf("| Extreme drop days | %d |\n", r.Events))
	sb.WriteString(fmt.Sprintf("| Confidence | %g%% |\n", a.Confidence*100))
	sb.WriteString("\n")

	// Statistics
	sb.WriteString("## Statistics\n\n")
	if a.Empty() {
		sb.WriteString("No relevant cases found: no extreme drop day has a following session.\n\n")
	} else {
		sb.WriteString("| Metric | Value |\n")
		sb.WriteString("|--------|-------|\n")
		sb.WriteString(fmt.Sprintf("| Total cases | %d |\n", a.TotalDays))
		sb.WriteString(fmt.Sprintf("| Gap-up days | %d |\n", a.GapUpDays))
		sb.WriteString(fmt.Sprintf("| No gap-up days | %d |\n", a.GapDownDays))
		sb.WriteString(fmt.Sprintf("| P(gap up) | %.2f%% |\n", a.PointEstimate*100))
		sb.WriteString(fmt.Sprintf("| Wilson CI | [%.2f%%, %.2f%%] |\n", a.CILower*100, a.CIUpper*100))
		sb.WriteString(fmt.Sprintf("| Mean gap | %s |\n", pct(a.AvgGap)))
		sb.WriteString(fmt.Sprintf("| Median gap | %s |\n", pct(a.MedianGap)))
		sb.WriteString(fmt.Sprintf("| Std. dev gap | %s |\n", pct(a.StdGap)))
		sb.WriteString(fmt.Sprintf("| Mean drop | %s |\n", pct(a.AvgDrop)))
		sb.WriteString(fmt.Sprintf("| Worst drop | %s |\n", pct(a.MinDrop)))
		sb.WriteString(fmt.Sprintf("| Mildest drop | %s |\n", pct(a.MaxDrop)))
		sb.WriteString("\n")

		if a.LowSample {
			sb.WriteString(fmt.Sprintf("**Low sample:** %d cases is below the minimum of %d.\n\n", a.TotalDays, a.MinSampleSize))
		}

		// Factors
		sb.WriteString("## Factor Analysis\n\n")
		sb.WriteString("| Metric | Gap-up days | No gap-up days |\n")
		sb.WriteString("|--------|-------------|----------------|\n")
		sb.WriteString(fmt.Sprintf("| Count | %d | %d |\n", a.GapUpFactors.Count, a.GapDownFactors.Count))
		sb.WriteString(fmt.Sprintf("| Mean RVOL | %s | %s |\n", num(a.GapUpFactors.MeanRVOL), num(a.GapDownFactors.MeanRVOL)))
		sb.WriteString(fmt.Sprintf("| Mean close loc | %.2f | %.2f |\n", a.GapUpFactors.MeanCloseLoc, a.GapDownFactors.MeanCloseLoc))
		sb.WriteString("\n")
	}

	// Current state
	if r.Current != nil {
		sb.WriteString(decision.RenderMarkdown(r.Current))
		sb.WriteString("\n")
	}

	// Outcomes
	sb.WriteString("## Outcomes\n\n")
	if len(a.Sample) > 0 {
		sb.WriteString("| Date | Drop | RVOL | Close Loc | Next Gap | Gap Up |\n")
		sb.WriteString("|------|------|------|-----------|----------|--------|\n")
		for _, o := range a.Sample {
			sb.WriteString(fmt.Sprintf("| %s | %.2f%% | %s | %.2f | %.2f%% | %t |\n",
				o.Date.Format(domain.DateLayout), o.DropReturn, num(o.RVOL), o.CloseLoc, o.NextGapPercent, o.GapUp))
		}
	} else {
		sb.WriteString("No outcomes available.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
