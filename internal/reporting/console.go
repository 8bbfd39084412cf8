package reporting

import (
	"fmt"
	"strings"

	"gapup-lab/internal/decision"
	"gapup-lab/internal/domain"
)

// ConsolePreviewRows is how many outcomes the console view lists.
const ConsolePreviewRows = 10

var rule = strings.Repeat("=", 70)

// RenderConsole renders the human-readable terminal summary.
func RenderConsole(r *Report) string {
	var sb strings.Builder
	a := r.Analysis

	sb.WriteString(fmt.Sprintf("%s gap-up analysis, last %d years\n", r.Symbol, r.Years))
	sb.WriteString(fmt.Sprintf("Rule: %s, %d extreme drop days\n", r.RuleString(), r.Events))

	if a.Empty() {
		sb.WriteString("\nNo relevant following sessions to analyze.\n")
	} else {
		sb.WriteString("\n" + rule + "\n")
		sb.WriteString("RESULTS\n")
		sb.WriteString(rule + "\n")

		sb.WriteString("\nAfter extreme drops:\n")
		sb.WriteString(fmt.Sprintf("  Total cases:      %d\n", a.TotalDays))
		sb.WriteString(fmt.Sprintf("  Gap-up days:      %d\n", a.GapUpDays))
		sb.WriteString(fmt.Sprintf("  No gap-up days:   %d\n", a.GapDownDays))

		sb.WriteString("\nGap-up probability:\n")
		sb.WriteString(fmt.Sprintf("  Point estimate:   %.2f%%\n", a.PointEstimate*100))
		sb.WriteString(fmt.Sprintf("  %g%% Wilson CI:    [%.2f%%, %.2f%%]\n", a.Confidence*100, a.CILower*100, a.CIUpper*100))
		if a.LowSample {
			sb.WriteString(fmt.Sprintf("  Warning: %d cases is below the minimum sample of %d\n", a.TotalDays, a.MinSampleSize))
		}

		sb.WriteString("\nGaps:\n")
		sb.WriteString(fmt.Sprintf("  Mean:             %s\n", pct(a.AvgGap)))
		sb.WriteString(fmt.Sprintf("  Median:           %s\n", pct(a.MedianGap)))
		sb.WriteString(fmt.Sprintf("  Std. dev:         %s\n", pct(a.StdGap)))

		sb.WriteString("\nDrops:\n")
		sb.WriteString(fmt.Sprintf("  Mean:             %s\n", pct(a.AvgDrop)))
		sb.WriteString(fmt.Sprintf("  Worst:            %s\n", pct(a.MinDrop)))
		sb.WriteString(fmt.Sprintf("  Mildest:          %s\n", pct(a.MaxDrop)))

		sb.WriteString("\nFactor means:\n")
		sb.WriteString(fmt.Sprintf("  %-15s | %-12s | %-12s | %s\n", "Metric", "Gap UP", "Gap DOWN", "Diff"))
		sb.WriteString("  " + strings.Repeat("-", 55) + "\n")
		sb.WriteString(factorLine("RVOL", a.GapUpFactors.MeanRVOL, a.GapDownFactors.MeanRVOL))
		up, down := a.GapUpFactors.MeanCloseLoc, a.GapDownFactors.MeanCloseLoc
		sb.WriteString(factorLine("Close Loc (0-1)", &up, &down))

		sb.WriteString("\n" + rule + "\n")
		sb.WriteString(fmt.Sprintf("First %d cases:\n", min(ConsolePreviewRows, len(a.Sample))))
		sb.WriteString(rule + "\n")
		sb.WriteString(fmt.Sprintf("  %-10s  %8s  %6s  %9s  %8s  %s\n", "Date", "Drop", "RVOL", "Close Loc", "Next Gap", "Gap Up"))
		for _, o := range a.Sample[:min(ConsolePreviewRows, len(a.Sample))] {
			sb.WriteString(fmt.Sprintf("  %-10s  %7.2f%%  %6s  %9.2f  %7.2f%%  %t\n",
				o.Date.Format(domain.DateLayout), o.DropReturn, num(o.RVOL), o.CloseLoc, o.NextGapPercent, o.GapUp))
		}
	}

	if r.Latest != nil && r.Current != nil {
		sb.WriteString(renderCurrent(r.Latest, r.Current))
	}
	return sb.String()
}

func factorLine(name string, up, down *float64) string {
	diff := "n/a"
	if up != nil && down != nil {
		diff = fmt.Sprintf("%+.2f", *up-*down)
	}
	return fmt.Sprintf("  %-15s | %-12s | %-12s | %s\n", name, num(up), num(down), diff)
}

func renderCurrent(latest *domain.IndicatorBar, c *decision.Classification) string {
	var sb strings.Builder

	sb.WriteString("\n" + rule + "\n")
	sb.WriteString(fmt.Sprintf("CURRENT STATE (%s)\n", c.Date))
	sb.WriteString(rule + "\n")
	sb.WriteString(fmt.Sprintf("  Close:            %.2f\n", latest.Close))
	sb.WriteString(fmt.Sprintf("  Daily change:     %s\n", pct(latest.DailyReturn)))
	sb.WriteString(fmt.Sprintf("  RVOL:             %s\n", num(latest.RVOL)))
	sb.WriteString(fmt.Sprintf("  Close loc:        %.2f (0=low, 1=high)\n", latest.CloseLoc))
	sb.WriteString(fmt.Sprintf("\n  State: %s (%s)\n", c.State, c.State.Description()))

	for _, reason := range c.Reasons {
		mark := "x"
		if !reason.Pass {
			mark = " "
		}
		sb.WriteString(fmt.Sprintf("  [%s] %s: %s, actual %s\n", mark, reason.Name, reason.Threshold, reason.Actual))
	}

	if c.Shortfall != nil {
		sb.WriteString(fmt.Sprintf("\n  Signal not active (%.2f%% from the trigger)\n", *c.Shortfall))
	}
	switch {
	case c.Triggered && c.SampleSize == 0:
		sb.WriteString("\n  Historical gap-up probability: no historical cases\n")
	case c.Triggered:
		sb.WriteString(fmt.Sprintf("\n  Historical gap-up probability: %.2f%% [%.2f%% - %.2f%%], n=%d\n",
			c.PointEstimate*100, c.CILower*100, c.CIUpper*100, c.SampleSize))
	}
	return sb.String()
}
