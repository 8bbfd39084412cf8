package reporting

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"gapup-lab/internal/decision"
	"gapup-lab/internal/domain"
)

var fixedTime = time.Date(2025, 1, 4, 12, 30, 15, 0, time.UTC)

func f(v float64) *float64 { return &v }

func testReport() *Report {
	sample := []domain.GapOutcome{
		{Date: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), DropReturn: -4.1, RVOL: f(2.6), CloseLoc: 0.3, NextGapPercent: 0.8, GapUp: true},
		{Date: time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC), DropReturn: -3.2, RVOL: nil, CloseLoc: 0.1, NextGapPercent: -0.4, GapUp: false},
	}
	return &Report{
		RunID:       uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e"),
		Symbol:      "QQQ",
		Years:       5,
		GeneratedAt: fixedTime,
		Mode:        domain.SelectionThreshold,
		Threshold:   f(-3),
		Cutoff:      -3,
		Events:      3,
		Analysis: &domain.AnalysisReport{
			Sample:         sample,
			TotalDays:      2,
			GapUpDays:      1,
			GapDownDays:    1,
			Confidence:     0.95,
			PointEstimate:  0.5,
			CILower:        0.0945,
			CIUpper:        0.9055,
			AvgGap:         f(0.2),
			MedianGap:      f(0.2),
			StdGap:         f(0.8485),
			AvgDrop:        f(-3.65),
			MinDrop:        f(-4.1),
			MaxDrop:        f(-3.2),
			GapUpFactors:   domain.FactorSummary{Count: 1, MeanRVOL: f(2.6), MeanCloseLoc: 0.3},
			GapDownFactors: domain.FactorSummary{Count: 1, MeanCloseLoc: 0.1},
			MinSampleSize:  10,
			LowSample:      true,
		},
		Current: &decision.Classification{
			State:     decision.StateInactive,
			Date:      "2024-06-28",
			Shortfall: f(-3.5),
			Reasons: []decision.CriterionResult{
				{Name: "Drop signal", Threshold: "daily_return < -3.00%", Actual: "0.50%", Pass: false},
			},
		},
		Latest: &domain.IndicatorBar{
			PriceBar:    domain.PriceBar{Close: 480.5},
			DailyReturn: f(0.5),
			CloseLoc:    0.7,
		},
	}
}

func TestRenderCSV(t *testing.T) {
	out, err := RenderCSV(testReport())
	if err != nil {
		t.Fatalf("RenderCSV failed: %v", err)
	}

	for _, want := range []string{
		"# Symbol: QQQ\n",
		"# Period: last 5 years\n",
		"# Threshold: -3.00%\n",
		"# Run ID: 0f8fad5b-d9cb-469f-a165-70867728950e\n",
		"# Exported: 2025-01-04 12:30:15\n",
		"total_days,2\n",
		"point_estimate,0.500000\n",
		"std_gap,0.848500\n",
		"gap_down_mean_rvol,\n",
		"low_sample,true\n",
		"# OUTCOMES\ndate,drop_return,rvol,close_loc,next_gap_percent,gap_up\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("CSV missing %q", want)
		}
	}
	if strings.Contains(out, "# Percentile") {
		t.Error("threshold run must not print a percentile line")
	}

	// The outcome table parses as plain CSV.
	table := out[strings.Index(out, "# OUTCOMES\n")+len("# OUTCOMES\n"):]
	records, err := csv.NewReader(strings.NewReader(table)).ReadAll()
	if err != nil {
		t.Fatalf("outcome table is not valid CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want header + 2", len(records))
	}
	if got := records[1]; got[0] != "2024-03-04" || got[2] != "2.600000" || got[5] != "true" {
		t.Errorf("first row = %v", got)
	}
	if got := records[2][2]; got != "" {
		t.Errorf("undefined rvol rendered as %q, want empty", got)
	}
}

func TestRenderCSV_Percentile(t *testing.T) {
	r := testReport()
	r.Mode = domain.SelectionPercentile
	r.Threshold = nil
	r.Percentile = f(5)
	r.Cutoff = -2.87

	out, err := RenderCSV(r)
	if err != nil {
		t.Fatalf("RenderCSV failed: %v", err)
	}
	if !strings.Contains(out, "# Percentile: 5 (cutoff -2.87%)\n") {
		t.Errorf("missing percentile line:\n%s", out)
	}
	if got := r.RuleString(); got != "daily_return <= -2.87% (percentile 5)" {
		t.Errorf("RuleString = %q", got)
	}
}

func TestRenderMarkdown(t *testing.T) {
	md := RenderMarkdown(testReport())

	for _, want := range []string{
		"# Gap-Up Analysis: QQQ",
		"| Rule | daily_return < -3.00% |",
		"| P(gap up) | 50.00% |",
		"| Wilson CI | [9.45%, 90.55%] |",
		"| Mean RVOL | 2.60 | n/a |",
		"**Low sample:**",
		"## Current State",
		"State: **INACTIVE**",
		"| 2024-04-15 | -3.20% | n/a | 0.10 | -0.40% | false |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("Markdown missing %q", want)
		}
	}
}

func TestRenderMarkdown_EmptySample(t *testing.T) {
	r := testReport()
	r.Analysis = &domain.AnalysisReport{Confidence: 0.95, MinSampleSize: 10, LowSample: true}

	md := RenderMarkdown(r)
	if !strings.Contains(md, "No relevant cases found") {
		t.Error("empty sample must be stated explicitly")
	}
	if strings.Contains(md, "Factor Analysis") {
		t.Error("empty sample must not render factors")
	}
}

func TestRenderConsole(t *testing.T) {
	out := RenderConsole(testReport())

	for _, want := range []string{
		"QQQ gap-up analysis, last 5 years",
		"Point estimate:   50.00%",
		"95% Wilson CI:    [9.45%, 90.55%]",
		"Warning: 2 cases is below the minimum sample of 10",
		"RVOL            | 2.60         | n/a          | n/a",
		"Close Loc (0-1) | 0.30         | 0.10         | +0.20",
		"First 2 cases:",
		"CURRENT STATE (2024-06-28)",
		"Signal not active (-3.50% from the trigger)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("console output missing %q\n%s", want, out)
		}
	}
}

func TestExporter_Export(t *testing.T) {
	dir := t.TempDir()
	id := uuid.MustParse("a1b2c3d4-0000-4000-8000-000000000000")
	e := NewExporter(dir).
		WithClock(func() time.Time { return fixedTime }).
		WithIDFunc(func() uuid.UUID { return id })

	path, err := e.Export(testReport(), "")
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if want := filepath.Join(dir, "qqq_gap_analysis_20250104_123015_a1b2c3d4.csv"); path != want {
		t.Errorf("path = %s, want %s", path, want)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.HasPrefix(string(data), "# GAP-UP ANALYSIS\n") {
		t.Error("export does not start with the header block")
	}

	mdPath, err := e.Export(testReport(), "md")
	if err != nil {
		t.Fatalf("Export markdown failed: %v", err)
	}
	if filepath.Ext(mdPath) != ".md" {
		t.Errorf("markdown path = %s", mdPath)
	}
}

func TestExporter_UniqueNames(t *testing.T) {
	e := NewExporter(t.TempDir()).WithClock(func() time.Time { return fixedTime })

	a, err := e.Export(testReport(), FormatCSV)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	b, err := e.Export(testReport(), FormatCSV)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if a == b {
		t.Errorf("two exports in the same second share a name: %s", a)
	}
}

func TestExporter_Errors(t *testing.T) {
	e := NewExporter(t.TempDir())

	empty := testReport()
	empty.Analysis = &domain.AnalysisReport{}
	if _, err := e.Export(empty, FormatCSV); !errors.Is(err, ErrEmptySample) {
		t.Errorf("err = %v, want ErrEmptySample", err)
	}
	if _, err := e.Export(testReport(), "xlsx"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestRenderConsole_TriggeredWithoutHistory(t *testing.T) {
	r := testReport()
	r.Analysis = &domain.AnalysisReport{Confidence: 0.95, MinSampleSize: 10, LowSample: true}
	r.Current = &decision.Classification{
		State:     decision.StateShort,
		Date:      "2024-06-28",
		Triggered: true,
	}

	out := RenderConsole(r)
	if !strings.Contains(out, "Historical gap-up probability: no historical cases") {
		t.Errorf("console output must state the missing history\n%s", out)
	}
	if strings.Contains(out, "0.00% [0.00% - 0.00%]") {
		t.Errorf("console output must not report a 0%% estimate without history\n%s", out)
	}
}
