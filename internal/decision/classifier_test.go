package decision

import (
	"strings"
	"testing"
)

func f(v float64) *float64 { return &v }

func triggered(loc float64, rvol *float64) Input {
	return Input{
		Date:          "2024-08-05",
		DailyReturn:   f(-4.2),
		RVOL:          rvol,
		CloseLoc:      loc,
		Cutoff:        -3.0,
		PointEstimate: 0.6,
		CILower:       0.4,
		CIUpper:       0.77,
		SampleSize:    25,
	}
}

func TestClassify_Inactive(t *testing.T) {
	c := NewClassifier(DefaultRules())

	result := c.Classify(Input{DailyReturn: f(-1.0), CloseLoc: 0.5, Cutoff: -3.0})

	if result.State != StateInactive {
		t.Fatalf("Expected INACTIVE, got %s", result.State)
	}
	if result.Triggered {
		t.Error("Inactive result should not be triggered")
	}
	if result.Shortfall == nil {
		t.Fatal("Shortfall should be set")
	}
	if *result.Shortfall != -2.0 {
		t.Errorf("Expected shortfall -2.0, got %v", *result.Shortfall)
	}
	if len(result.Reasons) != 1 {
		t.Errorf("Expected 1 reason, got %d", len(result.Reasons))
	}
}

func TestClassify_AtCutoffIsInactive(t *testing.T) {
	c := NewClassifier(DefaultRules())

	result := c.Classify(Input{DailyReturn: f(-3.0), CloseLoc: 0.05, RVOL: f(1.0), Cutoff: -3.0})
	if result.State != StateInactive {
		t.Errorf("Expected INACTIVE at cutoff, got %s", result.State)
	}
	if *result.Shortfall != 0 {
		t.Errorf("Expected zero shortfall, got %v", *result.Shortfall)
	}
}

func TestClassify_UndefinedReturn(t *testing.T) {
	c := NewClassifier(DefaultRules())

	result := c.Classify(Input{CloseLoc: 0.5, Cutoff: -3.0})
	if result.State != StateInactive {
		t.Errorf("Expected INACTIVE, got %s", result.State)
	}
	if result.Shortfall != nil {
		t.Errorf("Expected nil shortfall, got %v", *result.Shortfall)
	}
}

func TestClassify_States(t *testing.T) {
	tests := []struct {
		name string
		loc  float64
		rvol *float64
		want State
	}{
		{"short", 0.10, f(1.5), StateShort},
		{"short wins over bounce", 0.10, f(3.0), StateShort},
		{"bounce by close", 0.30, f(1.0), StateBounce},
		{"bounce by volume", 0.20, f(2.6), StateBounce},
		{"neutral", 0.20, f(2.2), StateNeutral},
		{"short boundary close", 0.15, f(1.0), StateNeutral},
		{"bounce boundary close", 0.25, f(2.5), StateNeutral},
		{"undefined rvol weak close", 0.10, nil, StateNeutral},
		{"undefined rvol strong close", 0.40, nil, StateBounce},
	}

	c := NewClassifier(DefaultRules())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := c.Classify(triggered(tt.loc, tt.rvol))
			if result.State != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, result.State)
			}
			if !result.Triggered {
				t.Error("Expected triggered")
			}
			if result.Shortfall != nil {
				t.Error("Shortfall should be nil when triggered")
			}
			if len(result.Reasons) != 3 {
				t.Errorf("Expected 3 reasons, got %d", len(result.Reasons))
			}
		})
	}
}

func TestClassify_CustomRules(t *testing.T) {
	rules := DefaultRules()
	rules.BounceRVOLMin = 1.5

	result := NewClassifier(rules).Classify(triggered(0.20, f(2.2)))
	if result.State != StateBounce {
		t.Errorf("Expected BOUNCE_SETUP, got %s", result.State)
	}
}

func TestClassify_CarriesEstimate(t *testing.T) {
	result := NewClassifier(DefaultRules()).Classify(triggered(0.5, f(1.0)))

	if result.PointEstimate != 0.6 || result.CILower != 0.4 || result.CIUpper != 0.77 {
		t.Errorf("Estimate not carried: %+v", result)
	}
	if result.SampleSize != 25 {
		t.Errorf("Expected sample size 25, got %d", result.SampleSize)
	}
}

func TestRenderMarkdown(t *testing.T) {
	md := RenderMarkdown(NewClassifier(DefaultRules()).Classify(triggered(0.10, f(3.0))))

	checks := []string{
		"## Current State",
		"**SHORT_SETUP**",
		"| 1 | Drop signal |",
		"| 2 | Short setup |",
		"Historical gap-up probability: 60.0%",
	}
	for _, want := range checks {
		if !strings.Contains(md, want) {
			t.Errorf("Markdown missing %q\n%s", want, md)
		}
	}

	inactive := RenderMarkdown(NewClassifier(DefaultRules()).Classify(Input{DailyReturn: f(0.5), Cutoff: -3.0}))
	if !strings.Contains(inactive, "Distance to trigger: -3.50%") {
		t.Errorf("Inactive markdown missing distance\n%s", inactive)
	}
}

func TestRenderMarkdown_TriggeredWithoutHistory(t *testing.T) {
	input := triggered(0.10, f(1.0))
	input.PointEstimate, input.CILower, input.CIUpper, input.SampleSize = 0, 0, 0, 0

	md := RenderMarkdown(NewClassifier(DefaultRules()).Classify(input))
	if !strings.Contains(md, "Historical gap-up probability: no historical cases") {
		t.Errorf("Markdown must state the missing history\n%s", md)
	}
	if strings.Contains(md, "0.0%") {
		t.Errorf("Markdown must not report a 0%% estimate without history\n%s", md)
	}
}
