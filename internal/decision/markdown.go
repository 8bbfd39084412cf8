package decision

import (
	"fmt"
	"strings"
)

// Description returns a one-line reading of the state.
func (s State) Description() string {
	switch s {
	case StateInactive:
		return "Signal not triggered"
	case StateShort:
		return "Weak close on ordinary volume, gap-down risk"
	case StateBounce:
		return "Strong close or capitulation volume, gap-up favored"
	case StateNeutral:
		return "Signal triggered without a clear setup"
	default:
		return string(s)
	}
}

// RenderMarkdown renders a Classification as a Markdown section.
func RenderMarkdown(result *Classification) string {
	var sb strings.Builder

	sb.WriteString("## Current State\n\n")
	sb.WriteString(fmt.Sprintf("State: **%s** (%s)\n\n", result.State, result.State.Description()))
	if result.Date != "" {
		sb.WriteString(fmt.Sprintf("Session: %s\n\n", result.Date))
	}

	sb.WriteString("| # | Check | Condition | Actual | Result |\n")
	sb.WriteString("|---|-------|-----------|--------|--------|\n")
	for i, c := range result.Reasons {
		passStr := "PASS"
		if !c.Pass {
			passStr = "FAIL"
		}
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n",
			i+1, c.Name, c.Threshold, c.Actual, passStr))
	}
	sb.WriteString("\n")

	if result.Shortfall != nil {
		sb.WriteString(fmt.Sprintf("Distance to trigger: %.2f%%\n\n", *result.Shortfall))
	}
	switch {
	case result.Triggered && result.SampleSize == 0:
		sb.WriteString("Historical gap-up probability: no historical cases\n")
	case result.Triggered:
		sb.WriteString(fmt.Sprintf("Historical gap-up probability: %.1f%% (CI %.1f%% - %.1f%%, n=%d)\n",
			result.PointEstimate*100, result.CILower*100, result.CIUpper*100, result.SampleSize))
	}

	return sb.String()
}
