package decision

import "fmt"

// Classifier labels the latest session against the setup rules.
type Classifier struct {
	rules Rules
}

// NewClassifier creates a classifier with the given rules.
func NewClassifier(rules Rules) *Classifier {
	return &Classifier{rules: rules}
}

// Rules returns the thresholds in use.
func (c *Classifier) Rules() Rules {
	return c.rules
}

// Classify evaluates, first match wins:
//  1. daily_return >= cutoff (or undefined): INACTIVE
//  2. short predicate: SHORT_SETUP
//  3. bounce predicate: BOUNCE_SETUP
//  4. otherwise NEUTRAL
//
// A comparison against an undefined value is false.
func (c *Classifier) Classify(input Input) *Classification {
	result := &Classification{
		Date:          input.Date,
		PointEstimate: input.PointEstimate,
		CILower:       input.CILower,
		CIUpper:       input.CIUpper,
		SampleSize:    input.SampleSize,
	}

	trigger := CriterionResult{
		Name:      "Drop signal",
		Threshold: fmt.Sprintf("daily_return < %.2f%%", input.Cutoff),
		Actual:    formatPct(input.DailyReturn),
		Pass:      input.DailyReturn != nil && *input.DailyReturn < input.Cutoff,
	}
	result.Reasons = append(result.Reasons, trigger)

	if !trigger.Pass {
		result.State = StateInactive
		if input.DailyReturn != nil {
			shortfall := input.Cutoff - *input.DailyReturn
			result.Shortfall = &shortfall
		}
		return result
	}
	result.Triggered = true

	short := c.evaluateShort(input)
	bounce := c.evaluateBounce(input)
	result.Reasons = append(result.Reasons, short, bounce)

	switch {
	case short.Pass:
		result.State = StateShort
	case bounce.Pass:
		result.State = StateBounce
	default:
		result.State = StateNeutral
	}
	return result
}

func (c *Classifier) evaluateShort(input Input) CriterionResult {
	locOK := input.CloseLoc < c.rules.ShortCloseLocMax
	rvolOK := input.RVOL != nil && *input.RVOL < c.rules.ShortRVOLMax
	return CriterionResult{
		Name:      "Short setup",
		Threshold: fmt.Sprintf("close_loc < %.2f AND rvol < %.2f", c.rules.ShortCloseLocMax, c.rules.ShortRVOLMax),
		Actual:    fmt.Sprintf("close_loc=%.2f, rvol=%s", input.CloseLoc, formatNum(input.RVOL)),
		Pass:      locOK && rvolOK,
	}
}

func (c *Classifier) evaluateBounce(input Input) CriterionResult {
	locOK := input.CloseLoc > c.rules.BounceCloseLocMin
	rvolOK := input.RVOL != nil && *input.RVOL > c.rules.BounceRVOLMin
	return CriterionResult{
		Name:      "Bounce setup",
		Threshold: fmt.Sprintf("close_loc > %.2f OR rvol > %.2f", c.rules.BounceCloseLocMin, c.rules.BounceRVOLMin),
		Actual:    fmt.Sprintf("close_loc=%.2f, rvol=%s", input.CloseLoc, formatNum(input.RVOL)),
		Pass:      locOK || rvolOK,
	}
}

func formatPct(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", *v)
}

func formatNum(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *v)
}
