// Package selection picks extreme drop days out of an annotated series.
package selection

import (
	"fmt"
	"math"
	"sort"

	"gapup-lab/internal/domain"
	"gapup-lab/internal/metrics"
)

// DefaultThreshold is the daily return (in percent) used when no rule is given.
const DefaultThreshold = -3.0

// Criteria holds the extreme-drop rule. At most one field may be set.
type Criteria struct {
	Threshold  *float64 // percent, e.g. -3.0
	Percentile *float64 // 0..100 over the defined daily returns
}

// Validate checks the combination and ranges of the rule.
func (c Criteria) Validate() error {
	if c.Threshold != nil && c.Percentile != nil {
		return fmt.Errorf("%w: threshold and percentile are mutually exclusive", domain.ErrInvalidInput)
	}
	if c.Threshold != nil && math.IsNaN(*c.Threshold) {
		return fmt.Errorf("%w: threshold is NaN", domain.ErrInvalidInput)
	}
	if c.Percentile != nil {
		p := *c.Percentile
		if math.IsNaN(p) || p < 0 || p > 100 {
			return fmt.Errorf("%w: percentile %v outside [0,100]", domain.ErrInvalidInput, p)
		}
	}
	return nil
}

// Select returns the bars matching the rule in their original order.
// Threshold mode keeps daily_return < threshold; percentile mode keeps
// daily_return <= cutoff. Bars with an undefined return never match.
func Select(bars []domain.IndicatorBar, c Criteria) (*domain.EventSet, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	set := &domain.EventSet{Events: []domain.IndicatorBar{}}
	var match func(r float64) bool

	if c.Percentile != nil {
		cutoff, err := ReturnPercentile(bars, *c.Percentile)
		if err != nil {
			return nil, err
		}
		p := *c.Percentile
		set.Mode = domain.SelectionPercentile
		set.Percentile = &p
		set.Cutoff = cutoff
		match = func(r float64) bool { return r <= cutoff }
	} else {
		threshold := DefaultThreshold
		if c.Threshold != nil {
			threshold = *c.Threshold
		}
		set.Mode = domain.SelectionThreshold
		set.Cutoff = threshold
		match = func(r float64) bool { return r < threshold }
	}

	for _, b := range bars {
		if b.DailyReturn != nil && match(*b.DailyReturn) {
			set.Events = append(set.Events, b)
		}
	}
	return set, nil
}

// ReturnPercentile computes the p-th percentile (0..100) of the defined daily
// returns with linear interpolation between ranks.
func ReturnPercentile(bars []domain.IndicatorBar, p float64) (float64, error) {
	returns := make([]float64, 0, len(bars))
	for _, b := range bars {
		if b.DailyReturn != nil {
			returns = append(returns, *b.DailyReturn)
		}
	}
	if len(returns) == 0 {
		return 0, fmt.Errorf("%w: no defined daily returns for percentile", domain.ErrInvalidInput)
	}
	sort.Float64s(returns)
	return metrics.Percentile(returns, p/100), nil
}
