package metrics

import (
	"fmt"
	"math"
)

// DefaultConfidence is the two-sided confidence level used when none is given.
const DefaultConfidence = 0.95

// Interval is a binomial proportion estimate with its confidence bounds.
type Interval struct {
	PointEstimate float64
	Lower         float64
	Upper         float64
}

// ZScore returns the standard normal quantile at (1+confidence)/2.
// For a two-sided interval this equals sqrt(2) * erfinv(confidence).
func ZScore(confidence float64) (float64, error) {
	if math.IsNaN(confidence) || confidence <= 0 || confidence >= 1 {
		return 0, fmt.Errorf("confidence must be in (0,1), got %v", confidence)
	}
	return math.Sqrt2 * math.Erfinv(confidence), nil
}

// Wilson computes the Wilson score interval for successes out of n trials.
// n == 0 yields the degenerate (0, 0, 0) interval.
//
//	denom  = 1 + z²/n
//	center = (p + z²/(2n)) / denom
//	margin = z * sqrt(p(1-p)/n + z²/(4n²)) / denom
func Wilson(successes, n int, confidence float64) (Interval, error) {
	z, err := ZScore(confidence)
	if err != nil {
		return Interval{}, err
	}
	if n == 0 {
		return Interval{}, nil
	}
	if successes < 0 || successes > n {
		return Interval{}, fmt.Errorf("successes %d out of range for n=%d", successes, n)
	}

	nf := float64(n)
	p := float64(successes) / nf
	z2 := z * z

	denom := 1 + z2/nf
	center := (p + z2/(2*nf)) / denom
	margin := z * math.Sqrt(p*(1-p)/nf+z2/(4*nf*nf)) / denom

	return Interval{
		PointEstimate: p,
		Lower:         math.Max(0, center-margin),
		Upper:         math.Min(1, center+margin),
	}, nil
}
