// Package metrics holds the descriptive statistics and the binomial
// confidence interval used to summarize a gap sample.
package metrics

import (
	"math"
	"sort"
)

// Mean calculates the arithmetic mean. Returns 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Median returns the middle value, averaging the two middle values for even
// lengths. Returns 0 for an empty slice.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return Percentile(sortedCopy(values), 0.50)
}

// Stddev calculates sample standard deviation (n-1 denominator).
// Returns false when fewer than 2 values are available.
func Stddev(values []float64) (float64, bool) {
	n := len(values)
	if n < 2 {
		return 0, false
	}
	mean := Mean(values)
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1)), true
}

// Percentile uses linear interpolation between closest ranks.
// sorted must be pre-sorted ASC.
// p is a fraction (0.10 = 10th percentile).
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	// Index for percentile (0-based, continuous)
	idx := p * float64(n-1)
	lower := int(math.Floor(idx))
	if lower < 0 {
		return sorted[0]
	}
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// MinMax returns the smallest and largest value. Both are 0 for an empty slice.
func MinMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func sortedCopy(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}
