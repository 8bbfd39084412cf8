// Package indicators annotates a daily price series with derived fields.
package indicators

import (
	"fmt"

	"gapup-lab/internal/domain"
)

// VolumeWindow is the trailing window used for the volume average.
const VolumeWindow = 20

// Compute annotates every bar of the series with derived fields.
// The series must be ordered by date ASC with unique dates.
//
// Formulas:
//   - daily_return = (close[t] - close[t-1]) / close[t-1] * 100, nil on first bar
//   - gap = (open[t] - close[t-1]) / close[t-1] * 100, nil on first bar
//   - vol_avg_20 = mean(volume[t-19..t]), nil while fewer than 20 bars exist
//   - rvol = volume[t] / vol_avg_20, nil when vol_avg_20 is nil or zero
//   - close_loc = (close - low) / (high - low), 0.5 when high == low
func Compute(series domain.PriceSeries) ([]domain.IndicatorBar, error) {
	if series.Len() == 0 {
		return nil, fmt.Errorf("%w: empty price series", domain.ErrInvalidInput)
	}
	if err := series.Validate(); err != nil {
		return nil, err
	}

	volumes := make([]float64, series.Len())
	for i, b := range series.Bars {
		volumes[i] = float64(b.Volume)
	}
	volAvg := RollingMean(volumes, VolumeWindow)

	result := make([]domain.IndicatorBar, series.Len())
	for i, b := range series.Bars {
		bar := domain.IndicatorBar{
			PriceBar: b,
			VolAvg20: volAvg[i],
			CloseLoc: CloseLocation(b.High, b.Low, b.Close),
		}

		if i > 0 {
			prevClose := series.Bars[i-1].Close
			ret := (b.Close - prevClose) / prevClose * 100
			gap := (b.Open - prevClose) / prevClose * 100
			bar.DailyReturn = &ret
			bar.Gap = &gap
		}

		// A zero average (no volume reported in the window) leaves RVOL undefined.
		if bar.VolAvg20 != nil && *bar.VolAvg20 > 0 {
			rvol := float64(b.Volume) / *bar.VolAvg20
			bar.RVOL = &rvol
		}

		result[i] = bar
	}

	return result, nil
}

// RollingMean returns the trailing simple mean over window values.
// Positions with fewer than window values available are nil.
func RollingMean(values []float64, window int) []*float64 {
	out := make([]*float64, len(values))
	if window <= 0 {
		return out
	}

	for i := window - 1; i < len(values); i++ {
		sum := 0.0
		for _, v := range values[i-window+1 : i+1] {
			sum += v
		}
		mean := sum / float64(window)
		out[i] = &mean
	}
	return out
}

// CloseLocation returns where close sits inside [low, high], in [0,1].
// A zero-range bar returns 0.5.
func CloseLocation(high, low, close float64) float64 {
	rng := high - low
	if rng == 0 {
		return 0.5
	}
	loc := (close - low) / rng
	if loc < 0 {
		return 0
	}
	if loc > 1 {
		return 1
	}
	return loc
}
