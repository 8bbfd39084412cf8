// Package outcome measures the next-session gap that follows each event day.
package outcome

import (
	"gapup-lab/internal/domain"
)

// Map produces one GapOutcome per event that has a following bar in the full
// series. Events on the final date, events whose date is not in the series
// and events with an undefined daily return are skipped. The anchor is the
// event bar's own close.
func Map(bars []domain.IndicatorBar, events []domain.IndicatorBar) []domain.GapOutcome {
	index := make(map[string]int, len(bars))
	for i, b := range bars {
		index[b.DateKey()] = i
	}

	out := make([]domain.GapOutcome, 0, len(events))
	for _, ev := range events {
		if ev.DailyReturn == nil {
			continue
		}
		i, ok := index[ev.DateKey()]
		if !ok || i+1 >= len(bars) {
			continue
		}
		next := bars[i+1]

		out = append(out, domain.GapOutcome{
			Date:           ev.Date,
			DropReturn:     *ev.DailyReturn,
			RVOL:           copyPtr(ev.RVOL),
			CloseLoc:       ev.CloseLoc,
			NextGapPercent: (next.Open - ev.Close) / ev.Close * 100,
			GapUp:          next.Open > ev.Close,
		})
	}
	return out
}

func copyPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
