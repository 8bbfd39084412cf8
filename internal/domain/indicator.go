package domain

// IndicatorBar is a PriceBar annotated with derived fields.
// Nil pointers mark values that are undefined for lack of history.
type IndicatorBar struct {
	PriceBar

	DailyReturn *float64 `json:"daily_return"` // % close vs prior close, nil on first bar
	Gap         *float64 `json:"gap"`          // % open vs prior close, nil on first bar
	VolAvg20    *float64 `json:"vol_avg_20"`   // trailing 20-bar mean volume, nil before bar 20
	RVOL        *float64 `json:"rvol"`         // volume / vol_avg_20, nil when VolAvg20 is nil
	CloseLoc    float64  `json:"close_loc"`    // (close-low)/(high-low), 0.5 when high == low
}

// SelectionMode names the rule used to pick extreme drop days.
type SelectionMode string

const (
	SelectionThreshold  SelectionMode = "threshold"
	SelectionPercentile SelectionMode = "percentile"
)

// EventSet is the ordered subset of bars meeting the extreme-drop rule plus
// the cutoff shared by every event of the run.
type EventSet struct {
	Mode       SelectionMode  `json:"mode"`
	Percentile *float64       `json:"percentile,omitempty"` // requested percentile in percentile mode
	Cutoff     float64        `json:"cutoff"`
	Events     []IndicatorBar `json:"events"`
}

// Len returns the number of selected events.
func (e *EventSet) Len() int {
	if e == nil {
		return 0
	}
	return len(e.Events)
}
