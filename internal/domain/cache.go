package domain

import "time"

// CacheMetadata describes what a local cache holds for one symbol.
type CacheMetadata struct {
	Symbol      string    `json:"symbol"`
	LastUpdated time.Time `json:"last_updated"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Rows        int       `json:"rows"`
}

// DateRange is a half-open calendar range [Start, End).
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether d falls inside the range.
func (r DateRange) Contains(d time.Time) bool {
	d = TruncateDay(d)
	return !d.Before(TruncateDay(r.Start)) && d.Before(TruncateDay(r.End))
}

// LastDay returns the last calendar day inside the range.
func (r DateRange) LastDay() time.Time {
	return TruncateDay(r.End).AddDate(0, 0, -1)
}
