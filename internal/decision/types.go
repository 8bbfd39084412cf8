package decision

// State is the classification of the most recent session.
type State string

const (
	StateInactive State = "INACTIVE"     // drop signal not triggered
	StateShort    State = "SHORT_SETUP"  // weak close on ordinary volume
	StateBounce   State = "BOUNCE_SETUP" // strong close or capitulation volume
	StateNeutral  State = "NEUTRAL"      // triggered, no setup
)

// Rules holds the thresholds of the setup predicates.
//
//	short  = close_loc < ShortCloseLocMax AND rvol < ShortRVOLMax
//	bounce = close_loc > BounceCloseLocMin OR rvol > BounceRVOLMin
type Rules struct {
	ShortCloseLocMax  float64 `yaml:"short_close_loc_max" toml:"short_close_loc_max" json:"short_close_loc_max" default:"0.15" validate:"gte=0,lte=1"`
	ShortRVOLMax      float64 `yaml:"short_rvol_max" toml:"short_rvol_max" json:"short_rvol_max" default:"2.0" validate:"gt=0"`
	BounceCloseLocMin float64 `yaml:"bounce_close_loc_min" toml:"bounce_close_loc_min" json:"bounce_close_loc_min" default:"0.25" validate:"gte=0,lte=1"`
	BounceRVOLMin     float64 `yaml:"bounce_rvol_min" toml:"bounce_rvol_min" json:"bounce_rvol_min" default:"2.5" validate:"gt=0"`
}

// DefaultRules returns the standard setup thresholds.
func DefaultRules() Rules {
	return Rules{
		ShortCloseLocMax:  0.15,
		ShortRVOLMax:      2.0,
		BounceCloseLocMin: 0.25,
		BounceRVOLMin:     2.5,
	}
}

// Input contains the latest session and the run's estimate.
type Input struct {
	Date        string
	DailyReturn *float64
	RVOL        *float64
	CloseLoc    float64
	Cutoff      float64

	// Probability fields from the analysis report
	PointEstimate float64
	CILower       float64
	CIUpper       float64
	SampleSize    int
}

// CriterionResult represents pass/fail for one criterion.
type CriterionResult struct {
	Name      string `json:"name"`
	Threshold string `json:"threshold"`
	Actual    string `json:"actual"`
	Pass      bool   `json:"pass"`
}

// Classification contains the state with the checks that produced it.
type Classification struct {
	State     State             `json:"state"`
	Date      string            `json:"date"`
	Triggered bool              `json:"triggered"`
	Shortfall *float64          `json:"shortfall,omitempty"` // cutoff - daily_return when inactive
	Reasons   []CriterionResult `json:"reasons"`

	PointEstimate float64 `json:"point_estimate"`
	CILower       float64 `json:"ci_lower"`
	CIUpper       float64 `json:"ci_upper"`
	SampleSize    int     `json:"sample_size"`
}
