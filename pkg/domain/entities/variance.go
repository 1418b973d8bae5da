package entities

// Severity grades the magnitude of forecast variance
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Trend describes how variance magnitude moves over the latest weeks
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// LikelyCause classifies the source of observed variance
type LikelyCause string

const (
	CauseSystematic   LikelyCause = "systematic"
	CauseNoise        LikelyCause = "noise"
	CauseOneTimeEvent LikelyCause = "one_time_event"
)

// VarianceAnalysis is the decision record produced for each actuals upload
type VarianceAnalysis struct {
	VariancePct       float64     `json:"variance_pct"`
	WeeklyVariancePct []float64   `json:"weekly_variance_pct"`
	Severity          Severity    `json:"severity"`
	Trend             Trend       `json:"trend"`
	LikelyCause       LikelyCause `json:"likely_cause"`
	ShouldReforecast  bool        `json:"should_reforecast"`
	Reasoning         string      `json:"reasoning"`
	WeeksObserved     int         `json:"weeks_observed"`
	WeeksRemaining    int         `json:"weeks_remaining"`
}
