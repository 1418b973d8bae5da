package variance

import (
	"fmt"
	"math"
	"strings"

	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

// comparisons against thresholds tolerate float noise so boundary values count as reached
const boundaryEpsilon = 1e-9

// Config holds the variance decision thresholds, in percentage points
type Config struct {
	ThresholdPct      float64 `yaml:"threshold_pct" mapstructure:"threshold_pct"`
	NoiseBandPct      float64 `yaml:"noise_band_pct" mapstructure:"noise_band_pct"`
	TrendTolerancePct float64 `yaml:"trend_tolerance_pct" mapstructure:"trend_tolerance_pct"`
	TrendWindowWeeks  int     `yaml:"trend_window_weeks" mapstructure:"trend_window_weeks"`
	MinWeeksRemaining int     `yaml:"min_weeks_remaining" mapstructure:"min_weeks_remaining"`
}

// DefaultConfig returns a 20% reforecast threshold and a 10% noise band
func DefaultConfig() Config {
	return Config{
		ThresholdPct:      20,
		NoiseBandPct:      10,
		TrendTolerancePct: 2,
		TrendWindowWeeks:  3,
		MinWeeksRemaining: 2,
	}
}

// Validate checks threshold ordering
func (c Config) Validate() error {
	if c.ThresholdPct <= 0 {
		return fmt.Errorf("variance threshold must be positive, got %.2f", c.ThresholdPct)
	}
	if c.NoiseBandPct < 0 || c.NoiseBandPct > c.ThresholdPct {
		return fmt.Errorf("noise band must be between 0 and the variance threshold, got %.2f", c.NoiseBandPct)
	}
	if c.TrendTolerancePct < 0 {
		return fmt.Errorf("trend tolerance cannot be negative")
	}
	if c.TrendWindowWeeks < 2 {
		return fmt.Errorf("trend window must cover at least 2 weeks, got %d", c.TrendWindowWeeks)
	}
	if c.MinWeeksRemaining < 0 {
		return fmt.Errorf("minimum weeks remaining cannot be negative")
	}
	return nil
}

// Analyzer compares observed weekly sales to the active forecast
type Analyzer struct {
	config Config
}

// NewAnalyzer creates a variance analyzer
func NewAnalyzer(config Config) *Analyzer {
	return &Analyzer{config: config}
}

// Analyze computes weekly and cumulative variance and decides whether to reforecast.
// actualsByWeek holds category totals for season weeks 1..n and must not be longer
// than the forecast.
func (a *Analyzer) Analyze(forecastByWeek, actualsByWeek []entities.Quantity) (*entities.VarianceAnalysis, error) {
	if len(actualsByWeek) == 0 {
		return nil, fmt.Errorf("variance analysis requires at least one week of actuals")
	}
	if len(actualsByWeek) > len(forecastByWeek) {
		return nil, fmt.Errorf("actuals cover %d weeks but the forecast has only %d", len(actualsByWeek), len(forecastByWeek))
	}

	weekly := make([]float64, len(actualsByWeek))
	var sumActual, sumForecast entities.Quantity
	for i, actual := range actualsByWeek {
		weekly[i] = pctVariance(actual, forecastByWeek[i])
		sumActual += actual
		sumForecast += forecastByWeek[i]
	}

	cumulative := pctVariance(sumActual, sumForecast)
	analysis := &entities.VarianceAnalysis{
		VariancePct:       cumulative,
		WeeklyVariancePct: weekly,
		Severity:          a.severity(cumulative),
		Trend:             a.trend(weekly),
		LikelyCause:       a.cause(weekly, cumulative),
		WeeksObserved:     len(actualsByWeek),
		WeeksRemaining:    len(forecastByWeek) - len(actualsByWeek),
	}

	exceeds := math.Abs(cumulative) >= a.config.ThresholdPct-boundaryEpsilon
	analysis.ShouldReforecast = exceeds &&
		analysis.LikelyCause != entities.CauseOneTimeEvent &&
		analysis.WeeksRemaining >= a.config.MinWeeksRemaining
	analysis.Reasoning = a.reasoning(analysis, exceeds)
	return analysis, nil
}

// pctVariance returns (actual − forecast) / forecast × 100; a zero forecast gives 0 or ±100
func pctVariance(actual, forecast entities.Quantity) float64 {
	if forecast == 0 {
		switch {
		case actual > 0:
			return 100
		default:
			return 0
		}
	}
	return float64(actual-forecast) * 100 / float64(forecast)
}

func (a *Analyzer) severity(cumulative float64) entities.Severity {
	magnitude := math.Abs(cumulative)
	switch {
	case magnitude < a.config.NoiseBandPct:
		return entities.SeverityLow
	case magnitude < a.config.ThresholdPct-boundaryEpsilon:
		return entities.SeverityModerate
	case magnitude < 2*a.config.ThresholdPct:
		return entities.SeverityHigh
	default:
		return entities.SeverityCritical
	}
}

// trend compares variance magnitude at the start and end of the trailing window
func (a *Analyzer) trend(weekly []float64) entities.Trend {
	window := weekly
	if len(window) > a.config.TrendWindowWeeks {
		window = window[len(window)-a.config.TrendWindowWeeks:]
	}
	if len(window) < 2 {
		return entities.TrendStable
	}
	delta := math.Abs(window[len(window)-1]) - math.Abs(window[0])
	switch {
	case delta > a.config.TrendTolerancePct:
		return entities.TrendIncreasing
	case delta < -a.config.TrendTolerancePct:
		return entities.TrendDecreasing
	default:
		return entities.TrendStable
	}
}

// cause classifies the variance pattern:
// one out-of-band week among otherwise in-band weeks is a one-time event;
// two or more out-of-band weeks all on the side of the cumulative variance are systematic;
// anything else is noise.
func (a *Analyzer) cause(weekly []float64, cumulative float64) entities.LikelyCause {
	var outOfBand, sameSide, opposite int
	for _, v := range weekly {
		if math.Abs(v) <= a.config.NoiseBandPct {
			continue
		}
		outOfBand++
		if (v > 0) == (cumulative > 0) {
			sameSide++
		} else {
			opposite++
		}
	}

	switch {
	case outOfBand == 1 && len(weekly) > 1:
		return entities.CauseOneTimeEvent
	case sameSide >= 2 && opposite == 0:
		return entities.CauseSystematic
	default:
		return entities.CauseNoise
	}
}

func (a *Analyzer) reasoning(analysis *entities.VarianceAnalysis, exceeds bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cumulative variance %+.1f%% over %d week(s) (%s severity), trend %s, likely cause %s, %d week(s) remaining. ",
		analysis.VariancePct, analysis.WeeksObserved, analysis.Severity, analysis.Trend,
		analysis.LikelyCause, analysis.WeeksRemaining)

	switch {
	case analysis.ShouldReforecast:
		fmt.Fprintf(&b, "Variance reaches the %.0f%% threshold with enough season left; reforecast.", a.config.ThresholdPct)
	case !exceeds:
		fmt.Fprintf(&b, "Variance is within the %.0f%% threshold; keep the current forecast.", a.config.ThresholdPct)
	case analysis.LikelyCause == entities.CauseOneTimeEvent:
		b.WriteString("Variance comes from a single-week spike; keep the current forecast.")
	default:
		fmt.Fprintf(&b, "Fewer than %d weeks remain for a reforecast to matter; keep the current forecast.", a.config.MinWeeksRemaining)
	}
	return b.String()
}
