package reforecast

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/vsinha/seasonplan/pkg/application/services/forecast"
	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

// Config holds the variance defaults of the Gaussian update
type Config struct {
	// DefaultRelativeError is the prior standard deviation (as a fraction of the forecast)
	// used when the forecast carries no model error estimate
	DefaultRelativeError    float64 `yaml:"default_relative_error" mapstructure:"default_relative_error"`
	LikelihoodVarianceFloor float64 `yaml:"likelihood_variance_floor" mapstructure:"likelihood_variance_floor"`
	Epsilon                 float64 `yaml:"epsilon" mapstructure:"epsilon"`
}

// DefaultConfig returns the default reforecast configuration
func DefaultConfig() Config {
	return Config{
		DefaultRelativeError:    0.15,
		LikelihoodVarianceFloor: 1e-4,
		Epsilon:                 1e-12,
	}
}

// Validate checks reforecast configuration
func (c Config) Validate() error {
	if c.DefaultRelativeError <= 0 {
		return fmt.Errorf("default relative error must be positive")
	}
	if c.LikelihoodVarianceFloor <= 0 {
		return fmt.Errorf("likelihood variance floor must be positive")
	}
	if c.Epsilon <= 0 {
		return fmt.Errorf("epsilon must be positive")
	}
	return nil
}

// Reforecaster updates the remaining-weeks forecast from observed actuals
type Reforecaster struct {
	config Config
}

// NewReforecaster creates a Bayesian reforecaster
func NewReforecaster(config Config) *Reforecaster {
	return &Reforecaster{config: config}
}

// Reforecast combines the prior forecast with observed weeks using a conjugate
// Gaussian update on the actual/forecast ratio. The prior ratio is 1 with variance
// equal to the squared model relative error; the likelihood is the mean observed
// ratio with the variance of that mean. The posterior mean ratio scales every
// remaining week, so the seasonal shape is preserved.
func (r *Reforecaster) Reforecast(
	prior entities.ForecastResult,
	actualsByWeek []entities.Quantity,
	weeksRemaining int,
) (*entities.ReforecastResult, error) {
	observed := len(actualsByWeek)
	if observed == 0 {
		return nil, fmt.Errorf("reforecast requires at least one observed week")
	}
	if observed+weeksRemaining != prior.HorizonWeeks() {
		return nil, fmt.Errorf("observed weeks (%d) plus remaining weeks (%d) do not match forecast horizon (%d)",
			observed, weeksRemaining, prior.HorizonWeeks())
	}
	if weeksRemaining < 1 {
		return nil, fmt.Errorf("no remaining weeks to reforecast")
	}

	ratios := make([]float64, 0, observed)
	for i, actual := range actualsByWeek {
		if prior.ForecastByWeek[i] <= 0 {
			continue
		}
		ratios = append(ratios, float64(actual)/float64(prior.ForecastByWeek[i]))
	}
	if len(ratios) == 0 {
		return nil, fmt.Errorf("observed weeks have no positive forecast to compare against")
	}

	relErr := prior.RelativeError
	if relErr <= 0 {
		relErr = r.config.DefaultRelativeError
	}
	priorMean, priorVar := 1.0, relErr*relErr

	likelihoodMean := stat.Mean(ratios, nil)
	likelihoodVar := priorVar
	if len(ratios) >= 2 {
		likelihoodVar = math.Max(stat.Variance(ratios, nil)/float64(len(ratios)), r.config.LikelihoodVarianceFloor)
	}

	weights := Weights(priorVar, likelihoodVar, r.config.Epsilon)
	posteriorMean := weights.Prior*priorMean + weights.Likelihood*likelihoodMean
	posteriorVar := priorVar * likelihoodVar / math.Max(priorVar+likelihoodVar, r.config.Epsilon)
	factor := math.Max(0, posteriorMean)

	tail := prior.ForecastByWeek[observed:]
	scaled := make([]float64, len(tail))
	var total float64
	for i, v := range tail {
		scaled[i] = float64(v) * factor
		total += scaled[i]
	}

	result := &entities.ReforecastResult{
		ForecastByWeek:      forecast.RoundToTotal(scaled, entities.Quantity(math.Round(total))),
		AdjustmentFactor:    factor,
		PosteriorConfidence: math.Max(0, math.Min(1, 1-math.Sqrt(posteriorVar))),
		PriorWeight:         weights.Prior,
		LikelihoodWeight:    weights.Likelihood,
		WeeksObserved:       observed,
	}
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("failed to build reforecast: %w", err)
	}
	return result, nil
}

// WeightPair is the normalized prior and likelihood weights of a Gaussian update
type WeightPair struct {
	Prior      float64
	Likelihood float64
}

// Weights returns prior = lv/(pv+lv) and likelihood = 1 − prior. When both
// variances vanish the denominator is clamped and the weights split evenly.
func Weights(priorVar, likelihoodVar, epsilon float64) WeightPair {
	denom := priorVar + likelihoodVar
	if denom < epsilon {
		return WeightPair{Prior: 0.5, Likelihood: 0.5}
	}
	prior := likelihoodVar / denom
	return WeightPair{Prior: prior, Likelihood: 1 - prior}
}

// Apply returns a new forecast whose unobserved tail is replaced by the reforecast.
// The input forecast is not modified.
func Apply(prior entities.ForecastResult, result entities.ReforecastResult) (entities.ForecastResult, error) {
	observed := result.WeeksObserved
	if observed+len(result.ForecastByWeek) != prior.HorizonWeeks() {
		return entities.ForecastResult{}, fmt.Errorf("reforecast covers weeks %d-%d but forecast horizon is %d",
			observed+1, observed+len(result.ForecastByWeek), prior.HorizonWeeks())
	}

	updated := prior.Clone()
	for i, v := range result.ForecastByWeek {
		week := observed + i
		updated.ForecastByWeek[week] = v
		lower := entities.Quantity(math.Floor(float64(prior.LowerBound[week]) * result.AdjustmentFactor))
		upper := entities.Quantity(math.Ceil(float64(prior.UpperBound[week]) * result.AdjustmentFactor))
		updated.LowerBound[week] = min(lower, v)
		updated.UpperBound[week] = max(upper, v)
	}

	var total entities.Quantity
	peak, trough := 0, 0
	for i, v := range updated.ForecastByWeek {
		total += v
		if v > updated.ForecastByWeek[peak] {
			peak = i
		}
		if v < updated.ForecastByWeek[trough] {
			trough = i
		}
	}
	updated.TotalDemand = total
	updated.Confidence = result.PosteriorConfidence
	updated.Seasonality.PeakWeek = peak + 1
	updated.Seasonality.TroughWeek = trough + 1
	return updated, nil
}
