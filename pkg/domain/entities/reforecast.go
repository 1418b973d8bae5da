package entities

import (
	"fmt"
	"math"
)

// ReforecastResult is the posterior forecast for the weeks not yet observed
type ReforecastResult struct {
	ForecastByWeek      []Quantity `json:"forecast_by_week"`
	AdjustmentFactor    float64    `json:"adjustment_factor"`
	PosteriorConfidence float64    `json:"posterior_confidence"`
	PriorWeight         float64    `json:"prior_weight"`
	LikelihoodWeight    float64    `json:"likelihood_weight"`
	WeeksObserved       int        `json:"weeks_observed"`
}

// Validate checks weight normalization and value ranges
func (r ReforecastResult) Validate() error {
	if math.Abs(r.PriorWeight+r.LikelihoodWeight-1.0) > FactorTolerance {
		return fmt.Errorf("prior and likelihood weights sum to %.8f, expected 1.0", r.PriorWeight+r.LikelihoodWeight)
	}
	if r.PriorWeight < 0 || r.LikelihoodWeight < 0 {
		return fmt.Errorf("weights cannot be negative")
	}
	if r.AdjustmentFactor < 0 || math.IsNaN(r.AdjustmentFactor) || math.IsInf(r.AdjustmentFactor, 0) {
		return fmt.Errorf("invalid adjustment factor %v", r.AdjustmentFactor)
	}
	if r.PosteriorConfidence < 0 || r.PosteriorConfidence > 1 {
		return fmt.Errorf("posterior confidence must be between 0 and 1, got %.4f", r.PosteriorConfidence)
	}
	for i, v := range r.ForecastByWeek {
		if v < 0 {
			return fmt.Errorf("reforecast week %d is negative: %d", i+1, v)
		}
	}
	return nil
}
