package forecast

import (
	"context"
	"math"

	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

// MinHistoryWeeks is the shortest history either model accepts
const MinHistoryWeeks = 52

// z-score of the two-sided 95% interval used for model bounds
const intervalZ = 1.96

// Model is one independent time-series forecaster inside the ensemble
type Model interface {
	Name() string
	Forecast(ctx context.Context, history entities.WeeklySeries, horizonWeeks int) (*ModelForecast, error)
}

// ModelForecast is the raw, unrounded output of a single model
type ModelForecast struct {
	Model  string
	Weekly []float64
	Lower  []float64
	Upper  []float64
	// RelativeError is the in-sample residual standard deviation divided by the series mean
	RelativeError float64
	// SeasonalIndices holds one multiplicative index per week of the seasonal period,
	// aligned to the first history week. Nil for models without a seasonal component.
	SeasonalIndices []float64
}

// Total returns the sum of weekly forecasts
func (f *ModelForecast) Total() float64 {
	var total float64
	for _, v := range f.Weekly {
		total += v
	}
	return total
}

func checkHistory(history entities.WeeklySeries) error {
	if history.Len() < MinHistoryWeeks {
		return &entities.InsufficientHistoryError{Weeks: history.Len(), Required: MinHistoryWeeks}
	}
	return nil
}

func allFinite(values ...[]float64) bool {
	for _, vs := range values {
		for _, v := range vs {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
