package entities

import (
	"fmt"
	"math"
)

// ForecastMethod identifies how the final forecast was produced
type ForecastMethod string

const (
	MethodEnsemble    ForecastMethod = "ensemble"
	MethodSingleModel ForecastMethod = "single_model"
)

// MonthMultiplier is the average seasonal index for one calendar month
type MonthMultiplier struct {
	Month      string  `json:"month"`
	Multiplier float64 `json:"multiplier"`
}

// SeasonalitySummary describes the shape of the forecast curve
type SeasonalitySummary struct {
	PeakWeek         int               `json:"peak_week"`
	TroughWeek       int               `json:"trough_week"`
	MonthMultipliers []MonthMultiplier `json:"month_multipliers"`
}

// ForecastResult is the category-level weekly demand forecast.
// A reforecast produces a new ForecastResult; existing values are never mutated.
type ForecastResult struct {
	TotalDemand       Quantity           `json:"total_demand"`
	ForecastByWeek    []Quantity         `json:"forecast_by_week"`
	SafetyStockPct    float64            `json:"safety_stock_pct"`
	Confidence        float64            `json:"confidence"`
	LowerBound        []Quantity         `json:"lower_bound"`
	UpperBound        []Quantity         `json:"upper_bound"`
	ModelAgreementPct float64            `json:"model_agreement_pct"`
	LowAgreement      bool               `json:"low_agreement"`
	Method            ForecastMethod     `json:"method"`
	ModelsUsed        []string           `json:"models_used"`
	RelativeError     float64            `json:"relative_error"`
	Seasonality       SeasonalitySummary `json:"seasonality"`
}

// HorizonWeeks returns the number of forecast weeks
func (f ForecastResult) HorizonWeeks() int {
	return len(f.ForecastByWeek)
}

// SumWeeks returns the sum of weekly forecasts in [from, to)
func (f ForecastResult) SumWeeks(from, to int) Quantity {
	if from < 0 {
		from = 0
	}
	if to > len(f.ForecastByWeek) {
		to = len(f.ForecastByWeek)
	}
	var total Quantity
	for i := from; i < to; i++ {
		total += f.ForecastByWeek[i]
	}
	return total
}

// Clone returns a deep copy
func (f ForecastResult) Clone() ForecastResult {
	clone := f
	clone.ForecastByWeek = append([]Quantity(nil), f.ForecastByWeek...)
	clone.LowerBound = append([]Quantity(nil), f.LowerBound...)
	clone.UpperBound = append([]Quantity(nil), f.UpperBound...)
	clone.ModelsUsed = append([]string(nil), f.ModelsUsed...)
	clone.Seasonality.MonthMultipliers = append([]MonthMultiplier(nil), f.Seasonality.MonthMultipliers...)
	return clone
}

// Validate checks the structural invariants of a forecast for the given horizon
func (f ForecastResult) Validate(horizonWeeks int) error {
	if len(f.ForecastByWeek) != horizonWeeks {
		return fmt.Errorf("forecast has %d weeks, expected %d", len(f.ForecastByWeek), horizonWeeks)
	}
	if len(f.LowerBound) != horizonWeeks || len(f.UpperBound) != horizonWeeks {
		return fmt.Errorf("forecast bounds must have %d weeks", horizonWeeks)
	}
	var sum Quantity
	for i, v := range f.ForecastByWeek {
		if v < 0 {
			return fmt.Errorf("forecast week %d is negative: %d", i+1, v)
		}
		if f.LowerBound[i] > v || f.UpperBound[i] < v {
			return fmt.Errorf("forecast week %d value %d outside bounds [%d, %d]",
				i+1, v, f.LowerBound[i], f.UpperBound[i])
		}
		sum += v
	}
	if sum != f.TotalDemand {
		return fmt.Errorf("forecast weeks sum to %d, total demand is %d", sum, f.TotalDemand)
	}
	if f.SafetyStockPct < 0.10 || f.SafetyStockPct > 0.50 {
		return fmt.Errorf("safety stock pct must be between 0.10 and 0.50, got %.4f", f.SafetyStockPct)
	}
	if f.Confidence < 0 || f.Confidence > 1 || math.IsNaN(f.Confidence) {
		return fmt.Errorf("confidence must be between 0 and 1, got %.4f", f.Confidence)
	}
	if f.ModelAgreementPct < 0 || f.ModelAgreementPct > 100 {
		return fmt.Errorf("model agreement must be between 0 and 100, got %.2f", f.ModelAgreementPct)
	}
	if f.Method != MethodEnsemble && f.Method != MethodSingleModel {
		return fmt.Errorf("unknown forecast method %q", f.Method)
	}
	return nil
}
