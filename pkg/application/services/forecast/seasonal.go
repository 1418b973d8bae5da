package forecast

import (
	"context"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

// SeasonalModelName identifies the seasonal-decomposition model
const SeasonalModelName = "seasonal"

// SeasonalModel decomposes history into a linear trend (fitted to the centered
// moving average) and multiplicative per-week seasonal indices, then extrapolates
// the trend and reapplies the indices.
type SeasonalModel struct {
	Period int
}

// NewSeasonalModel creates a seasonal model with a yearly (52-week) period
func NewSeasonalModel() *SeasonalModel {
	return &SeasonalModel{Period: 52}
}

// Name returns the model name
func (m *SeasonalModel) Name() string {
	return SeasonalModelName
}

// Forecast fits the decomposition and projects horizonWeeks past the end of history
func (m *SeasonalModel) Forecast(ctx context.Context, history entities.WeeklySeries, horizonWeeks int) (*ModelForecast, error) {
	if err := checkHistory(history); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	y := history.Values
	n := len(y)
	period := m.Period
	if period <= 0 || period > n {
		period = MinHistoryWeeks
	}

	mean := stat.Mean(y, nil)
	if mean <= 0 {
		return nil, &entities.ModelConvergenceError{Model: m.Name(), Reason: "series has no positive level"}
	}

	// a single period cannot separate trend from season, so the level stays flat
	alpha, beta := mean, 0.0
	if xs, ma := centeredMovingAverage(y, period); len(ma) >= 2 {
		alpha, beta = stat.LinearRegression(xs, ma, nil, false)
	}
	trend := func(t int) float64 { return alpha + beta*float64(t) }

	// average detrended ratio per phase of the period
	sums := make([]float64, period)
	counts := make([]int, period)
	for t, v := range y {
		level := trend(t)
		if level <= mean*1e-3 {
			continue
		}
		sums[t%period] += v / level
		counts[t%period]++
	}
	indices := make([]float64, period)
	var indexSum float64
	for p := range indices {
		indices[p] = 1
		if counts[p] > 0 {
			indices[p] = sums[p] / float64(counts[p])
		}
		indexSum += indices[p]
	}
	if indexSum <= 0 {
		return nil, &entities.ModelConvergenceError{Model: m.Name(), Reason: "degenerate seasonal indices"}
	}
	scale := float64(period) / indexSum
	for p := range indices {
		indices[p] *= scale
	}

	residuals := make([]float64, n)
	for t, v := range y {
		residuals[t] = v - trend(t)*indices[t%period]
	}
	dof := float64(n - 2)
	var sse float64
	for _, r := range residuals {
		sse += r * r
	}
	sigma := math.Sqrt(sse / dof)

	weekly := make([]float64, horizonWeeks)
	lower := make([]float64, horizonWeeks)
	upper := make([]float64, horizonWeeks)
	for h := 0; h < horizonWeeks; h++ {
		t := n + h
		v := math.Max(0, trend(t)*indices[t%period])
		weekly[h] = v
		lower[h] = math.Max(0, v-intervalZ*sigma)
		upper[h] = v + intervalZ*sigma
	}

	if !allFinite(weekly, lower, upper, indices) || math.IsNaN(sigma) {
		return nil, &entities.ModelConvergenceError{Model: m.Name(), Reason: "non-finite forecast"}
	}

	return &ModelForecast{
		Model:           m.Name(),
		Weekly:          weekly,
		Lower:           lower,
		Upper:           upper,
		RelativeError:   sigma / mean,
		SeasonalIndices: indices,
	}, nil
}

// centeredMovingAverage returns the 2xperiod moving average and the positions it is centered on
func centeredMovingAverage(y []float64, period int) ([]float64, []float64) {
	half := period / 2
	var xs, ma []float64
	for t := half; t+half < len(y); t++ {
		var sum float64
		if period%2 == 0 {
			sum = 0.5*y[t-half] + 0.5*y[t+half]
			for k := t - half + 1; k < t+half; k++ {
				sum += y[k]
			}
		} else {
			for k := t - half; k <= t+half; k++ {
				sum += y[k]
			}
		}
		xs = append(xs, float64(t))
		ma = append(ma, sum/float64(period))
	}
	return xs, ma
}
