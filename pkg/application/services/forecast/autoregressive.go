package forecast

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

// AutoregressiveModelName identifies the autoregressive model
const AutoregressiveModelName = "autoregressive"

// AutoregressiveModel fits AR(p) with an intercept by least squares and
// selects p by the Akaike information criterion.
type AutoregressiveModel struct {
	MaxOrder int
	// ExplosionFactor bounds forecasts relative to the largest observed value
	ExplosionFactor float64
}

// NewAutoregressiveModel creates an AR model searching orders 1 through 8
func NewAutoregressiveModel() *AutoregressiveModel {
	return &AutoregressiveModel{MaxOrder: 8, ExplosionFactor: 10}
}

// Name returns the model name
func (m *AutoregressiveModel) Name() string {
	return AutoregressiveModelName
}

type arFit struct {
	order int
	coef  []float64 // intercept followed by lag 1..order
	sigma float64
	aic   float64
}

// Forecast selects an order, fits it and iterates the recursion horizonWeeks ahead
func (m *AutoregressiveModel) Forecast(ctx context.Context, history entities.WeeklySeries, horizonWeeks int) (*ModelForecast, error) {
	if err := checkHistory(history); err != nil {
		return nil, err
	}

	y := history.Values
	n := len(y)
	maxOrder := m.MaxOrder
	if limit := n / 4; maxOrder > limit {
		maxOrder = limit
	}
	if maxOrder < 1 {
		maxOrder = 1
	}

	var best *arFit
	for p := 1; p <= maxOrder; p++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fit, err := fitAR(y, p)
		if err != nil {
			continue
		}
		if best == nil || fit.aic < best.aic {
			best = fit
		}
	}
	if best == nil {
		return nil, &entities.ModelConvergenceError{Model: m.Name(), Reason: "no order produced a well-conditioned fit"}
	}

	mean := floats.Sum(y) / float64(n)
	if mean <= 0 {
		return nil, &entities.ModelConvergenceError{Model: m.Name(), Reason: "series has no positive level"}
	}
	ceiling := m.ExplosionFactor * floats.Max(y)

	// lags holds the most recent observations, newest last
	lags := append([]float64(nil), y[n-best.order:]...)
	weekly := make([]float64, horizonWeeks)
	lower := make([]float64, horizonWeeks)
	upper := make([]float64, horizonWeeks)
	for h := 0; h < horizonWeeks; h++ {
		next := best.coef[0]
		for k := 1; k <= best.order; k++ {
			next += best.coef[k] * lags[len(lags)-k]
		}
		if math.IsNaN(next) || math.IsInf(next, 0) || math.Abs(next) > ceiling {
			return nil, &entities.ModelConvergenceError{
				Model:  m.Name(),
				Reason: fmt.Sprintf("explosive AR(%d) forecast at week %d", best.order, h+1),
			}
		}
		next = math.Max(0, next)
		lags = append(lags[1:], next)

		width := intervalZ * best.sigma * math.Sqrt(float64(h+1))
		weekly[h] = next
		lower[h] = math.Max(0, next-width)
		upper[h] = next + width
	}

	return &ModelForecast{
		Model:         m.Name(),
		Weekly:        weekly,
		Lower:         lower,
		Upper:         upper,
		RelativeError: best.sigma / mean,
	}, nil
}

// fitAR solves y_t = c + sum_k phi_k y_{t-k} by least squares
func fitAR(y []float64, order int) (*arFit, error) {
	rows := len(y) - order
	cols := order + 1
	if rows <= cols {
		return nil, fmt.Errorf("not enough observations for order %d", order)
	}

	design := mat.NewDense(rows, cols, nil)
	target := mat.NewVecDense(rows, nil)
	for r := 0; r < rows; r++ {
		t := order + r
		design.Set(r, 0, 1)
		for k := 1; k <= order; k++ {
			design.Set(r, k, y[t-k])
		}
		target.SetVec(r, y[t])
	}

	var coef mat.VecDense
	if err := coef.SolveVec(design, target); err != nil {
		return nil, fmt.Errorf("failed to solve AR(%d): %w", order, err)
	}

	var fitted, resid mat.VecDense
	fitted.MulVec(design, &coef)
	resid.SubVec(target, &fitted)
	rss := mat.Dot(&resid, &resid)

	values := make([]float64, cols)
	for i := range values {
		values[i] = coef.AtVec(i)
	}
	if !allFinite(values) || math.IsNaN(rss) {
		return nil, fmt.Errorf("non-finite AR(%d) coefficients", order)
	}

	m := float64(rows)
	aic := m*math.Log(math.Max(rss/m, 1e-12)) + 2*float64(cols)
	return &arFit{
		order: order,
		coef:  values,
		sigma: math.Sqrt(rss / float64(rows-cols)),
		aic:   aic,
	}, nil
}
