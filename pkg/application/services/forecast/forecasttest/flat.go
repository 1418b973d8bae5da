// Package forecasttest provides deterministic forecast models for tests of
// packages that drive the forecast engine.
package forecasttest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vsinha/seasonplan/pkg/application/services/forecast"
	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

// FlatModel forecasts the same value every week with a ±10% interval.
// Block makes it wait until its context is cancelled; a non-nil Err is returned as is.
type FlatModel struct {
	ModelName string
	PerWeek   float64
	Block     bool
	Err       error
}

var _ forecast.Model = FlatModel{}

func (m FlatModel) Name() string { return m.ModelName }

func (m FlatModel) Forecast(ctx context.Context, _ entities.WeeklySeries, horizon int) (*forecast.ModelForecast, error) {
	if m.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.Err != nil {
		return nil, m.Err
	}
	weekly := make([]float64, horizon)
	lower := make([]float64, horizon)
	upper := make([]float64, horizon)
	for i := range weekly {
		weekly[i] = m.PerWeek
		lower[i] = m.PerWeek * 0.9
		upper[i] = m.PerWeek * 1.1
	}
	return &forecast.ModelForecast{Model: m.ModelName, Weekly: weekly, Lower: lower, Upper: upper, RelativeError: 0.1}, nil
}

// DivergingEngine is an ensemble whose seasonal model fails to converge while
// the autoregressive model never returns, so the forecast fails at the join timeout
func DivergingEngine(joinTimeout time.Duration, logger *zap.Logger) *forecast.Engine {
	config := forecast.DefaultConfig()
	config.JoinTimeout = joinTimeout
	return forecast.NewEngineWithModels(
		FlatModel{ModelName: "seasonal", Err: &entities.ModelConvergenceError{Model: "seasonal", Reason: "diverged"}},
		FlatModel{ModelName: "autoregressive", Block: true},
		config, logger,
	)
}

// FlatEngine is an ensemble of two agreeing flat models
func FlatEngine(perWeek float64, logger *zap.Logger) *forecast.Engine {
	return forecast.NewEngineWithModels(
		FlatModel{ModelName: "seasonal", PerWeek: perWeek},
		FlatModel{ModelName: "autoregressive", PerWeek: perWeek},
		forecast.DefaultConfig(), logger,
	)
}
