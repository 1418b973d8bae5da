package forecast

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

var (
	_ Model = (*SeasonalModel)(nil)
	_ Model = (*AutoregressiveModel)(nil)
)

// Config controls the ensemble join and agreement flagging
type Config struct {
	JoinTimeout     time.Duration `yaml:"join_timeout" mapstructure:"join_timeout"`
	LowAgreementPct float64       `yaml:"low_agreement_pct" mapstructure:"low_agreement_pct"`
	// SingleModelConfidence scales confidence when only one model survived
	SingleModelConfidence float64 `yaml:"single_model_confidence" mapstructure:"single_model_confidence"`
}

// DefaultConfig returns the default ensemble configuration
func DefaultConfig() Config {
	return Config{
		JoinTimeout:           10 * time.Second,
		LowAgreementPct:       80,
		SingleModelConfidence: 0.8,
	}
}

// Validate checks configuration ranges
func (c Config) Validate() error {
	if c.JoinTimeout <= 0 {
		return fmt.Errorf("forecast join timeout must be positive")
	}
	if c.LowAgreementPct < 0 || c.LowAgreementPct > 100 {
		return fmt.Errorf("low agreement threshold must be between 0 and 100, got %.2f", c.LowAgreementPct)
	}
	if c.SingleModelConfidence < 0 || c.SingleModelConfidence > 1 {
		return fmt.Errorf("single model confidence must be between 0 and 1, got %.2f", c.SingleModelConfidence)
	}
	return nil
}

// Engine runs two forecast models concurrently and combines them into an ensemble
type Engine struct {
	primary   Model
	secondary Model
	config    Config
	logger    *zap.Logger
}

// NewEngine creates an engine with the seasonal and autoregressive models
func NewEngine(config Config, logger *zap.Logger) *Engine {
	return NewEngineWithModels(NewSeasonalModel(), NewAutoregressiveModel(), config, logger)
}

// NewEngineWithModels creates an engine over arbitrary primary and secondary models
func NewEngineWithModels(primary, secondary Model, config Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		primary:   primary,
		secondary: secondary,
		config:    config,
		logger:    logger,
	}
}

type modelOutcome struct {
	forecast *ModelForecast
	err      error
}

// Forecast produces the weekly category forecast for the horizon following the history.
// A model that errors or misses the join timeout is dropped; if both are dropped
// an *entities.EnsembleForecastError is returned.
func (e *Engine) Forecast(
	ctx context.Context,
	history entities.WeeklySeries,
	horizonWeeks int,
	strategy entities.ReplenishmentStrategy,
) (*entities.ForecastResult, error) {
	if err := checkHistory(history); err != nil {
		return nil, err
	}
	if horizonWeeks < entities.MinHorizonWeeks || horizonWeeks > entities.MaxHorizonWeeks {
		return nil, fmt.Errorf("forecast horizon must be between %d and %d weeks, got %d",
			entities.MinHorizonWeeks, entities.MaxHorizonWeeks, horizonWeeks)
	}

	primary, secondary, err := e.fanOut(ctx, history, horizonWeeks)
	if err != nil {
		return nil, err
	}

	var result *entities.ForecastResult
	switch {
	case primary.err == nil && secondary.err == nil:
		result = e.combine(primary.forecast, secondary.forecast)
	case primary.err == nil:
		e.logFallback(e.secondary.Name(), secondary.err)
		result = e.single(primary.forecast)
	case secondary.err == nil:
		e.logFallback(e.primary.Name(), primary.err)
		result = e.single(secondary.forecast)
	default:
		return nil, &entities.EnsembleForecastError{PrimaryErr: primary.err, SecondaryErr: secondary.err}
	}

	result.SafetyStockPct = strategy.SafetyStockPct()
	result.Seasonality = summarizeSeasonality(history, result.ForecastByWeek, seasonalIndices(primary, secondary))

	if err := result.Validate(horizonWeeks); err != nil {
		return nil, fmt.Errorf("failed to build forecast: %w", err)
	}
	return result, nil
}

// fanOut runs both models and waits for them up to the join timeout.
// Result channels are buffered so a model finishing after the join can still exit.
func (e *Engine) fanOut(ctx context.Context, history entities.WeeklySeries, horizonWeeks int) (modelOutcome, modelOutcome, error) {
	modelCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	run := func(m Model) <-chan modelOutcome {
		out := make(chan modelOutcome, 1)
		go func() {
			f, err := m.Forecast(modelCtx, history, horizonWeeks)
			if err == nil && (f == nil || len(f.Weekly) != horizonWeeks) {
				err = &entities.ModelConvergenceError{Model: m.Name(), Reason: "forecast length does not match horizon"}
			}
			out <- modelOutcome{forecast: f, err: err}
		}()
		return out
	}
	primaryCh := run(e.primary)
	secondaryCh := run(e.secondary)

	timer := time.NewTimer(e.config.JoinTimeout)
	defer timer.Stop()

	var primary, secondary *modelOutcome
	for primary == nil || secondary == nil {
		select {
		case out := <-primaryCh:
			primary = &out
			primaryCh = nil
		case out := <-secondaryCh:
			secondary = &out
			secondaryCh = nil
		case <-timer.C:
			timeout := func(m Model) *modelOutcome {
				return &modelOutcome{err: &entities.StepTimeoutError{Step: "forecast." + m.Name(), Timeout: e.config.JoinTimeout}}
			}
			if primary == nil {
				primary = timeout(e.primary)
			}
			if secondary == nil {
				secondary = timeout(e.secondary)
			}
		case <-ctx.Done():
			return modelOutcome{}, modelOutcome{}, ctx.Err()
		}
	}
	return *primary, *secondary, nil
}

func (e *Engine) logFallback(failed string, err error) {
	e.logger.Warn("forecast model failed, using single model",
		zap.String("failed_model", failed),
		zap.Error(err),
	)
}

// combine averages both models into the ensemble forecast
func (e *Engine) combine(a, b *ModelForecast) *entities.ForecastResult {
	horizon := len(a.Weekly)
	weekly := make([]float64, horizon)
	lower := make([]float64, horizon)
	upper := make([]float64, horizon)
	for i := 0; i < horizon; i++ {
		weekly[i] = (a.Weekly[i] + b.Weekly[i]) / 2
		lower[i] = (a.Lower[i] + b.Lower[i]) / 2
		upper[i] = (a.Upper[i] + b.Upper[i]) / 2
	}

	totalA, totalB := a.Total(), b.Total()
	total := entities.Quantity(math.Round((totalA + totalB) / 2))
	agreement := AgreementPct(totalA, totalB)
	relErr := (a.RelativeError + b.RelativeError) / 2

	byWeek := RoundToTotal(weekly, total)
	result := &entities.ForecastResult{
		TotalDemand:       total,
		ForecastByWeek:    byWeek,
		Confidence:        clamp01(agreement / 100 * (1 - math.Min(relErr, 1))),
		ModelAgreementPct: agreement,
		LowAgreement:      agreement < e.config.LowAgreementPct,
		Method:            entities.MethodEnsemble,
		ModelsUsed:        []string{a.Model, b.Model},
		RelativeError:     relErr,
	}
	result.LowerBound, result.UpperBound = roundBounds(byWeek, lower, upper)

	if result.LowAgreement {
		e.logger.Warn("low ensemble agreement",
			zap.Float64("agreement_pct", agreement),
			zap.Float64("threshold_pct", e.config.LowAgreementPct),
			zap.Float64("primary_total", totalA),
			zap.Float64("secondary_total", totalB),
		)
	}
	return result
}

// single passes the surviving model's output through unchanged apart from integer rounding
func (e *Engine) single(f *ModelForecast) *entities.ForecastResult {
	total := entities.Quantity(math.Round(f.Total()))
	byWeek := RoundToTotal(f.Weekly, total)
	result := &entities.ForecastResult{
		TotalDemand:    total,
		ForecastByWeek: byWeek,
		Confidence:     clamp01(e.config.SingleModelConfidence * (1 - math.Min(f.RelativeError, 1))),
		Method:         entities.MethodSingleModel,
		ModelsUsed:     []string{f.Model},
		RelativeError:  f.RelativeError,
	}
	result.LowerBound, result.UpperBound = roundBounds(byWeek, f.Lower, f.Upper)
	return result
}

// AgreementPct returns 100 × (1 − |a−b| / max(a,b)); equal totals give 100
func AgreementPct(a, b float64) float64 {
	hi := math.Max(a, b)
	if hi <= 0 {
		return 100
	}
	return math.Max(0, math.Min(100, 100*(1-math.Abs(a-b)/hi)))
}

// RoundToTotal rounds values to integers summing exactly to total using largest remainders
func RoundToTotal(values []float64, total entities.Quantity) []entities.Quantity {
	out := make([]entities.Quantity, len(values))
	if len(values) == 0 {
		return out
	}

	type remainder struct {
		index int
		frac  float64
	}
	remainders := make([]remainder, len(values))
	var sum entities.Quantity
	for i, v := range values {
		floor := math.Floor(math.Max(0, v))
		out[i] = entities.Quantity(floor)
		sum += out[i]
		remainders[i] = remainder{index: i, frac: v - floor}
	}
	sort.SliceStable(remainders, func(i, j int) bool {
		return remainders[i].frac > remainders[j].frac
	})

	diff := total - sum
	for i := 0; diff > 0; i = (i + 1) % len(values) {
		out[remainders[i].index]++
		diff--
	}
	for diff < 0 {
		largest := 0
		for i := range out {
			if out[i] > out[largest] {
				largest = i
			}
		}
		if out[largest] == 0 {
			break
		}
		out[largest]--
		diff++
	}
	return out
}

func roundBounds(byWeek []entities.Quantity, lower, upper []float64) ([]entities.Quantity, []entities.Quantity) {
	lo := make([]entities.Quantity, len(byWeek))
	hi := make([]entities.Quantity, len(byWeek))
	for i, v := range byWeek {
		lo[i] = entities.Quantity(math.Max(0, math.Floor(lower[i])))
		if lo[i] > v {
			lo[i] = v
		}
		hi[i] = entities.Quantity(math.Ceil(upper[i]))
		if hi[i] < v {
			hi[i] = v
		}
	}
	return lo, hi
}

func seasonalIndices(outcomes ...modelOutcome) []float64 {
	for _, o := range outcomes {
		if o.err == nil && o.forecast != nil && len(o.forecast.SeasonalIndices) > 0 {
			return o.forecast.SeasonalIndices
		}
	}
	return nil
}

// summarizeSeasonality finds the peak and trough forecast weeks and per-month multipliers.
// Month multipliers come from the seasonal indices when available, otherwise from
// the forecast curve relative to its mean.
func summarizeSeasonality(history entities.WeeklySeries, byWeek []entities.Quantity, indices []float64) entities.SeasonalitySummary {
	summary := entities.SeasonalitySummary{}
	if len(byWeek) == 0 {
		return summary
	}
	peak, trough := 0, 0
	for i, v := range byWeek {
		if v > byWeek[peak] {
			peak = i
		}
		if v < byWeek[trough] {
			trough = i
		}
	}
	summary.PeakWeek = peak + 1
	summary.TroughWeek = trough + 1

	var sums [12]float64
	var counts [12]int
	if len(indices) > 0 {
		for p, idx := range indices {
			month := history.WeekStart(p).Month()
			sums[month-1] += idx
			counts[month-1]++
		}
	} else {
		var mean float64
		for _, v := range byWeek {
			mean += float64(v)
		}
		mean /= float64(len(byWeek))
		if mean > 0 {
			for i, v := range byWeek {
				month := history.WeekStart(history.Len() + i).Month()
				sums[month-1] += float64(v) / mean
				counts[month-1]++
			}
		}
	}
	for m := 0; m < 12; m++ {
		if counts[m] == 0 {
			continue
		}
		summary.MonthMultipliers = append(summary.MonthMultipliers, entities.MonthMultiplier{
			Month:      time.Month(m + 1).String(),
			Multiplier: math.Round(sums[m]/float64(counts[m])*1000) / 1000,
		})
	}
	return summary
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
