package markdown

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

// Config holds the markdown elasticity, rounding step and cap (percentage points)
type Config struct {
	Elasticity float64 `yaml:"elasticity" mapstructure:"elasticity"`
	StepPct    int     `yaml:"step_pct" mapstructure:"step_pct"`
	MaxPct     int     `yaml:"max_pct" mapstructure:"max_pct"`
}

// DefaultConfig returns elasticity 2.0, 5-point steps and a 40% cap
func DefaultConfig() Config {
	return Config{Elasticity: 2.0, StepPct: 5, MaxPct: 40}
}

// Validate checks markdown configuration
func (c Config) Validate() error {
	if c.Elasticity <= 0 {
		return fmt.Errorf("markdown elasticity must be positive, got %.2f", c.Elasticity)
	}
	if c.StepPct <= 0 {
		return fmt.Errorf("markdown step must be positive, got %d", c.StepPct)
	}
	if c.MaxPct < 0 || c.MaxPct > 100 {
		return fmt.Errorf("markdown cap must be between 0 and 100, got %d", c.MaxPct)
	}
	if c.MaxPct%c.StepPct != 0 {
		return fmt.Errorf("markdown cap %d must be a multiple of the %d-point step", c.MaxPct, c.StepPct)
	}
	return nil
}

// Calculate recommends a markdown using the default step and cap
func Calculate(sellThroughRate, targetRate, elasticity float64) (entities.MarkdownResult, error) {
	cfg := DefaultConfig()
	cfg.Elasticity = elasticity
	return cfg.Calculate(sellThroughRate, targetRate)
}

// Calculate converts the sell-through gap into a markdown percentage:
// raw = (target − actual) × elasticity, rounded to the nearest step and capped.
// It has no side effects and returns identical results for identical inputs.
func (c Config) Calculate(sellThroughRate, targetRate float64) (entities.MarkdownResult, error) {
	if err := c.Validate(); err != nil {
		return entities.MarkdownResult{}, err
	}
	if sellThroughRate < 0 || sellThroughRate > 1 {
		return entities.MarkdownResult{}, fmt.Errorf("sell-through rate must be between 0 and 1, got %.4f", sellThroughRate)
	}
	if targetRate < 0 || targetRate > 1 {
		return entities.MarkdownResult{}, fmt.Errorf("target rate must be between 0 and 1, got %.4f", targetRate)
	}

	result := entities.MarkdownResult{
		SellThroughRate: sellThroughRate,
		TargetRate:      targetRate,
		Elasticity:      c.Elasticity,
	}

	gap := decimal.NewFromFloat(targetRate).Sub(decimal.NewFromFloat(sellThroughRate))
	if !gap.IsPositive() {
		return result, nil
	}

	raw := gap.Mul(decimal.NewFromFloat(c.Elasticity)).Mul(decimal.NewFromInt(100))
	step := decimal.NewFromInt(int64(c.StepPct))
	rounded := raw.Div(step).Round(0).Mul(step)

	capPct := decimal.NewFromInt(int64(c.MaxPct))
	if rounded.GreaterThan(capPct) {
		rounded = capPct
		result.Capped = true
	}

	result.Gap = gap.InexactFloat64()
	result.RawPct = raw.InexactFloat64()
	result.MarkdownPct = int(rounded.IntPart())
	result.Recommended = result.MarkdownPct > 0
	return result, nil
}
