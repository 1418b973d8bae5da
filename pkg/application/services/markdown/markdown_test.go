package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculate(t *testing.T) {
	testCases := []struct {
		name        string
		sellThrough float64
		target      float64
		elasticity  float64
		wantPct     int
		wantCapped  bool
	}{
		{"on target", 0.60, 0.60, 2.0, 0, false},
		{"ahead of target", 0.75, 0.60, 2.0, 0, false},
		{"ten point gap", 0.50, 0.60, 2.0, 20, false},
		{"rounds down to step", 0.49, 0.60, 2.0, 20, false},
		{"rounds up to step", 0.48, 0.60, 2.0, 25, false},
		{"half step rounds away from zero", 0.4875, 0.60, 2.0, 25, false},
		{"small gap rounds to zero", 0.59, 0.60, 2.0, 0, false},
		{"capped", 0.20, 0.70, 2.0, 40, true},
		{"custom elasticity", 0.50, 0.60, 3.0, 30, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := Calculate(tc.sellThrough, tc.target, tc.elasticity)
			require.NoError(t, err)
			assert.Equal(t, tc.wantPct, result.MarkdownPct)
			assert.Equal(t, tc.wantCapped, result.Capped)
			assert.Equal(t, tc.wantPct > 0, result.Recommended)
		})
	}
}

func TestCalculate_IdempotentMultiplesOfStep(t *testing.T) {
	for st := 0.0; st <= 1.0; st += 0.01 {
		first, err := Calculate(st, 0.8, 2.0)
		require.NoError(t, err)
		second, err := Calculate(st, 0.8, 2.0)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Zero(t, first.MarkdownPct%5, "sell-through %.2f gave %d", st, first.MarkdownPct)
		assert.LessOrEqual(t, first.MarkdownPct, 40)
		assert.GreaterOrEqual(t, first.MarkdownPct, 0)
	}
}

func TestCalculate_InvalidInput(t *testing.T) {
	_, err := Calculate(1.2, 0.6, 2.0)
	assert.Error(t, err)
	_, err = Calculate(0.5, -0.1, 2.0)
	assert.Error(t, err)
	_, err = Calculate(0.5, 0.6, 0)
	assert.Error(t, err)
}

func TestConfig_CustomCapAndStep(t *testing.T) {
	cfg := Config{Elasticity: 2.0, StepPct: 10, MaxPct: 30}
	result, err := cfg.Calculate(0.40, 0.60)
	require.NoError(t, err)
	assert.Equal(t, 30, result.MarkdownPct)
	assert.True(t, result.Capped)

	result, err = cfg.Calculate(0.52, 0.60)
	require.NoError(t, err)
	assert.Equal(t, 20, result.MarkdownPct)
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"cap on step", Config{Elasticity: 2.0, StepPct: 10, MaxPct: 30}, false},
		{"zero cap", Config{Elasticity: 2.0, StepPct: 5, MaxPct: 0}, false},
		{"cap off step", Config{Elasticity: 2.0, StepPct: 5, MaxPct: 42}, true},
		{"cap off wide step", Config{Elasticity: 2.0, StepPct: 10, MaxPct: 35}, true},
		{"zero step", Config{Elasticity: 2.0, StepPct: 0, MaxPct: 40}, true},
		{"cap above 100", Config{Elasticity: 2.0, StepPct: 5, MaxPct: 105}, true},
		{"no elasticity", Config{Elasticity: 0, StepPct: 5, MaxPct: 40}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCalculate_CappedResultStaysOnStep(t *testing.T) {
	_, err := Config{Elasticity: 2.0, StepPct: 5, MaxPct: 42}.Calculate(0.1, 0.9)
	require.Error(t, err)

	result, err := DefaultConfig().Calculate(0.1, 0.9)
	require.NoError(t, err)
	assert.True(t, result.Capped)
	assert.Zero(t, result.MarkdownPct%5)
}
