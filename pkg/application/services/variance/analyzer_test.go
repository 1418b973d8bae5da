package variance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

func flat(weeks int, v entities.Quantity) []entities.Quantity {
	out := make([]entities.Quantity, weeks)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestAnalyze_DecisionBoundary(t *testing.T) {
	analyzer := NewAnalyzer(DefaultConfig())

	testCases := []struct {
		name           string
		forecastWeeks  int
		actuals        []entities.Quantity
		wantVariance   float64
		wantReforecast bool
		wantCause      entities.LikelyCause
	}{
		{"exactly at threshold", 12, []entities.Quantity{120, 120}, 20, true, entities.CauseSystematic},
		{"just below threshold", 12, []entities.Quantity{119, 120}, 19.5, false, entities.CauseSystematic},
		{"negative at threshold", 12, []entities.Quantity{80, 80}, -20, true, entities.CauseSystematic},
		{"one week remaining", 3, []entities.Quantity{150, 150}, 50, false, entities.CauseSystematic},
		{"no weeks remaining", 2, []entities.Quantity{150, 150}, 50, false, entities.CauseSystematic},
		{"exactly two weeks remaining", 4, []entities.Quantity{150, 150}, 50, true, entities.CauseSystematic},
		{"single strong first week", 12, []entities.Quantity{130}, 30, true, entities.CauseNoise},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			analysis, err := analyzer.Analyze(flat(tc.forecastWeeks, 100), tc.actuals)
			require.NoError(t, err)
			assert.InDelta(t, tc.wantVariance, analysis.VariancePct, 1e-9)
			assert.Equal(t, tc.wantReforecast, analysis.ShouldReforecast)
			assert.Equal(t, tc.wantCause, analysis.LikelyCause)
			assert.Equal(t, tc.forecastWeeks-len(tc.actuals), analysis.WeeksRemaining)
			assert.NotEmpty(t, analysis.Reasoning)
		})
	}
}

func TestAnalyze_OneTimeEventSuppressesReforecast(t *testing.T) {
	analysis, err := NewAnalyzer(DefaultConfig()).Analyze(flat(12, 100), []entities.Quantity{102, 180, 98})
	require.NoError(t, err)

	assert.Equal(t, entities.CauseOneTimeEvent, analysis.LikelyCause)
	assert.InDelta(t, 26.666, analysis.VariancePct, 0.01)
	assert.False(t, analysis.ShouldReforecast)
	assert.Contains(t, analysis.Reasoning, "single-week spike")
}

func TestAnalyze_NoiseAllowsReforecastWhenLarge(t *testing.T) {
	// mixed-direction swings with a large net overshoot
	analysis, err := NewAnalyzer(DefaultConfig()).Analyze(flat(10, 100), []entities.Quantity{170, 85, 130})
	require.NoError(t, err)

	assert.Equal(t, entities.CauseNoise, analysis.LikelyCause)
	assert.InDelta(t, 28.333, analysis.VariancePct, 0.01)
	assert.True(t, analysis.ShouldReforecast)
}

func TestAnalyze_Trend(t *testing.T) {
	analyzer := NewAnalyzer(DefaultConfig())
	testCases := []struct {
		name    string
		actuals []entities.Quantity
		want    entities.Trend
	}{
		{"increasing", []entities.Quantity{100, 105, 110, 125}, entities.TrendIncreasing},
		{"decreasing", []entities.Quantity{130, 120, 110}, entities.TrendDecreasing},
		{"stable within tolerance", []entities.Quantity{110, 111, 111}, entities.TrendStable},
		{"single week", []entities.Quantity{150}, entities.TrendStable},
		{"magnitude not sign", []entities.Quantity{70, 90, 130}, entities.TrendStable},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			analysis, err := analyzer.Analyze(flat(12, 100), tc.actuals)
			require.NoError(t, err)
			assert.Equal(t, tc.want, analysis.Trend)
		})
	}
}

func TestAnalyze_Severity(t *testing.T) {
	analyzer := NewAnalyzer(DefaultConfig())
	testCases := []struct {
		actual entities.Quantity
		want   entities.Severity
	}{
		{105, entities.SeverityLow},
		{115, entities.SeverityModerate},
		{120, entities.SeverityHigh},
		{139, entities.SeverityHigh},
		{140, entities.SeverityCritical},
		{50, entities.SeverityCritical},
	}
	for _, tc := range testCases {
		analysis, err := analyzer.Analyze(flat(8, 100), []entities.Quantity{tc.actual})
		require.NoError(t, err)
		assert.Equal(t, tc.want, analysis.Severity, "actual %d", tc.actual)
	}
}

func TestAnalyze_InvalidInput(t *testing.T) {
	analyzer := NewAnalyzer(DefaultConfig())
	_, err := analyzer.Analyze(flat(4, 100), nil)
	assert.Error(t, err)
	_, err = analyzer.Analyze(flat(2, 100), flat(3, 100))
	assert.Error(t, err)
}

func TestAnalyze_ZeroForecastWeek(t *testing.T) {
	analysis, err := NewAnalyzer(DefaultConfig()).Analyze([]entities.Quantity{0, 100, 100, 100}, []entities.Quantity{0, 100})
	require.NoError(t, err)
	assert.Equal(t, 0.0, analysis.WeeklyVariancePct[0])
	assert.Equal(t, 0.0, analysis.VariancePct)
	assert.Equal(t, entities.SeverityLow, analysis.Severity)
}
