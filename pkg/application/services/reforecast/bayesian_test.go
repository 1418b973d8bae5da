package reforecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testhelpers "github.com/vsinha/seasonplan/pkg/application/services/testing"
	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

func TestWeights_SumToOne(t *testing.T) {
	testCases := []struct {
		name          string
		priorVar      float64
		likelihoodVar float64
		wantPrior     float64
	}{
		{"equal variances", 0.04, 0.04, 0.5},
		{"tight likelihood", 0.04, 0.0001, 0.0001 / 0.0401},
		{"loose likelihood", 0.0001, 0.04, 0.04 / 0.0401},
		{"both vanish", 0, 0, 0.5},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := Weights(tc.priorVar, tc.likelihoodVar, 1e-12)
			assert.InDelta(t, 1.0, w.Prior+w.Likelihood, 1e-12)
			assert.InDelta(t, tc.wantPrior, w.Prior, 1e-12)
		})
	}
}

func TestWeights_LikelihoodDominatesAsVarianceVanishes(t *testing.T) {
	prev := 0.0
	for _, lv := range []float64{1e-1, 1e-2, 1e-3, 1e-4, 1e-6} {
		w := Weights(0.01, lv, 1e-12)
		assert.Greater(t, w.Likelihood, prev)
		prev = w.Likelihood
	}
	assert.Greater(t, prev, 0.999)
}

func TestReforecast_ConsistentOvershoot(t *testing.T) {
	prior := testhelpers.FlatForecast(12, 100, 0.25)
	actuals := []entities.Quantity{130, 130, 130, 130}

	result, err := NewReforecaster(DefaultConfig()).Reforecast(prior, actuals, 8)
	require.NoError(t, err)

	assert.Len(t, result.ForecastByWeek, 8)
	assert.Equal(t, 4, result.WeeksObserved)
	assert.Greater(t, result.LikelihoodWeight, 0.98)
	assert.InDelta(t, 1.297, result.AdjustmentFactor, 0.005)
	assert.InDelta(t, 1.0, result.PriorWeight+result.LikelihoodWeight, 1e-9)
	for _, v := range result.ForecastByWeek {
		assert.InDelta(t, 130, float64(v), 1)
	}
	assert.Greater(t, result.PosteriorConfidence, 0.9)
}

func TestReforecast_SingleWeekSplitsEvenly(t *testing.T) {
	prior := testhelpers.FlatForecast(6, 100, 0.25)

	result, err := NewReforecaster(DefaultConfig()).Reforecast(prior, []entities.Quantity{120}, 5)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, result.PriorWeight, 1e-12)
	assert.InDelta(t, 1.1, result.AdjustmentFactor, 1e-9)
	assert.Equal(t, []entities.Quantity{110, 110, 110, 110, 110}, result.ForecastByWeek)
}

func TestReforecast_PreservesShape(t *testing.T) {
	prior := testhelpers.ForecastFromWeeks([]entities.Quantity{100, 100, 200, 400, 200, 100}, 0.2)

	result, err := NewReforecaster(DefaultConfig()).Reforecast(prior, []entities.Quantity{80, 80}, 4)
	require.NoError(t, err)
	require.Len(t, result.ForecastByWeek, 4)

	f := result.ForecastByWeek
	assert.Less(t, result.AdjustmentFactor, 1.0)
	assert.InDelta(t, 2.0, float64(f[1])/float64(f[0]), 0.02)
	assert.InDelta(t, 2.0, float64(f[1])/float64(f[2]), 0.02)
}

func TestReforecast_InvalidInput(t *testing.T) {
	r := NewReforecaster(DefaultConfig())
	prior := testhelpers.FlatForecast(6, 100, 0.25)

	_, err := r.Reforecast(prior, nil, 6)
	assert.Error(t, err)
	_, err = r.Reforecast(prior, []entities.Quantity{100, 100}, 3)
	assert.Error(t, err)
	_, err = r.Reforecast(prior, []entities.Quantity{100, 100, 100, 100, 100, 100}, 0)
	assert.Error(t, err)
}

func TestApply_ReplacesTailWithoutMutating(t *testing.T) {
	prior := testhelpers.FlatForecast(6, 100, 0.25)
	original := prior.Clone()

	result, err := NewReforecaster(DefaultConfig()).Reforecast(prior, []entities.Quantity{120}, 5)
	require.NoError(t, err)

	updated, err := Apply(prior, *result)
	require.NoError(t, err)
	require.NoError(t, updated.Validate(6))

	assert.Equal(t, original, prior)
	assert.Equal(t, entities.Quantity(100), updated.ForecastByWeek[0])
	assert.Equal(t, entities.Quantity(110), updated.ForecastByWeek[5])
	assert.Equal(t, entities.Quantity(650), updated.TotalDemand)
	assert.Equal(t, result.PosteriorConfidence, updated.Confidence)

	_, err = Apply(testhelpers.FlatForecast(8, 100, 0.25), *result)
	assert.Error(t, err)
}
