package allocation

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testhelpers "github.com/vsinha/seasonplan/pkg/application/services/testing"
	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

func retailInput(forecast entities.ForecastResult, params *entities.SeasonParameters) Input {
	ds := testhelpers.BuildRetailDataset()
	return Input{
		Stores:       ds.Stores,
		StoreSales:   ds.StoreSales,
		HistoryWeeks: ds.Weekly.Len(),
		Forecast:     forecast,
		Parameters:   *params,
	}
}

// 8 weeks of 667 and 4 weeks of 666 sum to 8000
func eightThousandOverTwelveWeeks() []entities.Quantity {
	weeks := make([]entities.Quantity, 12)
	for i := range weeks {
		weeks[i] = 667
		if i >= 8 {
			weeks[i] = 666
		}
	}
	return weeks
}

func TestAllocate_NoReplenishmentScenario(t *testing.T) {
	params := testhelpers.MustCreateParameters(12, entities.ReplenishmentNone, 0)
	forecast := testhelpers.ForecastFromWeeks(eightThousandOverTwelveWeeks(), params.SafetyStockPct())
	require.Equal(t, entities.Quantity(8000), forecast.TotalDemand)
	require.Equal(t, 0.25, forecast.SafetyStockPct)

	result, err := NewEngine(DefaultConfig(), nil).Allocate(context.Background(), retailInput(forecast, params))
	require.NoError(t, err)

	assert.Equal(t, entities.Quantity(10000), result.ManufacturingOrder)
	assert.Equal(t, entities.Quantity(0), result.DCHoldbackUnits)
	assert.Equal(t, entities.Quantity(10000), result.StoreUnits())
	assert.Empty(t, result.ReplenishmentPlan)
	assert.Len(t, result.StoreAllocations, 12)
}

func TestAllocate_ConservationAndNormalization(t *testing.T) {
	testCases := []struct {
		name       string
		strategy   entities.ReplenishmentStrategy
		dcHoldback float64
	}{
		{"weekly 30% holdback", entities.ReplenishmentWeekly, 0.30},
		{"bi-weekly 45% holdback", entities.ReplenishmentBiWeekly, 0.45},
		{"none 10% holdback", entities.ReplenishmentNone, 0.10},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			params := testhelpers.MustCreateParameters(12, tc.strategy, tc.dcHoldback)
			forecast := testhelpers.FlatForecast(12, 1237, params.SafetyStockPct())

			result, err := NewEngine(DefaultConfig(), nil).Allocate(context.Background(), retailInput(forecast, params))
			require.NoError(t, err)
			require.NoError(t, result.Validate())

			assert.Equal(t, result.ManufacturingOrder, result.StoreUnits()+result.DCHoldbackUnits)

			factorSums := make(map[string]float64)
			for _, s := range result.StoreAllocations {
				factorSums[s.ClusterName] += s.AllocationFactor
			}
			for name, sum := range factorSums {
				assert.InDelta(t, 1.0, sum, 1e-6, "cluster %s", name)
			}

			var pctSum float64
			for _, c := range result.ClusterDistribution {
				pctSum += c.Percentage
			}
			assert.InDelta(t, 1.0, pctSum, 1e-6)

			if tc.strategy == entities.ReplenishmentNone {
				assert.Empty(t, result.ReplenishmentPlan)
				return
			}
			require.NotEmpty(t, result.ReplenishmentPlan)
			_, shipped := result.ShippedThrough(12)
			assert.LessOrEqual(t, shipped, result.DCHoldbackUnits)
			assert.Equal(t, 1+tc.strategy.IntervalWeeks(), result.ReplenishmentPlan[0].Week)
		})
	}
}

func TestAllocate_SegmentsNamedByVelocity(t *testing.T) {
	params := testhelpers.MustCreateParameters(12, entities.ReplenishmentNone, 0)
	forecast := testhelpers.FlatForecast(12, 1000, params.SafetyStockPct())

	result, err := NewEngine(DefaultConfig(), nil).Allocate(context.Background(), retailInput(forecast, params))
	require.NoError(t, err)

	names := make([]string, 0, len(result.ClusterDistribution))
	for _, c := range result.ClusterDistribution {
		names = append(names, c.ClusterName)
	}
	assert.Equal(t, []string{SegmentPremium, SegmentMainstream, SegmentValue}, names)

	cluster := make(map[entities.StoreID]string)
	for _, s := range result.StoreAllocations {
		cluster[s.StoreID] = s.ClusterName
	}
	assert.Equal(t, SegmentPremium, cluster["S01"])
	assert.Equal(t, SegmentValue, cluster["S12"])

	// historical sales share drives the cluster split
	assert.Greater(t, result.ClusterDistribution[0].Percentage, result.ClusterDistribution[2].Percentage)
}

func TestAllocate_Deterministic(t *testing.T) {
	params := testhelpers.MustCreateParameters(10, entities.ReplenishmentWeekly, 0.25)
	forecast := testhelpers.FlatForecast(10, 900, params.SafetyStockPct())
	engine := NewEngine(DefaultConfig(), nil)

	first, err := engine.Allocate(context.Background(), retailInput(forecast, params))
	require.NoError(t, err)
	second, err := engine.Allocate(context.Background(), retailInput(forecast, params))
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("allocation not deterministic (-first +second):\n%s", diff)
	}
}

func TestAllocate_MinimumCoverViolation(t *testing.T) {
	params := testhelpers.MustCreateParameters(12, entities.ReplenishmentWeekly, 0.95)
	forecast := testhelpers.FlatForecast(12, 1000, params.SafetyStockPct())

	_, err := NewEngine(DefaultConfig(), nil).Allocate(context.Background(), retailInput(forecast, params))

	var constraint *entities.AllocationConstraintError
	require.ErrorAs(t, err, &constraint)
	assert.Greater(t, constraint.Required, constraint.Available)
}

func TestAllocate_LowSilhouetteIsWarningOnly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Clustering.SilhouetteWarning = 1.01
	params := testhelpers.MustCreateParameters(12, entities.ReplenishmentNone, 0)
	forecast := testhelpers.FlatForecast(12, 500, params.SafetyStockPct())

	result, err := NewEngine(cfg, nil).Allocate(context.Background(), retailInput(forecast, params))
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "clustering quality warning")
}

func TestAllocate_FewerStoresThanClusters(t *testing.T) {
	stores := []entities.Store{
		testhelpers.MustCreateStore("A", 10000, 90000, 3, 3, "mall", "east"),
		testhelpers.MustCreateStore("B", 4000, 40000, 1, 1, "outlet", "west"),
	}
	params := testhelpers.MustCreateParameters(4, entities.ReplenishmentNone, 0)
	forecast := testhelpers.FlatForecast(4, 100, params.SafetyStockPct())

	result, err := NewEngine(DefaultConfig(), nil).Allocate(context.Background(), Input{
		Stores:       stores,
		StoreSales:   map[entities.StoreID]entities.Quantity{"A": 900, "B": 100},
		HistoryWeeks: 52,
		Forecast:     forecast,
		Parameters:   *params,
	})
	require.NoError(t, err)

	require.Len(t, result.ClusterDistribution, 2)
	assert.Equal(t, SegmentPremium, result.ClusterDistribution[0].ClusterName)
	assert.InDelta(t, 0.9, result.ClusterDistribution[0].Percentage, 1e-9)
	assert.Equal(t, entities.Quantity(500), result.StoreUnits())
	assert.Equal(t, entities.Quantity(450), result.ClusterDistribution[0].Units)
}

func TestManufacturingOrder(t *testing.T) {
	testCases := []struct {
		total        entities.Quantity
		safety, dc   float64
		wantOrder    entities.Quantity
		wantHoldback entities.Quantity
	}{
		{8000, 0.25, 0, 10000, 0},
		{8000, 0.20, 0.35, 9600, 3360},
		{1001, 0.22, 0.5, 1221, 611},
		{0, 0.25, 0.3, 0, 0},
	}
	for _, tc := range testCases {
		order, holdback := ManufacturingOrder(tc.total, tc.safety, tc.dc)
		if order != tc.wantOrder || holdback != tc.wantHoldback {
			t.Errorf("ManufacturingOrder(%d, %.2f, %.2f) = (%d, %d), want (%d, %d)",
				tc.total, tc.safety, tc.dc, order, holdback, tc.wantOrder, tc.wantHoldback)
		}
	}
}

func TestSplitUnits_RemainderToLargest(t *testing.T) {
	got := splitUnits(10, []float64{0.5, 0.3, 0.2})
	assert.Equal(t, []entities.Quantity{5, 3, 2}, got)

	got = splitUnits(7, []float64{1.0 / 3, 1.0 / 3, 1.0 / 3})
	var sum entities.Quantity
	for _, v := range got {
		sum += v
	}
	assert.Equal(t, entities.Quantity(7), sum)
}

func TestNormalize_FixesDrift(t *testing.T) {
	values := []float64{0.1, 0.2, 0.3, 0.4000001}
	normalize(values)
	var sum float64
	for _, v := range values {
		sum += v
	}
	assert.True(t, math.Abs(sum-1) < 1e-12)
}
