package testing

import (
	"github.com/vsinha/seasonplan/pkg/application/services/dataset"
	"github.com/vsinha/seasonplan/pkg/domain/entities"
	infratesting "github.com/vsinha/seasonplan/pkg/infrastructure/testing"
)

// SeasonStart is the season start used by the planning fixtures (week after the history ends)
var SeasonStart = infratesting.RetailHistoryStart.AddDate(0, 0, 7*104)

// BuildRetailDataset returns the twelve-store retail dataset with two years of history
func BuildRetailDataset() *dataset.Dataset {
	return BuildRetailDatasetWithSpec(infratesting.DefaultSeriesSpec())
}

// BuildRetailDatasetWithSpec returns the retail dataset for a custom category series
func BuildRetailDatasetWithSpec(spec infratesting.SeriesSpec) *dataset.Dataset {
	salesRepo, storeRepo := infratesting.BuildRetailTestDataWithSpec(spec)
	ds, err := dataset.FromRepositories(infratesting.RetailCategory, salesRepo, storeRepo)
	if err != nil {
		panic(err)
	}
	return ds
}

// SyntheticSeries returns a seasonal weekly series starting at the fixture history start
func SyntheticSeries(weeks int, seed int64) entities.WeeklySeries {
	spec := infratesting.DefaultSeriesSpec()
	spec.Weeks = weeks
	spec.Seed = seed
	return entities.WeeklySeries{
		Start:  infratesting.RetailHistoryStart,
		Values: infratesting.GenerateSeries(spec),
	}
}

// ConstantSeries returns a flat series of the given length
func ConstantSeries(weeks int, value float64) entities.WeeklySeries {
	values := make([]float64, weeks)
	for i := range values {
		values[i] = value
	}
	return entities.WeeklySeries{Start: infratesting.RetailHistoryStart, Values: values}
}

// MustCreateParameters builds season parameters for the retail category, panicking on validation error
func MustCreateParameters(horizon int, strategy entities.ReplenishmentStrategy, dcHoldback float64) *entities.SeasonParameters {
	params, err := entities.NewSeasonParameters(infratesting.RetailCategory, horizon, SeasonStart, strategy, dcHoldback)
	if err != nil {
		panic(err)
	}
	return params
}

// MustCreateStore is a helper for tests - panics on validation error
func MustCreateStore(id string, size, income, locationTier, fashionTier float64, format, region string) entities.Store {
	store, err := entities.NewStore(entities.StoreID(id), size, income, locationTier, fashionTier, format, region)
	if err != nil {
		panic(err)
	}
	return *store
}

// FlatForecast builds a valid ForecastResult with the same demand every week
func FlatForecast(weeks int, perWeek entities.Quantity, safetyStock float64) entities.ForecastResult {
	byWeek := make([]entities.Quantity, weeks)
	for i := range byWeek {
		byWeek[i] = perWeek
	}
	return ForecastFromWeeks(byWeek, safetyStock)
}

// ForecastFromWeeks builds a valid ensemble ForecastResult around the given weekly values
func ForecastFromWeeks(byWeek []entities.Quantity, safetyStock float64) entities.ForecastResult {
	var total entities.Quantity
	peak, trough := 0, 0
	lower := make([]entities.Quantity, len(byWeek))
	upper := make([]entities.Quantity, len(byWeek))
	for i, v := range byWeek {
		total += v
		lower[i] = v * 9 / 10
		upper[i] = v * 11 / 10
		if v > byWeek[peak] {
			peak = i
		}
		if v < byWeek[trough] {
			trough = i
		}
	}
	return entities.ForecastResult{
		TotalDemand:       total,
		ForecastByWeek:    append([]entities.Quantity(nil), byWeek...),
		SafetyStockPct:    safetyStock,
		Confidence:        0.8,
		LowerBound:        lower,
		UpperBound:        upper,
		ModelAgreementPct: 95,
		Method:            entities.MethodEnsemble,
		ModelsUsed:        []string{"seasonal", "autoregressive"},
		RelativeError:     0.1,
		Seasonality:       entities.SeasonalitySummary{PeakWeek: peak + 1, TroughWeek: trough + 1},
	}
}
