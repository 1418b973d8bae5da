package testing

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/vsinha/seasonplan/pkg/domain/entities"
	"github.com/vsinha/seasonplan/pkg/infrastructure/repositories/memory"
)

// RetailCategory is the category used by the retail test scenario
const RetailCategory = "dresses"

// RetailHistoryStart is the first Monday of the synthetic sales history
var RetailHistoryStart = time.Date(2023, time.January, 2, 0, 0, 0, 0, time.UTC)

// SeriesSpec describes a deterministic seasonal weekly series
type SeriesSpec struct {
	Weeks     int
	Base      float64
	Trend     float64 // units added per week
	Amplitude float64 // seasonal swing around the base
	Noise     float64 // standard deviation of the additive noise
	Seed      int64
}

// DefaultSeriesSpec is two years of a seasonal category with mild growth
func DefaultSeriesSpec() SeriesSpec {
	return SeriesSpec{Weeks: 104, Base: 1000, Trend: 2, Amplitude: 300, Noise: 25, Seed: 7}
}

// GenerateSeries builds weekly values following base + trend + 52-week sine + noise
func GenerateSeries(spec SeriesSpec) []float64 {
	rng := rand.New(rand.NewSource(spec.Seed))
	values := make([]float64, spec.Weeks)
	for t := range values {
		v := spec.Base + spec.Trend*float64(t) + spec.Amplitude*math.Sin(2*math.Pi*float64(t)/52)
		if spec.Noise > 0 {
			v += rng.NormFloat64() * spec.Noise
		}
		values[t] = math.Max(0, math.Round(v))
	}
	return values
}

// storeProfile pairs store attributes with the store's share of category sales
type storeProfile struct {
	store  entities.Store
	weight float64
}

func retailStores() []storeProfile {
	profiles := []storeProfile{}
	add := func(id string, size, income, loc, fashion float64, format, region string, weight float64) {
		store, err := entities.NewStore(entities.StoreID(id), size, income, loc, fashion, format, region)
		if err != nil {
			panic(err)
		}
		profiles = append(profiles, storeProfile{store: *store, weight: weight})
	}

	// flagship stores
	add("S01", 14000, 110000, 3, 3, "flagship", "east", 0.16)
	add("S02", 13000, 105000, 3, 3, "flagship", "west", 0.15)
	add("S03", 12500, 98000, 3, 3, "flagship", "east", 0.14)
	add("S04", 12000, 101000, 3, 2, "flagship", "west", 0.13)
	// mall stores
	add("S05", 8000, 72000, 2, 2, "mall", "central", 0.08)
	add("S06", 7800, 70000, 2, 2, "mall", "central", 0.08)
	add("S07", 7500, 68000, 2, 2, "mall", "east", 0.07)
	add("S08", 7200, 65000, 2, 2, "mall", "west", 0.07)
	// outlets
	add("S09", 4000, 42000, 1, 1, "outlet", "south", 0.03)
	add("S10", 3800, 40000, 1, 1, "outlet", "south", 0.03)
	add("S11", 3500, 39000, 1, 1, "outlet", "central", 0.03)
	add("S12", 3300, 37000, 1, 1, "outlet", "south", 0.03)
	return profiles
}

// BuildRetailTestData builds the two-year, twelve-store retail scenario
func BuildRetailTestData() (*memory.SalesRepository, *memory.StoreRepository) {
	return BuildRetailTestDataWithSpec(DefaultSeriesSpec())
}

// BuildRetailTestDataWithSpec builds the retail scenario from a custom category series
func BuildRetailTestDataWithSpec(spec SeriesSpec) (*memory.SalesRepository, *memory.StoreRepository) {
	profiles := retailStores()
	category := GenerateSeries(spec)

	storeRepo := memory.NewStoreRepository(len(profiles))
	for _, p := range profiles {
		if err := storeRepo.AddStore(p.store); err != nil {
			panic(fmt.Sprintf("failed to add store %s: %v", p.store.ID, err))
		}
	}

	var records []*entities.SalesRecord
	for week, total := range category {
		date := RetailHistoryStart.AddDate(0, 0, 7*week)
		for _, p := range profiles {
			records = append(records, &entities.SalesRecord{
				Date:     date,
				StoreID:  p.store.ID,
				Category: RetailCategory,
				Quantity: entities.Quantity(math.Round(total * p.weight)),
			})
		}
	}

	salesRepo := memory.NewSalesRepository()
	if err := salesRepo.LoadSales(records); err != nil {
		panic(fmt.Sprintf("failed to load sales: %v", err))
	}
	return salesRepo, storeRepo
}
