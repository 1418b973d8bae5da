package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/vsinha/seasonplan/pkg/application/dto"
	"github.com/vsinha/seasonplan/pkg/application/services/dataset"
	"github.com/vsinha/seasonplan/pkg/application/services/orchestration"
	"github.com/vsinha/seasonplan/pkg/domain/entities"
	"github.com/vsinha/seasonplan/pkg/infrastructure/repositories/memory"
)

const category = "outerwear"

var historyStart = time.Date(2023, time.January, 2, 0, 0, 0, 0, time.UTC)

func main() {
	ctx := context.Background()

	// Create repositories
	salesRepo := memory.NewSalesRepository()
	storeRepo := memory.NewStoreRepository(6)

	// Two years of history for a small regional chain
	weights := setupOuterwearChain(salesRepo, storeRepo)

	ds, err := dataset.FromRepositories(category, salesRepo, storeRepo)
	if err != nil {
		panic(err)
	}
	loader := dataset.NewLoader(dataset.Files{}, nil)
	loader.Put(ds)

	contracts, err := orchestration.DefaultContracts()
	if err != nil {
		panic(err)
	}
	workflow := orchestration.NewWorkflow(
		orchestration.DefaultServices(zap.NewNop()),
		loader,
		orchestration.NewAssembler(contracts),
		orchestration.DefaultOptions(),
	)

	// A twelve-week autumn season with weekly replenishment
	seasonStart := historyStart.AddDate(0, 0, 7*104)
	params, err := entities.NewSeasonParameters(category, 12, seasonStart, entities.ReplenishmentWeekly, 0.4)
	if err != nil {
		panic(err)
	}
	params, err = params.WithMarkdownCheckpoint(4, 0.6)
	if err != nil {
		panic(err)
	}

	fmt.Println("Planning outerwear season...")
	start := time.Now()
	run, err := workflow.Plan(ctx, *params)
	if err != nil {
		panic(err)
	}
	plan := run.Result()
	fmt.Printf("Planned in %v\n\n", time.Since(start))
	printPlan(plan)

	// Sales run 35% ahead of plan from week 2
	for week := 1; week <= 4; week++ {
		surge := 1.0
		if week >= 2 {
			surge = 1.35
		}
		records := weekActuals(week, plan.Forecast.ForecastByWeek[week-1], weights, surge)

		result, err := workflow.ProcessActuals(ctx, run, records)
		if err != nil {
			panic(err)
		}
		printWeek(result)
	}
}

// setupOuterwearChain loads stores and weekly sales, returning each store's share
func setupOuterwearChain(salesRepo *memory.SalesRepository, storeRepo *memory.StoreRepository) map[entities.StoreID]float64 {
	chain := []struct {
		id           string
		size, income float64
		loc, fashion float64
		format       string
		region       string
		share        float64
	}{
		{"N01", 14000, 98000, 3, 3, "flagship", "north", 0.28},
		{"N02", 8000, 72000, 2, 2, "mall", "north", 0.18},
		{"C01", 7500, 68000, 2, 2, "mall", "central", 0.17},
		{"C02", 3800, 41000, 1, 1, "outlet", "central", 0.10},
		{"S01", 12500, 91000, 3, 3, "flagship", "south", 0.17},
		{"S02", 3500, 39000, 1, 1, "outlet", "south", 0.10},
	}

	weights := make(map[entities.StoreID]float64, len(chain))
	for _, c := range chain {
		store, err := entities.NewStore(entities.StoreID(c.id), c.size, c.income, c.loc, c.fashion, c.format, c.region)
		if err != nil {
			panic(err)
		}
		if err := storeRepo.AddStore(*store); err != nil {
			panic(err)
		}
		weights[store.ID] = c.share
	}

	// Outerwear peaks in late autumn
	var records []*entities.SalesRecord
	for week := 0; week < 104; week++ {
		total := 800 + 3*float64(week) + 450*math.Sin(2*math.Pi*float64(week-30)/52)
		date := historyStart.AddDate(0, 0, 7*week)
		for _, c := range chain {
			records = append(records, &entities.SalesRecord{
				Date:     date,
				StoreID:  entities.StoreID(c.id),
				Category: category,
				Quantity: entities.Quantity(math.Max(0, math.Round(total*c.share))),
			})
		}
	}
	if err := salesRepo.LoadSales(records); err != nil {
		panic(err)
	}
	return weights
}

func weekActuals(week int, planned entities.Quantity, weights map[entities.StoreID]float64, surge float64) []entities.ActualRecord {
	records := make([]entities.ActualRecord, 0, len(weights))
	for id, share := range weights {
		records = append(records, entities.ActualRecord{
			StoreID:    id,
			WeekNumber: week,
			UnitsSold:  entities.Quantity(math.Round(float64(planned) * share * surge)),
		})
	}
	return records
}

func printPlan(result dto.WorkflowResult) {
	f := result.Forecast
	fmt.Printf("Run %s\n", result.RunID)
	fmt.Printf("Forecast: %d units over %d weeks (%s, confidence %.2f)\n",
		f.TotalDemand, len(f.ForecastByWeek), f.Method, f.Confidence)

	a := result.Allocation
	fmt.Printf("Manufacturing order: %d units, DC holdback %d\n", a.ManufacturingOrder, a.DCHoldbackUnits)
	for _, s := range a.StoreAllocations {
		fmt.Printf("  %s %-10s %5d units\n", s.StoreID, s.ClusterName, s.Units)
	}
	fmt.Println()
}

func printWeek(result *dto.WorkflowResult) {
	fmt.Printf("=== Week %d ===\n", result.Week)
	if v := result.Variance; v != nil {
		fmt.Printf("Variance %+.1f%% (%s, %s), reforecast: %v\n", v.VariancePct, v.Severity, v.LikelyCause, v.ShouldReforecast)
	}
	if r := result.Reforecast; r != nil {
		fmt.Printf("Reforecast factor %.3f, remaining weeks %v\n", r.AdjustmentFactor, r.ForecastByWeek)
	}
	if r := result.Reallocation; r != nil && r.ShouldReallocate {
		for _, t := range r.TransferOrders {
			fmt.Printf("Transfer %d units %s -> %s (%s)\n", t.Units, t.From, t.To, t.Reason)
		}
	}
	if m := result.Markdown; m != nil {
		fmt.Printf("Markdown %d%% (sell-through %.2f vs target %.2f)\n", m.MarkdownPct, m.SellThroughRate, m.TargetRate)
	}
	for _, w := range result.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}
	fmt.Println()
}
