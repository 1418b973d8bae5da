package memory

import (
	"testing"
	"time"

	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

func TestSalesRepository_WeeklySeries(t *testing.T) {
	repo := NewSalesRepository()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	records := []*entities.SalesRecord{
		{Date: start.AddDate(0, 0, 8), StoreID: "S1", Category: "dresses", Quantity: 4},
		{Date: start, StoreID: "S1", Category: "dresses", Quantity: 10},
		{Date: start.AddDate(0, 0, 3), StoreID: "S2", Category: "dresses", Quantity: 5},
		{Date: start.AddDate(0, 0, 20), StoreID: "S2", Category: "dresses", Quantity: 7},
		{Date: start, StoreID: "S1", Category: "shoes", Quantity: 99},
	}
	if err := repo.LoadSales(records); err != nil {
		t.Fatalf("Failed to load sales: %v", err)
	}

	series, err := repo.WeeklySeries("dresses")
	if err != nil {
		t.Fatalf("Failed to build series: %v", err)
	}
	if !series.Start.Equal(start) {
		t.Errorf("Expected series start %v, got %v", start, series.Start)
	}
	expected := []float64{15, 4, 7}
	if series.Len() != len(expected) {
		t.Fatalf("Expected %d weeks, got %d", len(expected), series.Len())
	}
	for i, v := range expected {
		if series.Values[i] != v {
			t.Errorf("Week %d: expected %.0f, got %.0f", i, v, series.Values[i])
		}
	}

	totals, err := repo.StoreTotals("dresses")
	if err != nil {
		t.Fatalf("Failed to get store totals: %v", err)
	}
	if totals["S1"] != 14 || totals["S2"] != 12 {
		t.Errorf("Unexpected store totals %v", totals)
	}

	categories, _ := repo.GetCategories()
	if len(categories) != 2 || categories[0] != "dresses" {
		t.Errorf("Unexpected categories %v", categories)
	}

	if _, err := repo.WeeklySeries("hats"); err == nil {
		t.Error("Expected error for unknown category")
	}
}

func TestSalesRepository_RejectsNegative(t *testing.T) {
	repo := NewSalesRepository()
	err := repo.LoadSales([]*entities.SalesRecord{
		{Date: time.Now(), StoreID: "S1", Category: "dresses", Quantity: -1},
	})
	if err == nil {
		t.Error("Expected negative quantity to be rejected")
	}
}
