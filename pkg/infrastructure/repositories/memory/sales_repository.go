package memory

import (
	"fmt"
	"sort"

	"github.com/vsinha/seasonplan/pkg/domain/entities"
	"github.com/vsinha/seasonplan/pkg/domain/repositories"
)

// SalesRepository provides in-memory historical sales storage, indexed by category
type SalesRepository struct {
	byCategory map[string][]entities.SalesRecord
}

// NewSalesRepository creates a new in-memory sales repository
func NewSalesRepository() *SalesRepository {
	return &SalesRepository{
		byCategory: make(map[string][]entities.SalesRecord),
	}
}

// Verify interface compliance
var _ repositories.SalesRepository = (*SalesRepository)(nil)

// LoadSales loads sales records into the repository
func (r *SalesRepository) LoadSales(records []*entities.SalesRecord) error {
	for _, rec := range records {
		if rec.Quantity < 0 {
			return fmt.Errorf("negative sales quantity for store %s on %s", rec.StoreID, rec.Date.Format("2006-01-02"))
		}
		r.byCategory[rec.Category] = append(r.byCategory[rec.Category], *rec)
	}
	for category := range r.byCategory {
		records := r.byCategory[category]
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].Date.Before(records[j].Date)
		})
	}
	return nil
}

// GetCategories returns the loaded categories, sorted
func (r *SalesRepository) GetCategories() ([]string, error) {
	categories := make([]string, 0, len(r.byCategory))
	for c := range r.byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories, nil
}

// GetCategorySales returns all sales records for a category in date order
func (r *SalesRepository) GetCategorySales(category string) ([]*entities.SalesRecord, error) {
	records, exists := r.byCategory[category]
	if !exists {
		return nil, fmt.Errorf("no sales for category: %s", category)
	}
	result := make([]*entities.SalesRecord, 0, len(records))
	for i := range records {
		rec := records[i]
		result = append(result, &rec)
	}
	return result, nil
}

// WeeklySeries buckets a category's sales into weeks counted from the first sale date
func (r *SalesRepository) WeeklySeries(category string) (entities.WeeklySeries, error) {
	records, exists := r.byCategory[category]
	if !exists || len(records) == 0 {
		return entities.WeeklySeries{}, fmt.Errorf("no sales for category: %s", category)
	}

	start := records[0].Date
	last := records[len(records)-1].Date
	weeks := int(last.Sub(start).Hours()/24)/7 + 1

	values := make([]float64, weeks)
	for _, rec := range records {
		week := int(rec.Date.Sub(start).Hours()/24) / 7
		values[week] += float64(rec.Quantity)
	}

	return entities.WeeklySeries{Start: start, Values: values}, nil
}

// StoreTotals returns total historical units per store for a category
func (r *SalesRepository) StoreTotals(category string) (map[entities.StoreID]entities.Quantity, error) {
	records, exists := r.byCategory[category]
	if !exists {
		return nil, fmt.Errorf("no sales for category: %s", category)
	}
	totals := make(map[entities.StoreID]entities.Quantity)
	for _, rec := range records {
		totals[rec.StoreID] += rec.Quantity
	}
	return totals, nil
}
