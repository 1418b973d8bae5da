package repositories

import "github.com/vsinha/seasonplan/pkg/domain/entities"

// SalesRepository provides access to historical sales tables
type SalesRepository interface {
	GetCategorySales(category string) ([]*entities.SalesRecord, error)
	GetCategories() ([]string, error)
	// WeeklySeries aggregates a category's sales into 7-day buckets starting at its first sale date
	WeeklySeries(category string) (entities.WeeklySeries, error)
	// StoreTotals returns total historical units per store for a category
	StoreTotals(category string) (map[entities.StoreID]entities.Quantity, error)
	LoadSales(records []*entities.SalesRecord) error
}
