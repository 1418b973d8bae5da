package entities

import (
	"fmt"
	"time"
)

// StoreID represents a unique store identifier
type StoreID string

// Quantity represents an integer quantity value for discrete merchandise units
type Quantity int64

// DCLocation is the pseudo store id used for distribution-center inventory
const DCLocation StoreID = "DC"

// Store holds the attributes used to segment stores into clusters.
// Tier, format and region values are ordinal encodings produced by the loader.
type Store struct {
	ID           StoreID `json:"store_id"`
	SizeSqft     float64 `json:"size_sqft"`
	MedianIncome float64 `json:"median_income"`
	LocationTier float64 `json:"location_tier"`
	FashionTier  float64 `json:"fashion_tier"`
	Format       string  `json:"store_format"`
	Region       string  `json:"region"`
}

// NewStore creates a validated Store
func NewStore(
	id StoreID,
	sizeSqft, medianIncome, locationTier, fashionTier float64,
	format, region string,
) (*Store, error) {
	if id == "" {
		return nil, fmt.Errorf("store id cannot be empty")
	}
	if id == DCLocation {
		return nil, fmt.Errorf("store id %s is reserved for the distribution center", DCLocation)
	}
	if sizeSqft <= 0 {
		return nil, fmt.Errorf("store size must be positive, got %.2f", sizeSqft)
	}
	if medianIncome < 0 {
		return nil, fmt.Errorf("median income cannot be negative, got %.2f", medianIncome)
	}
	if locationTier < 0 || fashionTier < 0 {
		return nil, fmt.Errorf("tiers cannot be negative")
	}

	return &Store{
		ID:           id,
		SizeSqft:     sizeSqft,
		MedianIncome: medianIncome,
		LocationTier: locationTier,
		FashionTier:  fashionTier,
		Format:       format,
		Region:       region,
	}, nil
}

// SalesRecord is one row of the historical sales table, keyed by (date, store)
type SalesRecord struct {
	Date     time.Time `json:"date"`
	StoreID  StoreID   `json:"store_id"`
	Category string    `json:"category"`
	Quantity Quantity  `json:"quantity"`
}

// WeeklySeries is a category-level demand series bucketed into 7-day weeks
type WeeklySeries struct {
	Start  time.Time `json:"start"`
	Values []float64 `json:"values"`
}

// Len returns the number of weeks in the series
func (s WeeklySeries) Len() int {
	return len(s.Values)
}

// WeekStart returns the first day of week i (may be beyond the series end)
func (s WeeklySeries) WeekStart(i int) time.Time {
	return s.Start.AddDate(0, 0, 7*i)
}

// Total returns the sum of all weeks
func (s WeeklySeries) Total() float64 {
	var total float64
	for _, v := range s.Values {
		total += v
	}
	return total
}
