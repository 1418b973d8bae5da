package entities

import (
	"fmt"
	"math"
)

// FactorTolerance bounds floating-point drift in normalized shares
const FactorTolerance = 1e-6

// ClusterShare is one cluster's slice of the store allocation pool
type ClusterShare struct {
	ClusterName string   `json:"cluster_name"`
	Percentage  float64  `json:"percentage"`
	Units       Quantity `json:"units"`
	StoreCount  int      `json:"store_count"`
}

// StoreAllocation is the initial (week 0) allocation to one store
type StoreAllocation struct {
	StoreID          StoreID  `json:"store_id"`
	ClusterName      string   `json:"cluster_name"`
	AllocationFactor float64  `json:"allocation_factor"`
	Units            Quantity `json:"units"`
}

// Shipment moves DC units to a store in a replenishment batch
type Shipment struct {
	StoreID StoreID  `json:"store_id"`
	Units   Quantity `json:"units"`
}

// ReplenishmentBatch is the set of DC shipments scheduled for one week
type ReplenishmentBatch struct {
	Week             int        `json:"week"`
	Shipments        []Shipment `json:"shipments"`
	TotalUnits       Quantity   `json:"total_units"`
	RequestedUnits   Quantity   `json:"requested_units"`
	DCRemainingAfter Quantity   `json:"dc_remaining_after"`
}

// AllocationResult is the spatial distribution of the manufacturing order
type AllocationResult struct {
	ManufacturingOrder  Quantity             `json:"manufacturing_order"`
	DCHoldbackUnits     Quantity             `json:"dc_holdback_units"`
	ClusterDistribution []ClusterShare       `json:"cluster_distribution"`
	StoreAllocations    []StoreAllocation    `json:"store_allocations"`
	ReplenishmentPlan   []ReplenishmentBatch `json:"replenishment_plan"`
	SilhouetteScore     float64              `json:"silhouette_score"`
	Warnings            []string             `json:"warnings,omitempty"`
}

// StoreUnits returns the sum of initial store allocations
func (a AllocationResult) StoreUnits() Quantity {
	var total Quantity
	for _, s := range a.StoreAllocations {
		total += s.Units
	}
	return total
}

// StoreShare returns the store's share of the store pool (cluster percentage x factor)
func (a AllocationResult) StoreShare(id StoreID) float64 {
	clusterPct := make(map[string]float64, len(a.ClusterDistribution))
	for _, c := range a.ClusterDistribution {
		clusterPct[c.ClusterName] = c.Percentage
	}
	for _, s := range a.StoreAllocations {
		if s.StoreID == id {
			return clusterPct[s.ClusterName] * s.AllocationFactor
		}
	}
	return 0
}

// ShippedThrough returns units shipped to each store in batches with week <= week,
// and the total shipped from the DC.
func (a AllocationResult) ShippedThrough(week int) (map[StoreID]Quantity, Quantity) {
	perStore := make(map[StoreID]Quantity)
	var total Quantity
	for _, batch := range a.ReplenishmentPlan {
		if batch.Week > week {
			continue
		}
		for _, s := range batch.Shipments {
			perStore[s.StoreID] += s.Units
		}
		total += batch.TotalUnits
	}
	return perStore, total
}

// Validate checks unit conservation and share normalization
func (a AllocationResult) Validate() error {
	if a.ManufacturingOrder < 0 || a.DCHoldbackUnits < 0 {
		return fmt.Errorf("manufacturing order and holdback cannot be negative")
	}
	if got := a.StoreUnits() + a.DCHoldbackUnits; got != a.ManufacturingOrder {
		return fmt.Errorf("unit conservation violated: stores + holdback = %d, manufacturing order = %d",
			got, a.ManufacturingOrder)
	}
	if len(a.ClusterDistribution) == 0 {
		return fmt.Errorf("cluster distribution is empty")
	}

	var pctSum float64
	var clusterUnits Quantity
	known := make(map[string]bool, len(a.ClusterDistribution))
	for _, c := range a.ClusterDistribution {
		pctSum += c.Percentage
		clusterUnits += c.Units
		known[c.ClusterName] = true
	}
	if math.Abs(pctSum-1.0) > FactorTolerance {
		return fmt.Errorf("cluster percentages sum to %.8f, expected 1.0", pctSum)
	}
	if clusterUnits != a.StoreUnits() {
		return fmt.Errorf("cluster units %d do not match store units %d", clusterUnits, a.StoreUnits())
	}

	factorSums := make(map[string]float64)
	for _, s := range a.StoreAllocations {
		if !known[s.ClusterName] {
			return fmt.Errorf("store %s references unknown cluster %s", s.StoreID, s.ClusterName)
		}
		if s.Units < 0 {
			return fmt.Errorf("store %s has negative allocation %d", s.StoreID, s.Units)
		}
		factorSums[s.ClusterName] += s.AllocationFactor
	}
	for name, sum := range factorSums {
		if math.Abs(sum-1.0) > FactorTolerance {
			return fmt.Errorf("allocation factors in cluster %s sum to %.8f, expected 1.0", name, sum)
		}
	}

	var shipped Quantity
	for _, batch := range a.ReplenishmentPlan {
		shipped += batch.TotalUnits
	}
	if shipped > a.DCHoldbackUnits {
		return fmt.Errorf("replenishment plan ships %d units but holdback is %d", shipped, a.DCHoldbackUnits)
	}
	return nil
}
