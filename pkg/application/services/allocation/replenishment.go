package allocation

import (
	"math"
	"sort"

	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

// PlanReplenishment schedules DC shipments for every replenishment week of the season.
//
// Store inventory starts at the initial allocation and is drawn down by the store's
// share of each week's forecast. On a shipment week a store requests the shortfall
// between its forecast for the coming interval and its projected inventory. When the
// DC cannot cover all requests, available units are split in proportion to need.
func PlanReplenishment(
	alloc entities.AllocationResult,
	forecast entities.ForecastResult,
	strategy entities.ReplenishmentStrategy,
) []entities.ReplenishmentBatch {
	interval := strategy.IntervalWeeks()
	if interval == 0 || len(alloc.StoreAllocations) == 0 {
		return nil
	}

	ids := make([]entities.StoreID, len(alloc.StoreAllocations))
	shares := make(map[entities.StoreID]float64, len(ids))
	inventory := make(map[entities.StoreID]float64, len(ids))
	for i, s := range alloc.StoreAllocations {
		ids[i] = s.StoreID
		shares[s.StoreID] = alloc.StoreShare(s.StoreID)
		inventory[s.StoreID] = float64(s.Units)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	dcRemaining := alloc.DCHoldbackUnits
	horizon := forecast.HorizonWeeks()
	var plan []entities.ReplenishmentBatch

	for week := 1; week <= horizon; week++ {
		if week > 1 && (week-1)%interval == 0 {
			batch := shipBatch(week, ids, shares, inventory, forecast, interval, dcRemaining)
			dcRemaining = batch.DCRemainingAfter
			for _, s := range batch.Shipments {
				inventory[s.StoreID] += float64(s.Units)
			}
			plan = append(plan, batch)
		}

		demand := float64(forecast.ForecastByWeek[week-1])
		for _, id := range ids {
			inventory[id] = math.Max(0, inventory[id]-demand*shares[id])
		}
	}
	return plan
}

func shipBatch(
	week int,
	ids []entities.StoreID,
	shares map[entities.StoreID]float64,
	inventory map[entities.StoreID]float64,
	forecast entities.ForecastResult,
	interval int,
	dcRemaining entities.Quantity,
) entities.ReplenishmentBatch {
	upcoming := float64(forecast.SumWeeks(week-1, week-1+interval))

	needs := make([]entities.Quantity, len(ids))
	var requested entities.Quantity
	for i, id := range ids {
		need := math.Ceil(upcoming*shares[id] - inventory[id])
		if need > 0 {
			needs[i] = entities.Quantity(need)
			requested += needs[i]
		}
	}

	ship := needs
	if requested > dcRemaining {
		ship = scaleToCapacity(needs, requested, dcRemaining)
	}

	batch := entities.ReplenishmentBatch{Week: week, RequestedUnits: requested}
	for i, id := range ids {
		if ship[i] <= 0 {
			continue
		}
		batch.Shipments = append(batch.Shipments, entities.Shipment{StoreID: id, Units: ship[i]})
		batch.TotalUnits += ship[i]
	}
	batch.DCRemainingAfter = dcRemaining - batch.TotalUnits
	return batch
}

// scaleToCapacity shrinks needs proportionally so they sum to capacity; remainder to the largest need
func scaleToCapacity(needs []entities.Quantity, requested, capacity entities.Quantity) []entities.Quantity {
	out := make([]entities.Quantity, len(needs))
	if capacity <= 0 || requested <= 0 {
		return out
	}
	var assigned entities.Quantity
	largest := 0
	for i, n := range needs {
		out[i] = entities.Quantity(math.Floor(float64(capacity) * float64(n) / float64(requested)))
		assigned += out[i]
		if n > needs[largest] {
			largest = i
		}
	}
	out[largest] += capacity - assigned
	return out
}
