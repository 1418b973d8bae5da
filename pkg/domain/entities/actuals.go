package entities

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ActualRecord is one row of a weekly actuals upload
type ActualRecord struct {
	StoreID    StoreID  `json:"store_id"`
	WeekNumber int      `json:"week_number"`
	UnitsSold  Quantity `json:"units_sold"`
}

// NewActualRecord creates a validated ActualRecord
func NewActualRecord(storeID StoreID, week int, unitsSold Quantity) (*ActualRecord, error) {
	if storeID == "" {
		return nil, fmt.Errorf("store id cannot be empty")
	}
	if week < 1 {
		return nil, fmt.Errorf("week number must be at least 1, got %d", week)
	}
	if unitsSold < 0 {
		return nil, fmt.Errorf("units sold cannot be negative, got %d", unitsSold)
	}
	return &ActualRecord{StoreID: storeID, WeekNumber: week, UnitsSold: unitsSold}, nil
}

// ActualsTable holds observed in-season sales keyed by (store, week).
// Later uploads for the same key replace earlier values.
type ActualsTable struct {
	cells map[StoreID]map[int]Quantity
	weeks map[int]bool
}

// NewActualsTable creates an empty table
func NewActualsTable() *ActualsTable {
	return &ActualsTable{
		cells: make(map[StoreID]map[int]Quantity),
		weeks: make(map[int]bool),
	}
}

// Merge applies records to the table, returning a new table
func (t *ActualsTable) Merge(records []ActualRecord) *ActualsTable {
	merged := t.Clone()
	for _, r := range records {
		if merged.cells[r.StoreID] == nil {
			merged.cells[r.StoreID] = make(map[int]Quantity)
		}
		merged.cells[r.StoreID][r.WeekNumber] = r.UnitsSold
		merged.weeks[r.WeekNumber] = true
	}
	return merged
}

// Clone returns a deep copy
func (t *ActualsTable) Clone() *ActualsTable {
	clone := NewActualsTable()
	if t == nil {
		return clone
	}
	for store, weeks := range t.cells {
		clone.cells[store] = make(map[int]Quantity, len(weeks))
		for w, q := range weeks {
			clone.cells[store][w] = q
		}
	}
	for w := range t.weeks {
		clone.weeks[w] = true
	}
	return clone
}

// LatestWeek returns the highest observed week number, 0 if empty
func (t *ActualsTable) LatestWeek() int {
	latest := 0
	if t == nil {
		return latest
	}
	for w := range t.weeks {
		if w > latest {
			latest = w
		}
	}
	return latest
}

// Validate requires observed weeks to be contiguous from week 1
func (t *ActualsTable) Validate() error {
	if t == nil || len(t.weeks) == 0 {
		return fmt.Errorf("actuals table is empty")
	}
	for w := 1; w <= t.LatestWeek(); w++ {
		if !t.weeks[w] {
			return fmt.Errorf("actuals missing week %d (observed through week %d)", w, t.LatestWeek())
		}
	}
	return nil
}

// WeeklyTotals returns category-level sales for weeks 1..LatestWeek
func (t *ActualsTable) WeeklyTotals() []Quantity {
	totals := make([]Quantity, t.LatestWeek())
	for _, weeks := range t.cells {
		for w, q := range weeks {
			totals[w-1] += q
		}
	}
	return totals
}

// StoreTotals returns cumulative sales per store through the given week
func (t *ActualsTable) StoreTotals(throughWeek int) map[StoreID]Quantity {
	totals := make(map[StoreID]Quantity, len(t.cells))
	for store, weeks := range t.cells {
		for w, q := range weeks {
			if w <= throughWeek {
				totals[store] += q
			}
		}
	}
	return totals
}

// Stores returns the stores present in the table, sorted
func (t *ActualsTable) Stores() []StoreID {
	stores := make([]StoreID, 0, len(t.cells))
	for s := range t.cells {
		stores = append(stores, s)
	}
	sort.Slice(stores, func(i, j int) bool { return stores[i] < stores[j] })
	return stores
}

// Records returns the table as sorted records
func (t *ActualsTable) Records() []ActualRecord {
	var records []ActualRecord
	for _, store := range t.Stores() {
		weeks := make([]int, 0, len(t.cells[store]))
		for w := range t.cells[store] {
			weeks = append(weeks, w)
		}
		sort.Ints(weeks)
		for _, w := range weeks {
			records = append(records, ActualRecord{StoreID: store, WeekNumber: w, UnitsSold: t.cells[store][w]})
		}
	}
	return records
}

// MarshalJSON encodes the table as its sorted records
func (t *ActualsTable) MarshalJSON() ([]byte, error) {
	records := t.Records()
	if records == nil {
		records = []ActualRecord{}
	}
	return json.Marshal(records)
}

// UnmarshalJSON decodes a record list into the table
func (t *ActualsTable) UnmarshalJSON(data []byte) error {
	var records []ActualRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	*t = *NewActualsTable().Merge(records)
	return nil
}
