package entities

import "fmt"

// ReallocationStrategy identifies the source mix of transfer orders
type ReallocationStrategy string

const (
	StrategyDCOnly ReallocationStrategy = "dc_only"
	StrategyHybrid ReallocationStrategy = "hybrid"
)

// TransferOrder moves units between locations; From is DCLocation for DC shipments
type TransferOrder struct {
	From   StoreID  `json:"from"`
	To     StoreID  `json:"to"`
	Units  Quantity `json:"units"`
	Reason string   `json:"reason"`
}

// NewTransferOrder creates a validated TransferOrder
func NewTransferOrder(from, to StoreID, units Quantity, reason string) (*TransferOrder, error) {
	if from == "" || to == "" {
		return nil, fmt.Errorf("transfer locations cannot be empty")
	}
	if from == to {
		return nil, fmt.Errorf("transfer source and destination are both %s", from)
	}
	if units <= 0 {
		return nil, fmt.Errorf("transfer units must be positive, got %d", units)
	}
	return &TransferOrder{From: from, To: to, Units: units, Reason: reason}, nil
}

// ReallocationAnalysis is the transfer recommendation for one replenishment cycle
type ReallocationAnalysis struct {
	ShouldReallocate bool                 `json:"should_reallocate"`
	Strategy         ReallocationStrategy `json:"strategy"`
	HighPerformers   []StoreID            `json:"high_performers"`
	Underperformers  []StoreID            `json:"underperformers"`
	TransferOrders   []TransferOrder      `json:"transfer_orders"`
	UnmetDeficit     Quantity             `json:"unmet_deficit"`
}

// TotalUnits returns the number of units moved by all transfer orders
func (r ReallocationAnalysis) TotalUnits() Quantity {
	var total Quantity
	for _, t := range r.TransferOrders {
		total += t.Units
	}
	return total
}
