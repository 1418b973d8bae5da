package orchestration

import (
	"fmt"

	"github.com/vsinha/seasonplan/pkg/application/services/allocation"
	"github.com/vsinha/seasonplan/pkg/application/services/dataset"
	"github.com/vsinha/seasonplan/pkg/application/services/reallocation"
	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

// Step names of the season workflow
const (
	StepAssemble   = "assemble"
	StepForecast   = "forecast"
	StepAllocate   = "allocate"
	StepIntake     = "intake"
	StepVariance   = "variance"
	StepReforecast = "reforecast"
	StepReallocate = "reallocate"
	StepMarkdown   = "markdown"
)

// Handoff is the explicit context passed between steps. Steps receive it by
// value and return a copy with their own result set; results already present
// are shared read-only and replaced, never modified.
type Handoff struct {
	RunID      string                    `json:"run_id"`
	Week       int                       `json:"week"`
	Parameters entities.SeasonParameters `json:"parameters"`
	Dataset    *dataset.Dataset          `json:"-"`

	// Plan is the forecast produced at season start; it is the prior of every reforecast
	Plan     *entities.ForecastResult `json:"plan"`
	Forecast *entities.ForecastResult `json:"forecast"`
	// Baseline is the week 0 allocation that was shipped to stores
	Baseline   *entities.AllocationResult `json:"baseline"`
	Allocation *entities.AllocationResult `json:"allocation"`
	Actuals    *entities.ActualsTable     `json:"actuals"`
	// Upload is the pending actuals upload, consumed by the intake step
	Upload []entities.ActualRecord `json:"upload,omitempty"`

	Variance     *entities.VarianceAnalysis     `json:"variance"`
	Reforecast   *entities.ReforecastResult     `json:"reforecast"`
	Reallocation *entities.ReallocationAnalysis `json:"reallocation"`
	Markdown     *entities.MarkdownResult       `json:"markdown"`
}

// ForecastInput is the forecast step's input package
type ForecastInput struct {
	History      entities.WeeklySeries
	HorizonWeeks int
	Strategy     entities.ReplenishmentStrategy
}

// VarianceInput is the variance step's input package
type VarianceInput struct {
	ForecastByWeek []entities.Quantity
	ActualsByWeek  []entities.Quantity
}

// ReforecastInput is the reforecast step's input package
type ReforecastInput struct {
	Prior          entities.ForecastResult
	ActualsByWeek  []entities.Quantity
	WeeksRemaining int
}

// MarkdownInput is the markdown step's input package
type MarkdownInput struct {
	SellThroughRate float64
	TargetRate      float64
	Week            int
}

// Assembler builds the exact input each step needs from the handoff and
// rejects handoffs whose upstream records are missing or malformed.
type Assembler struct {
	contracts *Contracts
}

// NewAssembler creates an assembler over compiled contracts
func NewAssembler(contracts *Contracts) *Assembler {
	return &Assembler{contracts: contracts}
}

func missing(step, field string) error {
	return &entities.ContractError{Step: step, Field: field, Reason: "missing upstream result"}
}

// CheckParameters validates season parameters before they enter a run
func (a *Assembler) CheckParameters(step string, params entities.SeasonParameters) error {
	if err := a.contracts.Validate(step, ContractParameters, params); err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return &entities.ContractError{Step: step, Field: string(ContractParameters), Reason: err.Error()}
	}
	return nil
}

// CheckForecast validates a forecast handed to the next step
func (a *Assembler) CheckForecast(step string, f *entities.ForecastResult, horizonWeeks int) error {
	if f == nil {
		return missing(step, "forecast")
	}
	if err := a.contracts.Validate(step, ContractForecast, f); err != nil {
		return err
	}
	if err := f.Validate(horizonWeeks); err != nil {
		return &entities.ContractError{Step: step, Field: string(ContractForecast), Reason: err.Error()}
	}
	return nil
}

// CheckAllocation validates an allocation handed to the next step
func (a *Assembler) CheckAllocation(step string, alloc *entities.AllocationResult) error {
	if alloc == nil {
		return missing(step, "allocation")
	}
	if err := a.contracts.Validate(step, ContractAllocation, alloc); err != nil {
		return err
	}
	if err := alloc.Validate(); err != nil {
		return &entities.ContractError{Step: step, Field: string(ContractAllocation), Reason: err.Error()}
	}
	return nil
}

// CheckActuals validates an actuals upload against the season
func (a *Assembler) CheckActuals(step string, records []entities.ActualRecord, horizonWeeks int) error {
	if err := a.contracts.Validate(step, ContractActuals, records); err != nil {
		return err
	}
	for i, r := range records {
		if r.WeekNumber > horizonWeeks {
			return &entities.ContractError{
				Step:   step,
				Field:  fmt.Sprintf("%s/%d/week_number", ContractActuals, i),
				Reason: fmt.Sprintf("week %d is beyond the %d-week season", r.WeekNumber, horizonWeeks),
			}
		}
	}
	return nil
}

// ForecastInput assembles the forecast step's history and horizon
func (a *Assembler) ForecastInput(h Handoff) (ForecastInput, error) {
	if err := a.CheckParameters(StepForecast, h.Parameters); err != nil {
		return ForecastInput{}, err
	}
	if h.Dataset == nil {
		return ForecastInput{}, missing(StepForecast, "dataset")
	}
	return ForecastInput{
		History:      h.Dataset.Weekly,
		HorizonWeeks: h.Parameters.ForecastHorizonWeeks,
		Strategy:     h.Parameters.ReplenishmentStrategy,
	}, nil
}

// AllocationInput assembles stores, historical sales and the active forecast
func (a *Assembler) AllocationInput(h Handoff) (allocation.Input, error) {
	if h.Dataset == nil {
		return allocation.Input{}, missing(StepAllocate, "dataset")
	}
	if err := a.CheckForecast(StepAllocate, h.Forecast, h.Parameters.ForecastHorizonWeeks); err != nil {
		return allocation.Input{}, err
	}
	return allocation.Input{
		Stores:       h.Dataset.Stores,
		StoreSales:   h.Dataset.StoreSales,
		HistoryWeeks: h.Dataset.Weekly.Len(),
		Forecast:     *h.Forecast,
		Parameters:   h.Parameters,
	}, nil
}

// VarianceInput assembles the active forecast and observed category totals.
// Variance is only analyzed once an allocation exists.
func (a *Assembler) VarianceInput(h Handoff) (VarianceInput, error) {
	if err := a.CheckAllocation(StepVariance, h.Allocation); err != nil {
		return VarianceInput{}, err
	}
	if err := a.CheckForecast(StepVariance, h.Forecast, h.Parameters.ForecastHorizonWeeks); err != nil {
		return VarianceInput{}, err
	}
	actuals, err := a.observed(StepVariance, h)
	if err != nil {
		return VarianceInput{}, err
	}
	return VarianceInput{ForecastByWeek: h.Forecast.ForecastByWeek, ActualsByWeek: actuals}, nil
}

// ReforecastInput assembles the prior plan and observed weeks. It refuses to
// build an input unless the variance analysis asked for a reforecast.
func (a *Assembler) ReforecastInput(h Handoff) (ReforecastInput, error) {
	if h.Variance == nil {
		return ReforecastInput{}, missing(StepReforecast, "variance")
	}
	if err := a.contracts.Validate(StepReforecast, ContractVariance, h.Variance); err != nil {
		return ReforecastInput{}, err
	}
	if !h.Variance.ShouldReforecast {
		return ReforecastInput{}, &entities.ContractError{
			Step:   StepReforecast,
			Field:  "variance/should_reforecast",
			Reason: "variance analysis did not request a reforecast",
		}
	}
	if err := a.CheckForecast(StepReforecast, h.Plan, h.Parameters.ForecastHorizonWeeks); err != nil {
		return ReforecastInput{}, err
	}
	actuals, err := a.observed(StepReforecast, h)
	if err != nil {
		return ReforecastInput{}, err
	}
	return ReforecastInput{
		Prior:          *h.Plan,
		ActualsByWeek:  actuals,
		WeeksRemaining: h.Parameters.ForecastHorizonWeeks - len(actuals),
	}, nil
}

// ReallocationInput projects store and DC inventory for the current week:
// store on-hand = baseline allocation + shipments received - units sold,
// DC on-hand = baseline holdback - units shipped. Shipments come from the
// baseline's replenishment plan; a re-run allocation only supplies target shares.
func (a *Assembler) ReallocationInput(h Handoff) (reallocation.Input, error) {
	if err := a.CheckAllocation(StepReallocate, h.Baseline); err != nil {
		return reallocation.Input{}, err
	}
	if err := a.CheckAllocation(StepReallocate, h.Allocation); err != nil {
		return reallocation.Input{}, err
	}
	if err := a.CheckForecast(StepReallocate, h.Forecast, h.Parameters.ForecastHorizonWeeks); err != nil {
		return reallocation.Input{}, err
	}
	if _, err := a.observed(StepReallocate, h); err != nil {
		return reallocation.Input{}, err
	}

	sold := h.Actuals.StoreTotals(h.Week)
	received, shipped := h.Baseline.ShippedThrough(h.Week)

	positions := make([]reallocation.StorePosition, 0, len(h.Baseline.StoreAllocations))
	shares := make(map[entities.StoreID]float64, len(h.Baseline.StoreAllocations))
	for _, s := range h.Baseline.StoreAllocations {
		onHand := s.Units + received[s.StoreID] - sold[s.StoreID]
		positions = append(positions, reallocation.StorePosition{
			StoreID: s.StoreID,
			Sold:    sold[s.StoreID],
			OnHand:  max(0, onHand),
		})
		shares[s.StoreID] = h.Allocation.StoreShare(s.StoreID)
	}

	return reallocation.Input{
		Positions:    positions,
		WeeksElapsed: h.Week,
		Forecast:     *h.Forecast,
		StoreShares:  shares,
		DCAvailable:  max(0, h.Baseline.DCHoldbackUnits-shipped),
	}, nil
}

// MarkdownInput computes season-to-date sell-through against the manufactured units
func (a *Assembler) MarkdownInput(h Handoff) (MarkdownInput, error) {
	if !h.Parameters.HasMarkdownCheckpoint() {
		return MarkdownInput{}, &entities.ContractError{
			Step:   StepMarkdown,
			Field:  "parameters/markdown_checkpoint_week",
			Reason: "no markdown checkpoint configured",
		}
	}
	if err := a.CheckAllocation(StepMarkdown, h.Baseline); err != nil {
		return MarkdownInput{}, err
	}
	actuals, err := a.observed(StepMarkdown, h)
	if err != nil {
		return MarkdownInput{}, err
	}
	if h.Baseline.ManufacturingOrder <= 0 {
		return MarkdownInput{}, &entities.ContractError{
			Step:   StepMarkdown,
			Field:  "baseline/manufacturing_order",
			Reason: "no units were manufactured",
		}
	}

	var sold entities.Quantity
	for _, q := range actuals {
		sold += q
	}
	return MarkdownInput{
		SellThroughRate: min(1, float64(sold)/float64(h.Baseline.ManufacturingOrder)),
		TargetRate:      *h.Parameters.MarkdownThreshold,
		Week:            h.Week,
	}, nil
}

// observed returns category totals for weeks 1..h.Week, checking that every
// reporting store belongs to the allocation.
func (a *Assembler) observed(step string, h Handoff) ([]entities.Quantity, error) {
	if h.Actuals == nil {
		return nil, missing(step, "actuals")
	}
	if err := h.Actuals.Validate(); err != nil {
		return nil, &entities.ContractError{Step: step, Field: string(ContractActuals), Reason: err.Error()}
	}
	if h.Week != h.Actuals.LatestWeek() {
		return nil, &entities.ContractError{
			Step:   step,
			Field:  "week",
			Reason: fmt.Sprintf("handoff week %d does not match latest observed week %d", h.Week, h.Actuals.LatestWeek()),
		}
	}
	if h.Week > h.Parameters.ForecastHorizonWeeks {
		return nil, &entities.ContractError{
			Step:   step,
			Field:  "week",
			Reason: fmt.Sprintf("week %d is beyond the %d-week season", h.Week, h.Parameters.ForecastHorizonWeeks),
		}
	}
	if h.Baseline != nil {
		known := make(map[entities.StoreID]bool, len(h.Baseline.StoreAllocations))
		for _, s := range h.Baseline.StoreAllocations {
			known[s.StoreID] = true
		}
		for _, id := range h.Actuals.Stores() {
			if !known[id] {
				return nil, &entities.ContractError{
					Step:   step,
					Field:  string(ContractActuals) + "/store_id",
					Reason: fmt.Sprintf("store %s is not part of the allocation", id),
				}
			}
		}
	}
	return h.Actuals.WeeklyTotals(), nil
}
