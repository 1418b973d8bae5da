package reallocation

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

// Config holds the performer cutoffs and cover horizons
type Config struct {
	HighPercentile       float64 `yaml:"high_percentile" mapstructure:"high_percentile"`
	LowPercentile        float64 `yaml:"low_percentile" mapstructure:"low_percentile"`
	StockoutHorizonWeeks float64 `yaml:"stockout_horizon_weeks" mapstructure:"stockout_horizon_weeks"`
	ExcessCoverWeeks     float64 `yaml:"excess_cover_weeks" mapstructure:"excess_cover_weeks"`
	SafetyBufferWeeks    float64 `yaml:"safety_buffer_weeks" mapstructure:"safety_buffer_weeks"`
}

// DefaultConfig returns 75th/25th percentile cutoffs, a 2-week stockout horizon,
// 4 weeks of excess cover and a 1-week source buffer
func DefaultConfig() Config {
	return Config{
		HighPercentile:       75,
		LowPercentile:        25,
		StockoutHorizonWeeks: 2,
		ExcessCoverWeeks:     4,
		SafetyBufferWeeks:    1,
	}
}

// Validate checks percentile ordering and horizons
func (c Config) Validate() error {
	if c.LowPercentile < 0 || c.HighPercentile > 100 || c.LowPercentile >= c.HighPercentile {
		return fmt.Errorf("percentiles must satisfy 0 <= low < high <= 100, got %.0f and %.0f",
			c.LowPercentile, c.HighPercentile)
	}
	if c.StockoutHorizonWeeks <= 0 || c.ExcessCoverWeeks <= 0 || c.SafetyBufferWeeks < 0 {
		return fmt.Errorf("cover horizons must be positive")
	}
	if c.ExcessCoverWeeks <= c.StockoutHorizonWeeks {
		return fmt.Errorf("excess cover (%.1f weeks) must exceed the stockout horizon (%.1f weeks)",
			c.ExcessCoverWeeks, c.StockoutHorizonWeeks)
	}
	return nil
}

// StorePosition is a store's season-to-date sales and current on-hand units
type StorePosition struct {
	StoreID entities.StoreID
	Sold    entities.Quantity
	OnHand  entities.Quantity
}

// Input is the reallocation snapshot for one replenishment cycle
type Input struct {
	Positions    []StorePosition
	WeeksElapsed int
	// Forecast is the active category forecast; StoreShares split it to stores
	Forecast    entities.ForecastResult
	StoreShares map[entities.StoreID]float64
	DCAvailable entities.Quantity
}

// Analyzer recommends DC and store-to-store transfers
type Analyzer struct {
	config Config
}

// NewAnalyzer creates a reallocation analyzer
func NewAnalyzer(config Config) *Analyzer {
	return &Analyzer{config: config}
}

type candidate struct {
	id       entities.StoreID
	units    entities.Quantity // deficit for high performers, surplus for underperformers
	cover    float64
	sellThru float64
}

// Analyze flags stockout-risk and overstocked stores and sizes transfers.
// DC units are used first; remaining deficits draw on underperformer surplus,
// which never takes a source below its safety buffer.
func (a *Analyzer) Analyze(in Input) (*entities.ReallocationAnalysis, error) {
	if len(in.Positions) == 0 {
		return nil, fmt.Errorf("reallocation requires store positions")
	}
	if in.WeeksElapsed < 1 {
		return nil, fmt.Errorf("reallocation requires at least one elapsed week, got %d", in.WeeksElapsed)
	}

	rates := make([]float64, len(in.Positions))
	for i, p := range in.Positions {
		rates[i] = sellThrough(p)
	}
	sorted := append([]float64(nil), rates...)
	sort.Float64s(sorted)
	high := stat.Quantile(a.config.HighPercentile/100, stat.LinInterp, sorted, nil)
	low := stat.Quantile(a.config.LowPercentile/100, stat.LinInterp, sorted, nil)

	var highPerformers, underperformers []candidate
	for i, p := range in.Positions {
		velocity := float64(p.Sold) / float64(in.WeeksElapsed)
		cover := math.Inf(1)
		if velocity > 0 {
			cover = float64(p.OnHand) / velocity
		}
		share := in.StoreShares[p.StoreID]

		switch {
		case rates[i] >= high && cover < a.config.StockoutHorizonWeeks:
			target := math.Max(a.config.StockoutHorizonWeeks*velocity, a.storeForecast(in, share, a.config.StockoutHorizonWeeks))
			if deficit := entities.Quantity(math.Ceil(target - float64(p.OnHand))); deficit > 0 {
				highPerformers = append(highPerformers, candidate{id: p.StoreID, units: deficit, cover: cover, sellThru: rates[i]})
			}
		case rates[i] <= low && cover > a.config.ExcessCoverWeeks:
			buffer := math.Ceil(math.Max(a.config.SafetyBufferWeeks*velocity, a.storeForecast(in, share, a.config.SafetyBufferWeeks)))
			keep := math.Max(math.Ceil(a.config.ExcessCoverWeeks*velocity), buffer)
			if surplus := p.OnHand - entities.Quantity(keep); surplus > 0 {
				underperformers = append(underperformers, candidate{id: p.StoreID, units: surplus, cover: cover, sellThru: rates[i]})
			}
		}
	}

	byUnits := func(cs []candidate) {
		sort.Slice(cs, func(i, j int) bool {
			if cs[i].units != cs[j].units {
				return cs[i].units > cs[j].units
			}
			return cs[i].id < cs[j].id
		})
	}
	byUnits(highPerformers)
	byUnits(underperformers)

	analysis := &entities.ReallocationAnalysis{Strategy: entities.StrategyDCOnly}
	for _, c := range highPerformers {
		analysis.HighPerformers = append(analysis.HighPerformers, c.id)
	}
	for _, c := range underperformers {
		analysis.Underperformers = append(analysis.Underperformers, c.id)
	}

	dc := in.DCAvailable
	for i := range highPerformers {
		c := &highPerformers[i]
		units := min(c.units, dc)
		if units <= 0 {
			continue
		}
		analysis.TransferOrders = append(analysis.TransferOrders, entities.TransferOrder{
			From:   entities.DCLocation,
			To:     c.id,
			Units:  units,
			Reason: fmt.Sprintf("stockout risk: %.1f weeks of cover at sell-through %.0f%%", c.cover, c.sellThru*100),
		})
		c.units -= units
		dc -= units
	}

	for i := range highPerformers {
		c := &highPerformers[i]
		for j := range underperformers {
			if c.units == 0 {
				break
			}
			src := &underperformers[j]
			units := min(c.units, src.units)
			if units <= 0 {
				continue
			}
			analysis.TransferOrders = append(analysis.TransferOrders, entities.TransferOrder{
				From:   src.id,
				To:     c.id,
				Units:  units,
				Reason: fmt.Sprintf("surplus: %.1f weeks of cover at sell-through %.0f%%", src.cover, src.sellThru*100),
			})
			analysis.Strategy = entities.StrategyHybrid
			c.units -= units
			src.units -= units
		}
		analysis.UnmetDeficit += c.units
	}

	analysis.ShouldReallocate = len(analysis.TransferOrders) > 0
	return analysis, nil
}

// storeForecast returns the store's share of the category forecast for the weeks after the elapsed ones
func (a *Analyzer) storeForecast(in Input, share, weeks float64) float64 {
	from := in.WeeksElapsed
	to := from + int(math.Ceil(weeks))
	return float64(in.Forecast.SumWeeks(from, to)) * share
}

func sellThrough(p StorePosition) float64 {
	total := p.Sold + p.OnHand
	if total <= 0 {
		return 0
	}
	return float64(p.Sold) / float64(total)
}
