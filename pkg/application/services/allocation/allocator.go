package allocation

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

// Config controls clustering and the store-level allocation formula
type Config struct {
	Clustering     ClusterConfig `yaml:"clustering" mapstructure:"clustering"`
	SalesWeight    float64       `yaml:"sales_weight" mapstructure:"sales_weight"`
	CapacityWeight float64       `yaml:"capacity_weight" mapstructure:"capacity_weight"`
	MinCoverWeeks  int           `yaml:"min_cover_weeks" mapstructure:"min_cover_weeks"`
}

// DefaultConfig returns the 70/30 sales/capacity split with two weeks of minimum cover
func DefaultConfig() Config {
	return Config{
		Clustering:     DefaultClusterConfig(),
		SalesWeight:    0.70,
		CapacityWeight: 0.30,
		MinCoverWeeks:  2,
	}
}

// Validate checks allocation configuration
func (c Config) Validate() error {
	if err := c.Clustering.Validate(); err != nil {
		return err
	}
	if c.SalesWeight < 0 || c.CapacityWeight < 0 || math.Abs(c.SalesWeight+c.CapacityWeight-1) > entities.FactorTolerance {
		return fmt.Errorf("sales and capacity weights must be non-negative and sum to 1, got %.2f and %.2f",
			c.SalesWeight, c.CapacityWeight)
	}
	if c.MinCoverWeeks < 0 {
		return fmt.Errorf("minimum cover weeks cannot be negative")
	}
	return nil
}

// Input is everything the allocation step needs for one run
type Input struct {
	Stores       []entities.Store
	StoreSales   map[entities.StoreID]entities.Quantity
	HistoryWeeks int
	Forecast     entities.ForecastResult
	Parameters   entities.SeasonParameters
}

// Engine segments stores and distributes the manufacturing order down to store level
type Engine struct {
	config Config
	logger *zap.Logger
}

// NewEngine creates an allocation engine
func NewEngine(config Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{config: config, logger: logger}
}

// Allocate runs clustering, manufacturing and holdback sizing, cluster and store
// distribution, and (when the strategy replenishes) the DC shipment plan.
func (e *Engine) Allocate(ctx context.Context, in Input) (*entities.AllocationResult, error) {
	if len(in.Stores) == 0 {
		return nil, fmt.Errorf("allocation requires at least one store")
	}
	if in.Forecast.HorizonWeeks() == 0 {
		return nil, fmt.Errorf("allocation requires a non-empty forecast")
	}

	velocity := make(map[entities.StoreID]float64, len(in.Stores))
	for _, s := range in.Stores {
		if in.HistoryWeeks > 0 {
			velocity[s.ID] = float64(in.StoreSales[s.ID]) / float64(in.HistoryWeeks)
		}
	}

	clustering, err := ClusterStores(ctx, in.Stores, velocity, e.config.Clustering)
	if err != nil {
		return nil, err
	}

	result := &entities.AllocationResult{SilhouetteScore: clustering.Silhouette}
	if len(clustering.Clusters) > 1 && clustering.Silhouette < e.config.Clustering.SilhouetteWarning {
		warning := &entities.ClusteringQualityWarning{
			Silhouette: clustering.Silhouette,
			Threshold:  e.config.Clustering.SilhouetteWarning,
		}
		e.logger.Warn("clustering quality below threshold",
			zap.Float64("silhouette", warning.Silhouette),
			zap.Float64("threshold", warning.Threshold),
		)
		result.Warnings = append(result.Warnings, warning.Error())
	}

	mo, holdback := ManufacturingOrder(in.Forecast.TotalDemand, in.Forecast.SafetyStockPct, in.Parameters.DCHoldbackPercentage)
	result.ManufacturingOrder = mo
	result.DCHoldbackUnits = holdback
	pool := mo - holdback

	storesByID := make(map[entities.StoreID]entities.Store, len(in.Stores))
	for _, s := range in.Stores {
		storesByID[s.ID] = s
	}

	result.ClusterDistribution = distributeClusters(clustering.Clusters, in.StoreSales, pool)
	for i, cl := range clustering.Clusters {
		allocations := e.allocateWithinCluster(cl, storesByID, in.StoreSales, result.ClusterDistribution[i].Units)
		result.StoreAllocations = append(result.StoreAllocations, allocations...)
	}
	sort.Slice(result.StoreAllocations, func(i, j int) bool {
		return result.StoreAllocations[i].StoreID < result.StoreAllocations[j].StoreID
	})

	if err := e.checkMinimumCover(result, in.Forecast); err != nil {
		return nil, err
	}

	if in.Parameters.ReplenishmentStrategy != entities.ReplenishmentNone {
		result.ReplenishmentPlan = PlanReplenishment(*result, in.Forecast, in.Parameters.ReplenishmentStrategy)
	}

	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("failed to build allocation: %w", err)
	}

	e.logger.Debug("allocation complete",
		zap.Int64("manufacturing_order", int64(result.ManufacturingOrder)),
		zap.Int64("dc_holdback", int64(result.DCHoldbackUnits)),
		zap.Int("clusters", len(result.ClusterDistribution)),
		zap.Float64("silhouette", result.SilhouetteScore),
	)
	return result, nil
}

// ManufacturingOrder returns round(total × (1+safetyStock)) and round(order × dcHoldback)
// computed in exact decimal arithmetic.
func ManufacturingOrder(total entities.Quantity, safetyStock, dcHoldback float64) (entities.Quantity, entities.Quantity) {
	one := decimal.NewFromInt(1)
	order := decimal.NewFromInt(int64(total)).
		Mul(one.Add(decimal.NewFromFloat(safetyStock))).
		Round(0)
	holdback := order.Mul(decimal.NewFromFloat(dcHoldback)).Round(0)
	return entities.Quantity(order.IntPart()), entities.Quantity(holdback.IntPart())
}

// distributeClusters splits the store pool by each cluster's share of historical sales,
// falling back to store counts when there are no sales. Unit remainder goes to the largest share.
func distributeClusters(
	clusters []Cluster,
	storeSales map[entities.StoreID]entities.Quantity,
	pool entities.Quantity,
) []entities.ClusterShare {
	weights := make([]float64, len(clusters))
	var totalWeight float64
	for i, cl := range clusters {
		for _, id := range cl.Stores {
			weights[i] += float64(storeSales[id])
		}
		totalWeight += weights[i]
	}
	if totalWeight == 0 {
		for i, cl := range clusters {
			weights[i] = float64(len(cl.Stores))
			totalWeight += weights[i]
		}
	}

	shares := make([]entities.ClusterShare, len(clusters))
	pcts := make([]float64, len(clusters))
	for i := range clusters {
		pcts[i] = weights[i] / totalWeight
	}
	normalize(pcts)

	units := splitUnits(pool, pcts)
	for i, cl := range clusters {
		shares[i] = entities.ClusterShare{
			ClusterName: cl.Name,
			Percentage:  pcts[i],
			Units:       units[i],
			StoreCount:  len(cl.Stores),
		}
	}
	return shares
}

func (e *Engine) allocateWithinCluster(
	cl Cluster,
	stores map[entities.StoreID]entities.Store,
	storeSales map[entities.StoreID]entities.Quantity,
	units entities.Quantity,
) []entities.StoreAllocation {
	var clusterSales, clusterSize float64
	for _, id := range cl.Stores {
		clusterSales += float64(storeSales[id])
		clusterSize += stores[id].SizeSqft
	}

	factors := make([]float64, len(cl.Stores))
	for i, id := range cl.Stores {
		salesRatio := 1 / float64(len(cl.Stores))
		if clusterSales > 0 {
			salesRatio = float64(storeSales[id]) / clusterSales
		}
		sizeRatio := 1 / float64(len(cl.Stores))
		if clusterSize > 0 {
			sizeRatio = stores[id].SizeSqft / clusterSize
		}
		factors[i] = e.config.SalesWeight*salesRatio + e.config.CapacityWeight*sizeRatio
	}
	normalize(factors)

	storeUnits := splitUnits(units, factors)
	allocations := make([]entities.StoreAllocation, len(cl.Stores))
	for i, id := range cl.Stores {
		allocations[i] = entities.StoreAllocation{
			StoreID:          id,
			ClusterName:      cl.Name,
			AllocationFactor: factors[i],
			Units:            storeUnits[i],
		}
	}
	return allocations
}

// checkMinimumCover requires every store to receive its share of the first weeks' forecast
func (e *Engine) checkMinimumCover(result *entities.AllocationResult, forecast entities.ForecastResult) error {
	cover := forecast.SumWeeks(0, e.config.MinCoverWeeks)
	for _, s := range result.StoreAllocations {
		required := entities.Quantity(math.Floor(float64(cover) * result.StoreShare(s.StoreID)))
		if s.Units < required {
			return &entities.AllocationConstraintError{
				StoreID:   s.StoreID,
				Required:  required,
				Available: s.Units,
				Reason:    fmt.Sprintf("initial allocation below %d-week forecast cover", e.config.MinCoverWeeks),
			}
		}
	}
	return nil
}

// normalize rescales values to sum to 1, assigning any residual drift to the largest value
func normalize(values []float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	if sum <= 0 {
		for i := range values {
			values[i] = 1 / float64(len(values))
		}
		sum = 1
	}
	largest := 0
	var normalized float64
	for i := range values {
		values[i] /= sum
		normalized += values[i]
		if values[i] > values[largest] {
			largest = i
		}
	}
	values[largest] += 1 - normalized
}

// splitUnits floors units × share for each entry and gives the remainder to the largest share
func splitUnits(units entities.Quantity, shares []float64) []entities.Quantity {
	out := make([]entities.Quantity, len(shares))
	if len(shares) == 0 {
		return out
	}
	var assigned entities.Quantity
	largest := 0
	for i, share := range shares {
		out[i] = entities.Quantity(math.Floor(float64(units) * share))
		assigned += out[i]
		if share > shares[largest] {
			largest = i
		}
	}
	out[largest] += units - assigned
	return out
}
