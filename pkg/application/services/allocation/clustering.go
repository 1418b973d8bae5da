package allocation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

// Segment names, ordered by descending average sales velocity
const (
	SegmentPremium    = "premium"
	SegmentMainstream = "mainstream"
	SegmentValue      = "value"
)

// FeatureWeights scales each standardized feature before clustering
type FeatureWeights struct {
	Velocity     float64 `yaml:"velocity" mapstructure:"velocity"`
	Size         float64 `yaml:"size" mapstructure:"size"`
	Income       float64 `yaml:"income" mapstructure:"income"`
	LocationTier float64 `yaml:"location_tier" mapstructure:"location_tier"`
	FashionTier  float64 `yaml:"fashion_tier" mapstructure:"fashion_tier"`
	Format       float64 `yaml:"format" mapstructure:"format"`
	Region       float64 `yaml:"region" mapstructure:"region"`
}

func (w FeatureWeights) vector() []float64 {
	return []float64{w.Velocity, w.Size, w.Income, w.LocationTier, w.FashionTier, w.Format, w.Region}
}

// ClusterConfig controls store segmentation
type ClusterConfig struct {
	K                 int            `yaml:"k" mapstructure:"k"`
	Restarts          int            `yaml:"restarts" mapstructure:"restarts"`
	Seed              int64          `yaml:"seed" mapstructure:"seed"`
	MaxIterations     int            `yaml:"max_iterations" mapstructure:"max_iterations"`
	SilhouetteWarning float64        `yaml:"silhouette_warning" mapstructure:"silhouette_warning"`
	Weights           FeatureWeights `yaml:"weights" mapstructure:"weights"`
}

// DefaultClusterConfig returns k=3 with ten restarts and velocity weighted highest
func DefaultClusterConfig() ClusterConfig {
	return ClusterConfig{
		K:                 3,
		Restarts:          10,
		Seed:              42,
		MaxIterations:     100,
		SilhouetteWarning: 0.4,
		Weights: FeatureWeights{
			Velocity:     3.0,
			Size:         1.0,
			Income:       1.0,
			LocationTier: 1.0,
			FashionTier:  1.0,
			Format:       0.5,
			Region:       0.5,
		},
	}
}

// Validate checks clustering configuration
func (c ClusterConfig) Validate() error {
	if c.K < 1 {
		return fmt.Errorf("cluster count must be positive, got %d", c.K)
	}
	if c.Restarts < 1 {
		return fmt.Errorf("k-means restarts must be positive, got %d", c.Restarts)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("k-means max iterations must be positive, got %d", c.MaxIterations)
	}
	for _, w := range c.Weights.vector() {
		if w < 0 {
			return fmt.Errorf("feature weights cannot be negative")
		}
	}
	return nil
}

// Cluster is a named segment of stores
type Cluster struct {
	Name        string
	Stores      []entities.StoreID
	AvgVelocity float64
}

// Clustering is the outcome of store segmentation
type Clustering struct {
	Clusters   []Cluster // ordered by descending average velocity
	Silhouette float64
	Inertia    float64
}

// ClusterOf returns the segment name for a store
func (c *Clustering) ClusterOf(id entities.StoreID) (string, bool) {
	for _, cl := range c.Clusters {
		for _, s := range cl.Stores {
			if s == id {
				return cl.Name, true
			}
		}
	}
	return "", false
}

type kmeansRun struct {
	labels  []int
	inertia float64
}

// ClusterStores segments stores on seven standardized, weighted features.
// Restarts run in parallel; the lowest-inertia restart wins with ties going to
// the lowest restart index, so results are deterministic for a given seed.
func ClusterStores(
	ctx context.Context,
	stores []entities.Store,
	velocity map[entities.StoreID]float64,
	cfg ClusterConfig,
) (*Clustering, error) {
	if len(stores) == 0 {
		return nil, fmt.Errorf("cannot cluster an empty store set")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	points := featureMatrix(stores, velocity, cfg.Weights)
	k := cfg.K
	if k > len(points) {
		k = len(points)
	}

	runs := make([]kmeansRun, cfg.Restarts)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < cfg.Restarts; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(cfg.Seed + int64(i)))
			runs[i] = kmeans(points, k, rng, cfg.MaxIterations)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to cluster stores: %w", err)
	}

	best := 0
	for i := 1; i < len(runs); i++ {
		if runs[i].inertia < runs[best].inertia {
			best = i
		}
	}

	labels := runs[best].labels
	return &Clustering{
		Clusters:   nameClusters(stores, labels, velocity),
		Silhouette: silhouette(points, labels),
		Inertia:    runs[best].inertia,
	}, nil
}

// featureMatrix builds z-scored, weighted feature rows; zero-variance columns become zero
func featureMatrix(stores []entities.Store, velocity map[entities.StoreID]float64, weights FeatureWeights) [][]float64 {
	formats := ordinalCodes(stores, func(s entities.Store) string { return s.Format })
	regions := ordinalCodes(stores, func(s entities.Store) string { return s.Region })

	raw := make([][]float64, len(stores))
	for i, s := range stores {
		raw[i] = []float64{
			velocity[s.ID],
			s.SizeSqft,
			s.MedianIncome,
			s.LocationTier,
			s.FashionTier,
			formats[s.Format],
			regions[s.Region],
		}
	}

	w := weights.vector()
	dims := len(w)
	for d := 0; d < dims; d++ {
		var mean float64
		for _, row := range raw {
			mean += row[d]
		}
		mean /= float64(len(raw))
		var variance float64
		for _, row := range raw {
			variance += (row[d] - mean) * (row[d] - mean)
		}
		std := math.Sqrt(variance / float64(len(raw)))
		for _, row := range raw {
			if std == 0 {
				row[d] = 0
				continue
			}
			row[d] = (row[d] - mean) / std * w[d]
		}
	}
	return raw
}

// ordinalCodes assigns each distinct value its rank in sorted order
func ordinalCodes(stores []entities.Store, key func(entities.Store) string) map[string]float64 {
	seen := make(map[string]bool)
	var values []string
	for _, s := range stores {
		v := key(s)
		if !seen[v] {
			seen[v] = true
			values = append(values, v)
		}
	}
	sort.Strings(values)
	codes := make(map[string]float64, len(values))
	for i, v := range values {
		codes[v] = float64(i)
	}
	return codes
}

func sqDist(a, b []float64) float64 {
	var d float64
	for i := range a {
		diff := a[i] - b[i]
		d += diff * diff
	}
	return d
}

// kmeans runs Lloyd's algorithm from a k-means++ seeding
func kmeans(points [][]float64, k int, rng *rand.Rand, maxIterations int) kmeansRun {
	centroids := seedPlusPlus(points, k, rng)
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = -1
	}

	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, p := range points {
			nearest := 0
			for c := 1; c < k; c++ {
				if sqDist(p, centroids[c]) < sqDist(p, centroids[nearest]) {
					nearest = c
				}
			}
			if labels[i] != nearest {
				labels[i] = nearest
				changed = true
			}
		}
		if !changed {
			break
		}

		dims := len(points[0])
		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i, p := range points {
			counts[labels[i]]++
			for d := range p {
				sums[labels[i]][d] += p[d]
			}
		}
		for c := 0; c < k; c++ {
			// an empty cluster keeps its previous centroid
			if counts[c] == 0 {
				continue
			}
			for d := range sums[c] {
				centroids[c][d] = sums[c][d] / float64(counts[c])
			}
		}
	}

	var inertia float64
	for i, p := range points {
		inertia += sqDist(p, centroids[labels[i]])
	}
	return kmeansRun{labels: labels, inertia: inertia}
}

func seedPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	first := points[rng.Intn(len(points))]
	centroids = append(centroids, append([]float64(nil), first...))

	dist := make([]float64, len(points))
	for len(centroids) < k {
		var total float64
		for i, p := range points {
			dist[i] = math.Inf(1)
			for _, c := range centroids {
				dist[i] = math.Min(dist[i], sqDist(p, c))
			}
			total += dist[i]
		}

		next := rng.Intn(len(points))
		if total > 0 {
			target := rng.Float64() * total
			for i, d := range dist {
				target -= d
				if target <= 0 {
					next = i
					break
				}
			}
		}
		centroids = append(centroids, append([]float64(nil), points[next]...))
	}
	return centroids
}

// silhouette returns the mean silhouette coefficient; zero when fewer than two clusters are populated
func silhouette(points [][]float64, labels []int) float64 {
	clusters := make(map[int][]int)
	for i, l := range labels {
		clusters[l] = append(clusters[l], i)
	}
	if len(clusters) < 2 {
		return 0
	}

	var total float64
	for i, p := range points {
		own := clusters[labels[i]]
		if len(own) == 1 {
			continue
		}
		var a float64
		for _, j := range own {
			if j != i {
				a += math.Sqrt(sqDist(p, points[j]))
			}
		}
		a /= float64(len(own) - 1)

		b := math.Inf(1)
		for label, members := range clusters {
			if label == labels[i] {
				continue
			}
			var d float64
			for _, j := range members {
				d += math.Sqrt(sqDist(p, points[j]))
			}
			b = math.Min(b, d/float64(len(members)))
		}

		if denom := math.Max(a, b); denom > 0 {
			total += (b - a) / denom
		}
	}
	return total / float64(len(points))
}

// nameClusters orders populated clusters by average velocity and assigns segment names
func nameClusters(stores []entities.Store, labels []int, velocity map[entities.StoreID]float64) []Cluster {
	byLabel := make(map[int]*Cluster)
	var order []int
	for i, l := range labels {
		cl, ok := byLabel[l]
		if !ok {
			cl = &Cluster{}
			byLabel[l] = cl
			order = append(order, l)
		}
		cl.Stores = append(cl.Stores, stores[i].ID)
		cl.AvgVelocity += velocity[stores[i].ID]
	}

	clusters := make([]Cluster, 0, len(order))
	for _, l := range order {
		cl := byLabel[l]
		cl.AvgVelocity /= float64(len(cl.Stores))
		sort.Slice(cl.Stores, func(i, j int) bool { return cl.Stores[i] < cl.Stores[j] })
		clusters = append(clusters, *cl)
	}
	sort.SliceStable(clusters, func(i, j int) bool {
		if clusters[i].AvgVelocity != clusters[j].AvgVelocity {
			return clusters[i].AvgVelocity > clusters[j].AvgVelocity
		}
		return clusters[i].Stores[0] < clusters[j].Stores[0]
	})

	names := segmentNames(len(clusters))
	for i := range clusters {
		clusters[i].Name = names[i]
	}
	return clusters
}

func segmentNames(n int) []string {
	switch n {
	case 1:
		return []string{SegmentMainstream}
	case 2:
		return []string{SegmentPremium, SegmentValue}
	case 3:
		return []string{SegmentPremium, SegmentMainstream, SegmentValue}
	}
	names := []string{SegmentPremium}
	for i := 2; i < n; i++ {
		names = append(names, fmt.Sprintf("%s-%d", SegmentMainstream, i-1))
	}
	return append(names, SegmentValue)
}
