package allocation

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testhelpers "github.com/vsinha/seasonplan/pkg/application/services/testing"
	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

func TestClusterStores_SeparatedGroups(t *testing.T) {
	var stores []entities.Store
	velocity := make(map[entities.StoreID]float64)
	groups := []struct {
		size, income, tier float64
		velocity           float64
	}{
		{12000, 100000, 3, 150},
		{7000, 65000, 2, 80},
		{3000, 35000, 1, 20},
	}
	for g, grp := range groups {
		for i := 0; i < 4; i++ {
			id := fmt.Sprintf("G%d-%d", g, i)
			stores = append(stores, testhelpers.MustCreateStore(id, grp.size+float64(i)*50, grp.income, grp.tier, grp.tier, "mall", "east"))
			velocity[entities.StoreID(id)] = grp.velocity + float64(i)
		}
	}

	clustering, err := ClusterStores(context.Background(), stores, velocity, DefaultClusterConfig())
	require.NoError(t, err)
	require.Len(t, clustering.Clusters, 3)

	assert.Equal(t, SegmentPremium, clustering.Clusters[0].Name)
	assert.ElementsMatch(t, []entities.StoreID{"G0-0", "G0-1", "G0-2", "G0-3"}, clustering.Clusters[0].Stores)
	assert.ElementsMatch(t, []entities.StoreID{"G2-0", "G2-1", "G2-2", "G2-3"}, clustering.Clusters[2].Stores)
	assert.Greater(t, clustering.Silhouette, 0.8)

	name, ok := clustering.ClusterOf("G1-2")
	require.True(t, ok)
	assert.Equal(t, SegmentMainstream, name)
}

func TestClusterStores_IdenticalStores(t *testing.T) {
	stores := []entities.Store{
		testhelpers.MustCreateStore("A", 5000, 50000, 2, 2, "mall", "east"),
		testhelpers.MustCreateStore("B", 5000, 50000, 2, 2, "mall", "east"),
		testhelpers.MustCreateStore("C", 5000, 50000, 2, 2, "mall", "east"),
	}
	velocity := map[entities.StoreID]float64{"A": 10, "B": 10, "C": 10}

	clustering, err := ClusterStores(context.Background(), stores, velocity, DefaultClusterConfig())
	require.NoError(t, err)

	var assigned int
	for _, c := range clustering.Clusters {
		assigned += len(c.Stores)
	}
	assert.Equal(t, 3, assigned)
	assert.Equal(t, 0.0, clustering.Inertia)
}

func TestClusterStores_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stores := []entities.Store{testhelpers.MustCreateStore("A", 5000, 50000, 2, 2, "mall", "east")}
	_, err := ClusterStores(ctx, stores, map[entities.StoreID]float64{"A": 1}, DefaultClusterConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClusterConfig_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*ClusterConfig)
	}{
		{"zero k", func(c *ClusterConfig) { c.K = 0 }},
		{"zero restarts", func(c *ClusterConfig) { c.Restarts = 0 }},
		{"zero iterations", func(c *ClusterConfig) { c.MaxIterations = 0 }},
		{"negative weight", func(c *ClusterConfig) { c.Weights.Region = -1 }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultClusterConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, DefaultClusterConfig().Validate())
}

func TestSegmentNames(t *testing.T) {
	assert.Equal(t, []string{SegmentMainstream}, segmentNames(1))
	assert.Equal(t, []string{SegmentPremium, SegmentValue}, segmentNames(2))
	assert.Equal(t, []string{SegmentPremium, "mainstream-1", "mainstream-2", SegmentValue}, segmentNames(4))
}
