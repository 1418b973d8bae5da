package dataset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_LoadAndCache(t *testing.T) {
	dir := t.TempDir()
	sales := writeFile(t, dir, "sales.csv", `date,store_id,category,quantity
2024-01-01,S1,dresses,10
2024-01-08,S1,dresses,12
2024-01-08,S2,dresses,6
2024-01-08,S3,shoes,6
`)
	stores := writeFile(t, dir, "stores.csv", `store_id,size_sqft,median_income,location_tier,fashion_tier,store_format,region
S1,10000,80000,A,A,mall,east
S2,5000,40000,C,B,strip,west
`)

	loader := NewLoader(Files{SalesFile: sales, StoresFile: stores}, nil)
	ds, err := loader.Load(context.Background(), "dresses")
	require.NoError(t, err)

	assert.Equal(t, 2, ds.Weekly.Len())
	assert.Equal(t, []float64{10, 18}, ds.Weekly.Values)
	assert.Equal(t, entities.Quantity(22), ds.StoreSales["S1"])
	assert.InDelta(t, 3.0, ds.StoreVelocity("S2"), 1e-9)

	// second load is served from the cache even if the files disappear
	require.NoError(t, os.Remove(sales))
	cached, err := loader.Load(context.Background(), "dresses")
	require.NoError(t, err)
	assert.Same(t, ds, cached)
}

func TestLoader_DataNotFound(t *testing.T) {
	dir := t.TempDir()
	stores := writeFile(t, dir, "stores.csv", `store_id,size_sqft,median_income,location_tier,fashion_tier,store_format,region
S1,10000,80000,A,A,mall,east
`)

	tests := []struct {
		name     string
		files    Files
		category string
		artifact string
	}{
		{"missing sales config", Files{StoresFile: stores}, "dresses", "historical sales table"},
		{"missing sales file", Files{SalesFile: filepath.Join(dir, "nope.csv"), StoresFile: stores}, "dresses", "historical sales table"},
		{"missing stores config", Files{SalesFile: filepath.Join(dir, "nope.csv")}, "dresses", "store attributes table"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader(tt.files, nil).Load(context.Background(), tt.category)
			var notFound *entities.DataNotFoundError
			require.True(t, errors.As(err, &notFound), "expected DataNotFoundError, got %v", err)
			assert.Contains(t, notFound.Artifact, tt.artifact)
		})
	}

	sales := writeFile(t, dir, "sales.csv", "date,store_id,category,quantity\n2024-01-01,S1,shoes,1\n")
	_, err := NewLoader(Files{SalesFile: sales, StoresFile: stores}, nil).Load(context.Background(), "dresses")
	var notFound *entities.DataNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "dresses", notFound.Category)
}
