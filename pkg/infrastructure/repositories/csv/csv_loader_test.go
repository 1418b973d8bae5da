package csv

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

func TestLoader_ReadSales(t *testing.T) {
	loader := NewLoader()
	input := `date,store_id,category,quantity
2024-01-01,S1,dresses,10
2024-01-02, S2 ,dresses,4.6
`
	sales, err := loader.ReadSales(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, entities.StoreID("S2"), sales[1].StoreID)
	assert.Equal(t, entities.Quantity(5), sales[1].Quantity)
}

func TestLoader_ReadSales_Errors(t *testing.T) {
	loader := NewLoader()
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"header only", "date,store_id,category,quantity\n", "must have header and at least one data row"},
		{"bad header", "day,store,category,quantity\n2024-01-01,S1,d,1\n", "header mismatch"},
		{"bad date", "date,store_id,category,quantity\n01/01/2024,S1,d,1\n", "row 2: invalid date format"},
		{"negative", "date,store_id,category,quantity\n2024-01-01,S1,d,-3\n", "quantity cannot be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.ReadSales(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoader_ReadStores(t *testing.T) {
	loader := NewLoader()
	input := `store_id,size_sqft,median_income,location_tier,fashion_tier,store_format,region
S1,12000,85000,A,B,Flagship,East
S2,6000,41000,2,1,mall,west
`
	stores, err := loader.ReadStores(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, stores, 2)
	assert.Equal(t, 3.0, stores[0].LocationTier)
	assert.Equal(t, 2.0, stores[0].FashionTier)
	assert.Equal(t, "flagship", stores[0].Format)
	assert.Equal(t, "west", stores[1].Region)

	_, err = loader.ReadStores(strings.NewReader(`store_id,size_sqft,median_income,location_tier,fashion_tier,store_format,region
S1,12000,85000,Z,B,mall,east
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid location_tier")
}

func TestLoader_ReadActuals(t *testing.T) {
	loader := NewLoader()
	actuals, err := loader.ReadActuals(strings.NewReader("store_id,week_number,units_sold\nS1,1,40\nS2,1,22\n"))
	require.NoError(t, err)
	assert.Equal(t, []entities.ActualRecord{
		{StoreID: "S1", WeekNumber: 1, UnitsSold: 40},
		{StoreID: "S2", WeekNumber: 1, UnitsSold: 22},
	}, actuals)

	_, err = loader.ReadActuals(strings.NewReader("store_id,week_number,units_sold\nS1,0,40\n"))
	require.Error(t, err)
}

func TestLoader_LoadParameters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "season.yaml")
	content := `category: dresses
forecast_horizon_weeks: 12
season_start_date: "2025-03-03"
replenishment_strategy: bi-weekly
dc_holdback_percentage: 0.35
markdown_checkpoint_week: 8
markdown_threshold: 0.6
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	params, err := NewLoader().LoadParameters(path)
	require.NoError(t, err)
	assert.Equal(t, entities.ReplenishmentBiWeekly, params.ReplenishmentStrategy)
	assert.Equal(t, "2025-05-26", params.SeasonEndDate.Format("2006-01-02"))
	require.True(t, params.HasMarkdownCheckpoint())
	assert.Equal(t, 8, *params.MarkdownCheckpointWeek)

	_, err = NewLoader().ParseParameters([]byte("category: dresses\nforecast_horizon_weeks: 12\nseason_start_date: \"2025-03-03\"\nmarkdown_threshold: 0.5\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be set together")
}
