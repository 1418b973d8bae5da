package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsinha/seasonplan/pkg/application/dto"
	testhelpers "github.com/vsinha/seasonplan/pkg/application/services/testing"
	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

func sampleResult() *dto.WorkflowResult {
	forecast := testhelpers.FlatForecast(4, 500, 0.25)
	return &dto.WorkflowResult{
		RunID:      "run-1",
		State:      "complete",
		Week:       2,
		Parameters: *testhelpers.MustCreateParameters(4, entities.ReplenishmentWeekly, 0.2),
		Forecast:   &forecast,
		Allocation: &entities.AllocationResult{
			ManufacturingOrder: 2500,
			DCHoldbackUnits:    500,
			ClusterDistribution: []entities.ClusterShare{
				{ClusterName: "Premium", Percentage: 0.6, Units: 1200, StoreCount: 1},
				{ClusterName: "Value", Percentage: 0.4, Units: 800, StoreCount: 1},
			},
			StoreAllocations: []entities.StoreAllocation{
				{StoreID: "S01", ClusterName: "Premium", AllocationFactor: 0.6, Units: 1200},
				{StoreID: "S02", ClusterName: "Value", AllocationFactor: 0.4, Units: 800},
			},
			ReplenishmentPlan: []entities.ReplenishmentBatch{
				{Week: 2, Shipments: []entities.Shipment{{StoreID: "S01", Units: 120}}, TotalUnits: 120, RequestedUnits: 120, DCRemainingAfter: 380},
			},
			SilhouetteScore: 0.52,
		},
		Reallocation: &entities.ReallocationAnalysis{
			ShouldReallocate: true,
			Strategy:         entities.StrategyHybrid,
			TransferOrders: []entities.TransferOrder{
				{From: "S02", To: "S01", Units: 60, Reason: "stockout risk"},
			},
		},
		Markdown: &entities.MarkdownResult{SellThroughRate: 0.5, TargetRate: 0.6, Gap: 0.1, MarkdownPct: 20, Recommended: true, Week: 2},
		Warnings: []string{"clustering quality below threshold"},
		ExecutionLog: []entities.ExecutionLogEntry{
			{RunID: "run-1", Sequence: 1, StepName: "assemble", StartedAt: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC), DurationMs: 3, Status: entities.StatusSuccess},
			{RunID: "run-1", Sequence: 2, StepName: "forecast", StartedAt: time.Date(2025, 3, 3, 9, 0, 1, 0, time.UTC), DurationMs: 40, Status: entities.StatusError, Cause: "boom"},
		},
	}
}

func TestGenerate_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Generate(sampleResult(), Config{Format: "text", Writer: &buf, Verbose: true}))

	out := buf.String()
	for _, want := range []string{
		"Run run-1 (dresses, week 2, complete)",
		"warning: clustering quality below threshold",
		"Manufacturing order 2500, DC holdback 500",
		"S01",
		"stockout risk",
		"20%",
		"forecast",
		"boom",
	} {
		assert.Contains(t, out, want)
	}
}

func TestGenerate_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Generate(sampleResult(), Config{Format: "json", Writer: &buf}))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.Nil(t, decoded["variance"])
	assert.Nil(t, decoded["reforecast"])

	dir := t.TempDir()
	require.NoError(t, Generate(sampleResult(), Config{Format: "json", OutputDir: dir}))
	assert.FileExists(t, filepath.Join(dir, "result_run-1_week02.json"))
}

func TestGenerate_CSV(t *testing.T) {
	assert.Error(t, Generate(sampleResult(), Config{Format: "csv"}), "csv needs an output directory")

	dir := t.TempDir()
	require.NoError(t, Generate(sampleResult(), Config{Format: "csv", OutputDir: dir}))

	testCases := []struct {
		file   string
		header []string
		rows   int
	}{
		{"forecast.csv", []string{"week", "demand", "lower", "upper"}, 4},
		{"store_allocations.csv", []string{"store_id", "cluster", "allocation_factor", "units"}, 2},
		{"replenishment.csv", []string{"week", "store_id", "units"}, 1},
		{"transfers.csv", []string{"from", "to", "units", "reason"}, 1},
		{"execution_log.csv", logHeader, 2},
	}
	for _, tc := range testCases {
		t.Run(tc.file, func(t *testing.T) {
			f, err := os.Open(filepath.Join(dir, tc.file))
			require.NoError(t, err)
			defer f.Close()

			records, err := csv.NewReader(f).ReadAll()
			require.NoError(t, err)
			require.Len(t, records, tc.rows+1)
			assert.Equal(t, tc.header, records[0])
		})
	}
}

func TestGenerate_HTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Generate(sampleResult(), Config{Format: "html", Writer: &buf}))

	page := buf.String()
	assert.True(t, strings.HasPrefix(page, "<!DOCTYPE html>"))
	assert.Contains(t, page, "<svg")
	assert.Contains(t, page, "Manufacturing order 2500")
	assert.Contains(t, page, "stockout risk")
	assert.Contains(t, page, `id="result-data"`)
}

func TestGenerate_UnsupportedFormat(t *testing.T) {
	assert.Error(t, Generate(sampleResult(), Config{Format: "xml"}))
}

func TestDemandChart(t *testing.T) {
	result := sampleResult()
	result.Reforecast = &entities.ReforecastResult{ForecastByWeek: []entities.Quantity{600, 600}, WeeksObserved: 2}

	chart := NewDemandChart(result)
	bars := chart.bars(result)
	require.Len(t, bars, 4)
	assert.False(t, bars[1].Revised)
	assert.True(t, bars[2].Revised)
	for i := 1; i < len(bars); i++ {
		assert.Greater(t, bars[i].X, bars[i-1].X)
	}

	svg := chart.GenerateSVG(result)
	assert.Contains(t, svg, colorReforecast)
	assert.Contains(t, svg, "Week 1: 500 units")

	empty := NewDemandChart(&dto.WorkflowResult{}).GenerateSVG(&dto.WorkflowResult{})
	assert.Contains(t, empty, "No forecast")
}

func TestRenderLog(t *testing.T) {
	log := sampleResult().ExecutionLog

	var buf bytes.Buffer
	require.NoError(t, RenderLog(&buf, log, "csv"))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(logHeader, ","), lines[0])

	buf.Reset()
	require.NoError(t, RenderLog(&buf, nil, "text"))
	assert.Contains(t, buf.String(), "No execution log entries")

	buf.Reset()
	require.NoError(t, RenderLog(&buf, log, "json"))
	var decoded []entities.ExecutionLogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Len(t, decoded, 2)
}

func TestRenderRunsAndMarkdown(t *testing.T) {
	var buf bytes.Buffer
	runs := []dto.RunSummary{{RunID: "run-1", Category: "dresses", State: "complete", Week: 3}}
	require.NoError(t, RenderRuns(&buf, runs, "text"))
	assert.Contains(t, buf.String(), "run-1")

	buf.Reset()
	require.NoError(t, RenderMarkdown(&buf, entities.MarkdownResult{MarkdownPct: 40, Capped: true}, "text"))
	assert.Contains(t, buf.String(), "40%")

	assert.Error(t, RenderRuns(&buf, runs, "csv"))
}
