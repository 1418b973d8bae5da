package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vsinha/seasonplan/pkg/application/dto"
	"github.com/vsinha/seasonplan/pkg/application/services/dataset"
	"github.com/vsinha/seasonplan/pkg/application/services/forecast/forecasttest"
	"github.com/vsinha/seasonplan/pkg/application/services/orchestration"
	testhelpers "github.com/vsinha/seasonplan/pkg/application/services/testing"
	"github.com/vsinha/seasonplan/pkg/domain/entities"
	"github.com/vsinha/seasonplan/pkg/infrastructure/config"
	"github.com/vsinha/seasonplan/pkg/infrastructure/repositories/csv"
)

// openTestEnvironment builds an environment over the synthetic retail dataset
// and a flat 1000 units/week forecast, persisting to dbPath
func openTestEnvironment(t *testing.T, dbPath string) (*Environment, *bytes.Buffer) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	cfg := config.Default()
	cfg.Database.Path = dbPath

	loader := dataset.NewLoader(dataset.Files{}, logger)
	loader.Put(testhelpers.BuildRetailDataset())
	services := cfg.Services(logger)
	services.Forecast = forecasttest.FlatEngine(1000, logger)

	env, err := newEnvironment(cfg, logger, services, loader)
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })

	var out bytes.Buffer
	env.Out = &out
	return env, &out
}

func writeSeason(t *testing.T, dir string, extra string) string {
	t.Helper()
	path := filepath.Join(dir, "season.yml")
	content := fmt.Sprintf(`category: dresses
forecast_horizon_weeks: 12
season_start_date: %s
replenishment_strategy: none
dc_holdback_percentage: 0
%s`, testhelpers.SeasonStart.Format("2006-01-02"), extra)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// writeActuals writes perStore units for each of S01..S10 in the given week
func writeActuals(t *testing.T, path string, week int, perStore int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("store_id,week_number,units_sold\n")
	for s := 1; s <= 10; s++ {
		fmt.Fprintf(&b, "S%02d,%d,%d\n", s, week, perStore)
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

func planRun(t *testing.T, env *Environment, dir string) *dto.WorkflowResult {
	t.Helper()
	result, err := NewPlanCommand(env, PlanConfig{ParametersFile: writeSeason(t, dir, "")}).Execute(context.Background())
	require.NoError(t, err)
	return result
}

func TestPlanCommand(t *testing.T) {
	dir := t.TempDir()
	env, out := openTestEnvironment(t, filepath.Join(dir, "state.db"))

	result := planRun(t, env, dir)
	require.NotNil(t, result.Forecast)
	assert.Equal(t, entities.Quantity(12000), result.Forecast.TotalDemand)
	require.NotNil(t, result.Allocation)
	assert.Equal(t, entities.Quantity(15000), result.Allocation.ManufacturingOrder)
	assert.Contains(t, out.String(), "Manufacturing order 15000")

	ctx := context.Background()
	log, err := env.Store.ListLog(ctx, result.RunID)
	require.NoError(t, err)
	assert.Len(t, log, 3)

	stored, err := env.Store.LoadResult(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, result.RunID, stored.RunID)

	_, err = NewPlanCommand(env, PlanConfig{}).Execute(ctx)
	assert.Error(t, err)
	_, err = NewPlanCommand(env, PlanConfig{ParametersFile: filepath.Join(dir, "missing.yml")}).Execute(ctx)
	assert.Error(t, err)
}

func TestPlanCommand_LogsReplenishmentByName(t *testing.T) {
	testCases := []struct {
		name     string
		strategy string
		want     string
	}{
		{"none", "none", "none"},
		{"weekly", "weekly", "weekly"},
		{"bi-weekly", "bi-weekly", "bi-weekly"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			env, _ := openTestEnvironment(t, filepath.Join(dir, "state.db"))
			core, logs := observer.New(zapcore.InfoLevel)
			env.Logger = zap.New(core)

			path := filepath.Join(dir, "season.yml")
			require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(
				"category: dresses\nforecast_horizon_weeks: 12\nseason_start_date: %s\nreplenishment_strategy: %s\ndc_holdback_percentage: 0.3\n",
				testhelpers.SeasonStart.Format("2006-01-02"), tc.strategy)), 0o644))

			_, err := NewPlanCommand(env, PlanConfig{ParametersFile: path}).Execute(context.Background())
			require.NoError(t, err)

			planning := logs.FilterMessage("planning season").All()
			require.Len(t, planning, 1)
			assert.Equal(t, tc.want, planning[0].ContextMap()["replenishment"])
		})
	}
}

func TestPlanCommand_FailedRunPrintsLog(t *testing.T) {
	dir := t.TempDir()
	env, out := openTestEnvironment(t, filepath.Join(dir, "state.db"))

	path := filepath.Join(dir, "shoes.yml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(
		"category: shoes\nforecast_horizon_weeks: 12\nseason_start_date: %s\n",
		testhelpers.SeasonStart.Format("2006-01-02"))), 0o644))

	_, err := NewPlanCommand(env, PlanConfig{ParametersFile: path}).Execute(context.Background())
	var notFound *entities.DataNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Contains(t, out.String(), "assemble")
}

func TestActualsCommand_ContinuesAcrossProcesses(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.db")
	ctx := context.Background()

	env, _ := openTestEnvironment(t, dbPath)
	runID := planRun(t, env, dir).RunID

	week1 := filepath.Join(dir, "week1.csv")
	writeActuals(t, week1, 1, 100)
	result, err := NewActualsCommand(env, ActualsConfig{RunID: runID, ActualsFile: week1}).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Week)
	require.NotNil(t, result.Variance)
	assert.False(t, result.Variance.ShouldReforecast)
	require.NoError(t, env.Close())

	// a fresh environment restores the run from the database
	env, out := openTestEnvironment(t, dbPath)
	week2 := filepath.Join(dir, "week2.csv")
	writeActuals(t, week2, 2, 100)
	result, err = NewActualsCommand(env, ActualsConfig{RunID: runID, ActualsFile: week2}).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Week)
	require.NotNil(t, result.Variance)
	assert.Equal(t, 2, result.Variance.WeeksObserved)
	assert.Nil(t, result.Reforecast)
	assert.Contains(t, out.String(), "Variance")

	// a rejected upload is logged and survives the next restore
	late := filepath.Join(dir, "week13.csv")
	writeActuals(t, late, 13, 100)
	_, err = NewActualsCommand(env, ActualsConfig{RunID: runID, ActualsFile: late}).Execute(ctx)
	var contractErr *entities.ContractError
	require.ErrorAs(t, err, &contractErr)
	require.NoError(t, env.Close())

	env, _ = openTestEnvironment(t, dbPath)
	week3 := filepath.Join(dir, "week3.csv")
	writeActuals(t, week3, 3, 100)
	result, err = NewActualsCommand(env, ActualsConfig{RunID: runID, ActualsFile: week3}).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Week)

	log, err := env.Store.ListLog(ctx, runID)
	require.NoError(t, err)
	rejected := 0
	for i, e := range log {
		assert.Equal(t, i+1, e.Sequence)
		if e.StepName == orchestration.StepIntake && e.Status == entities.StatusError {
			rejected++
		}
	}
	assert.Equal(t, 1, rejected)

	_, err = NewActualsCommand(env, ActualsConfig{RunID: "missing", ActualsFile: week2}).Execute(ctx)
	assert.Error(t, err)
}

func TestLogRunsAndShowCommands(t *testing.T) {
	dir := t.TempDir()
	env, out := openTestEnvironment(t, filepath.Join(dir, "state.db"))
	runID := planRun(t, env, dir).RunID
	ctx := context.Background()

	out.Reset()
	require.NoError(t, NewLogCommand(env, LogConfig{RunID: runID, Format: "csv"}).Execute(ctx))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[1], "1,assemble,"))

	out.Reset()
	require.NoError(t, NewRunsCommand(env, LogConfig{Format: "text"}).Execute(ctx))
	assert.Contains(t, out.String(), runID)

	out.Reset()
	require.NoError(t, NewShowCommand(env, runID, OutputConfig{Format: "json"}).Execute(ctx))
	assert.Contains(t, out.String(), `"run_id": "`+runID+`"`)

	assert.Error(t, NewLogCommand(env, LogConfig{}).Execute(ctx))
	assert.Error(t, NewShowCommand(env, "missing", OutputConfig{}).Execute(ctx))
}

func TestMarkdownCommand(t *testing.T) {
	env, out := openTestEnvironment(t, filepath.Join(t.TempDir(), "state.db"))

	result, err := NewMarkdownCommand(env, MarkdownConfig{SellThrough: 0.1, Target: 0.9}).Execute()
	require.NoError(t, err)
	assert.Equal(t, 40, result.MarkdownPct)
	assert.True(t, result.Capped)
	assert.Contains(t, out.String(), "40%")

	_, err = NewMarkdownCommand(env, MarkdownConfig{SellThrough: 1.5, Target: 0.6}).Execute()
	assert.Error(t, err)
}

func TestGenerateCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultGenerateConfig()
	cfg.OutputDir = dir
	require.NoError(t, NewGenerateCommand(cfg).Execute())

	loader := csv.NewLoader()
	stores, err := loader.LoadStores(filepath.Join(dir, "stores.csv"))
	require.NoError(t, err)
	assert.Len(t, stores, 12)

	sales, err := loader.LoadSales(filepath.Join(dir, "sales.csv"))
	require.NoError(t, err)
	assert.Len(t, sales, 12*104)

	params, err := loader.LoadParameters(filepath.Join(dir, "season.yml"))
	require.NoError(t, err)
	assert.Equal(t, "dresses", params.Category)
	assert.Equal(t, entities.ReplenishmentWeekly, params.ReplenishmentStrategy)
	require.NotNil(t, params.MarkdownCheckpointWeek)
	assert.Equal(t, 8, *params.MarkdownCheckpointWeek)

	for week := 1; week <= cfg.ActualWeeks; week++ {
		actuals, err := loader.LoadActuals(filepath.Join(dir, "actuals", fmt.Sprintf("week_%02d.csv", week)))
		require.NoError(t, err)
		assert.Len(t, actuals, 12)
	}

	bad := cfg
	bad.Stores = 2
	assert.Error(t, NewGenerateCommand(bad).Execute())
}

func TestWatchCommand(t *testing.T) {
	dir := t.TempDir()
	env, _ := openTestEnvironment(t, filepath.Join(dir, "state.db"))
	runID := planRun(t, env, dir).RunID

	inbox := filepath.Join(dir, "inbox")
	require.NoError(t, os.MkdirAll(inbox, 0o755))
	// present before the watcher starts, and malformed
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "a_bad.csv"), []byte("store,week\nS01,1\n"), 0o644))

	type handled struct {
		path   string
		result *dto.WorkflowResult
		err    error
	}
	done := make(chan handled, 4)

	cmd := NewWatchCommand(env, WatchConfig{RunID: runID, Dir: inbox, Debounce: 50 * time.Millisecond})
	cmd.onProcessed = func(path string, result *dto.WorkflowResult, err error) {
		done <- handled{path, result, err}
	}

	ctx, cancel := context.WithCancel(context.Background())
	exited := make(chan error, 1)
	go func() { exited <- cmd.Execute(ctx) }()

	first := <-done
	assert.Equal(t, "a_bad.csv", filepath.Base(first.path))
	assert.Error(t, first.err)
	assert.FileExists(t, filepath.Join(inbox, failedDir, "a_bad.csv"))

	writeActuals(t, filepath.Join(inbox, "week1.csv"), 1, 100)
	select {
	case second := <-done:
		require.NoError(t, second.err)
		require.NotNil(t, second.result)
		assert.Equal(t, 1, second.result.Week)
		assert.FileExists(t, filepath.Join(inbox, processedDir, "week1.csv"))
		assert.NoFileExists(t, filepath.Join(inbox, "week1.csv"))
	case <-time.After(5 * time.Second):
		t.Fatal("upload was not processed")
	}

	cancel()
	select {
	case err := <-exited:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatchCommand_RequiresKnownRun(t *testing.T) {
	env, _ := openTestEnvironment(t, filepath.Join(t.TempDir(), "state.db"))
	err := NewWatchCommand(env, WatchConfig{RunID: "missing", Dir: t.TempDir()}).Execute(context.Background())
	assert.Error(t, err)
}
