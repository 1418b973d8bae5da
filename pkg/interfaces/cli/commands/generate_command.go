package commands

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/vsinha/seasonplan/pkg/application/services/forecast"
)

// GenerateConfig holds configuration for scenario generation
type GenerateConfig struct {
	Category    string
	Stores      int     // number of stores
	Weeks       int     // weeks of sales history
	Horizon     int     // season length written to season.yml
	ActualWeeks int     // weeks of in-season actuals to generate
	Surge       float64 // multiplier on in-season sales, 1.0 = on plan
	OutputDir   string
	Seed        int64
	Verbose     bool
}

// DefaultGenerateConfig is a two-year, twelve-store scenario
func DefaultGenerateConfig() GenerateConfig {
	return GenerateConfig{
		Category:    "dresses",
		Stores:      12,
		Weeks:       104,
		Horizon:     12,
		ActualWeeks: 4,
		Surge:       1.0,
		OutputDir:   "data",
		Seed:        1,
	}
}

// GenerateCommand writes a synthetic planning scenario: sales.csv, stores.csv,
// season.yml and one actuals file per in-season week
type GenerateCommand struct {
	config GenerateConfig
	rand   *rand.Rand
}

type storeProfile struct {
	id      string
	size    float64
	income  float64
	tier    int
	format  string
	region  string
	weight  float64
	fashion int
}

// scenarioStart is a Monday so history weeks align with calendar weeks
var scenarioStart = time.Date(2023, time.January, 2, 0, 0, 0, 0, time.UTC)

// NewGenerateCommand creates a new generate command
func NewGenerateCommand(config GenerateConfig) *GenerateCommand {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &GenerateCommand{
		config: config,
		rand:   rand.New(rand.NewSource(seed)),
	}
}

// Execute writes the scenario files
func (cmd *GenerateCommand) Execute() error {
	if cmd.config.Stores < 3 {
		return fmt.Errorf("at least 3 stores are required, got %d", cmd.config.Stores)
	}
	if cmd.config.Weeks < forecast.MinHistoryWeeks {
		return fmt.Errorf("at least %d weeks of history are required, got %d", forecast.MinHistoryWeeks, cmd.config.Weeks)
	}
	if cmd.config.ActualWeeks > cmd.config.Horizon {
		return fmt.Errorf("actual weeks %d exceed the horizon %d", cmd.config.ActualWeeks, cmd.config.Horizon)
	}
	if err := os.MkdirAll(filepath.Join(cmd.config.OutputDir, "actuals"), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	stores := cmd.generateStores()
	if err := cmd.writeStores(stores); err != nil {
		return fmt.Errorf("failed to generate stores: %w", err)
	}
	series := cmd.generateSeries(cmd.config.Weeks + cmd.config.Horizon)
	if err := cmd.writeSales(stores, series[:cmd.config.Weeks]); err != nil {
		return fmt.Errorf("failed to generate sales: %w", err)
	}
	if err := cmd.writeSeason(); err != nil {
		return fmt.Errorf("failed to generate season parameters: %w", err)
	}
	for week := 1; week <= cmd.config.ActualWeeks; week++ {
		units := series[cmd.config.Weeks+week-1] * cmd.config.Surge
		if err := cmd.writeActuals(stores, week, units); err != nil {
			return fmt.Errorf("failed to generate actuals for week %d: %w", week, err)
		}
	}

	if cmd.config.Verbose {
		fmt.Printf("Generated %d stores, %d history weeks and %d actuals weeks in %s\n",
			len(stores), cmd.config.Weeks, cmd.config.ActualWeeks, cmd.config.OutputDir)
	}
	return nil
}

// generateStores splits the chain into flagship, mall and outlet thirds
func (cmd *GenerateCommand) generateStores() []storeProfile {
	formats := []struct {
		name           string
		size, income   float64
		tier, fashion  int
		relativeWeight float64
	}{
		{"flagship", 13000, 105000, 3, 3, 4},
		{"mall", 7500, 70000, 2, 2, 2},
		{"outlet", 3600, 40000, 1, 1, 1},
	}
	regions := []string{"east", "west", "central", "south"}

	stores := make([]storeProfile, cmd.config.Stores)
	var total float64
	for i := range stores {
		f := formats[i*len(formats)/len(stores)]
		jitter := 0.9 + 0.2*cmd.rand.Float64()
		stores[i] = storeProfile{
			id:      fmt.Sprintf("S%02d", i+1),
			size:    math.Round(f.size * jitter),
			income:  math.Round(f.income * jitter),
			tier:    f.tier,
			fashion: f.fashion,
			format:  f.name,
			region:  regions[cmd.rand.Intn(len(regions))],
			weight:  f.relativeWeight * jitter,
		}
		total += stores[i].weight
	}
	for i := range stores {
		stores[i].weight /= total
	}
	return stores
}

// generateSeries is base + trend + yearly sine + noise, never negative
func (cmd *GenerateCommand) generateSeries(weeks int) []float64 {
	values := make([]float64, weeks)
	for t := range values {
		v := 1000 + 2*float64(t) + 300*math.Sin(2*math.Pi*float64(t)/52) + cmd.rand.NormFloat64()*25
		values[t] = math.Max(0, math.Round(v))
	}
	return values
}

func (cmd *GenerateCommand) writeStores(stores []storeProfile) error {
	file, err := os.Create(filepath.Join(cmd.config.OutputDir, "stores.csv"))
	if err != nil {
		return err
	}
	defer file.Close()

	fmt.Fprintln(file, "store_id,size_sqft,median_income,location_tier,fashion_tier,store_format,region")
	for _, s := range stores {
		fmt.Fprintf(file, "%s,%.0f,%.0f,%d,%d,%s,%s\n", s.id, s.size, s.income, s.tier, s.fashion, s.format, s.region)
	}
	return file.Close()
}

func (cmd *GenerateCommand) writeSales(stores []storeProfile, series []float64) error {
	file, err := os.Create(filepath.Join(cmd.config.OutputDir, "sales.csv"))
	if err != nil {
		return err
	}
	defer file.Close()

	fmt.Fprintln(file, "date,store_id,category,quantity")
	for week, total := range series {
		date := scenarioStart.AddDate(0, 0, 7*week).Format("2006-01-02")
		for _, s := range stores {
			fmt.Fprintf(file, "%s,%s,%s,%.0f\n", date, s.id, cmd.config.Category, math.Round(total*s.weight))
		}
	}
	return file.Close()
}

func (cmd *GenerateCommand) writeSeason() error {
	start := scenarioStart.AddDate(0, 0, 7*cmd.config.Weeks)
	content := fmt.Sprintf(`category: %s
forecast_horizon_weeks: %d
season_start_date: %s
replenishment_strategy: weekly
dc_holdback_percentage: 0.45
markdown_checkpoint_week: %d
markdown_threshold: 0.6
`, cmd.config.Category, cmd.config.Horizon, start.Format("2006-01-02"), max(1, cmd.config.Horizon*2/3))
	return os.WriteFile(filepath.Join(cmd.config.OutputDir, "season.yml"), []byte(content), 0o644)
}

func (cmd *GenerateCommand) writeActuals(stores []storeProfile, week int, units float64) error {
	file, err := os.Create(filepath.Join(cmd.config.OutputDir, "actuals", fmt.Sprintf("week_%02d.csv", week)))
	if err != nil {
		return err
	}
	defer file.Close()

	fmt.Fprintln(file, "store_id,week_number,units_sold")
	for _, s := range stores {
		fmt.Fprintf(file, "%s,%d,%.0f\n", s.id, week, math.Round(units*s.weight))
	}
	return file.Close()
}
