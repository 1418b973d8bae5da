package csv

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

// Loader handles loading planning data from CSV and YAML files
type Loader struct{}

// NewLoader creates a new CSV loader
func NewLoader() *Loader {
	return &Loader{}
}

// LoadSales loads historical sales from a CSV file
func (l *Loader) LoadSales(filename string) ([]*entities.SalesRecord, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open sales file %s: %w", filename, err)
	}
	defer file.Close()

	return l.ReadSales(file)
}

// ReadSales parses historical sales rows: date,store_id,category,quantity
func (l *Loader) ReadSales(r io.Reader) ([]*entities.SalesRecord, error) {
	expectedHeader := []string{"date", "store_id", "category", "quantity"}
	records, err := readTable(r, "sales", expectedHeader)
	if err != nil {
		return nil, err
	}

	var sales []*entities.SalesRecord
	for i, record := range records {
		sale, err := parseSale(record)
		if err != nil {
			return nil, fmt.Errorf("sales CSV row %d: %w", i+2, err)
		}
		sales = append(sales, &sale)
	}

	return sales, nil
}

// LoadStores loads store attributes from a CSV file
func (l *Loader) LoadStores(filename string) ([]*entities.Store, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open stores file %s: %w", filename, err)
	}
	defer file.Close()

	return l.ReadStores(file)
}

// ReadStores parses store attribute rows
func (l *Loader) ReadStores(r io.Reader) ([]*entities.Store, error) {
	expectedHeader := []string{"store_id", "size_sqft", "median_income", "location_tier", "fashion_tier", "store_format", "region"}
	records, err := readTable(r, "stores", expectedHeader)
	if err != nil {
		return nil, err
	}

	var stores []*entities.Store
	for i, record := range records {
		store, err := parseStore(record)
		if err != nil {
			return nil, fmt.Errorf("stores CSV row %d: %w", i+2, err)
		}
		stores = append(stores, store)
	}

	return stores, nil
}

// LoadActuals loads a weekly actuals upload from a CSV file
func (l *Loader) LoadActuals(filename string) ([]entities.ActualRecord, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open actuals file %s: %w", filename, err)
	}
	defer file.Close()

	return l.ReadActuals(file)
}

// ReadActuals parses actuals rows: store_id,week_number,units_sold
func (l *Loader) ReadActuals(r io.Reader) ([]entities.ActualRecord, error) {
	expectedHeader := []string{"store_id", "week_number", "units_sold"}
	records, err := readTable(r, "actuals", expectedHeader)
	if err != nil {
		return nil, err
	}

	actuals := make([]entities.ActualRecord, 0, len(records))
	for i, record := range records {
		week, err := strconv.Atoi(strings.TrimSpace(record[1]))
		if err != nil {
			return nil, fmt.Errorf("actuals CSV row %d: invalid week_number: %s", i+2, record[1])
		}
		units, err := strconv.ParseInt(strings.TrimSpace(record[2]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("actuals CSV row %d: invalid units_sold: %s", i+2, record[2])
		}
		actual, err := entities.NewActualRecord(entities.StoreID(strings.TrimSpace(record[0])), week, entities.Quantity(units))
		if err != nil {
			return nil, fmt.Errorf("actuals CSV row %d: %w", i+2, err)
		}
		actuals = append(actuals, *actual)
	}

	return actuals, nil
}

// seasonFile is the YAML shape of a confirmed parameter record
type seasonFile struct {
	Category               string   `yaml:"category"`
	ForecastHorizonWeeks   int      `yaml:"forecast_horizon_weeks"`
	SeasonStartDate        string   `yaml:"season_start_date"`
	ReplenishmentStrategy  string   `yaml:"replenishment_strategy"`
	DCHoldbackPercentage   float64  `yaml:"dc_holdback_percentage"`
	MarkdownCheckpointWeek *int     `yaml:"markdown_checkpoint_week"`
	MarkdownThreshold      *float64 `yaml:"markdown_threshold"`
}

// LoadParameters loads a validated SeasonParameters record from a YAML file
func (l *Loader) LoadParameters(filename string) (*entities.SeasonParameters, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open parameters file %s: %w", filename, err)
	}
	return l.ParseParameters(data)
}

// ParseParameters decodes and validates a YAML parameter record
func (l *Loader) ParseParameters(data []byte) (*entities.SeasonParameters, error) {
	var raw seasonFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid parameters yaml: %w", err)
	}

	start, err := time.Parse("2006-01-02", strings.TrimSpace(raw.SeasonStartDate))
	if err != nil {
		return nil, fmt.Errorf("invalid season_start_date format: %s (expected YYYY-MM-DD)", raw.SeasonStartDate)
	}
	strategy, err := entities.ParseReplenishmentStrategy(raw.ReplenishmentStrategy)
	if err != nil {
		return nil, err
	}

	params, err := entities.NewSeasonParameters(raw.Category, raw.ForecastHorizonWeeks, start, strategy, raw.DCHoldbackPercentage)
	if err != nil {
		return nil, err
	}
	if raw.MarkdownCheckpointWeek != nil || raw.MarkdownThreshold != nil {
		if raw.MarkdownCheckpointWeek == nil || raw.MarkdownThreshold == nil {
			return nil, fmt.Errorf("markdown_checkpoint_week and markdown_threshold must be set together")
		}
		return params.WithMarkdownCheckpoint(*raw.MarkdownCheckpointWeek, *raw.MarkdownThreshold)
	}
	return params, nil
}

// Helper functions for parsing CSV records

func readTable(r io.Reader, name string, expectedHeader []string) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s CSV: %w", name, err)
	}

	if len(records) < 2 {
		return nil, fmt.Errorf("%s CSV must have header and at least one data row", name)
	}

	header := records[0]
	if !validateHeader(header, expectedHeader) {
		return nil, fmt.Errorf("%s CSV header mismatch. Expected: %v, Got: %v", name, expectedHeader, header)
	}

	rows := records[1:]
	for i, record := range rows {
		if len(record) != len(expectedHeader) {
			return nil, fmt.Errorf("%s CSV row %d: expected %d columns, got %d", name, i+2, len(expectedHeader), len(record))
		}
	}
	return rows, nil
}

func validateHeader(actual, expected []string) bool {
	if len(actual) != len(expected) {
		return false
	}

	for i, col := range expected {
		if strings.ToLower(strings.TrimSpace(actual[i])) != col {
			return false
		}
	}

	return true
}

func parseSale(record []string) (entities.SalesRecord, error) {
	date, err := time.Parse("2006-01-02", strings.TrimSpace(record[0]))
	if err != nil {
		return entities.SalesRecord{}, fmt.Errorf("invalid date format: %s (expected YYYY-MM-DD)", record[0])
	}

	storeID := strings.TrimSpace(record[1])
	if storeID == "" {
		return entities.SalesRecord{}, fmt.Errorf("store_id cannot be empty")
	}

	category := strings.TrimSpace(record[2])
	if category == "" {
		return entities.SalesRecord{}, fmt.Errorf("category cannot be empty")
	}

	quantity, err := strconv.ParseFloat(strings.TrimSpace(record[3]), 64)
	if err != nil {
		return entities.SalesRecord{}, fmt.Errorf("invalid quantity: %s", record[3])
	}
	if quantity < 0 {
		return entities.SalesRecord{}, fmt.Errorf("quantity cannot be negative: %s", record[3])
	}

	return entities.SalesRecord{
		Date:     date,
		StoreID:  entities.StoreID(storeID),
		Category: category,
		Quantity: entities.Quantity(quantity + 0.5),
	}, nil
}

func parseStore(record []string) (*entities.Store, error) {
	size, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid size_sqft: %s", record[1])
	}

	income, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid median_income: %s", record[2])
	}

	locationTier, err := parseTier(record[3])
	if err != nil {
		return nil, fmt.Errorf("invalid location_tier: %w", err)
	}

	fashionTier, err := parseTier(record[4])
	if err != nil {
		return nil, fmt.Errorf("invalid fashion_tier: %w", err)
	}

	return entities.NewStore(
		entities.StoreID(strings.TrimSpace(record[0])),
		size,
		income,
		locationTier,
		fashionTier,
		strings.ToLower(strings.TrimSpace(record[5])),
		strings.ToLower(strings.TrimSpace(record[6])),
	)
}

// parseTier accepts numeric tiers or letter grades, where A is the highest
func parseTier(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "A":
		return 3, nil
	case "B":
		return 2, nil
	case "C":
		return 1, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s (expected A, B, C, or a number)", s)
	}
	return v, nil
}
