package entities

import (
	"fmt"
	"strings"
	"time"
)

// ReplenishmentStrategy controls how DC holdback is shipped to stores in-season
type ReplenishmentStrategy int

const (
	ReplenishmentNone ReplenishmentStrategy = iota
	ReplenishmentWeekly
	ReplenishmentBiWeekly
)

// String method for ReplenishmentStrategy enum
func (r ReplenishmentStrategy) String() string {
	switch r {
	case ReplenishmentNone:
		return "none"
	case ReplenishmentWeekly:
		return "weekly"
	case ReplenishmentBiWeekly:
		return "bi-weekly"
	default:
		return "unknown"
	}
}

// IntervalWeeks returns the number of weeks between shipments, 0 for none
func (r ReplenishmentStrategy) IntervalWeeks() int {
	switch r {
	case ReplenishmentWeekly:
		return 1
	case ReplenishmentBiWeekly:
		return 2
	default:
		return 0
	}
}

// SafetyStockPct returns the deterministic safety stock buffer for the strategy.
// Less frequent replenishment needs a larger buffer.
func (r ReplenishmentStrategy) SafetyStockPct() float64 {
	switch r {
	case ReplenishmentWeekly:
		return 0.20
	case ReplenishmentBiWeekly:
		return 0.22
	default:
		return 0.25
	}
}

// MarshalText encodes the strategy as its string form
func (r ReplenishmentStrategy) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes the strategy from its string form
func (r *ReplenishmentStrategy) UnmarshalText(text []byte) error {
	parsed, err := ParseReplenishmentStrategy(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseReplenishmentStrategy parses none | weekly | bi-weekly
func ParseReplenishmentStrategy(s string) (ReplenishmentStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return ReplenishmentNone, nil
	case "weekly":
		return ReplenishmentWeekly, nil
	case "bi-weekly", "biweekly", "bi_weekly":
		return ReplenishmentBiWeekly, nil
	default:
		return ReplenishmentNone, fmt.Errorf("invalid replenishment strategy: %s (expected: none, weekly, or bi-weekly)", s)
	}
}

const (
	MinHorizonWeeks = 4
	MaxHorizonWeeks = 52
)

// SeasonParameters is the confirmed planning input for one category season.
// Values are fixed once constructed; downstream steps receive copies.
type SeasonParameters struct {
	Category               string                `json:"category" yaml:"category"`
	ForecastHorizonWeeks   int                   `json:"forecast_horizon_weeks" yaml:"forecast_horizon_weeks"`
	SeasonStartDate        time.Time             `json:"season_start_date" yaml:"season_start_date"`
	SeasonEndDate          time.Time             `json:"season_end_date" yaml:"season_end_date"`
	ReplenishmentStrategy  ReplenishmentStrategy `json:"replenishment_strategy" yaml:"replenishment_strategy"`
	DCHoldbackPercentage   float64               `json:"dc_holdback_percentage" yaml:"dc_holdback_percentage"`
	MarkdownCheckpointWeek *int                  `json:"markdown_checkpoint_week,omitempty" yaml:"markdown_checkpoint_week,omitempty"`
	MarkdownThreshold      *float64              `json:"markdown_threshold,omitempty" yaml:"markdown_threshold,omitempty"`
}

// NewSeasonParameters creates validated parameters; the end date is derived from the horizon
func NewSeasonParameters(
	category string,
	horizonWeeks int,
	start time.Time,
	strategy ReplenishmentStrategy,
	dcHoldback float64,
) (*SeasonParameters, error) {
	p := &SeasonParameters{
		Category:              category,
		ForecastHorizonWeeks:  horizonWeeks,
		SeasonStartDate:       start,
		SeasonEndDate:         start.AddDate(0, 0, 7*horizonWeeks),
		ReplenishmentStrategy: strategy,
		DCHoldbackPercentage:  dcHoldback,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// WithMarkdownCheckpoint returns a copy with the markdown checkpoint configured
func (p SeasonParameters) WithMarkdownCheckpoint(week int, threshold float64) (*SeasonParameters, error) {
	p.MarkdownCheckpointWeek = &week
	p.MarkdownThreshold = &threshold
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks ranges and the end-date invariant
func (p SeasonParameters) Validate() error {
	if p.Category == "" {
		return fmt.Errorf("category cannot be empty")
	}
	if p.ForecastHorizonWeeks < MinHorizonWeeks || p.ForecastHorizonWeeks > MaxHorizonWeeks {
		return fmt.Errorf("forecast horizon must be between %d and %d weeks, got %d",
			MinHorizonWeeks, MaxHorizonWeeks, p.ForecastHorizonWeeks)
	}
	if p.SeasonStartDate.IsZero() {
		return fmt.Errorf("season start date is required")
	}
	expectedEnd := p.SeasonStartDate.AddDate(0, 0, 7*p.ForecastHorizonWeeks)
	if !p.SeasonEndDate.Equal(expectedEnd) {
		return fmt.Errorf("season end date %s does not match start + %d weeks (%s)",
			p.SeasonEndDate.Format("2006-01-02"), p.ForecastHorizonWeeks, expectedEnd.Format("2006-01-02"))
	}
	if p.ReplenishmentStrategy < ReplenishmentNone || p.ReplenishmentStrategy > ReplenishmentBiWeekly {
		return fmt.Errorf("invalid replenishment strategy %d", p.ReplenishmentStrategy)
	}
	if p.DCHoldbackPercentage < 0 || p.DCHoldbackPercentage > 1 {
		return fmt.Errorf("dc holdback percentage must be between 0 and 1, got %.4f", p.DCHoldbackPercentage)
	}
	if p.MarkdownCheckpointWeek != nil {
		week := *p.MarkdownCheckpointWeek
		if week < 1 || week > p.ForecastHorizonWeeks {
			return fmt.Errorf("markdown checkpoint week must be within the season (1-%d), got %d",
				p.ForecastHorizonWeeks, week)
		}
	}
	if p.MarkdownThreshold != nil {
		if *p.MarkdownThreshold < 0 || *p.MarkdownThreshold > 1 {
			return fmt.Errorf("markdown threshold must be between 0 and 1, got %.4f", *p.MarkdownThreshold)
		}
	}
	return nil
}

// SafetyStockPct returns the safety stock buffer implied by the replenishment strategy
func (p SeasonParameters) SafetyStockPct() float64 {
	return p.ReplenishmentStrategy.SafetyStockPct()
}

// HasMarkdownCheckpoint reports whether both checkpoint week and threshold are configured
func (p SeasonParameters) HasMarkdownCheckpoint() bool {
	return p.MarkdownCheckpointWeek != nil && p.MarkdownThreshold != nil
}
