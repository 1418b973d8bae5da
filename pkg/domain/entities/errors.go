package entities

import (
	"fmt"
	"time"
)

// InsufficientHistoryError is returned when a forecast model receives too little history
type InsufficientHistoryError struct {
	Weeks    int
	Required int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history: %d weeks available, %d required", e.Weeks, e.Required)
}

// ModelConvergenceError is a single sub-model failure inside the ensemble
type ModelConvergenceError struct {
	Model  string
	Reason string
}

func (e *ModelConvergenceError) Error() string {
	return fmt.Sprintf("model %s failed to converge: %s", e.Model, e.Reason)
}

// EnsembleForecastError is returned when both forecast models fail
type EnsembleForecastError struct {
	PrimaryErr   error
	SecondaryErr error
}

func (e *EnsembleForecastError) Error() string {
	return fmt.Sprintf("ensemble forecast failed: primary: %v; secondary: %v", e.PrimaryErr, e.SecondaryErr)
}

// Unwrap exposes both model failures to errors.Is / errors.As
func (e *EnsembleForecastError) Unwrap() []error {
	var errs []error
	if e.PrimaryErr != nil {
		errs = append(errs, e.PrimaryErr)
	}
	if e.SecondaryErr != nil {
		errs = append(errs, e.SecondaryErr)
	}
	return errs
}

// ClusteringQualityWarning flags a low silhouette score; it is logged, never returned as a failure
type ClusteringQualityWarning struct {
	Silhouette float64
	Threshold  float64
}

func (e *ClusteringQualityWarning) Error() string {
	return fmt.Sprintf("clustering quality warning: silhouette %.3f below %.2f", e.Silhouette, e.Threshold)
}

// AllocationConstraintError is returned when a store cannot receive its minimum forecast cover
type AllocationConstraintError struct {
	StoreID   StoreID
	Required  Quantity
	Available Quantity
	Reason    string
}

func (e *AllocationConstraintError) Error() string {
	if e.StoreID == "" {
		return fmt.Sprintf("allocation constraint violated: %s", e.Reason)
	}
	return fmt.Sprintf("allocation constraint violated for store %s: requires %d units, %d allocatable",
		e.StoreID, e.Required, e.Available)
}

// DataNotFoundError names the missing input artifact
type DataNotFoundError struct {
	Artifact string
	Category string
	Err      error
}

func (e *DataNotFoundError) Error() string {
	msg := fmt.Sprintf("required data not found: %s", e.Artifact)
	if e.Category != "" {
		msg += fmt.Sprintf(" (category %s)", e.Category)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *DataNotFoundError) Unwrap() error {
	return e.Err
}

// StepTimeoutError is returned when a step exceeds its wall-clock budget
type StepTimeoutError struct {
	Step    string
	Timeout time.Duration
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("step %s timed out after %s", e.Step, e.Timeout)
}

// MaxReforecastIterationsExceeded is a non-fatal signal that the reforecast cycle was capped
type MaxReforecastIterationsExceeded struct {
	Week  int
	Limit int
}

func (e *MaxReforecastIterationsExceeded) Error() string {
	return fmt.Sprintf("reforecast iterations for week %d exceeded limit of %d; keeping latest forecast", e.Week, e.Limit)
}

// ContractError rejects a malformed handoff between steps
type ContractError struct {
	Step   string
	Field  string
	Reason string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("invalid handoff to %s: %s: %s", e.Step, e.Field, e.Reason)
}
