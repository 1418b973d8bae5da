package entities

import "time"

// StepStatus is the terminal outcome of one coordinator-mediated call
type StepStatus string

const (
	StatusSuccess StepStatus = "success"
	StatusTimeout StepStatus = "timeout"
	StatusError   StepStatus = "error"
)

// ExecutionLogEntry records one step invocation; entries are append-only
type ExecutionLogEntry struct {
	RunID        string     `json:"run_id"`
	Sequence     int        `json:"sequence"`
	StepName     string     `json:"step_name"`
	StartedAt    time.Time  `json:"started_at"`
	DurationMs   int64      `json:"duration_ms"`
	Status       StepStatus `json:"status"`
	InputDigest  string     `json:"input_digest"`
	OutputDigest string     `json:"output_digest"`
	Cause        string     `json:"cause,omitempty"`
}
