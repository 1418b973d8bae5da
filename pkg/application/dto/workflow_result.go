package dto

import (
	"time"

	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

// WorkflowResult is the exported result bundle of a workflow run.
// Optional results are nil when the step did not run and encode as null.
type WorkflowResult struct {
	RunID        string                         `json:"run_id"`
	State        string                         `json:"state"`
	Week         int                            `json:"week"`
	Parameters   entities.SeasonParameters      `json:"parameters"`
	Forecast     *entities.ForecastResult       `json:"forecast"`
	Allocation   *entities.AllocationResult     `json:"allocation"`
	Variance     *entities.VarianceAnalysis     `json:"variance"`
	Reforecast   *entities.ReforecastResult     `json:"reforecast"`
	Reallocation *entities.ReallocationAnalysis `json:"reallocation"`
	Markdown     *entities.MarkdownResult       `json:"markdown"`
	Warnings     []string                       `json:"warnings"`
	ExecutionLog []entities.ExecutionLogEntry   `json:"execution_log"`
	GeneratedAt  time.Time                      `json:"generated_at"`
}

// RunSummary is one row of a run listing
type RunSummary struct {
	RunID     string    `json:"run_id"`
	Category  string    `json:"category"`
	State     string    `json:"state"`
	Week      int       `json:"week"`
	UpdatedAt time.Time `json:"updated_at"`
}
