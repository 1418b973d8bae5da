package orchestration

import (
	"errors"
	"sync"
	"time"

	"github.com/vsinha/seasonplan/pkg/application/dto"
	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

var (
	// ErrRunBusy is returned when a run is already processing an upload
	ErrRunBusy = errors.New("run is busy")
	// ErrRunNotFound is returned for unknown run ids; run stores wrap it too
	ErrRunNotFound = errors.New("run not found")
)

// Snapshot is the persisted state of a run between actuals uploads
type Snapshot struct {
	RunID                string                       `json:"run_id"`
	Parameters           entities.SeasonParameters    `json:"parameters"`
	Week                 int                          `json:"week"`
	State                State                        `json:"state"`
	Plan                 *entities.ForecastResult     `json:"plan"`
	Forecast             *entities.ForecastResult     `json:"forecast"`
	Baseline             *entities.AllocationResult   `json:"baseline"`
	Allocation           *entities.AllocationResult   `json:"allocation"`
	Actuals              *entities.ActualsTable       `json:"actuals"`
	ReforecastIterations map[int]int                  `json:"reforecast_iterations"`
	MarkdownDone         bool                         `json:"markdown_done"`
	Log                  []entities.ExecutionLogEntry `json:"log"`
	CreatedAt            time.Time                    `json:"created_at"`
}

// Run is one season's workflow: its coordinator and execution log, the active
// forecast and allocation, accumulated actuals, and per-week reforecast counters.
type Run struct {
	ID         string
	Parameters entities.SeasonParameters
	CreatedAt  time.Time

	coordinator *Coordinator

	mu           sync.Mutex
	busy         bool
	handoff      Handoff
	reforecasts  map[int]int
	markdownDone bool
	latest       dto.WorkflowResult
}

// Coordinator returns the run's step coordinator
func (r *Run) Coordinator() *Coordinator {
	return r.coordinator
}

// Log returns the run's execution log
func (r *Run) Log() []entities.ExecutionLogEntry {
	return r.coordinator.Log()
}

// Forecast returns the active forecast, nil before planning succeeds
func (r *Run) Forecast() *entities.ForecastResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handoff.Forecast
}

// Allocation returns the active allocation, nil before planning succeeds
func (r *Run) Allocation() *entities.AllocationResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handoff.Allocation
}

// Week returns the latest observed week
func (r *Run) Week() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handoff.Week
}

// ReforecastIterations returns how many reforecasts ran for the given observed week
func (r *Run) ReforecastIterations(week int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reforecasts[week]
}

// Result returns the latest result bundle
func (r *Run) Result() dto.WorkflowResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := r.latest
	result.ExecutionLog = r.coordinator.Log()
	state, _ := r.coordinator.State()
	result.State = string(state)
	return result
}

// Snapshot captures the run for persistence
func (r *Run) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	iterations := make(map[int]int, len(r.reforecasts))
	for w, n := range r.reforecasts {
		iterations[w] = n
	}
	state, _ := r.coordinator.State()
	return Snapshot{
		RunID:                r.ID,
		Parameters:           r.Parameters,
		Week:                 r.handoff.Week,
		State:                state,
		Plan:                 r.handoff.Plan,
		Forecast:             r.handoff.Forecast,
		Baseline:             r.handoff.Baseline,
		Allocation:           r.handoff.Allocation,
		Actuals:              r.handoff.Actuals,
		ReforecastIterations: iterations,
		MarkdownDone:         r.markdownDone,
		Log:                  r.coordinator.Log(),
		CreatedAt:            r.CreatedAt,
	}
}

func (r *Run) acquire() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy {
		return ErrRunBusy
	}
	r.busy = true
	return nil
}

func (r *Run) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy = false
}

func (r *Run) current() Handoff {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handoff
}

// reforecastAllowed reports whether the week is still below its reforecast limit
func (r *Run) reforecastAllowed(week, limit int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reforecasts[week] < limit
}

// countReforecast records a completed reforecast for the week
func (r *Run) countReforecast(week int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reforecasts[week]++
}

func (r *Run) commit(h Handoff, result dto.WorkflowResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h.Variance, h.Reforecast, h.Reallocation = nil, nil, nil
	if h.Markdown != nil {
		r.markdownDone = true
		h.Markdown = nil
	}
	r.handoff = h
	r.latest = result
}
