package orchestration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vsinha/seasonplan/pkg/application/dto"
	"github.com/vsinha/seasonplan/pkg/application/services/allocation"
	"github.com/vsinha/seasonplan/pkg/application/services/dataset"
	"github.com/vsinha/seasonplan/pkg/application/services/forecast"
	"github.com/vsinha/seasonplan/pkg/application/services/markdown"
	"github.com/vsinha/seasonplan/pkg/application/services/reallocation"
	"github.com/vsinha/seasonplan/pkg/application/services/reforecast"
	"github.com/vsinha/seasonplan/pkg/application/services/variance"
	"github.com/vsinha/seasonplan/pkg/domain/entities"
	"github.com/vsinha/seasonplan/pkg/infrastructure/events"
)

// DataSource supplies the read-only historical dataset of a category
type DataSource interface {
	Load(ctx context.Context, category string) (*dataset.Dataset, error)
}

// ResultSink persists result bundles
type ResultSink interface {
	SaveResult(ctx context.Context, result dto.WorkflowResult) error
}

// RunStore persists run snapshots so a run can continue in another process
type RunStore interface {
	SaveSnapshot(ctx context.Context, snapshot Snapshot) error
	LoadSnapshot(ctx context.Context, runID string) (*Snapshot, error)
}

// Services are the computational steps a workflow composes
type Services struct {
	Forecast     *forecast.Engine
	Allocation   *allocation.Engine
	Variance     *variance.Analyzer
	Reforecast   *reforecast.Reforecaster
	Reallocation *reallocation.Analyzer
	Markdown     markdown.Config
}

// DefaultServices builds every service with its default configuration
func DefaultServices(logger *zap.Logger) Services {
	return Services{
		Forecast:     forecast.NewEngine(forecast.DefaultConfig(), logger),
		Allocation:   allocation.NewEngine(allocation.DefaultConfig(), logger),
		Variance:     variance.NewAnalyzer(variance.DefaultConfig()),
		Reforecast:   reforecast.NewReforecaster(reforecast.DefaultConfig()),
		Reallocation: reallocation.NewAnalyzer(reallocation.DefaultConfig()),
		Markdown:     markdown.DefaultConfig(),
	}
}

// Options bounds step execution and the reforecast cycle
type Options struct {
	StepTimeout             time.Duration            `yaml:"step_timeout" mapstructure:"step_timeout"`
	StepTimeouts            map[string]time.Duration `yaml:"step_timeouts,omitempty" mapstructure:"step_timeouts"`
	MaxReforecastIterations int                      `yaml:"max_reforecast_iterations" mapstructure:"max_reforecast_iterations"`
}

// DefaultOptions returns a 30s step timeout and three reforecasts per observed week
func DefaultOptions() Options {
	return Options{
		StepTimeout:             DefaultStepTimeout,
		MaxReforecastIterations: 3,
	}
}

// Validate checks workflow options
func (o Options) Validate() error {
	if o.StepTimeout <= 0 {
		return fmt.Errorf("step timeout must be positive")
	}
	for step, t := range o.StepTimeouts {
		if t <= 0 {
			return fmt.Errorf("timeout for step %s must be positive", step)
		}
	}
	if o.MaxReforecastIterations < 1 {
		return fmt.Errorf("max reforecast iterations must be at least 1, got %d", o.MaxReforecastIterations)
	}
	return nil
}

// Workflow runs season plans and processes actuals uploads for them
type Workflow struct {
	services  Services
	data      DataSource
	assembler *Assembler
	options   Options

	logSink   LogSink
	results   ResultSink
	runStore  RunStore
	publisher events.ProgressPublisher
	logger    *zap.Logger
	now       func() time.Time
	newRunID  func() string

	mu   sync.RWMutex
	runs map[string]*Run
}

// WorkflowOption customizes a Workflow
type WorkflowOption func(*Workflow)

// WithLogSink forwards every execution log entry to the sink
func WithLogSink(sink LogSink) WorkflowOption {
	return func(w *Workflow) { w.logSink = sink }
}

// WithResultSink persists result bundles after every plan and upload
func WithResultSink(sink ResultSink) WorkflowOption {
	return func(w *Workflow) { w.results = sink }
}

// WithRunStore persists run snapshots after every plan and upload
func WithRunStore(store RunStore) WorkflowOption {
	return func(w *Workflow) { w.runStore = store }
}

// WithPublisher sets the progress event publisher
func WithPublisher(publisher events.ProgressPublisher) WorkflowOption {
	return func(w *Workflow) { w.publisher = publisher }
}

// WithLogger sets the workflow logger
func WithLogger(logger *zap.Logger) WorkflowOption {
	return func(w *Workflow) { w.logger = logger }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) WorkflowOption {
	return func(w *Workflow) { w.now = now }
}

// WithRunIDs overrides run id generation
func WithRunIDs(next func() string) WorkflowOption {
	return func(w *Workflow) { w.newRunID = next }
}

// NewWorkflow creates a workflow over the given services and data source
func NewWorkflow(services Services, data DataSource, assembler *Assembler, options Options, opts ...WorkflowOption) *Workflow {
	w := &Workflow{
		services:  services,
		data:      data,
		assembler: assembler,
		options:   options,
		publisher: events.NopPublisher{},
		logger:    zap.NewNop(),
		now:       time.Now,
		newRunID:  uuid.NewString,
		runs:      make(map[string]*Run),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.options.MaxReforecastIterations < 1 {
		w.options.MaxReforecastIterations = DefaultOptions().MaxReforecastIterations
	}
	return w
}

// Run returns a run started by this workflow, restoring it from the run store if needed
func (w *Workflow) Run(ctx context.Context, runID string) (*Run, error) {
	w.mu.RLock()
	run, ok := w.runs[runID]
	w.mu.RUnlock()
	if ok {
		return run, nil
	}
	if w.runStore == nil {
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	snapshot, err := w.runStore.LoadSnapshot(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return w.Restore(ctx, *snapshot)
}

// Runs returns the runs held in memory, newest first
func (w *Workflow) Runs() []*Run {
	w.mu.RLock()
	defer w.mu.RUnlock()
	runs := make([]*Run, 0, len(w.runs))
	for _, r := range w.runs {
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
	return runs
}

// Plan starts a run: assemble inputs, forecast demand, and allocate the
// manufacturing order. The run is returned even when planning fails so its
// execution log stays available; the error names the failing step.
func (w *Workflow) Plan(ctx context.Context, params entities.SeasonParameters) (*Run, error) {
	run, err := w.newRun(w.newRunID(), params, w.now())
	if err != nil {
		return nil, err
	}
	w.logger.Info("planning season",
		zap.String("run_id", run.ID),
		zap.String("category", params.Category),
		zap.Int("horizon_weeks", params.ForecastHorizonWeeks),
		zap.String("replenishment", params.ReplenishmentStrategy.String()),
	)

	initial := Handoff{RunID: run.ID, Parameters: params}
	out, err := run.coordinator.Chain(ctx, []string{StepAssemble, StepForecast, StepAllocate}, initial)
	if err != nil {
		run.commit(initial, w.bundle(run, initial, nil))
		w.persist(ctx, run)
		return run, err
	}

	var warnings []string
	if out.Forecast.LowAgreement {
		warnings = append(warnings, fmt.Sprintf("forecast models agree %.1f%%, below the configured minimum", out.Forecast.ModelAgreementPct))
	}
	if out.Forecast.Method == entities.MethodSingleModel {
		warnings = append(warnings, fmt.Sprintf("forecast fell back to a single model (%v)", out.Forecast.ModelsUsed))
	}
	warnings = append(warnings, out.Allocation.Warnings...)

	result := w.bundle(run, out, warnings)
	run.commit(out, result)
	w.persist(ctx, run)
	return run, nil
}

// ProcessActuals merges a weekly actuals upload into the run and runs the
// correction cycle: intake and variance analysis, then (when warranted) a
// reforecast and re-allocation, a reallocation review, and the markdown check
// at its checkpoint. Reforecasts for one observed week are capped; past the cap
// the latest forecast is kept and the returned bundle carries the warning.
// A rejected upload leaves the run's state unchanged apart from its log.
func (w *Workflow) ProcessActuals(ctx context.Context, run *Run, records []entities.ActualRecord) (*dto.WorkflowResult, error) {
	if err := run.acquire(); err != nil {
		return nil, fmt.Errorf("failed to process actuals for run %s: %w", run.ID, err)
	}
	defer run.release()

	logger := w.logger.With(zap.String("run_id", run.ID))
	logger.Info("processing actuals", zap.Int("records", len(records)))

	h := run.current()
	h.Upload = records
	h, err := run.coordinator.Chain(ctx, []string{StepIntake, StepVariance}, h)
	if err != nil {
		return w.rejected(ctx, run, err)
	}
	logger = logger.With(zap.Int("week", h.Week))

	var warnings []string
	reforecasted := false
	if h.Variance.ShouldReforecast {
		if run.reforecastAllowed(h.Week, w.options.MaxReforecastIterations) {
			if h, err = run.coordinator.Chain(ctx, []string{StepReforecast, StepAllocate}, h); err != nil {
				return w.rejected(ctx, run, err)
			}
			run.countReforecast(h.Week)
			reforecasted = true
			logger.Info("forecast updated",
				zap.Float64("adjustment_factor", h.Reforecast.AdjustmentFactor),
				zap.Int("iteration", run.ReforecastIterations(h.Week)),
			)
		} else {
			exceeded := &entities.MaxReforecastIterationsExceeded{Week: h.Week, Limit: w.options.MaxReforecastIterations}
			logger.Warn("reforecast iterations exceeded; keeping latest forecast",
				zap.Int("limit", exceeded.Limit),
				zap.Float64("variance_pct", h.Variance.VariancePct),
			)
			warnings = append(warnings, exceeded.Error())
		}
	}

	if reforecasted || run.Parameters.ReplenishmentStrategy != entities.ReplenishmentNone {
		if h, err = run.coordinator.Chain(ctx, []string{StepReallocate}, h); err != nil {
			return w.rejected(ctx, run, err)
		}
	}

	if w.markdownDue(run, h.Week) {
		if h, err = run.coordinator.Chain(ctx, []string{StepMarkdown}, h); err != nil {
			return w.rejected(ctx, run, err)
		}
	}

	if reforecasted {
		warnings = append(warnings, h.Allocation.Warnings...)
	}
	result := w.bundle(run, h, warnings)
	run.commit(h, result)
	w.persist(ctx, run)

	out := run.Result()
	return &out, nil
}

// Restore rebuilds a run from a snapshot, reloading its dataset
func (w *Workflow) Restore(ctx context.Context, snapshot Snapshot) (*Run, error) {
	if err := w.assembler.CheckParameters(StepAssemble, snapshot.Parameters); err != nil {
		return nil, err
	}
	ds, err := w.data.Load(ctx, snapshot.Parameters.Category)
	if err != nil {
		return nil, fmt.Errorf("failed to restore run %s: %w", snapshot.RunID, err)
	}

	run, err := w.newRun(snapshot.RunID, snapshot.Parameters, snapshot.CreatedAt)
	if err != nil {
		return nil, err
	}
	run.coordinator.restore(snapshot.Log, snapshot.State)

	h := Handoff{
		RunID:      snapshot.RunID,
		Week:       snapshot.Week,
		Parameters: snapshot.Parameters,
		Dataset:    ds,
		Plan:       snapshot.Plan,
		Forecast:   snapshot.Forecast,
		Baseline:   snapshot.Baseline,
		Allocation: snapshot.Allocation,
		Actuals:    snapshot.Actuals,
	}
	run.mu.Lock()
	run.handoff = h
	run.markdownDone = snapshot.MarkdownDone
	for week, n := range snapshot.ReforecastIterations {
		run.reforecasts[week] = n
	}
	run.mu.Unlock()
	run.commit(h, w.bundle(run, h, nil))

	w.logger.Debug("run restored", zap.String("run_id", run.ID), zap.Int("week", snapshot.Week))
	return run, nil
}

// rejected persists the run so the failed step's log entry survives a restore
func (w *Workflow) rejected(ctx context.Context, run *Run, err error) (*dto.WorkflowResult, error) {
	w.persist(ctx, run)
	return nil, err
}

func (w *Workflow) newRun(id string, params entities.SeasonParameters, created time.Time) (*Run, error) {
	run := &Run{
		ID:          id,
		Parameters:  params,
		CreatedAt:   created,
		reforecasts: make(map[int]int),
		coordinator: NewCoordinator(id, CoordinatorOptions{
			DefaultTimeout: w.options.StepTimeout,
			StepTimeouts:   w.options.StepTimeouts,
			Sink:           w.logSink,
			Publisher:      w.publisher,
			Logger:         w.logger,
			Now:            w.now,
		}),
	}

	steps := map[string]StepFunc{
		StepAssemble:   w.assemble,
		StepForecast:   w.forecast,
		StepAllocate:   w.allocate,
		StepIntake:     w.intake,
		StepVariance:   w.analyzeVariance,
		StepReforecast: w.reforecast,
		StepReallocate: w.reallocate,
		StepMarkdown:   w.markdown,
	}
	for name, step := range steps {
		if err := run.coordinator.Register(name, step); err != nil {
			return nil, fmt.Errorf("failed to register step %s: %w", name, err)
		}
	}

	w.mu.Lock()
	w.runs[id] = run
	w.mu.Unlock()
	return run, nil
}

func (w *Workflow) markdownDue(run *Run, week int) bool {
	if !run.Parameters.HasMarkdownCheckpoint() || week < *run.Parameters.MarkdownCheckpointWeek {
		return false
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	return !run.markdownDone
}

func (w *Workflow) bundle(run *Run, h Handoff, warnings []string) dto.WorkflowResult {
	if warnings == nil {
		warnings = []string{}
	}
	state, _ := run.coordinator.State()
	return dto.WorkflowResult{
		RunID:        run.ID,
		State:        string(state),
		Week:         h.Week,
		Parameters:   run.Parameters,
		Forecast:     h.Forecast,
		Allocation:   h.Allocation,
		Variance:     h.Variance,
		Reforecast:   h.Reforecast,
		Reallocation: h.Reallocation,
		Markdown:     h.Markdown,
		Warnings:     warnings,
		ExecutionLog: run.coordinator.Log(),
		GeneratedAt:  w.now(),
	}
}

// persist stores the bundle and snapshot; failures are logged, never returned
func (w *Workflow) persist(ctx context.Context, run *Run) {
	ctx = context.WithoutCancel(ctx)
	if w.results != nil {
		if err := w.results.SaveResult(ctx, run.Result()); err != nil {
			w.logger.Warn("failed to persist result bundle", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
	if w.runStore != nil {
		if err := w.runStore.SaveSnapshot(ctx, run.Snapshot()); err != nil {
			w.logger.Warn("failed to persist run snapshot", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
}

func (w *Workflow) assemble(ctx context.Context, h Handoff) (Handoff, error) {
	if err := w.assembler.CheckParameters(StepAssemble, h.Parameters); err != nil {
		return h, err
	}
	ds, err := w.data.Load(ctx, h.Parameters.Category)
	if err != nil {
		return h, fmt.Errorf("failed to load dataset: %w", err)
	}
	h.Dataset = ds
	return h, nil
}

func (w *Workflow) forecast(ctx context.Context, h Handoff) (Handoff, error) {
	in, err := w.assembler.ForecastInput(h)
	if err != nil {
		return h, err
	}
	result, err := w.services.Forecast.Forecast(ctx, in.History, in.HorizonWeeks, in.Strategy)
	if err != nil {
		return h, err
	}
	if err := w.assembler.CheckForecast(StepAllocate, result, in.HorizonWeeks); err != nil {
		return h, err
	}
	h.Forecast = result
	if h.Plan == nil {
		h.Plan = result
	}
	return h, nil
}

func (w *Workflow) allocate(ctx context.Context, h Handoff) (Handoff, error) {
	in, err := w.assembler.AllocationInput(h)
	if err != nil {
		return h, err
	}
	result, err := w.services.Allocation.Allocate(ctx, in)
	if err != nil {
		return h, err
	}
	if err := w.assembler.CheckAllocation(StepVariance, result); err != nil {
		return h, err
	}
	h.Allocation = result
	if h.Baseline == nil {
		h.Baseline = result
	}
	return h, nil
}

// intake merges a validated upload into the accumulated actuals
func (w *Workflow) intake(ctx context.Context, h Handoff) (Handoff, error) {
	if h.Allocation == nil || h.Forecast == nil {
		return h, missing(StepIntake, "allocation")
	}
	if err := w.assembler.CheckActuals(StepIntake, h.Upload, h.Parameters.ForecastHorizonWeeks); err != nil {
		return h, err
	}
	h.Actuals = h.Actuals.Merge(h.Upload)
	h.Week = h.Actuals.LatestWeek()
	h.Upload = nil
	h.Variance, h.Reforecast, h.Reallocation, h.Markdown = nil, nil, nil, nil
	return h, nil
}

func (w *Workflow) analyzeVariance(ctx context.Context, h Handoff) (Handoff, error) {
	in, err := w.assembler.VarianceInput(h)
	if err != nil {
		return h, err
	}
	analysis, err := w.services.Variance.Analyze(in.ForecastByWeek, in.ActualsByWeek)
	if err != nil {
		return h, err
	}
	h.Variance = analysis
	return h, nil
}

func (w *Workflow) reforecast(ctx context.Context, h Handoff) (Handoff, error) {
	in, err := w.assembler.ReforecastInput(h)
	if err != nil {
		return h, err
	}
	result, err := w.services.Reforecast.Reforecast(in.Prior, in.ActualsByWeek, in.WeeksRemaining)
	if err != nil {
		return h, err
	}
	if err := w.assembler.contracts.Validate(StepAllocate, ContractReforecast, result); err != nil {
		return h, err
	}
	updated, err := reforecast.Apply(in.Prior, *result)
	if err != nil {
		return h, err
	}
	if err := w.assembler.CheckForecast(StepAllocate, &updated, h.Parameters.ForecastHorizonWeeks); err != nil {
		return h, err
	}
	h.Reforecast = result
	h.Forecast = &updated
	return h, nil
}

func (w *Workflow) reallocate(ctx context.Context, h Handoff) (Handoff, error) {
	in, err := w.assembler.ReallocationInput(h)
	if err != nil {
		return h, err
	}
	analysis, err := w.services.Reallocation.Analyze(in)
	if err != nil {
		return h, err
	}
	h.Reallocation = analysis
	return h, nil
}

func (w *Workflow) markdown(ctx context.Context, h Handoff) (Handoff, error) {
	in, err := w.assembler.MarkdownInput(h)
	if err != nil {
		return h, err
	}
	result, err := w.services.Markdown.Calculate(in.SellThroughRate, in.TargetRate)
	if err != nil {
		return h, err
	}
	result.Week = in.Week
	h.Markdown = &result
	return h, nil
}
