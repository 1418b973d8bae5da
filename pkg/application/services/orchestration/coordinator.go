package orchestration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vsinha/seasonplan/pkg/domain/entities"
	"github.com/vsinha/seasonplan/pkg/infrastructure/events"
)

// DefaultStepTimeout is the wall-clock budget of a step invoked without an explicit timeout
const DefaultStepTimeout = 30 * time.Second

// StepFunc is a coordinator-callable step. It receives the handoff by value and
// returns the handoff for the next step; it must not modify shared results in place.
type StepFunc func(ctx context.Context, in Handoff) (Handoff, error)

// LogSink receives every execution log entry as it is recorded
type LogSink interface {
	AppendLog(ctx context.Context, entry entities.ExecutionLogEntry) error
}

// State is the coordinator's position in the run state machine
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateTimedOut  State = "timed_out"
	StateFailed    State = "failed"
	StateComplete  State = "complete"
	StateAborted   State = "aborted"
)

var transitions = map[State][]State{
	StateIdle:      {StateRunning, StateAborted},
	StateRunning:   {StateSucceeded, StateTimedOut, StateFailed},
	StateSucceeded: {StateRunning, StateComplete, StateAborted},
	StateTimedOut:  {StateRunning, StateAborted},
	StateFailed:    {StateRunning, StateAborted},
	StateComplete:  {StateRunning, StateAborted},
	StateAborted:   {StateRunning},
}

// ErrStepInProgress is returned when a step is invoked while another step of the same run is running
var ErrStepInProgress = errors.New("another step is already running")

// StepError reports a failed step together with its execution log entry
type StepError struct {
	Step  string
	Entry entities.ExecutionLogEntry
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// CoordinatorOptions configures a coordinator
type CoordinatorOptions struct {
	DefaultTimeout time.Duration
	// StepTimeouts overrides the default per step name
	StepTimeouts map[string]time.Duration
	Sink         LogSink
	Publisher    events.ProgressPublisher
	Logger       *zap.Logger
	Now          func() time.Time
}

// Coordinator registers the steps of one workflow run, executes them under a
// timeout, and records one ExecutionLogEntry per invocation.
type Coordinator struct {
	runID     string
	options   CoordinatorOptions
	logger    *zap.Logger
	publisher events.ProgressPublisher

	mu      sync.Mutex
	steps   map[string]StepFunc
	log     []entities.ExecutionLogEntry
	state   State
	current string
}

// NewCoordinator creates an idle coordinator for a run
func NewCoordinator(runID string, options CoordinatorOptions) *Coordinator {
	if options.DefaultTimeout <= 0 {
		options.DefaultTimeout = DefaultStepTimeout
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	publisher := options.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Coordinator{
		runID:     runID,
		options:   options,
		logger:    logger.With(zap.String("run_id", runID)),
		publisher: publisher,
		steps:     make(map[string]StepFunc),
		state:     StateIdle,
	}
}

// RunID returns the run this coordinator belongs to
func (c *Coordinator) RunID() string {
	return c.runID
}

// Register adds a named step
func (c *Coordinator) Register(name string, step StepFunc) error {
	if name == "" {
		return fmt.Errorf("step name cannot be empty")
	}
	if step == nil {
		return fmt.Errorf("step %s has no implementation", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.steps[name]; exists {
		return fmt.Errorf("step %s is already registered", name)
	}
	c.steps[name] = step
	return nil
}

// State returns the current state and, while running, the running step
func (c *Coordinator) State() (State, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.current
}

// Log returns a copy of the execution log
func (c *Coordinator) Log() []entities.ExecutionLogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]entities.ExecutionLogEntry(nil), c.log...)
}

// TimeoutFor returns the configured budget for a step
func (c *Coordinator) TimeoutFor(name string) time.Duration {
	if t, ok := c.options.StepTimeouts[name]; ok && t > 0 {
		return t
	}
	return c.options.DefaultTimeout
}

// Invoke runs one step with the given timeout (zero uses the step's configured budget).
// A step that does not return in time is abandoned and reported as *entities.StepTimeoutError.
// Every call produces exactly one log entry; failures are returned as *StepError.
func (c *Coordinator) Invoke(ctx context.Context, name string, in Handoff, timeout time.Duration) (Handoff, error) {
	return c.invoke(ctx, name, in, timeout, 0, 1)
}

// Chain runs steps in order, feeding each step's output to the next. Cancellation
// is checked before every step; the first failure aborts the chain.
func (c *Coordinator) Chain(ctx context.Context, names []string, initial Handoff) (Handoff, error) {
	if len(names) == 0 {
		return initial, fmt.Errorf("chain has no steps")
	}
	current := initial
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			c.transition(StateAborted, "")
			c.logger.Warn("chain cancelled", zap.String("next_step", name), zap.Error(err))
			return current, fmt.Errorf("chain aborted before step %s: %w", name, err)
		}
		out, err := c.invoke(ctx, name, current, 0, i, len(names))
		if err != nil {
			c.transition(StateAborted, "")
			return current, err
		}
		current = out
	}
	if err := c.transition(StateComplete, ""); err != nil {
		return current, err
	}
	return current, nil
}

// restore reloads a persisted log and terminal state; sequence numbers continue after the last entry
func (c *Coordinator) restore(log []entities.ExecutionLogEntry, state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append([]entities.ExecutionLogEntry(nil), log...)
	switch state {
	case StateComplete, StateAborted:
		c.state = state
	case "":
		c.state = StateIdle
	default:
		// a run persisted mid-step can only resume from a terminal state
		c.state = StateAborted
	}
}

// Abort marks the run aborted outside of a chain
func (c *Coordinator) Abort() {
	c.transition(StateAborted, "")
}

type stepOutcome struct {
	out Handoff
	err error
}

func (c *Coordinator) invoke(ctx context.Context, name string, in Handoff, timeout time.Duration, index, total int) (Handoff, error) {
	c.mu.Lock()
	step, ok := c.steps[name]
	c.mu.Unlock()
	if !ok {
		err := fmt.Errorf("step %s is not registered", name)
		entry := c.record(ctx, entities.ExecutionLogEntry{
			RunID:       c.runID,
			StepName:    name,
			StartedAt:   c.options.Now(),
			Status:      entities.StatusError,
			InputDigest: digest(in),
			Cause:       err.Error(),
		})
		c.logger.Warn("step failed", zap.String("step", name), zap.Error(err))
		return in, &StepError{Step: name, Entry: entry, Err: err}
	}
	if err := c.transition(StateRunning, name); err != nil {
		return in, err
	}
	if timeout <= 0 {
		timeout = c.TimeoutFor(name)
	}

	started := c.options.Now()
	entry := entities.ExecutionLogEntry{
		RunID:       c.runID,
		StepName:    name,
		StartedAt:   started,
		InputDigest: digest(in),
	}
	c.publish(name, events.ProgressRunning, progressPct(index, total), "started")
	c.logger.Debug("step started", zap.String("step", name), zap.Duration("timeout", timeout))

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan stepOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- stepOutcome{err: fmt.Errorf("step panicked: %v", r)}
			}
		}()
		out, err := step(stepCtx, in)
		done <- stepOutcome{out: out, err: err}
	}()

	var outcome stepOutcome
	timedOut := false
	select {
	case outcome = <-done:
		// a step that gave up because its own deadline passed still counts as a timeout
		timedOut = outcome.err != nil && ctx.Err() == nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded)
	case <-stepCtx.Done():
		if err := ctx.Err(); err != nil {
			outcome.err = err
		} else {
			timedOut = true
		}
	}
	if timedOut {
		outcome.err = &entities.StepTimeoutError{Step: name, Timeout: timeout}
	}

	entry.DurationMs = c.options.Now().Sub(started).Milliseconds()
	// timeouts nested in a step's error (a forecast model missing its join) are failures
	switch {
	case outcome.err == nil:
		entry.Status = entities.StatusSuccess
		entry.OutputDigest = digest(outcome.out)
	case timedOut:
		entry.Status = entities.StatusTimeout
		entry.Cause = outcome.err.Error()
	default:
		entry.Status = entities.StatusError
		entry.Cause = outcome.err.Error()
	}
	entry = c.record(ctx, entry)

	if outcome.err != nil {
		next := StateFailed
		if entry.Status == entities.StatusTimeout {
			next = StateTimedOut
		}
		c.transition(next, "")
		c.publish(name, events.ProgressFailed, progressPct(index, total), entry.Cause)
		c.logger.Warn("step failed",
			zap.String("step", name),
			zap.String("status", string(entry.Status)),
			zap.Int64("duration_ms", entry.DurationMs),
			zap.Error(outcome.err),
		)
		return in, &StepError{Step: name, Entry: entry, Err: outcome.err}
	}

	c.transition(StateSucceeded, "")
	c.publish(name, events.ProgressCompleted, progressPct(index+1, total), "completed")
	c.logger.Info("step finished", zap.String("step", name), zap.Int64("duration_ms", entry.DurationMs))
	return outcome.out, nil
}

// record appends the entry to the run log and forwards it to the sink.
// Sink failures are logged and never fail the step.
func (c *Coordinator) record(ctx context.Context, entry entities.ExecutionLogEntry) entities.ExecutionLogEntry {
	c.mu.Lock()
	entry.Sequence = len(c.log) + 1
	c.log = append(c.log, entry)
	c.mu.Unlock()

	if c.options.Sink != nil {
		if err := c.options.Sink.AppendLog(context.WithoutCancel(ctx), entry); err != nil {
			c.logger.Warn("failed to persist execution log entry",
				zap.String("step", entry.StepName),
				zap.Int("sequence", entry.Sequence),
				zap.Error(err),
			)
		}
	}
	return entry
}

func (c *Coordinator) transition(next State, step string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateRunning && next == StateRunning {
		return fmt.Errorf("cannot start step %s while %s is running: %w", step, c.current, ErrStepInProgress)
	}
	for _, allowed := range transitions[c.state] {
		if allowed == next {
			c.state = next
			c.current = step
			return nil
		}
	}
	return fmt.Errorf("invalid state transition %s -> %s", c.state, next)
}

func (c *Coordinator) publish(step string, status events.ProgressStatus, pct int, message string) {
	event := events.ProgressEvent{
		RunID:       c.runID,
		StepName:    step,
		Status:      status,
		ProgressPct: pct,
		Message:     message,
		Timestamp:   c.options.Now(),
	}
	if err := c.publisher.Publish(event); err != nil {
		c.logger.Warn("failed to publish progress", zap.String("step", step), zap.Error(err))
	}
}

func progressPct(done, total int) int {
	if total <= 0 {
		return 0
	}
	return done * 100 / total
}

// digest returns the hex SHA-256 of the value's JSON encoding
func digest(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
