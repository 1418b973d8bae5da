package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/vsinha/seasonplan/pkg/application/dto"
	"github.com/vsinha/seasonplan/pkg/application/services/orchestration"
	"github.com/vsinha/seasonplan/pkg/domain/entities"
	"github.com/vsinha/seasonplan/pkg/infrastructure/events"
	"github.com/vsinha/seasonplan/pkg/infrastructure/repositories/csv"
)

// maxBodyBytes bounds parameter and actuals uploads
const maxBodyBytes = 8 << 20

// RunLister lists persisted runs
type RunLister interface {
	ListRuns(ctx context.Context) ([]dto.RunSummary, error)
}

// Config wires the API to a workflow
type Config struct {
	Workflow *orchestration.Workflow
	Events   events.EventStore
	// Runs lists persisted runs; without it only runs held in memory are listed
	Runs   RunLister
	Logger *zap.Logger
}

type server struct {
	workflow *orchestration.Workflow
	events   events.EventStore
	runs     RunLister
	parser   *csv.Loader
	logger   *zap.Logger
}

// New returns an HTTP handler exposing parameter and actuals intake and
// result, execution log and progress export
func New(cfg Config) (http.Handler, error) {
	if cfg.Workflow == nil {
		return nil, fmt.Errorf("api requires a workflow")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &server{
		workflow: cfg.Workflow,
		events:   cfg.Events,
		runs:     cfg.Runs,
		parser:   csv.NewLoader(),
		logger:   logger,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(s.requestLogger)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Route("/runs", func(r chi.Router) {
		r.Get("/", s.listRuns)
		r.Post("/", s.createRun)
		r.Route("/{runID}", func(r chi.Router) {
			r.Get("/", s.getRun)
			r.Post("/actuals", s.postActuals)
			r.Get("/log", s.getLog)
			r.Get("/events", s.getEvents)
		})
	})
	return router, nil
}

func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs != nil {
		runs, err := s.runs.ListRuns(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		if runs == nil {
			runs = []dto.RunSummary{}
		}
		writeJSON(w, http.StatusOK, runs)
		return
	}

	inMemory := s.workflow.Runs()
	runs := make([]dto.RunSummary, 0, len(inMemory))
	for _, run := range inMemory {
		result := run.Result()
		runs = append(runs, dto.RunSummary{
			RunID:     run.ID,
			Category:  run.Parameters.Category,
			State:     result.State,
			Week:      result.Week,
			UpdatedAt: result.GeneratedAt,
		})
	}
	writeJSON(w, http.StatusOK, runs)
}

// createRun accepts season parameters as JSON or YAML and plans the season
func (s *server) createRun(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("failed to read body: %v", err), nil)
		return
	}
	params, err := s.parser.ParseParameters(body)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_parameters", err.Error(), nil)
		return
	}

	run, err := s.workflow.Plan(r.Context(), *params)
	if err != nil {
		if run == nil {
			s.writeError(w, err)
			return
		}
		status, code := classify(err)
		writeAPIError(w, status, code, err.Error(), map[string]any{
			"run_id":        run.ID,
			"execution_log": run.Log(),
		})
		return
	}
	w.Header().Set("Location", "/runs/"+run.ID)
	writeJSON(w, http.StatusCreated, run.Result())
}

func (s *server) getRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run.Result())
}

// postActuals accepts an upload as text/csv or a JSON array of records
func (s *server) postActuals(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookup(w, r)
	if !ok {
		return
	}
	records, err := s.readActuals(w, r)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_actuals", err.Error(), nil)
		return
	}

	result, err := s.workflow.ProcessActuals(r.Context(), run, records)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) readActuals(w http.ResponseWriter, r *http.Request) ([]entities.ActualRecord, error) {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "text/csv" {
		return s.parser.ReadActuals(body)
	}
	var records []entities.ActualRecord
	if err := json.NewDecoder(body).Decode(&records); err != nil {
		return nil, fmt.Errorf("invalid actuals json: %w", err)
	}
	return records, nil
}

func (s *server) getLog(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookup(w, r)
	if !ok {
		return
	}
	log := run.Log()
	if log == nil {
		log = []entities.ExecutionLogEntry{}
	}
	writeJSON(w, http.StatusOK, log)
}

// getEvents returns the run's progress events; ?from=N skips the first N-1
func (s *server) getEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeAPIError(w, http.StatusNotFound, "not_found", "progress events are not recorded by this server", nil)
		return
	}
	runID := chi.URLParam(r, "runID")
	if _, ok := s.lookup(w, r); !ok {
		return
	}

	from := 1
	if v := r.URL.Query().Get("from"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeAPIError(w, http.StatusBadRequest, "bad_request", "from must be a positive integer", nil)
			return
		}
		from = n
	}

	progress, err := events.ProgressEvents(s.events, runID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if from > len(progress) {
		progress = progress[:0]
	} else {
		progress = progress[from-1:]
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *server) lookup(w http.ResponseWriter, r *http.Request) (*orchestration.Run, bool) {
	run, err := s.workflow.Run(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return run, true
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	var details map[string]any
	var stepErr *orchestration.StepError
	if errors.As(err, &stepErr) {
		details = map[string]any{"step": stepErr.Step, "log_entry": stepErr.Entry}
	}
	writeAPIError(w, status, code, err.Error(), details)
}

// classify maps the error taxonomy onto HTTP statuses
func classify(err error) (int, string) {
	var (
		contractErr   *entities.ContractError
		notFoundErr   *entities.DataNotFoundError
		timeoutErr    *entities.StepTimeoutError
		historyErr    *entities.InsufficientHistoryError
		ensembleErr   *entities.EnsembleForecastError
		constraintErr *entities.AllocationConstraintError
	)
	switch {
	case errors.Is(err, orchestration.ErrRunNotFound):
		return http.StatusNotFound, "run_not_found"
	case errors.Is(err, orchestration.ErrRunBusy), errors.Is(err, orchestration.ErrStepInProgress):
		return http.StatusConflict, "run_busy"
	case errors.As(err, &contractErr):
		return http.StatusBadRequest, "contract_violation"
	case errors.As(err, &notFoundErr):
		return http.StatusUnprocessableEntity, "data_not_found"
	case errors.As(err, &ensembleErr):
		return http.StatusUnprocessableEntity, "forecast_failed"
	case errors.As(err, &timeoutErr):
		return http.StatusGatewayTimeout, "step_timeout"
	case errors.As(err, &historyErr):
		return http.StatusUnprocessableEntity, "insufficient_history"
	case errors.As(err, &constraintErr):
		return http.StatusUnprocessableEntity, "allocation_constraint"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
