package commands

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/vsinha/seasonplan/pkg/application/services/dataset"
	"github.com/vsinha/seasonplan/pkg/application/services/orchestration"
	"github.com/vsinha/seasonplan/pkg/infrastructure/config"
	"github.com/vsinha/seasonplan/pkg/infrastructure/events"
	"github.com/vsinha/seasonplan/pkg/infrastructure/persistence/sqlite"
	"github.com/vsinha/seasonplan/pkg/infrastructure/repositories/csv"
)

// Environment is the wiring shared by every command: configuration, logger,
// the sqlite store backing run state and the workflow built over them
type Environment struct {
	Config   *config.Config
	Logger   *zap.Logger
	Store    *sqlite.Store
	Events   *events.InMemoryEventStore
	Workflow *orchestration.Workflow
	Parser   *csv.Loader
	Out      io.Writer
}

// NewEnvironment opens the configured database and builds the workflow
func NewEnvironment(cfg *config.Config, logger *zap.Logger) (*Environment, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loader := dataset.NewLoader(cfg.Files(), logger)
	return newEnvironment(cfg, logger, cfg.Services(logger), loader)
}

func newEnvironment(cfg *config.Config, logger *zap.Logger, services orchestration.Services, data orchestration.DataSource, opts ...orchestration.WorkflowOption) (*Environment, error) {
	store, err := sqlite.Open(cfg.Database.Path, logger)
	if err != nil {
		return nil, err
	}
	contracts, err := orchestration.DefaultContracts()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load step contracts: %w", err)
	}

	eventStore := events.NewInMemoryEventStore(logger)
	opts = append([]orchestration.WorkflowOption{
		orchestration.WithLogger(logger),
		orchestration.WithLogSink(store),
		orchestration.WithResultSink(store),
		orchestration.WithRunStore(store),
		orchestration.WithPublisher(events.NewStorePublisher(eventStore)),
	}, opts...)

	return &Environment{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Events:   eventStore,
		Workflow: orchestration.NewWorkflow(services, data, orchestration.NewAssembler(contracts), cfg.Workflow, opts...),
		Parser:   csv.NewLoader(),
		Out:      os.Stdout,
	}, nil
}

// Close releases the database
func (e *Environment) Close() error {
	return e.Store.Close()
}
