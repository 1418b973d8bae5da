package commands

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vsinha/seasonplan/pkg/application/dto"
)

// ActualsConfig holds configuration for the actuals command
type ActualsConfig struct {
	RunID       string
	ActualsFile string
	Output      OutputConfig
}

// ActualsCommand feeds one weekly actuals upload into a planned run
type ActualsCommand struct {
	env    *Environment
	config ActualsConfig
}

// NewActualsCommand creates a new actuals command
func NewActualsCommand(env *Environment, config ActualsConfig) *ActualsCommand {
	return &ActualsCommand{env: env, config: config}
}

// Execute runs the variance cycle for the upload and prints the result bundle
func (c *ActualsCommand) Execute(ctx context.Context) (*dto.WorkflowResult, error) {
	if c.config.RunID == "" {
		return nil, fmt.Errorf("a run id is required")
	}
	if c.config.ActualsFile == "" {
		return nil, fmt.Errorf("an actuals file is required")
	}

	result, err := processUpload(ctx, c.env, c.config.RunID, c.config.ActualsFile)
	if err != nil {
		return nil, err
	}
	if err := generate(c.env, result, c.config.Output); err != nil {
		return nil, err
	}
	return result, nil
}

// processUpload loads an actuals CSV and processes it against the run
func processUpload(ctx context.Context, env *Environment, runID, path string) (*dto.WorkflowResult, error) {
	records, err := env.Parser.LoadActuals(path)
	if err != nil {
		return nil, fmt.Errorf("error loading actuals: %w", err)
	}
	run, err := env.Workflow.Run(ctx, runID)
	if err != nil {
		return nil, err
	}

	env.Logger.Info("processing actuals",
		zap.String("run_id", runID),
		zap.String("file", path),
		zap.Int("records", len(records)),
	)
	result, err := env.Workflow.ProcessActuals(ctx, run, records)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	return result, nil
}
