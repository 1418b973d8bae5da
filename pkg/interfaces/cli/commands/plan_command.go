package commands

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vsinha/seasonplan/pkg/application/dto"
	"github.com/vsinha/seasonplan/pkg/domain/entities"
	"github.com/vsinha/seasonplan/pkg/interfaces/cli/output"
)

// OutputConfig selects how results are printed
type OutputConfig struct {
	Format    string
	OutputDir string
	Verbose   bool
}

// PlanConfig holds configuration for the plan command
type PlanConfig struct {
	ParametersFile string
	Output         OutputConfig
}

// PlanCommand plans a season from a confirmed parameter file
type PlanCommand struct {
	env    *Environment
	config PlanConfig
}

// NewPlanCommand creates a new plan command
func NewPlanCommand(env *Environment, config PlanConfig) *PlanCommand {
	return &PlanCommand{env: env, config: config}
}

// Execute runs assemble, forecast and allocate and prints the result bundle
func (c *PlanCommand) Execute(ctx context.Context) (*dto.WorkflowResult, error) {
	if c.config.ParametersFile == "" {
		return nil, fmt.Errorf("a parameters file is required")
	}
	params, err := c.env.Parser.LoadParameters(c.config.ParametersFile)
	if err != nil {
		return nil, fmt.Errorf("error loading parameters: %w", err)
	}

	c.env.Logger.Info("planning season",
		zap.String("category", params.Category),
		zap.Int("horizon_weeks", params.ForecastHorizonWeeks),
		zap.String("replenishment", params.ReplenishmentStrategy.String()),
	)

	run, err := c.env.Workflow.Plan(ctx, *params)
	if err != nil {
		if run != nil {
			c.printLog(run.Log())
			return nil, fmt.Errorf("run %s failed: %w", run.ID, err)
		}
		return nil, err
	}

	result := run.Result()
	if err := c.print(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *PlanCommand) print(result *dto.WorkflowResult) error {
	return generate(c.env, result, c.config.Output)
}

func (c *PlanCommand) printLog(log []entities.ExecutionLogEntry) {
	if err := output.RenderLog(c.env.Out, log, "text"); err != nil {
		c.env.Logger.Warn("failed to print execution log", zap.Error(err))
	}
}

func generate(env *Environment, result *dto.WorkflowResult, cfg OutputConfig) error {
	err := output.Generate(result, output.Config{
		Format:    cfg.Format,
		OutputDir: cfg.OutputDir,
		Verbose:   cfg.Verbose,
		Writer:    env.Out,
	})
	if err != nil {
		return fmt.Errorf("error generating output: %w", err)
	}
	return nil
}
