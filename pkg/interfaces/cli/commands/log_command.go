package commands

import (
	"context"
	"fmt"

	"github.com/vsinha/seasonplan/pkg/interfaces/cli/output"
)

// LogConfig holds configuration for the log and runs commands
type LogConfig struct {
	RunID  string
	Format string
}

// LogCommand prints the persisted execution log of a run
type LogCommand struct {
	env    *Environment
	config LogConfig
}

// NewLogCommand creates a new log command
func NewLogCommand(env *Environment, config LogConfig) *LogCommand {
	return &LogCommand{env: env, config: config}
}

// Execute prints the log in sequence order
func (c *LogCommand) Execute(ctx context.Context) error {
	if c.config.RunID == "" {
		return fmt.Errorf("a run id is required")
	}
	log, err := c.env.Store.ListLog(ctx, c.config.RunID)
	if err != nil {
		return err
	}
	return output.RenderLog(c.env.Out, log, c.config.Format)
}

// RunsCommand lists persisted runs, most recently updated first
type RunsCommand struct {
	env    *Environment
	config LogConfig
}

// NewRunsCommand creates a new runs command
func NewRunsCommand(env *Environment, config LogConfig) *RunsCommand {
	return &RunsCommand{env: env, config: config}
}

// Execute prints the run listing
func (c *RunsCommand) Execute(ctx context.Context) error {
	runs, err := c.env.Store.ListRuns(ctx)
	if err != nil {
		return err
	}
	return output.RenderRuns(c.env.Out, runs, c.config.Format)
}

// ShowCommand prints the latest result bundle of a run
type ShowCommand struct {
	env    *Environment
	runID  string
	output OutputConfig
}

// NewShowCommand creates a new show command
func NewShowCommand(env *Environment, runID string, output OutputConfig) *ShowCommand {
	return &ShowCommand{env: env, runID: runID, output: output}
}

// Execute loads the latest bundle from the store
func (c *ShowCommand) Execute(ctx context.Context) error {
	if c.runID == "" {
		return fmt.Errorf("a run id is required")
	}
	result, err := c.env.Store.LoadResult(ctx, c.runID)
	if err != nil {
		return err
	}
	return generate(c.env, result, c.output)
}
