package commands

import (
	"fmt"

	"github.com/vsinha/seasonplan/pkg/domain/entities"
	"github.com/vsinha/seasonplan/pkg/interfaces/cli/output"
)

// MarkdownConfig holds configuration for the markdown command
type MarkdownConfig struct {
	SellThrough float64
	Target      float64
	Format      string
}

// MarkdownCommand prices a markdown for a given sell-through gap
type MarkdownCommand struct {
	env    *Environment
	config MarkdownConfig
}

// NewMarkdownCommand creates a new markdown command
func NewMarkdownCommand(env *Environment, config MarkdownConfig) *MarkdownCommand {
	return &MarkdownCommand{env: env, config: config}
}

// Execute computes the recommendation with the configured elasticity and cap
func (c *MarkdownCommand) Execute() (*entities.MarkdownResult, error) {
	result, err := c.env.Config.Markdown.Calculate(c.config.SellThrough, c.config.Target)
	if err != nil {
		return nil, fmt.Errorf("error calculating markdown: %w", err)
	}
	if err := output.RenderMarkdown(c.env.Out, result, c.config.Format); err != nil {
		return nil, err
	}
	return &result, nil
}
