package config

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/vsinha/seasonplan/pkg/application/services/allocation"
	"github.com/vsinha/seasonplan/pkg/application/services/dataset"
	"github.com/vsinha/seasonplan/pkg/application/services/forecast"
	"github.com/vsinha/seasonplan/pkg/application/services/markdown"
	"github.com/vsinha/seasonplan/pkg/application/services/orchestration"
	"github.com/vsinha/seasonplan/pkg/application/services/reallocation"
	"github.com/vsinha/seasonplan/pkg/application/services/reforecast"
	"github.com/vsinha/seasonplan/pkg/application/services/variance"
	"github.com/vsinha/seasonplan/pkg/infrastructure/logging"
)

// Config models seasonplan.yml. Every planning threshold lives here.
type Config struct {
	Data struct {
		SalesFile  string `yaml:"sales_file" mapstructure:"sales_file"`
		StoresFile string `yaml:"stores_file" mapstructure:"stores_file"`
	} `yaml:"data" mapstructure:"data"`
	Database struct {
		Path string `yaml:"path" mapstructure:"path"`
	} `yaml:"database" mapstructure:"database"`
	Server struct {
		Addr string `yaml:"addr" mapstructure:"addr"`
	} `yaml:"server" mapstructure:"server"`
	Logging logging.Options `yaml:"logging" mapstructure:"logging"`

	Forecast     forecast.Config       `yaml:"forecast" mapstructure:"forecast"`
	Allocation   allocation.Config     `yaml:"allocation" mapstructure:"allocation"`
	Variance     variance.Config       `yaml:"variance" mapstructure:"variance"`
	Reforecast   reforecast.Config     `yaml:"reforecast" mapstructure:"reforecast"`
	Reallocation reallocation.Config   `yaml:"reallocation" mapstructure:"reallocation"`
	Markdown     markdown.Config       `yaml:"markdown" mapstructure:"markdown"`
	Workflow     orchestration.Options `yaml:"workflow" mapstructure:"workflow"`
}

// Default returns the default configuration
func Default() *Config {
	cfg := &Config{
		Logging:      logging.DefaultOptions(),
		Forecast:     forecast.DefaultConfig(),
		Allocation:   allocation.DefaultConfig(),
		Variance:     variance.DefaultConfig(),
		Reforecast:   reforecast.DefaultConfig(),
		Reallocation: reallocation.DefaultConfig(),
		Markdown:     markdown.DefaultConfig(),
		Workflow:     orchestration.DefaultOptions(),
	}
	cfg.Data.SalesFile = "data/sales.csv"
	cfg.Data.StoresFile = "data/stores.csv"
	cfg.Database.Path = ".seasonplan/seasonplan.db"
	cfg.Server.Addr = ":8080"
	return cfg
}

// Validate checks every section
func (c *Config) Validate() error {
	if c.Data.SalesFile == "" {
		return fmt.Errorf("config.data.sales_file is required")
	}
	if c.Data.StoresFile == "" {
		return fmt.Errorf("config.data.stores_file is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("config.database.path is required")
	}
	sections := []struct {
		name     string
		validate func() error
	}{
		{"logging", c.Logging.Validate},
		{"forecast", c.Forecast.Validate},
		{"allocation", c.Allocation.Validate},
		{"variance", c.Variance.Validate},
		{"reforecast", c.Reforecast.Validate},
		{"reallocation", c.Reallocation.Validate},
		{"markdown", c.Markdown.Validate},
		{"workflow", c.Workflow.Validate},
	}
	for _, s := range sections {
		if err := s.validate(); err != nil {
			return fmt.Errorf("config.%s: %w", s.name, err)
		}
	}
	return nil
}

// Files returns the dataset file locations
func (c *Config) Files() dataset.Files {
	return dataset.Files{SalesFile: c.Data.SalesFile, StoresFile: c.Data.StoresFile}
}

// Services builds the workflow services from the configured thresholds
func (c *Config) Services(logger *zap.Logger) orchestration.Services {
	return orchestration.Services{
		Forecast:     forecast.NewEngine(c.Forecast, logger),
		Allocation:   allocation.NewEngine(c.Allocation, logger),
		Variance:     variance.NewAnalyzer(c.Variance),
		Reforecast:   reforecast.NewReforecaster(c.Reforecast),
		Reallocation: reallocation.NewAnalyzer(c.Reallocation),
		Markdown:     c.Markdown,
	}
}

// FromYAML parses config over the defaults and validates it; omitted keys keep their default
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults when the file does not exist
func LoadOptional(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return FromFile(path)
}

// GenerateDefault renders the default configuration as YAML
func GenerateDefault() ([]byte, error) {
	out, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("failed to render default config: %w", err)
	}
	return out, nil
}
