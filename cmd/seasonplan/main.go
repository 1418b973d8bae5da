package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/vsinha/seasonplan/pkg/infrastructure/config"
	"github.com/vsinha/seasonplan/pkg/infrastructure/logging"
	"github.com/vsinha/seasonplan/pkg/interfaces/cli/commands"
)

var (
	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "seasonplan",
	Short: "Seasonal demand forecasting and inventory allocation",
	Long: `seasonplan forecasts category demand for a retail season, sizes the
manufacturing order and allocates it across stores. Weekly actuals drive
variance analysis, reforecasting and store-to-store reallocation.

Run state is kept in a sqlite database so a season can be continued across
invocations: plan once, then feed each week's actuals with 'seasonplan actuals'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadOptional(viper.GetString("config"))
		if err != nil {
			return err
		}
		applyOverrides(loaded)
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded

		l, level, err := logging.New(cfg.Logging)
		if err != nil {
			return err
		}
		if viper.GetBool("verbose") {
			level.SetLevel(zap.DebugLevel)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SEASONPLAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	defaults := config.Default()
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "seasonplan.yml", "configuration file")
	flags.BoolP("verbose", "v", false, "debug logging and detailed output")
	flags.StringP("format", "f", "text", "output format: text, json, csv, html")
	flags.StringP("output", "o", "", "output directory for json, csv and html results")
	flags.String("db", defaults.Database.Path, "sqlite database holding run state")
	flags.String("sales", defaults.Data.SalesFile, "historical sales CSV")
	flags.String("stores", defaults.Data.StoresFile, "store attributes CSV")
	flags.String("log-level", defaults.Logging.Level, "log level: debug, info, warn, error")
	for _, name := range []string{"config", "verbose", "format", "output", "db", "sales", "stores", "log-level"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

// applyOverrides lets explicit flags and SEASONPLAN_* variables win over the file
func applyOverrides(c *config.Config) {
	if viper.IsSet("db") {
		c.Database.Path = viper.GetString("db")
	}
	if viper.IsSet("sales") {
		c.Data.SalesFile = viper.GetString("sales")
	}
	if viper.IsSet("stores") {
		c.Data.StoresFile = viper.GetString("stores")
	}
	if viper.IsSet("log-level") {
		c.Logging.Level = viper.GetString("log-level")
	}
}

func outputConfig() commands.OutputConfig {
	return commands.OutputConfig{
		Format:    viper.GetString("format"),
		OutputDir: viper.GetString("output"),
		Verbose:   viper.GetBool("verbose"),
	}
}

// withEnvironment opens the run database for the duration of fn
func withEnvironment(fn func(env *commands.Environment) error) error {
	env, err := commands.NewEnvironment(cfg, logger)
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(env)
}

func registerCommands() {
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(actualsCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(markdownCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(configCmd())
}

func planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <season.yml>",
		Short: "Forecast a season and allocate the manufacturing order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(func(env *commands.Environment) error {
				result, err := commands.NewPlanCommand(env, commands.PlanConfig{
					ParametersFile: args[0],
					Output:         outputConfig(),
				}).Execute(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "run %s planned\n", result.RunID)
				return nil
			})
		},
	}
}

func actualsCmd() *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "actuals <week.csv>",
		Short: "Process one week of actuals against a planned run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(func(env *commands.Environment) error {
				_, err := commands.NewActualsCommand(env, commands.ActualsConfig{
					RunID:       runID,
					ActualsFile: args[0],
					Output:      outputConfig(),
				}).Execute(cmd.Context())
				return err
			})
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run id returned by plan")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}

func watchCmd() *cobra.Command {
	var (
		runID    string
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch <inbox-dir>",
		Short: "Process actuals CSVs as they are dropped into a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(func(env *commands.Environment) error {
				return commands.NewWatchCommand(env, commands.WatchConfig{
					RunID:    runID,
					Dir:      args[0],
					Debounce: debounce,
					Output:   outputConfig(),
				}).Execute(cmd.Context())
			})
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run id returned by plan")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "quiet period before a file is processed")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}

func markdownCmd() *cobra.Command {
	var sellThrough, target float64
	cmd := &cobra.Command{
		Use:   "markdown",
		Short: "Recommend a markdown for a sell-through gap",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := commands.NewMarkdownCommand(&commands.Environment{Config: cfg, Logger: logger, Out: os.Stdout},
				commands.MarkdownConfig{
					SellThrough: sellThrough,
					Target:      target,
					Format:      viper.GetString("format"),
				}).Execute()
			return err
		},
	}
	cmd.Flags().Float64Var(&sellThrough, "sell-through", 0, "actual sell-through rate, 0 to 1")
	cmd.Flags().Float64Var(&target, "target", 0.6, "target sell-through rate, 0 to 1")
	_ = cmd.MarkFlagRequired("sell-through")
	return cmd
}

func runsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List persisted runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(func(env *commands.Environment) error {
				return commands.NewRunsCommand(env, commands.LogConfig{Format: viper.GetString("format")}).Execute(cmd.Context())
			})
		},
	}
}

func logCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "log <run-id>",
		Short: "Print the execution log of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(func(env *commands.Environment) error {
				return commands.NewLogCommand(env, commands.LogConfig{
					RunID:  args[0],
					Format: viper.GetString("format"),
				}).Execute(cmd.Context())
			})
		},
	}
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the latest result bundle of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(func(env *commands.Environment) error {
				return commands.NewShowCommand(env, args[0], outputConfig()).Execute(cmd.Context())
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP planning API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = cfg.Server.Addr
			}
			return withEnvironment(func(env *commands.Environment) error {
				return commands.NewServeCommand(env, addr).Execute(cmd.Context())
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	return cmd
}

func generateCmd() *cobra.Command {
	gen := commands.DefaultGenerateConfig()
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic planning scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			gen.Verbose = viper.GetBool("verbose")
			return commands.NewGenerateCommand(gen).Execute()
		},
	}
	f := cmd.Flags()
	f.StringVar(&gen.Category, "category", gen.Category, "product category")
	f.IntVar(&gen.Stores, "store-count", gen.Stores, "number of stores")
	f.IntVar(&gen.Weeks, "weeks", gen.Weeks, "weeks of sales history")
	f.IntVar(&gen.Horizon, "horizon", gen.Horizon, "season length in weeks")
	f.IntVar(&gen.ActualWeeks, "actual-weeks", gen.ActualWeeks, "weeks of in-season actuals")
	f.Float64Var(&gen.Surge, "surge", gen.Surge, "multiplier on in-season sales")
	f.StringVar(&gen.OutputDir, "dir", gen.OutputDir, "scenario directory")
	f.Int64Var(&gen.Seed, "seed", gen.Seed, "random seed, 0 for time-based")
	return cmd
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Print the default configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := config.GenerateDefault()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})
	return cfgCmd
}
