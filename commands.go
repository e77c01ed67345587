package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/samuelfneumann/btcrl/logger"
	"github.com/samuelfneumann/btcrl/server"
	"github.com/samuelfneumann/btcrl/sweep"
	"github.com/samuelfneumann/btcrl/telemetry"
	"github.com/spf13/cobra"
)

// Environment variables read for flag defaults
const (
	envConfig   = "BTCRL_CONFIG"
	envDatabase = "BTCRL_DATABASE"
	envLogLevel = "BTCRL_LOG_LEVEL"
	envLogFile  = "BTCRL_LOG_FILE"
)

type options struct {
	config   string
	database string
	logLevel string
	logFile  string
	pretty   bool
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// newRootCmd creates the root command
func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "btcrl",
		Short:         "Train reinforcement learning agents to trade Bitcoin",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))
	rootCmd.AddCommand(newServeCmd(opts))

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.config, "config", getenv(envConfig, ""),
		"Experiment file, the built in experiment is used if empty")
	flags.StringVar(&opts.database, "db", getenv(envDatabase, "data/btcrl.db"),
		"Telemetry database path")
	flags.StringVar(&opts.logLevel, "log-level", getenv(envLogLevel, "info"),
		"Log level: debug, info, warn, error")
	flags.StringVar(&opts.logFile, "log-file", getenv(envLogFile, ""),
		"Also write logs to this rotated file")
	flags.BoolVar(&opts.pretty, "pretty", true, "Pretty console logs")

	return rootCmd
}

func (o *options) logger() (zerolog.Logger, func()) {
	log, closer := logger.New(logger.Config{
		Level:  o.logLevel,
		Pretty: o.pretty,
		File:   o.logFile,
	})
	logger.SetGlobalLogger(log)
	return log, func() { closer.Close() }
}

func (o *options) experiment() (sweep.Experiment, error) {
	if o.config == "" {
		return sweep.Default(), nil
	}
	return sweep.Load(o.config)
}

func (o *options) store(ctx context.Context) (*telemetry.Store, error) {
	store, err := telemetry.Open(telemetry.Config{Path: o.database})
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// newRunCmd creates the run command
func newRunCmd(opts *options) *cobra.Command {
	var (
		episodes  int
		steps     int
		agentName string
		preset    string
		seed      uint64
		progress  bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Train the configured agent and record every episode",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, closeLog := opts.logger()
			defer closeLog()

			exp, err := opts.experiment()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("episodes") {
				exp.Episodes = episodes
			}
			if flags.Changed("steps") {
				exp.Steps = steps
			}
			if flags.Changed("agent") {
				exp.AgentName = agentName
			}
			if flags.Changed("preset") {
				exp.Preset = preset
			}
			if flags.Changed("seed") {
				exp.Seed = seed
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt,
				syscall.SIGTERM)
			defer stop()

			store, err := opts.store(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			deps := sweep.Deps{
				Store: store,
				Log:   log,
				Out:   cmd.OutOrStdout(),
			}
			if progress {
				deps.Progress = cmd.ErrOrStderr()
			}
			_, err = sweep.Run(ctx, exp, deps)
			if errors.Is(err, context.Canceled) {
				log.Warn().Msg("training interrupted")
				return nil
			}
			return err
		},
	}

	cmd.Flags().IntVar(&episodes, "episodes", 0, "Episodes to train for")
	cmd.Flags().IntVar(&steps, "steps", 0, "Steps per episode")
	cmd.Flags().StringVar(&agentName, "agent", "",
		`Agent name, e.g. "PPOAgent;lstm"`)
	cmd.Flags().StringVar(&preset, "preset", "",
		"Override preset: tforce, custom, blog or none")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed")
	cmd.Flags().BoolVar(&progress, "progress", false,
		"Draw a progress bar on stderr")

	return cmd
}

// newConfigCmd creates the config command
func newConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved agent configuration without training",
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := opts.experiment()
			if err != nil {
				return err
			}
			if err := exp.Validate(); err != nil {
				return err
			}

			series, err := exp.Series(cmd.Context())
			if err != nil {
				return err
			}
			env, err := exp.NewEnv(series)
			if err != nil {
				return err
			}
			params, err := exp.Resolve(env)
			if err != nil {
				return err
			}
			return sweep.PrintConfig(cmd.OutOrStdout(), exp.AgentName, params)
		},
	}
}

// newServeCmd creates the serve command
func newServeCmd(opts *options) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve recorded episodes over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, closeLog := opts.logger()
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt,
				syscall.SIGTERM)
			defer stop()

			store, err := opts.store(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			srv := server.New(server.Config{Port: port, Log: log, Store: store})
			errs := make(chan error, 1)
			go func() { errs <- srv.Start() }()

			select {
			case err := <-errs:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("serve: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			shutdown, cancel := context.WithTimeout(context.Background(),
				10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdown)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "Port to listen on")
	return cmd
}
