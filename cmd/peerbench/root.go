package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/anushabukke/peerBench-sub002/internal/metrics"
	"github.com/anushabukke/peerBench-sub002/internal/projectconfig"
)

var version = "dev"

const defaultEnvFile = ".env"

// app carries state shared by every subcommand. It is populated by the root
// command's PersistentPreRunE.
type app struct {
	debug       bool
	logFormat   string
	envFile     string
	metricsFile string

	cfg     *projectconfig.ProjectConfig
	metrics *metrics.Metrics
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peerbench",
		Short: "peerBench - forward benchmark prompts to models and score the responses",
		Long: `peerBench forwards the prompts of benchmark task files to AI model
providers, records every response in a content-addressed file, and scores the
responses with pluggable scorers.

Every output file is hashed, optionally signed with the operator key, and
described by a .cid sidecar written next to it.`,
		Version:      version,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.BoolVar(&a.debug, "debug", false, "Enable debug logging")
	flags.StringVar(&a.logFormat, "log-format", "text", "Log format: text or json")
	flags.StringVar(&a.envFile, "env-file", defaultEnvFile, "File of environment variables to load before running")
	flags.StringVar(&a.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file when the command finishes")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := a.setupLogging(); err != nil {
			return err
		}
		if err := a.loadEnv(cmd.Flags().Changed("env-file")); err != nil {
			return err
		}
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting working directory: %w", err)
		}
		if a.cfg, err = projectconfig.Load(wd); err != nil {
			return err
		}
		if a.metricsFile == "" {
			a.metricsFile = a.cfg.Metrics.File
		}
		a.metrics = metrics.New()
		return nil
	}

	cmd.AddCommand(newPromptCommand(a))
	cmd.AddCommand(newScoreCommand(a))
	cmd.AddCommand(newAggregateCommand(a))
	cmd.AddCommand(newHashCommand(a))
	cmd.AddCommand(newVerifyCommand())
	cmd.AddCommand(newRecoverCommand(a))
	cmd.AddCommand(newModelsCommand(a))
	cmd.AddCommand(newCacheCommand(a))
	cmd.AddCommand(newLedgerCommand(a))

	return cmd
}

func (a *app) setupLogging() error {
	level := slog.LevelInfo
	if a.debug {
		level = slog.LevelDebug
	}
	switch a.logFormat {
	case "", "text":
		slog.SetLogLoggerLevel(level)
	case "json":
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", a.logFormat)
	}
	return nil
}

// loadEnv reads the env file without overriding variables already set. A
// missing default file is ignored; a missing file named on the command line
// is an error.
func (a *app) loadEnv(explicit bool) error {
	if a.envFile == "" {
		return nil
	}
	err := godotenv.Load(a.envFile)
	if err != nil && errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading %s: %w", a.envFile, err)
	}
	slog.Debug("Loaded environment file", "path", a.envFile)
	return nil
}

func (a *app) flushMetrics() error {
	if a.metrics == nil || a.metricsFile == "" {
		return nil
	}
	if err := a.metrics.WriteTextfile(a.metricsFile); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}

func execute(ctx context.Context) error {
	a := &app{}
	rootCmd := newRootCommand(a)
	err := rootCmd.ExecuteContext(ctx)
	if ferr := a.flushMetrics(); ferr != nil {
		slog.Warn("Metrics were not written", "error", ferr)
	}
	return err
}
