// Package cmd provides the CLI commands for wikisearch.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/wikisearch/internal/config"
	"github.com/Aman-CERP/wikisearch/internal/logging"
	"github.com/Aman-CERP/wikisearch/internal/profiling"
	"github.com/Aman-CERP/wikisearch/pkg/version"
)

// Global flags
var (
	configPath     string
	debugMode      bool
	loggingCleanup func()
)

// Profiling flags
var (
	profileOpts profiling.Options
	profiler    *profiling.Session
)

// NewRootCmd creates the root command for the wikisearch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wikisearch",
		Short: "Generational full-text search for wiki documents",
		Long: `wikisearch maintains versioned builds (generations) of a wiki's
full-text search index and serves faceted search from the current one.

A rebuild writes a fresh generation while the current one keeps serving.
Edits made during the rebuild are recorded and replayed when the new
generation is promoted, so nothing is lost at cutover.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("wikisearch version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (default: .wikisearch.yaml, then user config)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to stderr and the log file")

	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfiling
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newReindexCmd())
	cmd.AddCommand(newPromoteCmd())
	cmd.AddCommand(newDemoteCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newGCCmd())
	cmd.AddCommand(newGenerationsCmd())
	cmd.AddCommand(newOutdatedCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newFiltersCmd())
	cmd.AddCommand(newDocsCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command with a context canceled on SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// loadConfig reads --config when given, otherwise the layered defaults for
// the working directory.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return config.Load(cwd)
}

// setupLogging installs the JSON file logger under <data_dir>/logs.
func setupLogging(cfg *config.Config) (*slog.Logger, error) {
	logCfg := logging.Config{
		Level:         cfg.Server.LogLevel,
		FilePath:      filepath.Join(cfg.Paths.DataDir, "logs", "wikisearch.log"),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: debugMode,
	}
	if debugMode {
		logCfg.Level = "debug"
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	if loggingCleanup != nil {
		loggingCleanup()
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("debug_logging_enabled",
		slog.String("log_file", logCfg.FilePath),
		slog.String("version", version.Version))
	return logger, nil
}

func startProfiling(_ *cobra.Command, _ []string) error {
	if !profileOpts.Enabled() {
		return nil
	}
	s, err := profiling.Start(profileOpts)
	if err != nil {
		return err
	}
	profiler = s
	return nil
}

// stopProfilingAndLogging flushes profiles and closes the log file.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error
	if profiler != nil {
		err = profiler.Stop()
		profiler = nil
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}
