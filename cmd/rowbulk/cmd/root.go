// Package cmd provides the CLI commands for rowbulk.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/rowbulk/internal/config"
	rberrors "github.com/Aman-CERP/rowbulk/internal/errors"
	"github.com/Aman-CERP/rowbulk/internal/logging"
	"github.com/Aman-CERP/rowbulk/internal/profiling"
	"github.com/Aman-CERP/rowbulk/pkg/version"
)

// Profiling flags
var (
	profileOpts profiling.Options
	profile     *profiling.Session
)

// Global flags
var (
	debugMode      bool
	projectDir     string
	loggingCleanup func()
)

// NewRootCmd creates the root command for the rowbulk CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rowbulk",
		Short: "Bulk-load table rows into a document search index",
		Long: `rowbulk scans every row of a relational table, projects each row into a
JSON document keyed by column name, and submits the documents to a search
backend through a batching bulk channel.

Backends:
  elasticsearch   Bulk API over HTTP
  bleve           Local full-text index
  sqlite          Local document table

Configuration is read from ~/.config/rowbulk/config.yaml, then .rowbulk.yaml
in the project directory, then ROWBULK_* environment variables, then flags.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("rowbulk version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&projectDir, "dir", ".", "Directory containing .rowbulk.yaml")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.rowbulk/logs/")

	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Goroutine, "profile-goroutine", "", "Write goroutine profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newBuildCmd())
	cmd.AddCommand(newCatalogCmd())
	cmd.AddCommand(newProjectCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging starts profiling and debug logging if flags are set.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if debugMode {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Info("Debug logging enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Version))
	}

	if profileOpts.Enabled() {
		session, err := profiling.Start(profileOpts)
		if err != nil {
			return err
		}
		profile = session
	}
	return nil
}

// stopProfilingAndLogging stops profiling and flushes the debug log.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if profile != nil {
		err := profile.Stop()
		profile = nil
		if err != nil {
			return err
		}
	}

	if loggingCleanup != nil {
		slog.Info("Debug logging stopped")
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command and prints any error to stderr.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		// Profiling and logging must be flushed even when RunE failed,
		// because cobra skips the post-run hook in that case.
		_ = stopProfilingAndLogging(nil, nil)
		fmt.Fprint(os.Stderr, rberrors.FormatForCLI(err))
	}
	return err
}

// loadConfig loads the layered configuration for the --dir project directory.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(projectDir)
	if err != nil {
		return nil, rberrors.ConfigError("failed to load configuration", err).
			WithSuggestion("Run 'rowbulk config show' to inspect the effective settings")
	}
	return cfg, nil
}

// logLevel returns the effective log level for a command run.
func logLevel(cfg *config.Config) string {
	if debugMode {
		return "debug"
	}
	return cfg.Logging.Level
}
