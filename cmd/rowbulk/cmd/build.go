package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/rowbulk/internal/build"
	"github.com/Aman-CERP/rowbulk/internal/config"
	"github.com/Aman-CERP/rowbulk/internal/logging"
	"github.com/Aman-CERP/rowbulk/internal/ui"
)

func newBuildCmd() *cobra.Command {
	var (
		src         sourceFlags
		be          backendFlags
		noTUI       bool
		noColor     bool
		metricsFile string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Index every row of a table into the backend",
		Long: `Scan every live row of the source table, project it into a JSON document
and submit the documents to the backend in bulk batches.

The build waits until the backend has acknowledged every document before
it reports success. Any projection or submission failure aborts the whole
build. Only one build per target index may run at a time.

Examples:
  rowbulk build --driver sqlite --dsn data.db --table orders --backend bleve --index orders
  rowbulk build --dsn postgres://localhost/shop --table public.orders --index orders`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := configFor(cmd, &src, &be)
			if err != nil {
				return err
			}

			uiCfg := ui.NewConfig(cmd.OutOrStdout(),
				ui.WithForcePlain(noTUI),
				ui.WithNoColor(noColor || ui.DetectNoColor()),
				ui.WithTitle(buildTitle(cfg)))
			renderer := ui.NewRenderer(uiCfg)

			// The TUI owns the terminal, so logs go to the file only.
			logger, cleanup, err := logging.Setup(logging.FileOnlyConfig(logLevel(cfg)))
			if err != nil {
				logger, cleanup = logging.NewLogger(cmd.ErrOrStderr(), "warn"), func() {}
			}
			defer cleanup()

			runner := build.NewRunner(cfg,
				build.WithLogger(logger),
				build.WithRenderer(renderer),
				build.WithMetricsFile(metricsFile))

			res, err := runner.Run(ctx)
			if err != nil {
				return err
			}
			logger.Debug("build_result",
				slog.Float64("heap_tuples", res.HeapTuples),
				slog.Float64("index_tuples", res.IndexTuples))
			return nil
		},
	}

	src.register(cmd)
	be.register(cmd)
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Plain text progress instead of the interactive display")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the build")

	return cmd
}

// buildTitle names the build for the progress header.
func buildTitle(cfg *config.Config) string {
	relation := cfg.Source.Table
	if relation == "" && cfg.Source.RowTypeOID != 0 {
		relation = fmt.Sprintf("oid %d", cfg.Source.RowTypeOID)
	}
	return fmt.Sprintf("%s → %s", relation, cfg.Backend.Index)
}
