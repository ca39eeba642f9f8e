package cmd

import (
	"bufio"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/rowbulk/internal/build"
	"github.com/Aman-CERP/rowbulk/internal/logging"
)

func newProjectCmd() *cobra.Command {
	var (
		src   sourceFlags
		limit int
	)

	cmd := &cobra.Command{
		Use:   "project",
		Short: "Print projected documents as NDJSON without indexing",
		Long: `Scan the source table and write each projected document to stdout, one
JSON object per line. Nothing is submitted to a backend.

Examples:
  rowbulk project --driver sqlite --dsn data.db --table orders --limit 10
  rowbulk project --table public.orders | jq .`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFor(cmd, &src, nil)
			if err != nil {
				return err
			}

			logger := logging.NewLogger(cmd.ErrOrStderr(), logLevel(cfg))
			runner := build.NewRunner(cfg, build.WithLogger(logger))

			w := bufio.NewWriter(cmd.OutOrStdout())
			n, err := runner.Project(cmd.Context(), w, limit)
			if flushErr := w.Flush(); err == nil {
				err = flushErr
			}
			if err != nil {
				return err
			}
			logger.Debug("projected", slog.Int("documents", n))
			return nil
		},
	}

	src.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after this many documents (0 for all)")

	return cmd
}
