package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/rowbulk/internal/backend"
	"github.com/Aman-CERP/rowbulk/internal/build"
	"github.com/Aman-CERP/rowbulk/internal/config"
	"github.com/Aman-CERP/rowbulk/internal/preflight"
)

// pinger is implemented by backends that can check connectivity without
// writing anything.
type pinger interface {
	Ping(ctx context.Context) error
}

func newDoctorCmd() *cobra.Command {
	var (
		src        sourceFlags
		be         backendFlags
		jsonOutput bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that a build can run",
		Long: `Run preflight checks for the configured build: configuration
completeness, data directory permissions, disk space for local backends,
the open file limit, and connectivity to the source and the backend.

Exits with an error when a required check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFor(cmd, &src, &be)
			if err != nil {
				return err
			}

			checker := preflight.New(
				preflight.WithOutput(cmd.OutOrStdout()),
				preflight.WithVerbose(verbose),
				preflight.WithSourceProbe(sourceProbe(cfg)),
				preflight.WithBackendProbe(backendProbe(cfg)),
			)
			results := checker.RunAll(cmd.Context(), cfg)

			if jsonOutput {
				data, err := json.MarshalIndent(map[string]any{
					"status": checker.SummaryStatus(results),
					"checks": results,
				}, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal results: %w", err)
				}
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), string(data)); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}

			if checker.HasCriticalFailures(results) {
				return fmt.Errorf("preflight check failed")
			}
			return nil
		},
	}

	src.register(cmd)
	be.register(cmd)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show failure details")

	return cmd
}

// sourceProbe opens the source and resolves its catalog.
func sourceProbe(cfg *config.Config) preflight.Probe {
	return func(ctx context.Context) error {
		src, err := build.OpenSource(ctx, cfg.Source)
		if err != nil {
			return err
		}
		defer func() { _ = src.Close() }()

		_, err = build.ResolveCatalog(ctx, src)
		return err
	}
}

// backendProbe opens the backend and pings it when it supports that.
func backendProbe(cfg *config.Config) preflight.Probe {
	return func(ctx context.Context) error {
		be, err := backend.New(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = be.Close() }()

		if p, ok := be.(pinger); ok {
			return p.Ping(ctx)
		}
		return nil
	}
}
