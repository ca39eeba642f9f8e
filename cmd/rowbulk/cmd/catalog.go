package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/rowbulk/internal/build"
	rberrors "github.com/Aman-CERP/rowbulk/internal/errors"
	"github.com/Aman-CERP/rowbulk/internal/logging"
	"github.com/Aman-CERP/rowbulk/internal/ui"
)

func newCatalogCmd() *cobra.Command {
	var (
		src        sourceFlags
		jsonOutput bool
		noColor    bool
	)

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Show the columns a build would index",
		Long: `Resolve the source relation and print its attribute list in position
order, including dropped columns, with the value type each live column is
projected as.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFor(cmd, &src, nil)
			if err != nil {
				return err
			}

			runner := build.NewRunner(cfg, build.WithLogger(logging.NewLogger(cmd.ErrOrStderr(), "warn")))
			cat, err := runner.Catalog(cmd.Context())
			if err != nil {
				if jsonOutput {
					if data, jerr := rberrors.FormatJSON(err); jerr == nil {
						_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
					}
				}
				return err
			}

			renderer := ui.NewCatalogRenderer(cmd.OutOrStdout(), noColor || ui.DetectNoColor())
			info := ui.NewCatalogInfo(cat)
			if jsonOutput {
				return renderer.RenderJSON(info)
			}
			return renderer.Render(info)
		},
	}

	src.register(cmd)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the catalog as JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	return cmd
}
