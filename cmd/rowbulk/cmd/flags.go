package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/rowbulk/internal/config"
	rberrors "github.com/Aman-CERP/rowbulk/internal/errors"
)

// sourceFlags are the source overrides shared by build, catalog and project.
type sourceFlags struct {
	driver     string
	dsn        string
	table      string
	rowTypeOID uint32
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.driver, "driver", "", "Source driver: postgres or sqlite")
	cmd.Flags().StringVar(&f.dsn, "dsn", "", "Source connection string or database file")
	cmd.Flags().StringVar(&f.table, "table", "", "Source table, optionally schema-qualified")
	cmd.Flags().Uint32Var(&f.rowTypeOID, "row-type-oid", 0, "Resolve the relation by composite row type OID (postgres)")
}

// apply copies the flags the user set onto cfg.
func (f *sourceFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("driver") {
		cfg.Source.Driver = f.driver
	}
	if cmd.Flags().Changed("dsn") {
		cfg.Source.DSN = f.dsn
	}
	if cmd.Flags().Changed("table") {
		cfg.Source.Table = f.table
	}
	if cmd.Flags().Changed("row-type-oid") {
		cfg.Source.RowTypeOID = f.rowTypeOID
	}
}

// backendFlags are the backend overrides of the build command.
type backendFlags struct {
	kind     string
	index    string
	endpoint string
	path     string
	workers  int
}

func (f *backendFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.kind, "backend", "", "Backend: elasticsearch, bleve or sqlite")
	cmd.Flags().StringVar(&f.index, "index", "", "Target index name")
	cmd.Flags().StringVar(&f.endpoint, "endpoint", "", "Elasticsearch endpoint URL")
	cmd.Flags().StringVar(&f.path, "path", "", "Data directory for local backends")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Concurrent bulk request workers")
}

func (f *backendFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("backend") {
		cfg.Backend.Kind = f.kind
	}
	if cmd.Flags().Changed("index") {
		cfg.Backend.Index = f.index
	}
	if cmd.Flags().Changed("endpoint") {
		cfg.Backend.Endpoint = f.endpoint
	}
	if cmd.Flags().Changed("path") {
		cfg.Backend.Path = f.path
	}
	if cmd.Flags().Changed("workers") {
		cfg.Bulk.Workers = f.workers
	}
}

// configFor loads the configuration and applies command flags on top.
func configFor(cmd *cobra.Command, src *sourceFlags, be *backendFlags) (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if src != nil {
		src.apply(cmd, cfg)
	}
	if be != nil {
		be.apply(cmd, cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, rberrors.ConfigError("invalid flags", err)
	}
	return cfg, nil
}
