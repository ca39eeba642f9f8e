// Package backend builds the configured bulk.Backend.
package backend

import (
	"fmt"
	"path/filepath"

	"github.com/Aman-CERP/rowbulk/internal/backend/bleve"
	"github.com/Aman-CERP/rowbulk/internal/backend/elastic"
	"github.com/Aman-CERP/rowbulk/internal/backend/sqlite"
	"github.com/Aman-CERP/rowbulk/internal/bulk"
	"github.com/Aman-CERP/rowbulk/internal/config"
)

// SQLiteFile is the database file name inside the local backend path.
const SQLiteFile = "documents.db"

// New creates the backend selected by cfg.Backend.Kind:
//   - "elasticsearch": _bulk API at backend.endpoint
//   - "bleve": one bleve index per target under the local backend path
//   - "sqlite": SQLite FTS5 store at <local backend path>/documents.db
func New(cfg *config.Config) (bulk.Backend, error) {
	switch cfg.Backend.Kind {
	case config.BackendElasticsearch, "":
		b, err := elastic.New(elastic.Config{
			Endpoint: cfg.Backend.Endpoint,
			Username: cfg.Backend.Username,
			Password: cfg.Backend.Password,
			Compress: cfg.Backend.Compress,
			OpType:   cfg.Backend.OpType,
			Timeout:  cfg.Backend.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return b, nil

	case config.BackendBleve:
		b, err := bleve.New(cfg.LocalBackendPath())
		if err != nil {
			return nil, err
		}
		return b, nil

	case config.BackendSQLite:
		b, err := sqlite.New(filepath.Join(cfg.LocalBackendPath(), SQLiteFile))
		if err != nil {
			return nil, err
		}
		return b, nil

	default:
		return nil, fmt.Errorf("unknown backend: %s (valid options: elasticsearch, bleve, sqlite)", cfg.Backend.Kind)
	}
}
