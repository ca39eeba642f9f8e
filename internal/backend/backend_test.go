package backend

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/rowbulk/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		kind     string
		endpoint string
		wantName string
		wantErr  string
	}{
		{name: "elasticsearch", kind: config.BackendElasticsearch, endpoint: "http://localhost:9200", wantName: "elasticsearch"},
		{name: "elasticsearch without endpoint", kind: config.BackendElasticsearch, wantErr: "endpoint is required"},
		{name: "bleve", kind: config.BackendBleve, wantName: "bleve"},
		{name: "sqlite", kind: config.BackendSQLite, wantName: "sqlite"},
		{name: "unknown", kind: "solr", wantErr: "unknown backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewConfig()
			cfg.DataDir = t.TempDir()
			cfg.Backend.Kind = tt.kind
			cfg.Backend.Endpoint = tt.endpoint

			b, err := New(cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer b.Close()
			assert.Equal(t, tt.wantName, b.Name())
		})
	}
}

func TestNew_SQLiteFileLocation(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Backend.Kind = config.BackendSQLite
	cfg.Backend.Path = filepath.Join(t.TempDir(), "local")

	b, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, b.Close())
	assert.FileExists(t, filepath.Join(cfg.Backend.Path, SQLiteFile))
}
