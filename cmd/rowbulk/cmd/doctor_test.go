package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoctorCmd_Ready(t *testing.T) {
	// Given: a reachable SQLite source and a local backend
	isolate(t)

	// When: running doctor
	stdout, _, err := execute(t, "doctor",
		"--driver", "sqlite", "--dsn", newSourceDB(t), "--table", "items",
		"--backend", "sqlite", "--index", "items", "--path", t.TempDir())

	// Then: source and backend checks pass
	require.NoError(t, err)
	assert.Contains(t, stdout, "[PASS] source: items")
	assert.Contains(t, stdout, "[PASS] backend: sqlite at")
}

func TestDoctorCmd_MissingTableFails(t *testing.T) {
	isolate(t)

	stdout, _, err := execute(t, "doctor", "-v",
		"--driver", "sqlite", "--dsn", newSourceDB(t), "--table", "missing",
		"--backend", "sqlite", "--index", "items", "--path", t.TempDir())

	require.Error(t, err)
	assert.Contains(t, stdout, "[FAIL] source: missing unreachable")
	assert.Contains(t, stdout, "Status: FAILED")
}

func TestDoctorCmd_IncompleteConfig(t *testing.T) {
	isolate(t)

	stdout, _, err := execute(t, "doctor", "--backend", "sqlite")

	require.Error(t, err)
	assert.Contains(t, stdout, "missing source.dsn, source.table, backend.index")
	assert.Contains(t, stdout, "[SKIP] source")
}

func TestDoctorCmd_PingsElasticsearch(t *testing.T) {
	// Given: a cluster answering on its root endpoint
	isolate(t)
	var pinged bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pinged = r.URL.Path == "/" && r.Method == http.MethodGet
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		_, _ = w.Write([]byte(`{"cluster_name":"test"}`))
	}))
	defer srv.Close()

	// When: running doctor with JSON output
	stdout, _, err := execute(t, "doctor", "--json",
		"--driver", "sqlite", "--dsn", newSourceDB(t), "--table", "items",
		"--backend", "elasticsearch", "--endpoint", srv.URL, "--index", "items")

	// Then: the backend was contacted and the summary is machine readable
	require.NoError(t, err)
	assert.True(t, pinged)
	var report struct {
		Status string `json:"status"`
		Checks []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.NotEqual(t, "failed", report.Status)
	for _, c := range report.Checks {
		if c.Name == "backend" {
			assert.Equal(t, "pass", c.Status)
		}
	}
}
