package cmd

import (
	"bytes"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// isolate points every user-level path (config, data dir, logs) at a
// temporary home directory and returns it.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("NO_COLOR", "1")
	for _, name := range []string{
		"ROWBULK_SOURCE_DRIVER", "ROWBULK_SOURCE_DSN", "ROWBULK_SOURCE_TABLE",
		"ROWBULK_BACKEND_KIND", "ROWBULK_BACKEND_INDEX", "ROWBULK_BACKEND_ENDPOINT",
	} {
		t.Setenv(name, "")
	}
	return home
}

// newSourceDB creates a two-row items table in a fresh SQLite file.
func newSourceDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range []string{
		`CREATE TABLE items (c1 TEXT, c2 INT4, c3 DOUBLE PRECISION)`,
		`INSERT INTO items VALUES ('a', 1, 3.5), ('b', 2, NULL)`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return path
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
