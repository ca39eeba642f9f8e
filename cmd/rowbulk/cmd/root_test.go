package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_HasSubcommands(t *testing.T) {
	// Given: the root command
	cmd := NewRootCmd()

	// Then: every subcommand is registered
	for _, name := range []string{"build", "catalog", "project", "doctor", "config", "logs", "version"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	cmd := NewRootCmd()

	tests := []struct {
		name string
		def  string
	}{
		{"dir", "."},
		{"debug", "false"},
		{"profile-cpu", ""},
		{"profile-mem", ""},
		{"profile-goroutine", ""},
		{"profile-trace", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := cmd.PersistentFlags().Lookup(tt.name)
			require.NotNil(t, flag)
			assert.Equal(t, tt.def, flag.DefValue)
		})
	}
}

func TestBuildCmd_Flags(t *testing.T) {
	cmd := NewRootCmd()
	buildCmd, _, err := cmd.Find([]string{"build"})
	require.NoError(t, err)

	for _, name := range []string{"driver", "dsn", "table", "row-type-oid", "backend", "index", "endpoint", "path", "workers", "no-tui", "no-color", "metrics-file"} {
		assert.NotNil(t, buildCmd.Flags().Lookup(name), name)
	}
}

func TestRootCmd_Version(t *testing.T) {
	isolate(t)

	stdout, _, err := execute(t, "--version")

	require.NoError(t, err)
	assert.Contains(t, stdout, "rowbulk version")
}

func TestRootCmd_UnknownCommand(t *testing.T) {
	isolate(t)

	_, _, err := execute(t, "reindex")

	assert.Error(t, err)
}

func TestRootCmd_ProfilingWritesFiles(t *testing.T) {
	// Given: a heap profile path
	isolate(t)
	heap := t.TempDir() + "/heap.prof"

	// When: running any command with profiling enabled
	_, _, err := execute(t, "--profile-mem", heap, "version", "--short")

	// Then: the profile is written by the post-run hook
	require.NoError(t, err)
	assert.FileExists(t, heap)
}
