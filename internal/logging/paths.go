package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.rowbulk/logs/).
// Falls back to temp directory if home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".rowbulk", "logs")
	}
	return filepath.Join(home, ".rowbulk", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "rowbulk.log")
}

// FindLogFiles returns the log files to view. An explicit path wins over the
// default. With rotated set, the rotated generations (rowbulk.log.N.gz) that
// exist are returned too, oldest first.
func FindLogFiles(explicit string, rotated bool) ([]string, error) {
	// Explicit path or default
	path := explicit
	if path == "" {
		path = DefaultLogPath()
	}
	if _, err := os.Stat(path); err != nil {
		if explicit != "" {
			return nil, fmt.Errorf("log file not found: %s", explicit)
		}
		return nil, fmt.Errorf("no log file found. Run rowbulk build or pass --debug first.\nExpected at: %s", path)
	}

	// Current file only, unless rotated generations were asked for
	if !rotated {
		return []string{path}, nil
	}
	return append(rotatedFiles(path), path), nil
}

// rotatedFiles lists the rotated generations of path, oldest first.
func rotatedFiles(path string) []string {
	gens := generations(path)
	out := make([]string, len(gens))
	for i, g := range gens {
		out[i] = g.path
	}
	return out
}
