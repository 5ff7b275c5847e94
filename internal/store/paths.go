package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// DatabaseFile is the SQLite file name inside the state directory.
const DatabaseFile = "runs.db"

// DefaultStatePath returns the global state directory.
// On Unix: ~/.contagion
// On Windows: %USERPROFILE%\.contagion
func DefaultStatePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".contagion"), nil
}

// DatabasePath returns the run database path for a state directory.
func DatabasePath(stateDir string) string {
	return filepath.Join(stateDir, DatabaseFile)
}

// EnsureDir creates dir if it doesn't exist.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	return nil
}
