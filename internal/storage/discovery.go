package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultDBPath is the database path used when none is configured or
// discovered
const DefaultDBPath = ".medic/medic.db"

// DiscoverDatabase finds the analysis database for the current directory.
//
// MEDIC_DB_PATH wins when set (":memory:" is allowed, for test isolation).
// Otherwise the directory tree is walked upward looking for .medic/medic.db,
// so CLI commands run from a subdirectory find the project's database.
func DiscoverDatabase() (string, error) {
	if dbPath := os.Getenv("MEDIC_DB_PATH"); dbPath != "" {
		return dbPath, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return discoverDatabaseFromDir(dir)
}

// discoverDatabaseFromDir walks up from startDir
func discoverDatabaseFromDir(startDir string) (string, error) {
	dir := startDir
	for {
		candidate := filepath.Join(dir, DefaultDBPath)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			absPath, err := filepath.Abs(candidate)
			if err != nil {
				return "", fmt.Errorf("failed to get absolute path: %w", err)
			}
			return absPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf(
		"no %s found in %s or parent directories\n"+
			"  Run 'medic analyze' once to create it, or use --db to specify a path",
		DefaultDBPath, startDir)
}
