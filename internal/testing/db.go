// Package testing provides testing utilities and helpers for the engine.
package testing

import (
	"path/filepath"
	"testing"

	"github.com/aristath/portfolio-engine/internal/database"
)

// NewTestDB creates a file-backed SQLite database in a per-test temp dir and
// applies the embedded schema matching name ("history", "portfolios",
// "cache"). Unknown names get an empty database.
// The returned cleanup function is idempotent.
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	tmpPath := filepath.Join(t.TempDir(), "test_"+name+".db")

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	closed := false
	cleanup := func() {
		if closed {
			return
		}
		closed = true
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
	}
	t.Cleanup(cleanup)

	return db, cleanup
}
