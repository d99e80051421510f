// Package store provides test utilities for database testing.
package store

import (
	"os"
	"testing"

	"github.com/pullwise/pullwise/internal/database"
)

// SetupTestDB creates a temporary SQLite database for testing.
// It returns a Store instance and a cleanup function to defer.
func SetupTestDB(t *testing.T) (Store, func()) {
	t.Helper()

	database.ResetForTesting()

	tmpFile, err := os.CreateTemp("", "pullwise_test_*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()

	if err := database.InitWithPath(tmpPath); err != nil {
		os.Remove(tmpPath)
		t.Fatalf("Failed to initialize test database: %v", err)
	}

	s := NewStore(database.Get())

	cleanup := func() {
		database.Close()
		database.ResetForTesting()
		os.Remove(tmpPath)
	}
	return s, cleanup
}
