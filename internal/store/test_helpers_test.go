package store

import (
	"path/filepath"
	"testing"
)

// createTestSQLite creates a new SQLite store in a temp directory.
func createTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestFile creates a new file store in a temp directory.
func createTestFile(t *testing.T) *File {
	t.Helper()
	f, err := OpenFile(t.TempDir())
	if err != nil {
		t.Fatalf("OpenFile() failed: %v", err)
	}
	return f
}

// drivers returns one fresh store per driver.
func drivers(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		DriverMemory: NewMemory(),
		DriverFile:   createTestFile(t),
		DriverSQLite: createTestSQLite(t),
	}
}
