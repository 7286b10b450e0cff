package database

import (
	"path/filepath"
	"testing"

	"github.com/cyclopcam/logs"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(Config{SQLitePath: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := NewMigrator(db.Conn(), logs.NewTestingLog(t)).Run(Migrations()); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}
