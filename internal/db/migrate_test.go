package db

import (
	"database/sql"
	"path/filepath"
	"testing"
)

const migrationsDir = "../../migrations"

// migrateDB opens a fresh database without the NewDB bootstrap schema so
// migrations are exercised from a clean slate.
func migrateDB(t *testing.T) *DB {
	t.Helper()
	raw, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { raw.Close() })
	return &DB{raw}
}

func TestMigrateUpAndVersion(t *testing.T) {
	db := migrateDB(t)

	version, dirty, err := db.MigrateVersion(migrationsDir)
	if err != nil {
		t.Fatalf("MigrateVersion before up: %v", err)
	}
	if version != 0 || dirty {
		t.Errorf("fresh database: version=%d dirty=%v, want 0 false", version, dirty)
	}

	if err := db.MigrateUp(migrationsDir); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	version, dirty, err = db.MigrateVersion(migrationsDir)
	if err != nil {
		t.Fatalf("MigrateVersion after up: %v", err)
	}
	if version == 0 || dirty {
		t.Errorf("after up: version=%d dirty=%v", version, dirty)
	}

	// The migrated schema accepts a summary row.
	if _, err := db.Exec(`INSERT INTO rom_sessions
		(session_id, exercise_id, started_at, finished_at, duration_seconds, sample_count, classification)
		VALUES ('m-1', 'knee_flexion', '2026-03-10', '2026-03-10', 20, 100, 'good')`); err != nil {
		t.Errorf("insert into migrated schema: %v", err)
	}

	// Up again is a no-op.
	if err := db.MigrateUp(migrationsDir); err != nil {
		t.Errorf("second MigrateUp: %v", err)
	}
}

func TestMigrateDownDropsSchema(t *testing.T) {
	db := migrateDB(t)
	if err := db.MigrateUp(migrationsDir); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	if err := db.MigrateDown(migrationsDir); err != nil {
		t.Fatalf("MigrateDown: %v", err)
	}

	var name string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='rom_sessions'`).Scan(&name)
	if err == nil {
		t.Error("rom_sessions still present after down migration")
	}
}
