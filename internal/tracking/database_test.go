package tracking

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
)

func TestNewDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "auralis.db")

	db, err := NewDatabase(dbPath)
	if err != nil {
		t.Fatalf("NewDatabase failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestDatabaseSchemaExists(t *testing.T) {
	db := setupTestDB(t)

	for _, table := range []string{"sessions", "asset_failures", "render_stats"} {
		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			t.Errorf("Table %s does not exist or is not queryable: %v", table, err)
		}
	}
}

func TestDatabaseIndexesExist(t *testing.T) {
	db := setupTestDB(t)

	expectedIndexes := []string{
		"idx_sessions_started",
		"idx_failures_timestamp",
		"idx_failures_session",
		"idx_failures_path",
		"idx_stats_session",
	}

	for _, indexName := range expectedIndexes {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", indexName).Scan(&count)
		if err != nil {
			t.Errorf("Failed to query for index %s: %v", indexName, err)
		}
		if count != 1 {
			t.Errorf("Index %s does not exist (found %d entries)", indexName, count)
		}
	}
}

func TestSchemaIsIdempotent(t *testing.T) {
	db := setupTestDB(t)

	if err := ensureSchema(db); err != nil {
		t.Fatalf("second ensureSchema failed: %v", err)
	}
}

func TestSessionConstraints(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.Exec(`INSERT INTO sessions (id, started_at, mode, sample_rate, block_size) VALUES ('a', 1, 'render', 0, 128)`)
	if err == nil {
		t.Error("expected CHECK constraint failure for zero sample rate")
	}

	_, err = db.Exec(`INSERT INTO asset_failures (timestamp, session_id, name, path, reason) VALUES (1, 'missing', 'n', 'p', 'r')`)
	if err == nil {
		t.Error("expected foreign key failure for unknown session")
	}
}

func setupTestDB(t *testing.T) *sql.DB {
	db, err := NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
