package migrations

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRun_AppliesAllMigrations(t *testing.T) {
	db := openMemory(t)

	if err := Run(db); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	version, err := GetCurrentVersion(db)
	if err != nil {
		t.Fatalf("GetCurrentVersion failed: %v", err)
	}
	expected := AllMigrations[len(AllMigrations)-1].Version
	if version != expected {
		t.Errorf("Expected version %d, got %d", expected, version)
	}

	for _, table := range []string{"watch_runs", "watch_ticks", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Expected table %s: %v", table, err)
		}
	}
}

func TestRun_Idempotent(t *testing.T) {
	db := openMemory(t)

	if err := Run(db); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if err := Run(db); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != len(AllMigrations) {
		t.Errorf("Expected %d recorded migrations, got %d", len(AllMigrations), count)
	}
}

func TestRun_UniqueExecution(t *testing.T) {
	db := openMemory(t)
	if err := Run(db); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	insert := "INSERT INTO watch_runs (execution_id, status) VALUES (?, ?)"
	if _, err := db.Exec(insert, "exec-1", "COMPLETED"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if _, err := db.Exec(insert, "exec-1", "COMPLETED"); err == nil {
		t.Error("Expected unique constraint on execution_id")
	}
}
