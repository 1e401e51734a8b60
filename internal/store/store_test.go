package store

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_OpensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	var count int
	if err := s2.db.QueryRow("SELECT COUNT(*) FROM deliveries").Scan(&count); err != nil {
		t.Errorf("query failed: %v", err)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Fatal("expected error for invalid path, got nil")
	}
	if !errors.Is(err, ErrJournal) {
		t.Errorf("expected ErrJournal, got %v", err)
	}
}

func TestOpen_SetsUserVersion(t *testing.T) {
	s := createTestStore(t)

	if err := s.verifyPragma("user_version", "1"); err != nil {
		t.Error(err)
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}

	var nilStore *Store
	if err := nilStore.Close(); err != nil {
		t.Errorf("Close() on nil store should not error: %v", err)
	}
}

// Pragma tests

func TestPragma_JournalMode(t *testing.T) {
	s := createTestStore(t)
	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
}

func TestPragma_Synchronous(t *testing.T) {
	s := createTestStore(t)
	// NORMAL = 1
	if err := s.verifyPragma("synchronous", "1"); err != nil {
		t.Error(err)
	}
}

func TestPragma_BusyTimeout(t *testing.T) {
	s := createTestStore(t)
	if err := s.verifyPragma("busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
}

func TestPragma_ForeignKeys(t *testing.T) {
	s := createTestStore(t)
	// ON = 1
	if err := s.verifyPragma("foreign_keys", "1"); err != nil {
		t.Error(err)
	}
}

// Schema table tests

func TestSchema_CyclesTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "cycles")
	expected := []string{
		"cycle_id", "recipe", "started_at", "finished_at",
		"fetched", "fresh", "new", "updated", "error",
	}
	for _, col := range expected {
		if !contains(columns, col) {
			t.Errorf("cycles table missing column %q", col)
		}
	}
}

func TestSchema_DeliveriesTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "deliveries")
	expected := []string{
		"id", "cycle_id", "recipe", "record_id", "action_index",
		"url", "status", "error", "payload_digest", "created_at",
	}
	for _, col := range expected {
		if !contains(columns, col) {
			t.Errorf("deliveries table missing column %q", col)
		}
	}
}

func TestSchema_DeliveriesIndexes(t *testing.T) {
	s := createTestStore(t)

	indexes := getTableIndexes(t, s.db, "deliveries")
	for _, idx := range []string{"idx_deliveries_cycle", "idx_deliveries_recipe_created"} {
		if !contains(indexes, idx) {
			t.Errorf("deliveries missing index %q (have %v)", idx, indexes)
		}
	}
}

func TestConstraint_DeliveryStatus(t *testing.T) {
	s := createTestStore(t)
	mustStartCycle(t, s, "cycle-1", "leads")

	_, err := s.db.Exec(`
		INSERT INTO deliveries (id, cycle_id, recipe, record_id, action_index, url, status, payload_digest, created_at)
		VALUES ('d1', 'cycle-1', 'leads', 'rec1', 0, 'http://x', 'maybe', '', '2026-01-01T00:00:00.000000000Z')
	`)
	if err == nil {
		t.Error("expected CHECK constraint violation for unknown status")
	}
}

// Helper functions

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
