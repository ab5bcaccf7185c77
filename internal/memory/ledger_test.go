package memory

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/engram-memory/engram/internal/db"
)

func TestLedger_SaveAndGet(t *testing.T) {
	_, store := setupTestDB(t)

	want := RememberResult{ID: "abc", Status: "created"}
	if err := store.SaveLedger("k1", EventRemember, GlobalScopeKey, want); err != nil {
		t.Fatalf("SaveLedger: %v", err)
	}

	var got RememberResult
	found, err := store.GetLedger("k1", EventRemember, GlobalScopeKey, &got)
	if err != nil {
		t.Fatalf("GetLedger: %v", err)
	}
	if !found {
		t.Fatal("expected ledger hit")
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestLedger_MissReturnsNotFound(t *testing.T) {
	_, store := setupTestDB(t)

	var got RememberResult
	found, err := store.GetLedger("absent", EventRemember, GlobalScopeKey, &got)
	if err != nil {
		t.Fatalf("GetLedger: %v", err)
	}
	if found {
		t.Error("expected miss")
	}
}

func TestLedger_ScopeIsolation(t *testing.T) {
	_, store := setupTestDB(t)

	store.SaveLedger("shared", EventRemember, "a", RememberResult{ID: "p1", Status: "created"})
	store.SaveLedger("shared", EventRemember, "b", RememberResult{ID: "p2", Status: "created"})

	var got RememberResult
	found, _ := store.GetLedger("shared", EventRemember, "a", &got)
	if !found || got.ID != "p1" {
		t.Errorf("scope a: got %+v found=%v", got, found)
	}
	found, _ = store.GetLedger("shared", EventRemember, "b", &got)
	if !found || got.ID != "p2" {
		t.Errorf("scope b: got %+v found=%v", got, found)
	}
	found, _ = store.GetLedger("shared", EventRemember, GlobalScopeKey, &got)
	if found {
		t.Error("global scope should miss")
	}
}

func TestLedger_CorruptEntryIsAnError(t *testing.T) {
	database, store := setupTestDB(t)

	_, err := database.Conn().Exec(
		`INSERT INTO idempotency (key, operation, scope_key, result, created_at)
		 VALUES ('bad', 'remember', '__global__', '{not json', datetime('now'))`,
	)
	if err != nil {
		t.Fatalf("seed corrupt row: %v", err)
	}

	var got RememberResult
	_, err = store.GetLedger("bad", EventRemember, GlobalScopeKey, &got)
	if !errors.Is(err, ErrCorruptLedger) {
		t.Errorf("expected ErrCorruptLedger, got %v", err)
	}
}

// TestMigration_LegacySingleKeyLedger opens a database created under the old
// PRIMARY KEY(key) ledger schema and verifies the rebuild keeps every row
// under the composite key.
func TestMigration_LegacySingleKeyLedger(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")

	legacy, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("open legacy: %v", err)
	}
	stmts := []string{
		`CREATE TABLE idempotency (
			key        TEXT PRIMARY KEY,
			scope_id   TEXT,
			result     TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`INSERT INTO idempotency (key, scope_id, result, created_at)
		 VALUES ('k1', NULL, '{"id":"m1","status":"created"}', datetime('now'))`,
		`INSERT INTO idempotency (key, scope_id, result, created_at)
		 VALUES ('k2', 'proj', '{"id":"m2","status":"created"}', datetime('now'))`,
	}
	for _, s := range stmts {
		if _, err := legacy.Exec(s); err != nil {
			t.Fatalf("seed legacy: %v", err)
		}
	}
	legacy.Close()

	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("reopen with migrations: %v", err)
	}
	defer database.Close()
	store := NewStore(database)

	var got RememberResult
	found, err := store.GetLedger("k1", EventRemember, GlobalScopeKey, &got)
	if err != nil || !found {
		t.Fatalf("k1 under global scope: found=%v err=%v", found, err)
	}
	if got.ID != "m1" {
		t.Errorf("k1: got %+v", got)
	}

	found, err = store.GetLedger("k2", EventRemember, "proj", &got)
	if err != nil || !found {
		t.Fatalf("k2 under scope proj: found=%v err=%v", found, err)
	}
	if got.ID != "m2" {
		t.Errorf("k2: got %+v", got)
	}
}

// TestMigration_LegacyMemoriesGainColumns verifies an old memories table is
// upgraded in place without losing rows.
func TestMigration_LegacyMemoriesGainColumns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")

	legacy, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("open legacy: %v", err)
	}
	stmts := []string{
		`CREATE TABLE memories (
			id            TEXT PRIMARY KEY,
			content       TEXT NOT NULL,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,
			last_accessed TEXT NOT NULL
		)`,
		`INSERT INTO memories (id, content, created_at, updated_at, last_accessed)
		 VALUES ('old1', 'survived the upgrade', datetime('now'), datetime('now'), datetime('now'))`,
	}
	for _, s := range stmts {
		if _, err := legacy.Exec(s); err != nil {
			t.Fatalf("seed legacy: %v", err)
		}
	}
	legacy.Close()

	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("reopen with migrations: %v", err)
	}
	defer database.Close()
	store := NewStore(database)

	got, err := store.GetMemoryByID("old1")
	if err != nil {
		t.Fatalf("legacy row lost: %v", err)
	}
	if got.Content != "survived the upgrade" {
		t.Errorf("content: got %q", got.Content)
	}
	if got.AccessCount != 1 {
		t.Errorf("access_count default: got %d, want 1", got.AccessCount)
	}
	if got.Strength != 1.0 {
		t.Errorf("strength default: got %v, want 1.0", got.Strength)
	}

	// The upgraded row is searchable: the FTS index was rebuilt.
	results, err := store.SearchFTS("survived", 10, Filters{})
	if err != nil {
		t.Fatalf("SearchFTS: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected legacy row in FTS index, got %d results", len(results))
	}
}

func TestMetrics_Summary(t *testing.T) {
	_, store := setupTestDB(t)

	events := []MetricEvent{
		{Event: EventRemember, MemoryID: "m1"},
		{Event: EventRemember, MemoryID: "m2", SessionID: "s1"},
		{Event: EventRecall, Query: "x", ResultCount: 2},
		{Event: EventRecall, Query: "y", ResultCount: 0, WasFallback: true},
		{Event: EventRecall, Query: "z", ResultCount: 1, SessionID: "s1"},
		{Event: EventForget, MemoryID: "m1"},
	}
	for _, e := range events {
		if err := store.LogMetric(e); err != nil {
			t.Fatalf("LogMetric: %v", err)
		}
	}

	sum, err := store.Summary("")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalRemembers != 2 {
		t.Errorf("remembers: got %d, want 2", sum.TotalRemembers)
	}
	if sum.TotalRecalls != 3 {
		t.Errorf("recalls: got %d, want 3", sum.TotalRecalls)
	}
	if sum.RecallHitRate < 0.66 || sum.RecallHitRate > 0.67 {
		t.Errorf("hit rate: got %v, want 2/3", sum.RecallHitRate)
	}
	if sum.FallbackRate < 0.33 || sum.FallbackRate > 0.34 {
		t.Errorf("fallback rate: got %v, want 1/3", sum.FallbackRate)
	}

	perSession, err := store.Summary("s1")
	if err != nil {
		t.Fatalf("Summary(s1): %v", err)
	}
	if perSession.TotalRemembers != 1 || perSession.TotalRecalls != 1 {
		t.Errorf("per-session: got %+v", perSession)
	}
	if perSession.RecallHitRate != 1.0 {
		t.Errorf("per-session hit rate: got %v, want 1.0", perSession.RecallHitRate)
	}
}

func TestMetrics_EmptyLedgerZeroRates(t *testing.T) {
	_, store := setupTestDB(t)

	sum, err := store.Summary("")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.RecallHitRate != 0 || sum.FallbackRate != 0 {
		t.Errorf("zero denominators should give zero rates: %+v", sum)
	}
}
