package memory

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/engram-memory/engram/internal/adapter"
	"github.com/engram-memory/engram/internal/db"
)

func setupTestDB(t *testing.T) (*db.DB, *Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database, NewStore(database)
}

func mustCreate(t *testing.T, store *Store, m Memory) Memory {
	t.Helper()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if err := store.CreateMemory(&m); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}
	return m
}

func TestStore_CreateAndGetMemory(t *testing.T) {
	_, store := setupTestDB(t)

	m := mustCreate(t, store, Memory{
		Content:  "Use PostgreSQL for persistence",
		Category: "decision",
		Metadata: map[string]string{"source": "review"},
	})

	got, err := store.GetMemoryByID(m.ID)
	if err != nil {
		t.Fatalf("GetMemoryByID: %v", err)
	}
	if got.Content != m.Content {
		t.Errorf("content: got %q", got.Content)
	}
	if got.Category != "decision" {
		t.Errorf("category: got %q", got.Category)
	}
	if got.Metadata["source"] != "review" {
		t.Errorf("metadata: got %v", got.Metadata)
	}
	if got.AccessCount != 1 {
		t.Errorf("access count: got %d, want 1", got.AccessCount)
	}
	if got.Strength != 1.0 {
		t.Errorf("strength: got %v, want 1.0", got.Strength)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() || got.LastAccessed.IsZero() {
		t.Error("timestamps should be set on create")
	}
}

func TestStore_GetMemoryByID_NotFound(t *testing.T) {
	_, store := setupTestDB(t)

	_, err := store.GetMemoryByID("nonexistent")
	if !isNotFound(err) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_UpdateMemoryContent_NullsOmittedFields(t *testing.T) {
	_, store := setupTestDB(t)

	m := mustCreate(t, store, Memory{
		Content:   "With metadata",
		Category:  "fact",
		Metadata:  map[string]string{"source": "test"},
		Embedding: []float32{1, 0, 0, 0},
	})

	if err := store.UpdateMemoryContent(m.ID, "Without metadata", "", nil, nil); err != nil {
		t.Fatalf("UpdateMemoryContent: %v", err)
	}

	got, _ := store.GetMemoryByID(m.ID)
	if got.Content != "Without metadata" {
		t.Errorf("content: got %q", got.Content)
	}
	if got.Category != "" {
		t.Errorf("category should be nulled, got %q", got.Category)
	}
	if got.Metadata != nil {
		t.Errorf("metadata should be nulled, got %v", got.Metadata)
	}
	if got.Embedding != nil {
		t.Errorf("embedding should be nulled, got %d dims", len(got.Embedding))
	}
}

func TestStore_UpdateMemoryContent_PreservesLifecycle(t *testing.T) {
	_, store := setupTestDB(t)

	m := mustCreate(t, store, Memory{Content: "Original"})
	before, _ := store.GetMemoryByID(m.ID)

	time.Sleep(20 * time.Millisecond)
	if err := store.UpdateMemoryContent(m.ID, "Updated", "decision", nil, nil); err != nil {
		t.Fatalf("UpdateMemoryContent: %v", err)
	}

	got, _ := store.GetMemoryByID(m.ID)
	if !got.CreatedAt.Equal(before.CreatedAt) {
		t.Errorf("created_at changed: %v vs %v", got.CreatedAt, before.CreatedAt)
	}
	if got.AccessCount != before.AccessCount {
		t.Errorf("access_count changed: %d vs %d", got.AccessCount, before.AccessCount)
	}
	if got.Strength != before.Strength {
		t.Errorf("strength changed: %v vs %v", got.Strength, before.Strength)
	}
	if !got.UpdatedAt.After(before.UpdatedAt) {
		t.Errorf("updated_at not advanced: %v vs %v", got.UpdatedAt, before.UpdatedAt)
	}
}

func TestStore_DeleteMemory_ScopeGuards(t *testing.T) {
	_, store := setupTestDB(t)

	scoped := mustCreate(t, store, Memory{Content: "Scoped", ScopeID: "A"})
	unscoped := mustCreate(t, store, Memory{Content: "Unscoped"})

	// Unscoped guard does not match a scoped row.
	deleted, err := store.DeleteMemory(scoped.ID, ScopeUnscoped())
	if err != nil {
		t.Fatalf("DeleteMemory: %v", err)
	}
	if deleted {
		t.Error("unscoped guard deleted a scoped row")
	}

	// Wrong scope does not match.
	deleted, _ = store.DeleteMemory(scoped.ID, ScopeExact("B"))
	if deleted {
		t.Error("wrong scope guard deleted the row")
	}

	// Matching scope deletes.
	deleted, _ = store.DeleteMemory(scoped.ID, ScopeExact("A"))
	if !deleted {
		t.Error("matching scope guard should delete")
	}

	// Unscoped guard matches unscoped rows.
	deleted, _ = store.DeleteMemory(unscoped.ID, ScopeUnscoped())
	if !deleted {
		t.Error("unscoped guard should delete unscoped row")
	}
}

func TestStore_DeleteMemory_AnyGuard(t *testing.T) {
	_, store := setupTestDB(t)

	m := mustCreate(t, store, Memory{Content: "Scoped", ScopeID: "A"})
	deleted, err := store.DeleteMemory(m.ID, ScopeAny())
	if err != nil {
		t.Fatalf("DeleteMemory: %v", err)
	}
	if !deleted {
		t.Error("any guard should delete regardless of scope")
	}
}

func TestStore_SearchFTS(t *testing.T) {
	_, store := setupTestDB(t)

	mustCreate(t, store, Memory{Content: "The deployment pipeline uses GitHub Actions"})
	mustCreate(t, store, Memory{Content: "Lunch options near the office"})

	results, err := store.SearchFTS("deployment pipeline", 10, Filters{})
	if err != nil {
		t.Fatalf("SearchFTS: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].FTSRank >= 0 {
		t.Errorf("expected negative bm25 rank, got %v", results[0].FTSRank)
	}
}

func TestStore_SearchFTS_EmptyQueryReturnsRecent(t *testing.T) {
	_, store := setupTestDB(t)

	mustCreate(t, store, Memory{Content: "First memory"})
	mustCreate(t, store, Memory{Content: "Second memory"})

	results, err := store.SearchFTS("", 10, Filters{})
	if err != nil {
		t.Fatalf("SearchFTS: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.FTSRank != 0 {
			t.Errorf("recent-mode rank should be 0, got %v", r.FTSRank)
		}
	}
}

func TestStore_SearchFTS_PunctuationDoesNotBreakQuery(t *testing.T) {
	_, store := setupTestDB(t)

	mustCreate(t, store, Memory{Content: "error handling in the parser"})

	if _, err := store.SearchFTS(`how do we "handle" errors? (parser)`, 10, Filters{}); err != nil {
		t.Fatalf("SearchFTS with punctuation: %v", err)
	}
}

func TestStore_SearchFTS_GoneAfterDelete(t *testing.T) {
	_, store := setupTestDB(t)

	m := mustCreate(t, store, Memory{Content: "transient fact about caching"})

	if results, _ := store.SearchFTS("caching", 10, Filters{}); len(results) != 1 {
		t.Fatalf("expected 1 result before delete, got %d", len(results))
	}

	if _, err := store.DeleteMemory(m.ID, ScopeAny()); err != nil {
		t.Fatalf("DeleteMemory: %v", err)
	}

	if results, _ := store.SearchFTS("caching", 10, Filters{}); len(results) != 0 {
		t.Errorf("expected 0 results after delete, got %d", len(results))
	}
}

func TestStore_ScopeFilterIsolation(t *testing.T) {
	_, store := setupTestDB(t)

	mustCreate(t, store, Memory{Content: "alpha secret", ScopeID: "A"})
	mustCreate(t, store, Memory{Content: "alpha public"})
	mustCreate(t, store, Memory{Content: "alpha other", ScopeID: "B"})

	results, err := store.SearchFTS("alpha", 10, Filters{ScopeID: "A"})
	if err != nil {
		t.Fatalf("SearchFTS: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 scoped result, got %d", len(results))
	}
	if results[0].ScopeID != "A" {
		t.Errorf("scope leak: got scope %q", results[0].ScopeID)
	}
}

func TestStore_FilterCombination(t *testing.T) {
	_, store := setupTestDB(t)

	mustCreate(t, store, Memory{Content: "match this", ScopeID: "A", ChatID: "c1", Category: "fact"})
	mustCreate(t, store, Memory{Content: "match this too", ScopeID: "A", ChatID: "c2", Category: "fact"})

	results, err := store.SearchFTS("match", 10, Filters{ScopeID: "A", ChatID: "c1", Category: "fact"})
	if err != nil {
		t.Fatalf("SearchFTS: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("AND-combined filters: expected 1, got %d", len(results))
	}
}

func TestStore_GetWithEmbeddings_SkipsWrongDimension(t *testing.T) {
	_, store := setupTestDB(t)

	mustCreate(t, store, Memory{Content: "right dim", Embedding: []float32{1, 0, 0, 0}})
	mustCreate(t, store, Memory{Content: "wrong dim", Embedding: []float32{1, 0}})
	mustCreate(t, store, Memory{Content: "no vector"})

	got, err := store.GetWithEmbeddings(Filters{}, 4)
	if err != nil {
		t.Fatalf("GetWithEmbeddings: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 memory, got %d", len(got))
	}
	if got[0].Content != "right dim" {
		t.Errorf("got %q", got[0].Content)
	}

	n, err := store.CountEmbedded(Filters{}, 4)
	if err != nil {
		t.Fatalf("CountEmbedded: %v", err)
	}
	if n != 1 {
		t.Errorf("CountEmbedded: got %d, want 1", n)
	}
}

func TestStore_EmbeddingRoundTrip(t *testing.T) {
	_, store := setupTestDB(t)

	vec := adapter.Normalize([]float32{0.25, -0.5, 0.75, 0.3125})
	m := mustCreate(t, store, Memory{Content: "vector round trip", Embedding: vec})

	got, _ := store.GetMemoryByID(m.ID)
	if len(got.Embedding) != len(vec) {
		t.Fatalf("dims: got %d, want %d", len(got.Embedding), len(vec))
	}
	for i := range vec {
		if got.Embedding[i] != vec[i] {
			t.Errorf("component %d: got %v, want %v (bitwise)", i, got.Embedding[i], vec[i])
		}
	}
}

func TestStore_UpdateAccess(t *testing.T) {
	_, store := setupTestDB(t)

	m := mustCreate(t, store, Memory{Content: "accessed"})
	if err := store.UpdateStrength(m.ID, 0.4); err != nil {
		t.Fatalf("UpdateStrength: %v", err)
	}

	if err := store.UpdateAccess(m.ID, 1.0); err != nil {
		t.Fatalf("UpdateAccess: %v", err)
	}

	got, _ := store.GetMemoryByID(m.ID)
	if got.Strength != 1.0 {
		t.Errorf("strength: got %v, want 1.0", got.Strength)
	}
	if got.AccessCount != 2 {
		t.Errorf("access count: got %d, want 2", got.AccessCount)
	}
}

func TestStore_PruneBelowStrength(t *testing.T) {
	_, store := setupTestDB(t)

	weak := mustCreate(t, store, Memory{Content: "weak"})
	strong := mustCreate(t, store, Memory{Content: "strong"})
	if err := store.UpdateStrength(weak.ID, 0.05); err != nil {
		t.Fatalf("UpdateStrength: %v", err)
	}

	below, err := store.GetBelowStrength(0.1)
	if err != nil {
		t.Fatalf("GetBelowStrength: %v", err)
	}
	if len(below) != 1 || below[0].ID != weak.ID {
		t.Fatalf("GetBelowStrength: got %d rows", len(below))
	}

	n, err := store.PruneBelowStrength(0.1)
	if err != nil {
		t.Fatalf("PruneBelowStrength: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned: got %d, want 1", n)
	}
	if _, err := store.GetMemoryByID(strong.ID); err != nil {
		t.Errorf("strong memory should survive: %v", err)
	}
}

func TestStore_FindByIdempotencyKey_ScopeIsolated(t *testing.T) {
	_, store := setupTestDB(t)

	a := mustCreate(t, store, Memory{Content: "A", ScopeID: "a", IdempotencyKey: "shared"})
	b := mustCreate(t, store, Memory{Content: "B", ScopeID: "b", IdempotencyKey: "shared"})

	got, err := store.FindByIdempotencyKey("shared", "a")
	if err != nil {
		t.Fatalf("FindByIdempotencyKey: %v", err)
	}
	if got == nil || got.ID != a.ID {
		t.Errorf("scope a: got %v", got)
	}

	got, _ = store.FindByIdempotencyKey("shared", "b")
	if got == nil || got.ID != b.ID {
		t.Errorf("scope b: got %v", got)
	}

	got, _ = store.FindByIdempotencyKey("shared", GlobalScopeKey)
	if got != nil {
		t.Errorf("global scope should find nothing, got %v", got)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
