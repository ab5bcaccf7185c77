package hydrate

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/engram-memory/engram/internal/adapter"
	"github.com/engram-memory/engram/internal/db"
	"github.com/engram-memory/engram/internal/memory"
)

type allFlags struct{}

func (allFlags) Scopes() bool           { return true }
func (allFlags) Idempotency() bool      { return true }
func (allFlags) ContextHydration() bool { return true }
func (allFlags) WorkItems() bool        { return false }

type flatEmbedder struct{}

func (flatEmbedder) Embed(context.Context, string) ([]float32, error) {
	return adapter.Normalize([]float32{1, 1, 1, 1}), nil
}

func (e flatEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i], _ = e.Embed(ctx, texts[i])
	}
	return out, nil
}

func (flatEmbedder) Dimensions() int { return 4 }

func setupHydrator(t *testing.T) (*Hydrator, *memory.Service) {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	svc := memory.NewService(memory.Options{
		Store: memory.NewStore(database),
		Embeddings: adapter.NewRegistry(func() (adapter.Embedder, error) {
			return flatEmbedder{}, nil
		}),
		Flags:      allFlags{},
		Decay:      memory.NewDecay(0.95),
		Dimensions: 4,
		Version:    "test",
	})

	h, err := New(svc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h, svc
}

func TestHydrate_EmptyQueryUsesRecentMode(t *testing.T) {
	h, svc := setupHydrator(t)
	ctx := context.Background()

	svc.Remember(ctx, memory.RememberInput{Content: "fact one"})
	svc.Remember(ctx, memory.RememberInput{Content: "fact two"})

	result, err := h.Hydrate(ctx, Input{})
	if err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if !result.FallbackMode {
		t.Error("empty query should run in recent mode")
	}
	if len(result.Memories) != 2 {
		t.Errorf("results: got %d, want 2", len(result.Memories))
	}
	if result.TokensUsed <= 0 {
		t.Errorf("tokens used: got %d", result.TokensUsed)
	}
}

func TestHydrate_BudgetDropsWholeMemories(t *testing.T) {
	h, svc := setupHydrator(t)
	ctx := context.Background()

	long := strings.Repeat("deployment details and runbook steps ", 50)
	svc.Remember(ctx, memory.RememberInput{Content: long})
	svc.Remember(ctx, memory.RememberInput{Content: long})

	result, err := h.Hydrate(ctx, Input{MaxTokens: 300})
	if err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if len(result.Memories) != 1 {
		t.Errorf("expected 1 memory under the budget, got %d", len(result.Memories))
	}
	if !result.Truncated {
		t.Error("dropping a memory should mark the result truncated")
	}
	if result.TokensUsed > 300 {
		t.Errorf("budget exceeded: %d tokens", result.TokensUsed)
	}

	// Kept content is never cut mid-memory.
	if result.Memories[0].Content != long {
		t.Error("kept memory should be intact")
	}
}

func TestHydrate_DefaultBudget(t *testing.T) {
	h, svc := setupHydrator(t)
	ctx := context.Background()

	svc.Remember(ctx, memory.RememberInput{Content: "short note"})

	result, err := h.Hydrate(ctx, Input{})
	if err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if result.Truncated {
		t.Error("a short note fits the default budget")
	}
}
