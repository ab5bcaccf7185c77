// Package hydrate assembles token-budget-aware context payloads from
// recalled memories for the context_hydrate surface.
package hydrate

import (
	"context"
	"fmt"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"github.com/engram-memory/engram/internal/memory"
)

// DefaultMaxTokens bounds a hydration payload when the caller does not.
const DefaultMaxTokens = 4000

// Input extends a recall with a token budget. Query is optional: without
// one, hydration runs in recent mode.
type Input struct {
	memory.RecallInput
	MaxTokens int `json:"max_tokens,omitempty"`
}

// Result is a recall result annotated with the tokens it consumes. Memories
// past the budget are dropped, never truncated mid-content.
type Result struct {
	memory.RecallResult
	TokensUsed int  `json:"tokens_used"`
	Truncated  bool `json:"truncated"`
}

// Hydrator runs recalls through a token budget.
type Hydrator struct {
	svc *memory.Service
	enc *tiktoken.Tiktoken
}

// New creates a Hydrator using the cl100k_base encoding, a close enough
// approximation for every model an agent harness is likely to run.
func New(svc *memory.Service) (*Hydrator, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("hydrate: get encoding: %w", err)
	}
	return &Hydrator{svc: svc, enc: enc}, nil
}

// Hydrate recalls memories and keeps them in rank order until the next one
// would exceed the token budget; that memory and every one after it are
// dropped.
func (h *Hydrator) Hydrate(ctx context.Context, in Input) (Result, error) {
	if in.MaxTokens <= 0 {
		in.MaxTokens = DefaultMaxTokens
	}

	recalled, err := h.svc.Recall(ctx, in.RecallInput)
	if err != nil {
		return Result{}, err
	}

	out := Result{RecallResult: memory.RecallResult{FallbackMode: recalled.FallbackMode}}
	for _, m := range recalled.Memories {
		cost := h.count(m.Content)
		if out.TokensUsed+cost > in.MaxTokens {
			out.Truncated = true
			break
		}
		out.TokensUsed += cost
		out.Memories = append(out.Memories, m)
	}
	return out, nil
}

func (h *Hydrator) count(s string) int {
	return len(h.enc.Encode(s, nil, nil))
}
