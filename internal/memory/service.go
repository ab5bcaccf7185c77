package memory

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/engram-memory/engram/internal/adapter"
)

// FeatureFlags is the capability gate view the core consults at request
// time. Flags may toggle while the process runs.
type FeatureFlags interface {
	Scopes() bool
	Idempotency() bool
	ContextHydration() bool
	WorkItems() bool
}

// Defaults for recall.
const (
	DefaultRecallLimit = 10
	DefaultMinStrength = 0.1
)

// Options configures a Service.
type Options struct {
	Store       *Store
	Embeddings  *adapter.Registry
	Flags       FeatureFlags
	Logger      *slog.Logger
	Decay       Decay
	AccessBoost float64 // stored strength after a recall hit
	Dimensions  int     // embedding dimension D
	Version     string
}

// Service implements the memory operations behind every transport: the
// write path, the retrieval pipeline, deletion, and the capability view.
type Service struct {
	store       *Store
	embeddings  *adapter.Registry
	flags       FeatureFlags
	logger      *slog.Logger
	decay       Decay
	accessBoost float64
	dim         int
	version     string
}

// NewService wires a Service.
func NewService(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.AccessBoost <= 0 || opts.AccessBoost > 1 {
		opts.AccessBoost = 1.0
	}
	if opts.Dimensions <= 0 {
		opts.Dimensions = adapter.DefaultDimensions
	}
	return &Service{
		store:       opts.Store,
		embeddings:  opts.Embeddings,
		flags:       opts.Flags,
		logger:      opts.Logger,
		decay:       opts.Decay,
		accessBoost: opts.AccessBoost,
		dim:         opts.Dimensions,
		version:     opts.Version,
	}
}

// Store exposes the underlying store for maintenance commands.
func (s *Service) Store() *Store {
	return s.store
}

// DecayEngine exposes the decay engine for maintenance commands.
func (s *Service) DecayEngine() Decay {
	return s.decay
}

// ---- Remember ----

// Remember executes the write path: idempotent create, or full-replace
// upsert keyed by (idempotency_key, scope).
func (s *Service) Remember(ctx context.Context, in RememberInput) (RememberResult, error) {
	if strings.TrimSpace(in.Content) == "" {
		return RememberResult{}, invalidArgf("content is required")
	}
	if in.Upsert && in.IdempotencyKey == "" {
		return RememberResult{}, invalidArgf("upsert requires idempotency_key")
	}

	scopesOn := s.flags.Scopes()
	idemOn := s.flags.Idempotency()

	// Scope fields take effect only under the scopes flag; they are accepted
	// but stored as null otherwise, preserving wire compatibility.
	if !scopesOn {
		in.ScopeID, in.ChatID, in.ThreadID, in.TaskID = "", "", "", ""
	}
	scopeKey := GlobalScopeKey
	if scopesOn && in.ScopeID != "" {
		scopeKey = in.ScopeID
	}

	if in.Upsert {
		existing, err := s.store.FindByIdempotencyKey(in.IdempotencyKey, scopeKey)
		if err != nil {
			return RememberResult{}, err
		}
		if existing != nil {
			embedding := s.embedBestEffort(ctx, in.Content)
			if err := s.store.UpdateMemoryContent(existing.ID, in.Content, in.Category, in.Metadata, embedding); err != nil {
				return RememberResult{}, err
			}
			result := RememberResult{ID: existing.ID, Status: "updated"}
			s.logMetric(MetricEvent{SessionID: in.SessionID, Event: EventUpsert, MemoryID: existing.ID})
			if idemOn {
				s.saveLedger(in.IdempotencyKey, scopeKey, result)
			}
			return result, nil
		}
		// No row under this key yet: fall through to create.
	} else if idemOn && in.IdempotencyKey != "" {
		var prior RememberResult
		found, err := s.store.GetLedger(in.IdempotencyKey, EventRemember, scopeKey, &prior)
		if err != nil {
			if !errors.Is(err, ErrCorruptLedger) {
				return RememberResult{}, err
			}
			// A corrupt entry counts as no cached result for this key.
			s.logger.Warn("remember: corrupt ledger entry ignored", "key", in.IdempotencyKey, "error", err)
		}
		if found {
			// The ledger is a historical record: a replay reports the
			// original create, even after later upsert updates.
			return RememberResult{ID: prior.ID, Status: "created"}, nil
		}
	}

	m := Memory{
		ID:       uuid.NewString(),
		Content:  in.Content,
		Category: in.Category,
		ScopeID:  in.ScopeID,
		ChatID:   in.ChatID,
		ThreadID: in.ThreadID,
		TaskID:   in.TaskID,
		Metadata: in.Metadata,
	}
	// The key is stored when idempotency is on, or when this create came
	// from an upsert, so later upserts can find the row even with the
	// ledger flag off.
	if idemOn || in.Upsert {
		m.IdempotencyKey = in.IdempotencyKey
	}
	m.Embedding = s.embedBestEffort(ctx, in.Content)

	if err := s.store.CreateMemory(&m); err != nil {
		// A crash between a past create and its ledger save leaves the row
		// without a ledger entry; the retry then collides on the unique
		// (idempotency_key, scope) index. Recover by adopting that row.
		if m.IdempotencyKey != "" {
			if existing, ferr := s.store.FindByIdempotencyKey(m.IdempotencyKey, scopeKey); ferr == nil && existing != nil {
				result := RememberResult{ID: existing.ID, Status: "created"}
				if idemOn {
					s.saveLedger(in.IdempotencyKey, scopeKey, result)
				}
				return result, nil
			}
		}
		return RememberResult{}, err
	}

	result := RememberResult{ID: m.ID, Status: "created"}
	s.logMetric(MetricEvent{SessionID: in.SessionID, Event: EventRemember, MemoryID: m.ID})
	if idemOn && in.IdempotencyKey != "" {
		s.saveLedger(in.IdempotencyKey, scopeKey, result)
	}
	return result, nil
}

// embedBestEffort returns the embedding of text, or nil. Embedding failures
// are never fatal to a write.
func (s *Service) embedBestEffort(ctx context.Context, text string) []float32 {
	emb, err := s.embeddings.Get(ctx)
	if err != nil {
		s.logger.Warn("embedding unavailable, storing without vector", "error", err)
		return nil
	}
	v, err := emb.Embed(ctx, text)
	if err != nil {
		s.logger.Warn("embedding failed, storing without vector", "error", err)
		return nil
	}
	return v
}

// saveLedger records a result payload; the save runs last in the write
// pipeline and is idempotent, so a crash before it only costs a replay.
func (s *Service) saveLedger(key, scopeKey string, result RememberResult) {
	if err := s.store.SaveLedger(key, EventRemember, scopeKey, result); err != nil {
		s.logger.Error("ledger save failed", "key", key, "error", err)
	}
}

func (s *Service) logMetric(e MetricEvent) {
	if err := s.store.LogMetric(e); err != nil {
		s.logger.Error("metric log failed", "event", e.Event, "error", err)
	}
}

// ---- Recall ----

// candidate is a recall candidate annotated with its computed scores.
type candidate struct {
	ScoredMemory
	effective float64
	relevance float64
}

// Recall runs the retrieval pipeline: recent mode for empty queries,
// otherwise semantic search with full-text fallback. Returned memories are
// marked accessed; no other memory row is written. One recall metric is
// logged per call.
func (s *Service) Recall(ctx context.Context, in RecallInput) (RecallResult, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = DefaultRecallLimit
	}
	minStrength := DefaultMinStrength
	if in.MinStrength != nil {
		minStrength = *in.MinStrength
	}

	f := Filters{Category: in.Category}
	if s.flags.Scopes() {
		f.ScopeID, f.ChatID, f.ThreadID, f.TaskID = in.ScopeID, in.ChatID, in.ThreadID, in.TaskID
	}

	now := time.Now().UTC()
	var (
		selected     []candidate
		fallbackMode bool
	)

	if strings.TrimSpace(in.Query) == "" {
		recent, err := s.store.SearchFTS("", limit*2, f)
		if err != nil {
			return RecallResult{}, err
		}
		selected = s.rankRecent(recent, minStrength, limit, now)
		fallbackMode = true
	} else {
		semantic, ok, err := s.recallSemantic(ctx, in.Query, f, minStrength, limit, now)
		if err != nil {
			return RecallResult{}, err
		}
		if ok {
			selected = semantic
		} else {
			matches, err := s.store.SearchFTS(in.Query, limit*2, f)
			if err != nil {
				return RecallResult{}, err
			}
			selected = s.rankFTS(matches, minStrength, limit, now)
		}
	}

	out := RecallResult{FallbackMode: fallbackMode, Memories: make([]RecalledMemory, 0, len(selected))}
	for _, c := range selected {
		out.Memories = append(out.Memories, RecalledMemory{
			ID:          c.ID,
			Content:     c.Content,
			Category:    c.Category,
			Strength:    c.effective,
			Relevance:   c.relevance,
			CreatedAt:   c.CreatedAt,
			AccessCount: c.AccessCount,
		})
	}

	// Access updates apply only to returned memories, after ranking.
	for _, c := range selected {
		if err := s.store.UpdateAccess(c.ID, s.accessBoost); err != nil {
			s.logger.Error("access update failed", "id", c.ID, "error", err)
		}
	}

	s.logMetric(MetricEvent{
		SessionID:   in.SessionID,
		Event:       EventRecall,
		Query:       in.Query,
		ResultCount: len(out.Memories),
		WasFallback: fallbackMode,
	})
	return out, nil
}

// recallSemantic attempts the vector path. ok=false means fall through to
// full-text search (no embedded candidates, or the query cannot be embedded).
func (s *Service) recallSemantic(ctx context.Context, query string, f Filters, minStrength float64, limit int, now time.Time) ([]candidate, bool, error) {
	n, err := s.store.CountEmbedded(f, s.dim)
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		return nil, false, nil
	}

	emb, err := s.embeddings.Get(ctx)
	if err != nil {
		s.logger.Warn("recall: embedder unavailable, using text search", "error", err)
		return nil, false, nil
	}
	q, err := emb.Embed(ctx, query)
	if err != nil {
		s.logger.Warn("recall: query embedding failed, using text search", "error", err)
		return nil, false, nil
	}

	cands, err := s.store.SemanticCandidates(q, f)
	if errors.Is(err, errVecUnavailable) {
		// Same semantics, computed in process.
		withVec, gerr := s.store.GetWithEmbeddings(f, s.dim)
		if gerr != nil {
			return nil, false, gerr
		}
		cands = make([]ScoredMemory, 0, len(withVec))
		for _, m := range withVec {
			cands = append(cands, ScoredMemory{
				Memory:     m,
				Similarity: float64(adapter.Cosine(q, m.Embedding)),
			})
		}
	} else if err != nil {
		return nil, false, err
	}

	var ranked []candidate
	for _, sm := range cands {
		eff := s.decay.EffectiveFor(sm.Memory, now)
		if eff < minStrength {
			continue
		}
		ranked = append(ranked, candidate{ScoredMemory: sm, effective: eff, relevance: sm.Similarity})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].relevance != ranked[j].relevance {
			return ranked[i].relevance > ranked[j].relevance
		}
		return tieBreak(ranked[i], ranked[j])
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, true, nil
}

// rankRecent orders recent-mode candidates by effective strength, then
// recency.
func (s *Service) rankRecent(cands []ScoredMemory, minStrength float64, limit int, now time.Time) []candidate {
	var ranked []candidate
	for _, sm := range cands {
		eff := s.decay.EffectiveFor(sm.Memory, now)
		if eff < minStrength {
			continue
		}
		ranked = append(ranked, candidate{ScoredMemory: sm, effective: eff, relevance: eff})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].effective != ranked[j].effective {
			return ranked[i].effective > ranked[j].effective
		}
		return tieBreak(ranked[i], ranked[j])
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// rankFTS orders full-text candidates by FTS rank (more negative = better);
// relevance maps the rank into (0, 1] via exp.
func (s *Service) rankFTS(cands []ScoredMemory, minStrength float64, limit int, now time.Time) []candidate {
	var ranked []candidate
	for _, sm := range cands {
		eff := s.decay.EffectiveFor(sm.Memory, now)
		if eff < minStrength {
			continue
		}
		ranked = append(ranked, candidate{ScoredMemory: sm, effective: eff, relevance: math.Exp(sm.FTSRank)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].FTSRank != ranked[j].FTSRank {
			return ranked[i].FTSRank < ranked[j].FTSRank
		}
		return tieBreak(ranked[i], ranked[j])
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func tieBreak(a, b candidate) bool {
	if !a.LastAccessed.Equal(b.LastAccessed) {
		return a.LastAccessed.After(b.LastAccessed)
	}
	return a.ID < b.ID
}

// ---- Forget ----

// Forget deletes a memory by id. Under the scopes flag, the scope acts as a
// guard: a scoped memory is only deleted when the matching scope_id is
// supplied, and omitting it matches unscoped rows only.
func (s *Service) Forget(ctx context.Context, in ForgetInput) (ForgetResult, error) {
	if in.ID == "" {
		return ForgetResult{}, invalidArgf("id is required")
	}

	guard := ScopeAny()
	if s.flags.Scopes() {
		if in.ScopeID != "" {
			guard = ScopeExact(in.ScopeID)
		} else {
			guard = ScopeUnscoped()
		}
	}

	deleted, err := s.store.DeleteMemory(in.ID, guard)
	if err != nil {
		return ForgetResult{}, err
	}

	s.logMetric(MetricEvent{SessionID: in.SessionID, Event: EventForget, MemoryID: in.ID})
	return ForgetResult{ID: in.ID, Deleted: deleted}, nil
}

// ---- Capability gate ----

// Capabilities returns the live feature-flag view. Computed per call so
// flag toggles show up without a restart.
func (s *Service) Capabilities() Capabilities {
	caps := Capabilities{
		Scopes:           s.flags.Scopes(),
		Idempotency:      s.flags.Idempotency(),
		ContextHydration: s.flags.ContextHydration(),
		WorkItems:        s.flags.WorkItems(),
		Version:          s.version,
		Tools:            []string{"remember", "recall", "forget", "capabilities"},
	}
	if caps.ContextHydration {
		caps.Tools = append(caps.Tools, "context_hydrate")
	}
	return caps
}

// ---- Maintenance and CLI support ----

// Show returns a memory by id.
func (s *Service) Show(id string) (Memory, error) {
	return s.store.GetMemoryByID(id)
}

// RecentMemories returns the newest memories.
func (s *Service) RecentMemories(limit int) ([]Memory, error) {
	return s.store.Recent(limit, Filters{})
}

// Metrics returns the metrics summary, optionally per session.
func (s *Service) Metrics(sessionID string) (MetricsSummary, error) {
	return s.store.Summary(sessionID)
}

// Stats summarises the store.
func (s *Service) Stats() (Stats, error) {
	total, err := s.store.CountMemories()
	if err != nil {
		return Stats{}, err
	}
	byCat, err := s.store.CountByCategory()
	if err != nil {
		return Stats{}, err
	}
	metrics, err := s.store.Summary("")
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		TotalMemories: total,
		ByCategory:    byCat,
		DBSizeBytes:   s.store.SizeBytes(),
		Metrics:       metrics,
	}, nil
}

// DecayedStrength pairs a memory with its current effective strength.
type DecayedStrength struct {
	Memory
	Effective float64
}

// DecayReport computes effective strength for every memory without writing
// anything back.
func (s *Service) DecayReport() ([]DecayedStrength, error) {
	memories, err := s.store.GetForDecay()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	out := make([]DecayedStrength, 0, len(memories))
	for _, m := range memories {
		out = append(out, DecayedStrength{Memory: m, Effective: s.decay.EffectiveFor(m, now)})
	}
	return out, nil
}

// ApplyDecay persists the current effective strength of every memory. This
// is the only path that writes decayed values; reads never do. progress may
// be nil.
func (s *Service) ApplyDecay(progress func(done, total int)) (int, error) {
	report, err := s.DecayReport()
	if err != nil {
		return 0, err
	}
	for i, r := range report {
		if err := s.store.UpdateStrength(r.Memory.ID, r.Effective); err != nil {
			return i, err
		}
		if progress != nil {
			progress(i+1, len(report))
		}
	}
	return len(report), nil
}

// Prune deletes memories whose stored strength fell below threshold.
func (s *Service) Prune(threshold float64) (int, error) {
	return s.store.PruneBelowStrength(threshold)
}
