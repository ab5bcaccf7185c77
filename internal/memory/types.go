// Package memory implements the Engram memory core: storage, retrieval,
// time-decay relevance, and the idempotent write path.
package memory

import "time"

// Well-known category hints. Category is a filter, not a taxonomy; unknown
// values are stored as-is.
const (
	CategoryDecision   = "decision"
	CategoryPattern    = "pattern"
	CategoryFact       = "fact"
	CategoryPreference = "preference"
	CategoryInsight    = "insight"
)

// GlobalScopeKey is the ledger discriminator for writes without a scope.
const GlobalScopeKey = "__global__"

// Memory is a single stored memory record.
type Memory struct {
	ID             string            `json:"id"`
	Content        string            `json:"content"`
	Category       string            `json:"category,omitempty"`
	ScopeID        string            `json:"scope_id,omitempty"`
	ChatID         string            `json:"chat_id,omitempty"`
	ThreadID       string            `json:"thread_id,omitempty"`
	TaskID         string            `json:"task_id,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	LastAccessed   time.Time         `json:"last_accessed"`
	AccessCount    int               `json:"access_count"`
	Strength       float64           `json:"strength"`
	Embedding      []float32         `json:"-"`
}

// Filters restricts queries to memories matching every set dimension.
// An empty field leaves that column unconstrained.
type Filters struct {
	ScopeID  string
	ChatID   string
	ThreadID string
	TaskID   string
	Category string
}

// ScopeGuard controls how delete matches the scope column.
type ScopeGuard struct {
	kind  int // 0 = any, 1 = unscoped only, 2 = scoped
	scope string
}

// ScopeAny matches by id alone.
func ScopeAny() ScopeGuard { return ScopeGuard{kind: 0} }

// ScopeUnscoped matches only rows with a NULL scope_id.
func ScopeUnscoped() ScopeGuard { return ScopeGuard{kind: 1} }

// ScopeExact matches only rows whose scope_id equals s.
func ScopeExact(s string) ScopeGuard { return ScopeGuard{kind: 2, scope: s} }

// ScoredMemory pairs a memory with a retrieval score. Similarity is set on
// the vector path, FTSRank on the full-text path.
type ScoredMemory struct {
	Memory
	Similarity float64
	FTSRank    float64
}

// RememberInput carries the parameters of a remember call.
type RememberInput struct {
	Content        string            `json:"content"`
	Category       string            `json:"category,omitempty"`
	ScopeID        string            `json:"scope_id,omitempty"`
	ChatID         string            `json:"chat_id,omitempty"`
	ThreadID       string            `json:"thread_id,omitempty"`
	TaskID         string            `json:"task_id,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	Upsert         bool              `json:"upsert,omitempty"`
	SessionID      string            `json:"session_id,omitempty"`
}

// RememberResult reports the id of the written memory and whether the call
// created or updated it.
type RememberResult struct {
	ID     string `json:"id"`
	Status string `json:"status"` // "created" or "updated"
}

// RecallInput carries the parameters of a recall call.
type RecallInput struct {
	Query       string   `json:"query"`
	Limit       int      `json:"limit,omitempty"`
	Category    string   `json:"category,omitempty"`
	MinStrength *float64 `json:"min_strength,omitempty"`
	ScopeID     string   `json:"scope_id,omitempty"`
	ChatID      string   `json:"chat_id,omitempty"`
	ThreadID    string   `json:"thread_id,omitempty"`
	TaskID      string   `json:"task_id,omitempty"`
	SessionID   string   `json:"session_id,omitempty"`
}

// RecalledMemory is a single ranked recall result. Strength is the effective
// (decay-adjusted) strength at query time, not the stored base.
type RecalledMemory struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	Category    string    `json:"category,omitempty"`
	Strength    float64   `json:"strength"`
	Relevance   float64   `json:"relevance"`
	CreatedAt   time.Time `json:"created_at"`
	AccessCount int       `json:"access_count"`
}

// RecallResult is the ordered result of a recall call.
type RecallResult struct {
	Memories     []RecalledMemory `json:"memories"`
	FallbackMode bool             `json:"fallback_mode"`
}

// ForgetInput carries the parameters of a forget call.
type ForgetInput struct {
	ID        string `json:"id"`
	ScopeID   string `json:"scope_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// ForgetResult reports whether the memory was deleted.
type ForgetResult struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// Metric event kinds.
const (
	EventRemember = "remember"
	EventRecall   = "recall"
	EventForget   = "forget"
	EventUpsert   = "upsert"
)

// MetricEvent is one append-only observability record.
type MetricEvent struct {
	SessionID   string
	Event       string
	MemoryID    string
	Query       string
	ResultCount int
	WasFallback bool
}

// MetricsSummary aggregates the metrics ledger, optionally per session.
type MetricsSummary struct {
	TotalRemembers int     `json:"total_remembers"`
	TotalRecalls   int     `json:"total_recalls"`
	RecallHitRate  float64 `json:"recall_hit_rate"`
	FallbackRate   float64 `json:"fallback_rate"`
}

// Capabilities is the runtime feature-flag view exposed to callers.
type Capabilities struct {
	Scopes           bool     `json:"scopes"`
	Idempotency      bool     `json:"idempotency"`
	ContextHydration bool     `json:"context_hydration"`
	WorkItems        bool     `json:"work_items"`
	Version          string   `json:"version"`
	Tools            []string `json:"tools"`
}

// Stats summarises the store for the CLI.
type Stats struct {
	TotalMemories int
	ByCategory    map[string]int
	DBSizeBytes   int64
	Metrics       MetricsSummary
}
