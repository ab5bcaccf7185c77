package memory

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/engram-memory/engram/internal/adapter"
	"github.com/engram-memory/engram/internal/db"
)

// Store provides read/write access to the Engram SQLite database.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given DB.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Conn exposes the underlying *sql.DB for low-level queries.
func (s *Store) Conn() *sql.DB {
	return s.db.Conn()
}

// errVecUnavailable signals that the sqlite-vec extension did not load and
// the caller should compute similarity in process instead.
var errVecUnavailable = errors.New("store: sqlite-vec unavailable")

// ---- Memories ----

// CreateMemory persists a new memory. The caller supplies the id; timestamps
// and lifecycle defaults are stamped here.
func (s *Store) CreateMemory(m *Memory) error {
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	m.LastAccessed = now
	if m.AccessCount < 1 {
		m.AccessCount = 1
	}
	if m.Strength <= 0 || m.Strength > 1 {
		m.Strength = 1.0
	}

	metadata, err := metadataToText(m.Metadata)
	if err != nil {
		return fmt.Errorf("store: encode metadata: %w", err)
	}

	_, err = s.db.Conn().Exec(`
		INSERT INTO memories (id, content, category, scope_id, chat_id, thread_id, task_id,
			metadata, idempotency_key, created_at, updated_at, last_accessed,
			access_count, strength, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Content, nullable(m.Category),
		nullable(m.ScopeID), nullable(m.ChatID), nullable(m.ThreadID), nullable(m.TaskID),
		metadata, nullable(m.IdempotencyKey),
		formatTime(m.CreatedAt), formatTime(m.UpdatedAt), formatTime(m.LastAccessed),
		m.AccessCount, m.Strength, embeddingBlob(m.Embedding),
	)
	if err != nil {
		return fmt.Errorf("store: create memory: %w", err)
	}
	return nil
}

// GetMemoryByID returns a single memory, or ErrNotFound.
func (s *Store) GetMemoryByID(id string) (Memory, error) {
	row := s.db.Conn().QueryRow(selectMemory+` WHERE id = ?`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return m, fmt.Errorf("store: memory %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return m, fmt.Errorf("store: get memory: %w", err)
	}
	return m, nil
}

// UpdateMemoryContent replaces content, category, metadata, and embedding of
// an existing memory and refreshes updated_at. Omitted optional fields become
// NULL; id, created_at, access_count, strength, and scope fields are
// untouched.
func (s *Store) UpdateMemoryContent(id, content, category string, metadata map[string]string, embedding []float32) error {
	metadataText, err := metadataToText(metadata)
	if err != nil {
		return fmt.Errorf("store: encode metadata: %w", err)
	}

	res, err := s.db.Conn().Exec(`
		UPDATE memories
		SET content = ?, category = ?, metadata = ?, embedding = ?, updated_at = ?
		WHERE id = ?`,
		content, nullable(category), metadataText, embeddingBlob(embedding),
		formatTime(time.Now().UTC()), id,
	)
	if err != nil {
		return fmt.Errorf("store: update memory content: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("store: memory %q: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteMemory removes a memory by id, subject to the scope guard.
// Returns false when no row matched. The FTS row goes with it via trigger.
func (s *Store) DeleteMemory(id string, guard ScopeGuard) (bool, error) {
	query := `DELETE FROM memories WHERE id = ?`
	args := []any{id}
	switch guard.kind {
	case 1:
		query += ` AND scope_id IS NULL`
	case 2:
		query += ` AND scope_id = ?`
		args = append(args, guard.scope)
	}

	res, err := s.db.Conn().Exec(query, args...)
	if err != nil {
		return false, fmt.Errorf("store: delete memory: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// FindByIdempotencyKey returns the memory holding the given key within the
// given scope, or nil. scopeKey is the ledger discriminator: a literal scope
// id, or GlobalScopeKey for unscoped writes.
func (s *Store) FindByIdempotencyKey(key, scopeKey string) (*Memory, error) {
	row := s.db.Conn().QueryRow(
		selectMemory+` WHERE idempotency_key = ? AND coalesce(scope_id, ?) = ?`,
		key, GlobalScopeKey, scopeKey,
	)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find by idempotency key: %w", err)
	}
	return &m, nil
}

// SearchFTS runs a full-text query over memory content. An empty query
// returns recent memories ordered by strength then last access, with rank 0.
// FTS ranks come from bm25: more negative is a better match.
func (s *Store) SearchFTS(query string, limit int, f Filters) ([]ScoredMemory, error) {
	if limit <= 0 {
		limit = 10
	}

	match := ftsMatchExpr(query)
	if match == "" {
		where, args := f.clauses(nil)
		q := selectMemory + whereSQL(where) + ` ORDER BY strength DESC, last_accessed DESC LIMIT ?`
		args = append(args, limit)
		rows, err := s.db.Conn().Query(q, args...)
		if err != nil {
			return nil, fmt.Errorf("store: recent memories: %w", err)
		}
		defer rows.Close()
		return scanScored(rows, false)
	}

	where, filterArgs := f.clauses([]string{`memories_fts MATCH ?`})
	args := append([]any{match}, filterArgs...)
	q := `SELECT m.id, m.content, m.category, m.scope_id, m.chat_id, m.thread_id, m.task_id,
			m.metadata, m.idempotency_key, m.created_at, m.updated_at, m.last_accessed,
			m.access_count, m.strength, m.embedding, memories_fts.rank
		FROM memories_fts
		JOIN memories m ON m.rowid = memories_fts.rowid` + whereSQL(where) + `
		ORDER BY memories_fts.rank LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Conn().Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: fts search: %w", err)
	}
	defer rows.Close()
	return scanScored(rows, true)
}

// GetWithEmbeddings returns memories carrying an embedding of the expected
// dimension, honoring the filters. Rows whose stored vector has a different
// dimension are skipped, as if they had no embedding.
func (s *Store) GetWithEmbeddings(f Filters, dim int) ([]Memory, error) {
	where, args := f.clauses([]string{`embedding IS NOT NULL`, `length(embedding) = ?`})
	args = append([]any{4 * dim}, args...)

	rows, err := s.db.Conn().Query(selectMemory+whereSQL(where), args...)
	if err != nil {
		return nil, fmt.Errorf("store: get with embeddings: %w", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountEmbedded returns the number of memories carrying an embedding of the
// expected dimension, honoring the filters.
func (s *Store) CountEmbedded(f Filters, dim int) (int, error) {
	where, args := f.clauses([]string{`embedding IS NOT NULL`, `length(embedding) = ?`})
	args = append([]any{4 * dim}, args...)

	var n int
	err := s.db.Conn().QueryRow(`SELECT COUNT(*) FROM memories`+whereSQL(where), args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count embedded: %w", err)
	}
	return n, nil
}

// SemanticCandidates scores every embedded memory against the query vector
// using sqlite-vec's cosine distance, honoring the filters. Similarity is
// 1 − distance. Returns errVecUnavailable when the extension did not load;
// the retriever then recomputes cosine in process over GetWithEmbeddings.
func (s *Store) SemanticCandidates(query []float32, f Filters) ([]ScoredMemory, error) {
	if !s.db.VecAvailable() {
		return nil, errVecUnavailable
	}

	where, args := f.clauses([]string{`embedding IS NOT NULL`, `length(embedding) = ?`})
	args = append([]any{adapter.VectorToBlob(query), 4 * len(query)}, args...)

	q := `SELECT id, content, category, scope_id, chat_id, thread_id, task_id,
			metadata, idempotency_key, created_at, updated_at, last_accessed,
			access_count, strength, embedding,
			vec_distance_cosine(embedding, ?) AS distance
		FROM memories` + whereSQL(where) + ` ORDER BY distance`

	rows, err := s.db.Conn().Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: semantic candidates: %w", err)
	}
	defer rows.Close()

	var out []ScoredMemory
	for rows.Next() {
		var sm ScoredMemory
		var distance float64
		m, err := scanMemoryInto(rows, &distance)
		if err != nil {
			return nil, err
		}
		sm.Memory = m
		sm.Similarity = 1 - distance
		out = append(out, sm)
	}
	return out, rows.Err()
}

// UpdateAccess marks a memory as recalled: strength jumps to the configured
// boost, last_accessed moves to now, access_count increments.
func (s *Store) UpdateAccess(id string, boost float64) error {
	_, err := s.db.Conn().Exec(`
		UPDATE memories
		SET last_accessed = ?, strength = ?, access_count = access_count + 1
		WHERE id = ?`,
		formatTime(time.Now().UTC()), boost, id,
	)
	if err != nil {
		return fmt.Errorf("store: update access: %w", err)
	}
	return nil
}

// GetForDecay returns every memory with the fields the decay engine needs.
func (s *Store) GetForDecay() ([]Memory, error) {
	rows, err := s.db.Conn().Query(selectMemory)
	if err != nil {
		return nil, fmt.Errorf("store: get for decay: %w", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateStrength persists a decayed strength. This is the maintenance write
// path behind `decay --apply`; reads never call it.
func (s *Store) UpdateStrength(id string, strength float64) error {
	_, err := s.db.Conn().Exec(
		`UPDATE memories SET strength = ? WHERE id = ?`, clamp01(strength), id,
	)
	if err != nil {
		return fmt.Errorf("store: update strength: %w", err)
	}
	return nil
}

// GetBelowStrength returns memories whose stored strength is below t.
func (s *Store) GetBelowStrength(t float64) ([]Memory, error) {
	rows, err := s.db.Conn().Query(selectMemory+` WHERE strength < ? ORDER BY strength`, t)
	if err != nil {
		return nil, fmt.Errorf("store: get below strength: %w", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// PruneBelowStrength deletes memories whose stored strength is below t and
// returns the number removed. FTS rows go with them via trigger.
func (s *Store) PruneBelowStrength(t float64) (int, error) {
	res, err := s.db.Conn().Exec(`DELETE FROM memories WHERE strength < ?`, t)
	if err != nil {
		return 0, fmt.Errorf("store: prune below strength: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Recent returns the newest memories, optionally filtered.
func (s *Store) Recent(limit int, f Filters) ([]Memory, error) {
	if limit <= 0 {
		limit = 10
	}
	where, args := f.clauses(nil)
	q := selectMemory + whereSQL(where) + ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Conn().Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountByCategory returns memory counts grouped by category. Uncategorized
// rows count under the empty string.
func (s *Store) CountByCategory() (map[string]int, error) {
	rows, err := s.db.Conn().Query(
		`SELECT coalesce(category, ''), COUNT(*) FROM memories GROUP BY category`,
	)
	if err != nil {
		return nil, fmt.Errorf("store: count by category: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var c string
		var n int
		if err := rows.Scan(&c, &n); err != nil {
			return nil, err
		}
		counts[c] = n
	}
	return counts, rows.Err()
}

// CountMemories returns the total number of stored memories.
func (s *Store) CountMemories() (int, error) {
	var n int
	err := s.db.Conn().QueryRow(`SELECT COUNT(*) FROM memories`).Scan(&n)
	return n, err
}

// SizeBytes returns the on-disk database size.
func (s *Store) SizeBytes() int64 {
	return s.db.SizeBytes()
}

// ---- Filters ----

// clauses renders the filters as SQL fragments. base comes first so callers
// can prepend their own predicates (and positional args).
func (f Filters) clauses(base []string) ([]string, []any) {
	where := append([]string{}, base...)
	var args []any
	if f.ScopeID != "" {
		where = append(where, `scope_id = ?`)
		args = append(args, f.ScopeID)
	}
	if f.ChatID != "" {
		where = append(where, `chat_id = ?`)
		args = append(args, f.ChatID)
	}
	if f.ThreadID != "" {
		where = append(where, `thread_id = ?`)
		args = append(args, f.ThreadID)
	}
	if f.TaskID != "" {
		where = append(where, `task_id = ?`)
		args = append(args, f.TaskID)
	}
	if f.Category != "" {
		where = append(where, `category = ?`)
		args = append(args, f.Category)
	}
	return where, args
}

func whereSQL(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

// ftsMatchExpr turns free text into an FTS5 MATCH expression. Terms are
// quoted and OR-joined so punctuation in natural-language queries cannot
// break the FTS parser. Returns "" for queries with no searchable terms.
func ftsMatchExpr(query string) string {
	terms := strings.FieldsFunc(query, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r > 127)
	})
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}

// ---- Scanning helpers ----

const selectMemory = `SELECT id, content, category, scope_id, chat_id, thread_id, task_id,
	metadata, idempotency_key, created_at, updated_at, last_accessed,
	access_count, strength, embedding FROM memories`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemoryInto(r rowScanner, extra ...any) (Memory, error) {
	var m Memory
	var category, scopeID, chatID, threadID, taskID, metadata, idemKey sql.NullString
	var createdAt, updatedAt, lastAccessed string
	var embedding []byte

	dest := []any{
		&m.ID, &m.Content, &category, &scopeID, &chatID, &threadID, &taskID,
		&metadata, &idemKey, &createdAt, &updatedAt, &lastAccessed,
		&m.AccessCount, &m.Strength, &embedding,
	}
	dest = append(dest, extra...)

	if err := r.Scan(dest...); err != nil {
		return m, err
	}

	m.Category = category.String
	m.ScopeID = scopeID.String
	m.ChatID = chatID.String
	m.ThreadID = threadID.String
	m.TaskID = taskID.String
	m.IdempotencyKey = idemKey.String
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	m.LastAccessed = parseTime(lastAccessed)
	if metadata.Valid && metadata.String != "" {
		_ = json.Unmarshal([]byte(metadata.String), &m.Metadata)
	}
	if len(embedding) > 0 {
		m.Embedding = adapter.BlobToVector(embedding)
	}
	return m, nil
}

func scanMemory(r rowScanner) (Memory, error) {
	return scanMemoryInto(r)
}

func scanMemoryRows(rows *sql.Rows) (Memory, error) {
	return scanMemoryInto(rows)
}

func scanScored(rows *sql.Rows, withRank bool) ([]ScoredMemory, error) {
	var out []ScoredMemory
	for rows.Next() {
		var sm ScoredMemory
		var err error
		if withRank {
			sm.Memory, err = scanMemoryInto(rows, &sm.FTSRank)
		} else {
			sm.Memory, err = scanMemoryInto(rows)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

// ---- Value helpers ----

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func embeddingBlob(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return adapter.VectorToBlob(v)
}

func metadataToText(m map[string]string) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime tries the timestamp layouts SQLite may hand back.
func parseTime(s string) time.Time {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
