package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SaveLedger records the result payload of an idempotent operation. Saving
// the same (key, operation, scope) again overwrites the payload, which keeps
// replays after an upsert pointing at the same row.
func (s *Store) SaveLedger(key, operation, scopeKey string, result any) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("store: encode ledger result: %w", err)
	}

	_, err = s.db.Conn().Exec(`
		INSERT INTO idempotency (key, operation, scope_key, result, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key, operation, scope_key) DO UPDATE SET result = excluded.result`,
		key, operation, scopeKey, string(payload), formatTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("store: save ledger: %w", err)
	}
	return nil
}

// GetLedger loads a cached result payload into out. The second return value
// reports whether an entry existed. A stored payload that does not parse is
// a corrupt ledger entry, surfaced as an error rather than silently dropped.
func (s *Store) GetLedger(key, operation, scopeKey string, out any) (bool, error) {
	var payload string
	err := s.db.Conn().QueryRow(
		`SELECT result FROM idempotency WHERE key = ? AND operation = ? AND scope_key = ?`,
		key, operation, scopeKey,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: get ledger: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return false, fmt.Errorf("%w: key=%q op=%q: %v", ErrCorruptLedger, key, operation, err)
	}
	return true, nil
}
