package memory

import (
	"fmt"
	"time"
)

// LogMetric appends one observability record. Metrics are append-only and
// never read back on the request path.
func (s *Store) LogMetric(e MetricEvent) error {
	_, err := s.db.Conn().Exec(`
		INSERT INTO metrics (ts, session_id, event, memory_id, query, result_count, was_fallback)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		formatTime(time.Now().UTC()), nullable(e.SessionID), e.Event,
		nullable(e.MemoryID), nullable(e.Query), e.ResultCount, boolToInt(e.WasFallback),
	)
	if err != nil {
		return fmt.Errorf("store: log metric: %w", err)
	}
	return nil
}

// Summary aggregates the metrics ledger. An empty session covers all
// sessions. Zero denominators yield zero rates.
func (s *Store) Summary(sessionID string) (MetricsSummary, error) {
	var sum MetricsSummary

	query := `
		SELECT
			COUNT(CASE WHEN event = 'remember' THEN 1 END),
			COUNT(CASE WHEN event = 'recall' THEN 1 END),
			COUNT(CASE WHEN event = 'recall' AND result_count > 0 THEN 1 END),
			COUNT(CASE WHEN event = 'recall' AND was_fallback = 1 THEN 1 END)
		FROM metrics`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}

	var hits, fallbacks int
	err := s.db.Conn().QueryRow(query, args...).Scan(
		&sum.TotalRemembers, &sum.TotalRecalls, &hits, &fallbacks,
	)
	if err != nil {
		return sum, fmt.Errorf("store: metrics summary: %w", err)
	}

	if sum.TotalRecalls > 0 {
		sum.RecallHitRate = float64(hits) / float64(sum.TotalRecalls)
		sum.FallbackRate = float64(fallbacks) / float64(sum.TotalRecalls)
	}
	return sum, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
