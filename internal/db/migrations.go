package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// migrations is an ordered list of SQL migration statements.
// Each entry is applied once in order. New migrations are appended at the end.
var migrations = []string{
	// Migrations 0-1: initial schema
	`CREATE TABLE IF NOT EXISTS memories (
		id              TEXT PRIMARY KEY,
		content         TEXT NOT NULL,
		category        TEXT,
		scope_id        TEXT,
		chat_id         TEXT,
		thread_id       TEXT,
		task_id         TEXT,
		metadata        TEXT,
		idempotency_key TEXT,
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL,
		last_accessed   TEXT NOT NULL,
		access_count    INTEGER NOT NULL DEFAULT 1,
		strength        REAL NOT NULL DEFAULT 1.0,
		embedding       BLOB
	)`,

	`CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
		content,
		content='memories',
		content_rowid='rowid'
	)`,

	// Migration 2: idempotency ledger (composite primary key; see
	// migrateLedgerPrimaryKey for the rebuild of legacy single-key tables)
	`CREATE TABLE IF NOT EXISTS idempotency (
		key        TEXT NOT NULL,
		operation  TEXT NOT NULL,
		scope_key  TEXT NOT NULL DEFAULT '__global__',
		result     TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (key, operation, scope_key)
	)`,

	// Migrations 3-4: metrics ledger (append-only)
	`CREATE TABLE IF NOT EXISTS metrics (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		ts           TEXT NOT NULL,
		session_id   TEXT,
		event        TEXT NOT NULL,
		memory_id    TEXT,
		query        TEXT,
		result_count INTEGER,
		was_fallback INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE INDEX IF NOT EXISTS idx_metrics_event ON metrics(event, session_id)`,

	// Migration 5: work items (schema reserved; behavior deferred)
	`CREATE TABLE IF NOT EXISTS work_items (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL,
		state      TEXT NOT NULL DEFAULT 'open',
		scope_id   TEXT,
		memory_id  TEXT REFERENCES memories(id) ON DELETE SET NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
}

// memoryColumns lists columns added after the initial release. Databases
// created under older schemas gain them via ADD COLUMN at open.
var memoryColumns = []struct {
	name       string
	definition string
}{
	{name: "category", definition: "TEXT"},
	{name: "scope_id", definition: "TEXT"},
	{name: "chat_id", definition: "TEXT"},
	{name: "thread_id", definition: "TEXT"},
	{name: "task_id", definition: "TEXT"},
	{name: "metadata", definition: "TEXT"},
	{name: "idempotency_key", definition: "TEXT"},
	{name: "access_count", definition: "INTEGER NOT NULL DEFAULT 1"},
	{name: "strength", definition: "REAL NOT NULL DEFAULT 1.0"},
	{name: "embedding", definition: "BLOB"},
}

// applyMigrations runs any migrations that have not yet been applied, then
// the additive metadata-driven migrations (new columns, ledger PK rebuild,
// FTS triggers). Everything here is idempotent.
func applyMigrations(conn *sql.DB) error {
	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for i, stmt := range migrations {
		var count int
		row := conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, i)
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", i, err)
		}
		if count > 0 {
			continue
		}

		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i, err)
		}

		if _, err := conn.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, i); err != nil {
			return fmt.Errorf("record migration %d: %w", i, err)
		}
	}

	for _, c := range memoryColumns {
		if err := addColumnIfNotExists(conn, "memories", c.name, c.definition); err != nil {
			return err
		}
	}

	if err := migrateLedgerPrimaryKey(conn); err != nil {
		return err
	}

	// Indexes are created after the additive columns so they also apply to
	// databases migrated from older schemas.
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_memories_scope    ON memories(scope_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_category ON memories(category)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_strength ON memories(strength, last_accessed DESC)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_memories_idem
			ON memories(idempotency_key, coalesce(scope_id, '__global__'))
			WHERE idempotency_key IS NOT NULL`,
	}
	for _, stmt := range indexes {
		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	return ensureFTSTriggers(conn)
}

// tableColumns returns the column names of a table, in order.
func tableColumns(conn *sql.DB, table string) ([]string, error) {
	rows, err := conn.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var cid, notnull, pk int
		var name, ctype string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// primaryKeyColumns returns the primary-key column names of a table, ordered
// by their position in the key.
func primaryKeyColumns(conn *sql.DB, table string) ([]string, error) {
	rows, err := conn.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	pkCols := map[int]string{}
	maxPos := 0
	for rows.Next() {
		var cid, notnull, pk int
		var name, ctype string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		if pk > 0 {
			pkCols[pk] = name
			if pk > maxPos {
				maxPos = pk
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ordered := make([]string, 0, maxPos)
	for i := 1; i <= maxPos; i++ {
		ordered = append(ordered, pkCols[i])
	}
	return ordered, nil
}

func addColumnIfNotExists(conn *sql.DB, table, column, definition string) error {
	cols, err := tableColumns(conn, table)
	if err != nil {
		return err
	}
	for _, c := range cols {
		if c == column {
			return nil
		}
	}
	stmt := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition)
	if _, err := conn.Exec(stmt); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}

// migrateLedgerPrimaryKey rebuilds the idempotency table when it was created
// under the legacy PRIMARY KEY(key) schema. Rows are copied with
// scope_key = coalesce(scope_id, '__global__'). Runs inside a transaction so
// a crash mid-rebuild leaves the old table intact.
func migrateLedgerPrimaryKey(conn *sql.DB) error {
	pk, err := primaryKeyColumns(conn, "idempotency")
	if err != nil {
		return err
	}
	if len(pk) == 3 && pk[0] == "key" && pk[1] == "operation" && pk[2] == "scope_key" {
		return nil
	}

	cols, err := tableColumns(conn, "idempotency")
	if err != nil {
		return err
	}
	has := func(name string) bool {
		for _, c := range cols {
			if c == name {
				return true
			}
		}
		return false
	}

	opExpr := `'remember'`
	if has("operation") {
		opExpr = "operation"
	}
	scopeExpr := `'__global__'`
	if has("scope_key") {
		scopeExpr = `coalesce(scope_key, '__global__')`
	} else if has("scope_id") {
		scopeExpr = `coalesce(scope_id, '__global__')`
	}
	createdExpr := `datetime('now')`
	if has("created_at") {
		createdExpr = "created_at"
	}

	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("ledger rebuild begin: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE idempotency_new (
			key        TEXT NOT NULL,
			operation  TEXT NOT NULL,
			scope_key  TEXT NOT NULL DEFAULT '__global__',
			result     TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (key, operation, scope_key)
		)`,
		fmt.Sprintf(`INSERT OR IGNORE INTO idempotency_new (key, operation, scope_key, result, created_at)
			SELECT key, %s, %s, result, %s FROM idempotency`,
			opExpr, scopeExpr, createdExpr),
		`DROP TABLE idempotency`,
		`ALTER TABLE idempotency_new RENAME TO idempotency`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("ledger rebuild: %s: %w", strings.Fields(stmt)[0], err)
		}
	}

	return tx.Commit()
}

// ensureFTSTriggers creates the triggers that keep memories_fts synchronized
// with the memories content table.
func ensureFTSTriggers(conn *sql.DB) error {
	var name string
	err := conn.QueryRow(
		`SELECT name FROM sqlite_master WHERE type='trigger' AND name='memories_fts_insert'`,
	).Scan(&name)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("check fts triggers: %w", err)
	}

	triggers := `
		CREATE TRIGGER memories_fts_insert AFTER INSERT ON memories BEGIN
			INSERT INTO memories_fts(rowid, content) VALUES (new.rowid, new.content);
		END;

		CREATE TRIGGER memories_fts_delete AFTER DELETE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, content)
			VALUES ('delete', old.rowid, old.content);
		END;

		CREATE TRIGGER memories_fts_update AFTER UPDATE OF content ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, content)
			VALUES ('delete', old.rowid, old.content);
			INSERT INTO memories_fts(rowid, content) VALUES (new.rowid, new.content);
		END;
	`
	if _, err := conn.Exec(triggers); err != nil {
		return fmt.Errorf("create fts triggers: %w", err)
	}

	// First time through (fresh database or one migrated from an older
	// schema): index whatever content already exists.
	if _, err := conn.Exec(`INSERT INTO memories_fts(memories_fts) VALUES ('rebuild')`); err != nil {
		return fmt.Errorf("rebuild fts index: %w", err)
	}
	return nil
}
