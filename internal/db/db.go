// Package db opens the Engram SQLite database and applies migrations.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	// Register sqlite-vec as an auto-extension so every SQLite connection
	// opened by this process has the vec_* SQL functions available.
	vec.Auto()
}

// DB wraps a *sql.DB and exposes helpers.
type DB struct {
	conn         *sql.DB
	vecAvailable bool
}

// Open opens (or creates) the SQLite database at path and applies migrations.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("db: create directory: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("db: resolve path: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", absPath)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite: %w", err)
	}

	// One connection: reads and writes are serialized through it.
	conn.SetMaxOpenConns(1)

	if err := applyMigrations(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db: apply migrations: %w", err)
	}

	d := &DB{conn: conn}

	// sqlite-vec may be absent in some build configurations. Vector distance
	// then falls back to in-process cosine in the retrieval layer.
	var version string
	if err := conn.QueryRow(`SELECT vec_version()`).Scan(&version); err == nil {
		d.vecAvailable = true
	}

	return d, nil
}

// Conn returns the underlying *sql.DB for use by the store layer.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// VecAvailable reports whether the sqlite-vec extension loaded.
func (d *DB) VecAvailable() bool {
	return d.vecAvailable
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Ping checks the connection is live.
func (d *DB) Ping() error {
	return d.conn.Ping()
}

// SizeBytes returns the on-disk size of the database file.
func (d *DB) SizeBytes() int64 {
	var name, path string
	rows, err := d.conn.Query(`PRAGMA database_list`)
	if err != nil {
		return 0
	}
	defer rows.Close()
	for rows.Next() {
		var seq int
		if err := rows.Scan(&seq, &name, &path); err != nil {
			return 0
		}
		if name == "main" {
			break
		}
	}
	if path == "" {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
