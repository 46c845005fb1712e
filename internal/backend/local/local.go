// Package local is the single-user backend: a SQLite store in a data
// directory, with the same auth, membership, and procedure semantics as
// the sync server so the client core runs unchanged against either.
package local

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"trolley/internal/model"

	_ "modernc.org/sqlite"
)

// Backend implements backend.Backend over a local SQLite database.
type Backend struct {
	dir string
	db  *sql.DB
	hub *hub

	mu        sync.Mutex
	callbacks map[int]func(*model.Session)
	nextCB    int
}

// Open opens (creating if needed) the store under dir.
func Open(ctx context.Context, dir string) (*Backend, error) {
	if dir == "" {
		return nil, fmt.Errorf("missing data dir")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", filepath.Join(dir, "trolley.sqlite"))
	if err != nil {
		return nil, err
	}
	// WAL enables one writer + many readers; busy_timeout avoids
	// "database is locked" flakiness across processes.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Backend{
		dir:       dir,
		db:        db,
		hub:       newHub(),
		callbacks: map[int]func(*model.Session){},
	}, nil
}

func (b *Backend) Close() error {
	return b.db.Close()
}

func migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			k TEXT PRIMARY KEY,
			v TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			confirmed INTEGER NOT NULL,
			created_at_unixms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			created_at_unixms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS lists (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			icon TEXT NOT NULL,
			icon_image_url TEXT,
			background_image_url TEXT,
			position INTEGER NOT NULL DEFAULT 0,
			created_by TEXT NOT NULL,
			created_at_unixms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS memberships (
			list_id TEXT NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
			account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			created_at_unixms INTEGER NOT NULL,
			PRIMARY KEY (list_id, account_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_memberships_account ON memberships(account_id);`,
		`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			list_id TEXT NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
			text TEXT NOT NULL,
			url TEXT NOT NULL DEFAULT '',
			checked INTEGER NOT NULL DEFAULT 0,
			position INTEGER NOT NULL DEFAULT 0,
			created_by TEXT REFERENCES accounts(id) ON DELETE SET NULL,
			created_at_unixms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_items_list ON items(list_id);`,
	}
	for _, st := range stmts {
		if _, err := db.ExecContext(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
