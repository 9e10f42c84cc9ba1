// Package sqlite opens SQLite databases with the pragmas the service relies on.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Config describes where SQLite files live.
type Config struct {
	// DataDir holds settings.db and one database file per tenant.
	DataDir string `split_words:"true" default:"data"`
	// BusyTimeout in milliseconds applied to every connection.
	BusyTimeout int `split_words:"true" default:"5000"`
}

// Path returns the file path for the named database inside DataDir.
func (c Config) Path(name string) string {
	return filepath.Join(c.DataDir, name+".db")
}

// Open opens (creating if needed) the named database and verifies the connection.
func (c Config) Open(ctx context.Context, name string) (*sql.DB, error) {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return OpenPath(ctx, c.Path(name), c.BusyTimeout)
}

// OpenPath opens a database at an explicit path (":memory:" included).
func OpenPath(ctx context.Context, path string, busyTimeout int) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", path, busyTimeout)
	if path == ":memory:" {
		dsn = fmt.Sprintf("file::memory:?_busy_timeout=%d&_foreign_keys=on", busyTimeout)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
