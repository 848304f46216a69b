package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Config holds SQLite connection settings.
type Config struct {
	DatabasePath    string
	MaxConnections  int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig returns connection settings suitable for a single-node
// deployment.
func DefaultConfig(path string) *Config {
	return &Config{
		DatabasePath:    path,
		MaxConnections:  10,
		ConnMaxLifetime: 30 * time.Second,
		ConnMaxIdleTime: 10 * time.Second,
	}
}

// Open opens the SQLite database with WAL journaling, a busy timeout and
// foreign keys enforced. Reads may run concurrently; all writes must go
// through a single writer (see internal/store).
func Open(cfg *Config) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", cfg.DatabasePath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	return db, nil
}
