// Package sqlite implements storage.BarStore on a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"gapup-lab/internal/storage/migrations"
)

// DefaultPath matches the cache file name used by earlier tooling.
const DefaultPath = "market_data.db"

// Options configures the SQLite connection.
type Options struct {
	Path          string
	BusyTimeoutMS int
	WALMode       bool
}

// DB wraps a database/sql handle opened with the modernc driver.
type DB struct {
	db     *sql.DB
	logger zerolog.Logger
	path   string
}

// Open creates the parent directory, opens the file, applies pragmas and
// runs the embedded migrations.
func Open(ctx context.Context, opts Options, logger zerolog.Logger) (*DB, error) {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.BusyTimeoutMS <= 0 {
		opts.BusyTimeoutMS = 5000
	}

	if dir := filepath.Dir(opts.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite registers the "sqlite" driver name (not "sqlite3")
	db, err := sql.Open("sqlite", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	s := &DB{db: db, logger: logger, path: opts.Path}

	if err := s.configure(ctx, opts); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Debug().Str("path", opts.Path).Msg("SQLite cache initialized")
	return s, nil
}

func (s *DB) configure(ctx context.Context, opts Options) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", opts.BusyTimeoutMS),
		"PRAGMA synchronous = NORMAL",
	}
	if opts.WALMode {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}

	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

// Migrate applies the embedded schema. Safe to call repeatedly.
func (s *DB) Migrate(ctx context.Context) error {
	files, err := migrations.SQLite()
	if err != nil {
		return err
	}
	for _, m := range files {
		for _, stmt := range m.Statements {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", m.Name, err)
			}
		}
	}
	return nil
}

// Path returns the database file path.
func (s *DB) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *DB) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
