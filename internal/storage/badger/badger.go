// Package badger implements storage.BarStore on an embedded badgerhold store.
package badger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/timshannon/badgerhold/v4"
)

// DB manages the badgerhold store.
type DB struct {
	store  *badgerhold.Store
	logger zerolog.Logger
	path   string
}

// Open creates the directory if needed and opens the store.
func Open(path string, logger zerolog.Logger) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("badger path is required")
	}
	if err := os.MkdirAll(filepath.Clean(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil // badger's own logger is noisy; zerolog covers lifecycle

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Debug().Str("path", path).Msg("Badger cache initialized")
	return &DB{store: store, logger: logger, path: path}, nil
}

// Store returns the underlying badgerhold store.
func (b *DB) Store() *badgerhold.Store {
	return b.store
}

// Close closes the database.
func (b *DB) Close() error {
	if b.store != nil {
		return b.store.Close()
	}
	return nil
}
