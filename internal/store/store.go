// Package store keeps localisation run history and every origin set during a
// run in a SQLite database.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store is the run history database. Each run row owns the origins recorded
// while it was calibrating.
type Store struct {
	db   *sql.DB
	path string
}

// New opens the history database at dbPath, creating it and its tables on
// first use. Deleting a run cascades to its origins.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// PRAGMAs are per connection; the recorder is the only writer.
	db.SetMaxOpenConns(1)

	// origins.run_id cascades only with foreign keys on.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// Close closes the database. Runs still open keep a NULL ended_at.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the connection shared by the run and origin repositories.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path, as reported in the startup log.
func (s *Store) Path() string {
	return s.path
}
