// Package sqlitestore persists the contact directory in a local SQLite
// database through database/sql and github.com/mattn/go-sqlite3.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/MrWong99/voxmail/internal/directory"
	"github.com/MrWong99/voxmail/pkg/types"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS contacts (
		position   INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT NOT NULL UNIQUE,
		address    TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

var _ directory.Storage = (*Store)(nil)

// Store is a directory.Storage backed by a SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at dsn and applies the
// schema. dsn is a file path or any go-sqlite3 DSN.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	// SQLite serialises writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("sqlitestore: migrate: %w", err)
		}
	}
	return nil
}

// Ping checks that the database file is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load implements directory.Storage.
func (s *Store) Load(ctx context.Context) ([]types.Contact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, address FROM contacts ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: load: %w", err)
	}
	defer rows.Close()

	var out []types.Contact
	for rows.Next() {
		var c types.Contact
		if err := rows.Scan(&c.Name, &c.Address); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan contact: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitestore: load: %w", err)
	}
	return out, nil
}

// Append implements directory.Storage.
func (s *Store) Append(ctx context.Context, c types.Contact) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO contacts (name, address) VALUES (?, ?)`, c.Name, c.Address)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("sqlitestore: %w: %q", directory.ErrDuplicate, c.Name)
		}
		return fmt.Errorf("sqlitestore: insert %q: %w", c.Name, err)
	}
	return nil
}

// Rewrite implements directory.Storage inside a single transaction.
func (s *Store) Rewrite(ctx context.Context, contacts []types.Contact) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM contacts`); err != nil {
		return fmt.Errorf("sqlitestore: clear: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO contacts (name, address) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlitestore: prepare: %w", err)
	}
	defer stmt.Close()
	for _, c := range contacts {
		if _, err := stmt.ExecContext(ctx, c.Name, c.Address); err != nil {
			return fmt.Errorf("sqlitestore: insert %q: %w", c.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlitestore: commit: %w", err)
	}
	return nil
}
