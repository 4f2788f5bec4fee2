// Package pgstore persists the contact directory in PostgreSQL using pgx.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/voxmail/internal/directory"
	"github.com/MrWong99/voxmail/pkg/types"
)

// Schema creates the contacts table. The serial position column preserves
// insertion order across rewrites.
const Schema = `
CREATE TABLE IF NOT EXISTS voxmail_contacts (
    position   BIGSERIAL PRIMARY KEY,
    name       TEXT NOT NULL UNIQUE,
    address    TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the subset of *pgxpool.Pool and *pgx.Conn used by [Store].
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ directory.Storage = (*Store)(nil)

// Store is a directory.Storage backed by the voxmail_contacts table.
type Store struct {
	db DB
}

// New returns a Store using db. Call [Store.Migrate] before first use.
func New(db DB) *Store {
	return &Store{db: db}
}

// Connect opens a connection pool for dsn and ensures the schema exists.
// The returned close function releases the pool.
func Connect(ctx context.Context, dsn string) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// Ping checks the database connection when the underlying DB supports it.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.db.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Migrate executes [Schema].
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("pgstore: migrate: %w", err)
	}
	return nil
}

// Load implements directory.Storage.
func (s *Store) Load(ctx context.Context) ([]types.Contact, error) {
	rows, err := s.db.Query(ctx, `SELECT name, address FROM voxmail_contacts ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: load: %w", err)
	}
	defer rows.Close()

	var out []types.Contact
	for rows.Next() {
		var c types.Contact
		if err := rows.Scan(&c.Name, &c.Address); err != nil {
			return nil, fmt.Errorf("pgstore: scan contact: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: load: %w", err)
	}
	return out, nil
}

// Append implements directory.Storage.
func (s *Store) Append(ctx context.Context, c types.Contact) error {
	_, err := s.db.Exec(ctx, `INSERT INTO voxmail_contacts (name, address) VALUES ($1, $2)`, c.Name, c.Address)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("pgstore: %w: %q", directory.ErrDuplicate, c.Name)
		}
		return fmt.Errorf("pgstore: insert %q: %w", c.Name, err)
	}
	return nil
}

// Rewrite implements directory.Storage. The table is replaced inside one
// transaction, so readers see either the old or the new set.
func (s *Store) Rewrite(ctx context.Context, contacts []types.Contact) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgstore: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `DELETE FROM voxmail_contacts`); err != nil {
		return fmt.Errorf("pgstore: clear: %w", err)
	}
	for _, c := range contacts {
		if _, err = tx.Exec(ctx, `INSERT INTO voxmail_contacts (name, address) VALUES ($1, $2)`, c.Name, c.Address); err != nil {
			return fmt.Errorf("pgstore: insert %q: %w", c.Name, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("pgstore: commit: %w", err)
	}
	return nil
}

// isDuplicateKeyError reports a PostgreSQL unique_violation (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
