// Package store is the SQLite configuration store: waste rules, rate cards,
// finance plans, saved quotes and manual measurement overrides.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store reads and writes configuration rows. The zero value is not usable;
// construct with New.
type Store struct {
	db  *sql.DB
	q   dbtx
	now func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{db: db, q: db, now: time.Now}
}

// InTx runs fn against a Store bound to a single transaction, committing when
// fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.db == nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&Store{q: tx, now: s.now}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var ok bool
	if err := s.q.QueryRowContext(ctx, `SELECT EXISTS(`+query+`)`, args...).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func parseTime(raw string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
