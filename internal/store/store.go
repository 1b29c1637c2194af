// Package store wraps db.Querier with transaction support and groups the
// multi-step write operations that must execute atomically.
//
// Single-query reads (GetAppointment, ListTriages, etc.) should be called
// directly on db.Querier in handlers; there is no value in proxying them
// through this package.
//
// Dependency rule: store imports db and triage only. It never imports api,
// worker, analysis, ai, or email.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nyashahama/sepet-backend/internal/db"
)

// Store holds a *sql.DB for starting transactions and a db.Querier for
// executing queries outside of transactions. The operation files
// (appointments.go, triages.go) attach methods to this type.
type Store struct {
	// pool is the raw connection pool, used only to begin transactions.
	pool *sql.DB

	q db.Querier
}

// New creates a Store from a live connection pool. The pool must already be
// open and verified (e.g. via PingContext) before calling New.
func New(pool *sql.DB, q db.Querier) *Store {
	return &Store{pool: pool, q: q}
}

// Q exposes the underlying Querier so callers (handlers, worker) can run
// single-query reads without going through a store method.
//
//	appt, err := s.Q().GetAppointmentByID(ctx, id)
func (s *Store) Q() db.Querier {
	return s.q
}

// txQuerier is a function that receives a transactional Querier and returns an
// error. Returning a non-nil error causes withTx to roll back automatically.
type txQuerier func(ctx context.Context, q db.Querier) error

// withTx begins a transaction, passes a Querier scoped to that transaction to
// fn, and commits on success or rolls back on any error (including panics).
func (s *Store) withTx(ctx context.Context, fn txQuerier) error {
	tx, err := s.pool.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, db.New(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("store: fn error: %w; rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	return nil
}
