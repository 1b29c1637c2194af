// Package db holds the typed queries for the appointments and triages tables.
// It follows the sqlc layout (DBTX, Queries, WithTx, Querier) so the store
// and handlers can depend on the Querier interface and tests can stub it.
package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

//go:embed schema.sql
var schema string

// Migrate applies the schema. Every statement is idempotent, so it is safe to
// run on each startup.
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("db: migrate: %w", err)
	}
	return nil
}
