// Package db is a small hand-written query layer over pgx/v5, playing the
// same role the teacher's generated sqlc package did: a DBTX abstraction
// satisfied by both a pool and a transaction, and a Queries façade with one
// method per storage operation used by the services above it.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx, letting every query method
// run either directly against the pool or inside a caller-provided
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries is the façade every service depends on.
type Queries struct {
	db DBTX
}

func New(dbtx DBTX) *Queries {
	return &Queries{db: dbtx}
}

// WithTx returns a Queries bound to the given transaction, mirroring the
// teacher's db.Queries.WithTx idiom used throughout internal/auth/service.go.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}
