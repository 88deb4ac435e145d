// Package db is a hand-written query layer over the operational store
// in the Queries/*Params/New(pool) shape of a sqlc-generated package.
// No code generator runs here: tenancy is column-based, so the queries
// below are written directly against a flat, tenant_id-qualified
// relational schema (see
// migrations/0001_init.up.sql).
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by *pgxpool.Pool, *pgxpool.Conn, and pgx.Tx, so a
// pool, a leased connection, or an open transaction (the queue's SKIP
// LOCKED dequeue) can all back the same query layer.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries wraps a DBTX with typed query methods. Most methods are bound
// at construction to a pool; dequeue uses its own explicit transaction
// because SKIP LOCKED dequeue-and-update must be atomic.
type Queries struct {
	db DBTX
}

// New builds a Queries bound to the given executor (pool, conn, or tx).
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Pool returns the underlying pool when db was constructed with one; used
// by callers (like the queue) that need to open their own transactions.
func (q *Queries) Pool() *pgxpool.Pool {
	p, _ := q.db.(*pgxpool.Pool)
	return p
}
