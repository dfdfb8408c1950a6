// Package pgx holds the typed queries for the snapshot tables. Every query
// runs on a DBTX, so the same Queries value works on a pool, a connection or
// a transaction.
package pgx

import (
	"context"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgxv5.Rows, error)
	QueryRow(context.Context, string, ...any) pgxv5.Row
	CopyFrom(ctx context.Context, tableName pgxv5.Identifier, columnNames []string, rowSrc pgxv5.CopyFromSource) (int64, error)
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx pgxv5.Tx) *Queries {
	return &Queries{db: tx}
}
