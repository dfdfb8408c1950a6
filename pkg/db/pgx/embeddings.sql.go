package pgx

import (
	"context"
	"time"

	pgxv5 "github.com/jackc/pgx/v5"
)

const upsertEmbeddingSpace = `-- name: UpsertEmbeddingSpace :exec
INSERT INTO embedding_spaces (graph_id, version, norm, dimensions, loss, epochs, trained_at, held_out)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (graph_id) DO UPDATE
SET version    = EXCLUDED.version,
    norm       = EXCLUDED.norm,
    dimensions = EXCLUDED.dimensions,
    loss       = EXCLUDED.loss,
    epochs     = EXCLUDED.epochs,
    trained_at = EXCLUDED.trained_at,
    held_out   = EXCLUDED.held_out
`

type UpsertEmbeddingSpaceParams struct {
	GraphID    string
	Version    int64
	Norm       string
	Dimensions int32
	Loss       float64
	Epochs     int32
	TrainedAt  time.Time
	HeldOut    []byte
}

func (q *Queries) UpsertEmbeddingSpace(ctx context.Context, arg UpsertEmbeddingSpaceParams) error {
	_, err := q.db.Exec(ctx, upsertEmbeddingSpace,
		arg.GraphID,
		arg.Version,
		arg.Norm,
		arg.Dimensions,
		arg.Loss,
		arg.Epochs,
		arg.TrainedAt,
		arg.HeldOut,
	)
	return err
}

const getEmbeddingSpace = `-- name: GetEmbeddingSpace :one
SELECT graph_id, version, norm, dimensions, loss, epochs, trained_at, held_out
FROM embedding_spaces
WHERE graph_id = $1
`

func (q *Queries) GetEmbeddingSpace(ctx context.Context, graphID string) (EmbeddingSpace, error) {
	row := q.db.QueryRow(ctx, getEmbeddingSpace, graphID)
	var i EmbeddingSpace
	err := row.Scan(
		&i.GraphID,
		&i.Version,
		&i.Norm,
		&i.Dimensions,
		&i.Loss,
		&i.Epochs,
		&i.TrainedAt,
		&i.HeldOut,
	)
	return i, err
}

const deleteEntityEmbeddings = `-- name: DeleteEntityEmbeddings :exec
DELETE FROM entity_embeddings WHERE graph_id = $1
`

func (q *Queries) DeleteEntityEmbeddings(ctx context.Context, graphID string) error {
	_, err := q.db.Exec(ctx, deleteEntityEmbeddings, graphID)
	return err
}

const deleteRelationEmbeddings = `-- name: DeleteRelationEmbeddings :exec
DELETE FROM relation_embeddings WHERE graph_id = $1
`

func (q *Queries) DeleteRelationEmbeddings(ctx context.Context, graphID string) error {
	_, err := q.db.Exec(ctx, deleteRelationEmbeddings, graphID)
	return err
}

// CopyEntityEmbeddings bulk loads entity vectors. The pgvector types must
// be registered on the connection.
func (q *Queries) CopyEntityEmbeddings(ctx context.Context, rows []EntityEmbedding) (int64, error) {
	return q.db.CopyFrom(ctx,
		pgxv5.Identifier{"entity_embeddings"},
		[]string{"graph_id", "entity_id", "embedding"},
		pgxv5.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			return []any{rows[i].GraphID, rows[i].EntityID, rows[i].Embedding}, nil
		}),
	)
}

func (q *Queries) CopyRelationEmbeddings(ctx context.Context, rows []RelationEmbedding) (int64, error) {
	return q.db.CopyFrom(ctx,
		pgxv5.Identifier{"relation_embeddings"},
		[]string{"graph_id", "predicate", "embedding"},
		pgxv5.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			return []any{rows[i].GraphID, rows[i].Predicate, rows[i].Embedding}, nil
		}),
	)
}

const listEntityEmbeddings = `-- name: ListEntityEmbeddings :many
SELECT graph_id, entity_id, embedding FROM entity_embeddings
WHERE graph_id = $1
ORDER BY entity_id
`

func (q *Queries) ListEntityEmbeddings(ctx context.Context, graphID string) ([]EntityEmbedding, error) {
	rows, err := q.db.Query(ctx, listEntityEmbeddings, graphID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []EntityEmbedding
	for rows.Next() {
		var i EntityEmbedding
		if err := rows.Scan(&i.GraphID, &i.EntityID, &i.Embedding); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listRelationEmbeddings = `-- name: ListRelationEmbeddings :many
SELECT graph_id, predicate, embedding FROM relation_embeddings
WHERE graph_id = $1
ORDER BY predicate
`

func (q *Queries) ListRelationEmbeddings(ctx context.Context, graphID string) ([]RelationEmbedding, error) {
	rows, err := q.db.Query(ctx, listRelationEmbeddings, graphID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RelationEmbedding
	for rows.Next() {
		var i RelationEmbedding
		if err := rows.Scan(&i.GraphID, &i.Predicate, &i.Embedding); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
