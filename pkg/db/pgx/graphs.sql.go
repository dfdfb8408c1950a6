package pgx

import (
	"context"
	"time"

	pgxv5 "github.com/jackc/pgx/v5"
)

const upsertGraph = `-- name: UpsertGraph :exec
INSERT INTO graphs (graph_id, version, taken_at, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (graph_id) DO UPDATE
SET version    = EXCLUDED.version,
    taken_at   = EXCLUDED.taken_at,
    updated_at = now()
`

type UpsertGraphParams struct {
	GraphID string
	Version int64
	TakenAt time.Time
}

func (q *Queries) UpsertGraph(ctx context.Context, arg UpsertGraphParams) error {
	_, err := q.db.Exec(ctx, upsertGraph, arg.GraphID, arg.Version, arg.TakenAt)
	return err
}

const getGraph = `-- name: GetGraph :one
SELECT graph_id, version, taken_at, updated_at FROM graphs
WHERE graph_id = $1
`

func (q *Queries) GetGraph(ctx context.Context, graphID string) (Graph, error) {
	row := q.db.QueryRow(ctx, getGraph, graphID)
	var i Graph
	err := row.Scan(&i.GraphID, &i.Version, &i.TakenAt, &i.UpdatedAt)
	return i, err
}

const deleteGraph = `-- name: DeleteGraph :exec
DELETE FROM graphs WHERE graph_id = $1
`

// DeleteGraph removes the graph row. Contents, embeddings and reports go
// with it through ON DELETE CASCADE.
func (q *Queries) DeleteGraph(ctx context.Context, graphID string) error {
	_, err := q.db.Exec(ctx, deleteGraph, graphID)
	return err
}

const deleteGraphProvenance = `-- name: DeleteGraphProvenance :exec
DELETE FROM triple_provenance WHERE graph_id = $1
`

func (q *Queries) DeleteGraphProvenance(ctx context.Context, graphID string) error {
	_, err := q.db.Exec(ctx, deleteGraphProvenance, graphID)
	return err
}

const deleteGraphTriples = `-- name: DeleteGraphTriples :exec
DELETE FROM graph_triples WHERE graph_id = $1
`

func (q *Queries) DeleteGraphTriples(ctx context.Context, graphID string) error {
	_, err := q.db.Exec(ctx, deleteGraphTriples, graphID)
	return err
}

const deleteGraphEntities = `-- name: DeleteGraphEntities :exec
DELETE FROM graph_entities WHERE graph_id = $1
`

func (q *Queries) DeleteGraphEntities(ctx context.Context, graphID string) error {
	_, err := q.db.Exec(ctx, deleteGraphEntities, graphID)
	return err
}

// CopyEntities bulk loads entity rows with COPY.
func (q *Queries) CopyEntities(ctx context.Context, rows []GraphEntity) (int64, error) {
	return q.db.CopyFrom(ctx,
		pgxv5.Identifier{"graph_entities"},
		[]string{"graph_id", "entity_id", "label", "type", "aliases", "mentions", "created_at", "redirect_to"},
		pgxv5.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{r.GraphID, r.EntityID, r.Label, r.Type, r.Aliases, r.Mentions, r.CreatedAt, r.RedirectTo}, nil
		}),
	)
}

// CopyTriples bulk loads triple rows with COPY.
func (q *Queries) CopyTriples(ctx context.Context, rows []GraphTriple) (int64, error) {
	return q.db.CopyFrom(ctx,
		pgxv5.Identifier{"graph_triples"},
		[]string{"graph_id", "triple_id", "subject_id", "predicate", "object_id", "confidence", "ts", "status", "superseded_by", "inferred"},
		pgxv5.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{r.GraphID, r.TripleID, r.SubjectID, r.Predicate, r.ObjectID, r.Confidence, r.Ts, r.Status, r.SupersededBy, r.Inferred}, nil
		}),
	)
}

// CopyProvenance bulk loads provenance rows with COPY.
func (q *Queries) CopyProvenance(ctx context.Context, rows []TripleProvenance) (int64, error) {
	return q.db.CopyFrom(ctx,
		pgxv5.Identifier{"triple_provenance"},
		[]string{"graph_id", "triple_id", "position", "public_id", "source_turn_id", "confidence", "ts", "source_text", "inferred"},
		pgxv5.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{r.GraphID, r.TripleID, r.Position, r.PublicID, r.SourceTurnID, r.Confidence, r.Ts, r.SourceText, r.Inferred}, nil
		}),
	)
}

const listGraphEntities = `-- name: ListGraphEntities :many
SELECT graph_id, entity_id, label, type, aliases, mentions, created_at, redirect_to
FROM graph_entities
WHERE graph_id = $1
ORDER BY entity_id
`

func (q *Queries) ListGraphEntities(ctx context.Context, graphID string) ([]GraphEntity, error) {
	rows, err := q.db.Query(ctx, listGraphEntities, graphID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GraphEntity
	for rows.Next() {
		var i GraphEntity
		if err := rows.Scan(
			&i.GraphID,
			&i.EntityID,
			&i.Label,
			&i.Type,
			&i.Aliases,
			&i.Mentions,
			&i.CreatedAt,
			&i.RedirectTo,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listGraphTriples = `-- name: ListGraphTriples :many
SELECT graph_id, triple_id, subject_id, predicate, object_id, confidence, ts, status, superseded_by, inferred
FROM graph_triples
WHERE graph_id = $1
ORDER BY triple_id
`

func (q *Queries) ListGraphTriples(ctx context.Context, graphID string) ([]GraphTriple, error) {
	rows, err := q.db.Query(ctx, listGraphTriples, graphID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GraphTriple
	for rows.Next() {
		var i GraphTriple
		if err := rows.Scan(
			&i.GraphID,
			&i.TripleID,
			&i.SubjectID,
			&i.Predicate,
			&i.ObjectID,
			&i.Confidence,
			&i.Ts,
			&i.Status,
			&i.SupersededBy,
			&i.Inferred,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listTripleProvenance = `-- name: ListTripleProvenance :many
SELECT graph_id, triple_id, position, public_id, source_turn_id, confidence, ts, source_text, inferred
FROM triple_provenance
WHERE graph_id = $1
ORDER BY triple_id, position
`

func (q *Queries) ListTripleProvenance(ctx context.Context, graphID string) ([]TripleProvenance, error) {
	rows, err := q.db.Query(ctx, listTripleProvenance, graphID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TripleProvenance
	for rows.Next() {
		var i TripleProvenance
		if err := rows.Scan(
			&i.GraphID,
			&i.TripleID,
			&i.Position,
			&i.PublicID,
			&i.SourceTurnID,
			&i.Confidence,
			&i.Ts,
			&i.SourceText,
			&i.Inferred,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
