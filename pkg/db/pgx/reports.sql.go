package pgx

import (
	"context"
)

const insertReport = `-- name: InsertReport :one
INSERT INTO correction_reports (graph_id, kind, ref_id, version, report)
VALUES ($1, $2, $3, $4, $5)
RETURNING id
`

type InsertReportParams struct {
	GraphID string
	Kind    string
	RefID   string
	Version int64
	Report  []byte
}

func (q *Queries) InsertReport(ctx context.Context, arg InsertReportParams) (int64, error) {
	row := q.db.QueryRow(ctx, insertReport, arg.GraphID, arg.Kind, arg.RefID, arg.Version, arg.Report)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const getLatestReport = `-- name: GetLatestReport :one
SELECT id, graph_id, kind, ref_id, version, report, created_at
FROM correction_reports
WHERE graph_id = $1 AND kind = $2
ORDER BY id DESC
LIMIT 1
`

type GetLatestReportParams struct {
	GraphID string
	Kind    string
}

func (q *Queries) GetLatestReport(ctx context.Context, arg GetLatestReportParams) (CorrectionReport, error) {
	row := q.db.QueryRow(ctx, getLatestReport, arg.GraphID, arg.Kind)
	var i CorrectionReport
	err := row.Scan(
		&i.ID,
		&i.GraphID,
		&i.Kind,
		&i.RefID,
		&i.Version,
		&i.Report,
		&i.CreatedAt,
	)
	return i, err
}
