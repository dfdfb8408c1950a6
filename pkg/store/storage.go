package store

import (
	"context"
	"errors"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/embedding"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/graph"
)

var (
	// ErrNoSnapshot is returned when nothing has been saved for a graph yet.
	ErrNoSnapshot = errors.New("no snapshot stored")
	ErrNoReport   = errors.New("no report stored")
)

// Report kinds stored with SaveReport.
const (
	ReportCorrection = "correction"
	ReportEvaluation = "evaluation"
	ReportCycle      = "cycle"
)

// GraphStorage persists graph snapshots, embedding spaces and reports.
// Snapshots are written whole; a save replaces the previous state of the
// graph.
type GraphStorage interface {
	SaveSnapshot(ctx context.Context, graphID string, snap *graph.Snapshot) error
	LoadSnapshot(ctx context.Context, graphID string) (*graph.Snapshot, error)
	DeleteGraph(ctx context.Context, graphID string) error

	SaveSpace(ctx context.Context, graphID string, space *embedding.Space) error
	LoadSpace(ctx context.Context, graphID string) (*embedding.Space, error)

	SaveReport(ctx context.Context, graphID, kind, refID string, version uint64, report any) (int64, error)
	LatestReport(ctx context.Context, graphID, kind string, out any) error
}
