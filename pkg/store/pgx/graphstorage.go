package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	pgdb "github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/db/pgx"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/embedding"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/graph"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/logger"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// copyChunkSize bounds the rows sent per COPY so very large graphs do not
// build one huge message.
const copyChunkSize = 10000

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	CopyFrom(ctx context.Context, tableName pgxv5.Identifier, columnNames []string, rowSrc pgxv5.CopyFromSource) (int64, error)
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// GraphDBStorage implements store.GraphStorage on PostgreSQL with pgvector.
// Writes for the same storage value are serialized so two saves of one
// graph never interleave their delete and copy steps.
type GraphDBStorage struct {
	conn   pgxIConn
	dbLock sync.Mutex
}

var _ store.GraphStorage = (*GraphDBStorage)(nil)

// NewGraphDBStorageWithConnection wraps an existing pool or connection. The
// pgvector types must be registered on it, see pgxvec.RegisterTypes.
func NewGraphDBStorageWithConnection(conn pgxIConn) *GraphDBStorage {
	return &GraphDBStorage{conn: conn}
}

func (s *GraphDBStorage) withTx(ctx context.Context, fn func(qtx *pgdb.Queries) error) error {
	s.dbLock.Lock()
	defer s.dbLock.Unlock()

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(pgdb.New(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SaveSnapshot replaces the stored state of graphID with snap.
func (s *GraphDBStorage) SaveSnapshot(ctx context.Context, graphID string, snap *graph.Snapshot) error {
	rows := snapshotToRows(graphID, snap)

	err := s.withTx(ctx, func(qtx *pgdb.Queries) error {
		if err := qtx.UpsertGraph(ctx, pgdb.UpsertGraphParams{
			GraphID: graphID,
			Version: int64(snap.Version),
			TakenAt: snap.TakenAt,
		}); err != nil {
			return fmt.Errorf("failed to upsert graph: %w", err)
		}
		if err := qtx.DeleteGraphProvenance(ctx, graphID); err != nil {
			return fmt.Errorf("failed to clear provenance: %w", err)
		}
		if err := qtx.DeleteGraphTriples(ctx, graphID); err != nil {
			return fmt.Errorf("failed to clear triples: %w", err)
		}
		if err := qtx.DeleteGraphEntities(ctx, graphID); err != nil {
			return fmt.Errorf("failed to clear entities: %w", err)
		}

		if _, err := store.CopyInChunks(rows.entities, copyChunkSize, func(chunk []pgdb.GraphEntity) (int64, error) {
			return qtx.CopyEntities(ctx, chunk)
		}); err != nil {
			return fmt.Errorf("failed to copy entities: %w", err)
		}
		if _, err := store.CopyInChunks(rows.triples, copyChunkSize, func(chunk []pgdb.GraphTriple) (int64, error) {
			return qtx.CopyTriples(ctx, chunk)
		}); err != nil {
			return fmt.Errorf("failed to copy triples: %w", err)
		}
		if _, err := store.CopyInChunks(rows.provenance, copyChunkSize, func(chunk []pgdb.TripleProvenance) (int64, error) {
			return qtx.CopyProvenance(ctx, chunk)
		}); err != nil {
			return fmt.Errorf("failed to copy provenance: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Debug("[Store][SaveSnapshot] Snapshot saved",
		"graph", graphID,
		"version", snap.Version,
		"entities", len(rows.entities),
		"triples", len(rows.triples),
		"provenance", len(rows.provenance),
	)
	return nil
}

// LoadSnapshot reads the stored state of graphID. It returns
// store.ErrNoSnapshot when the graph was never saved.
func (s *GraphDBStorage) LoadSnapshot(ctx context.Context, graphID string) (*graph.Snapshot, error) {
	q := pgdb.New(s.conn)

	g, err := q.GetGraph(ctx, graphID)
	if err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return nil, store.ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to load graph: %w", err)
	}

	var rows snapshotRows
	if rows.entities, err = q.ListGraphEntities(ctx, graphID); err != nil {
		return nil, fmt.Errorf("failed to load entities: %w", err)
	}
	if rows.triples, err = q.ListGraphTriples(ctx, graphID); err != nil {
		return nil, fmt.Errorf("failed to load triples: %w", err)
	}
	if rows.provenance, err = q.ListTripleProvenance(ctx, graphID); err != nil {
		return nil, fmt.Errorf("failed to load provenance: %w", err)
	}
	return rowsToSnapshot(g, rows)
}

func (s *GraphDBStorage) DeleteGraph(ctx context.Context, graphID string) error {
	return s.withTx(ctx, func(qtx *pgdb.Queries) error {
		return qtx.DeleteGraph(ctx, graphID)
	})
}

// SaveSpace stores space as the current embedding space of graphID. The
// graph must have been saved before.
func (s *GraphDBStorage) SaveSpace(ctx context.Context, graphID string, space *embedding.Space) error {
	if space == nil {
		return fmt.Errorf("embedding space is nil")
	}
	entities, relations := spaceToRows(graphID, space)
	heldOut, err := heldOutToJSON(space.HeldOut)
	if err != nil {
		return fmt.Errorf("failed to encode held-out triples: %w", err)
	}

	return s.withTx(ctx, func(qtx *pgdb.Queries) error {
		if err := qtx.UpsertEmbeddingSpace(ctx, pgdb.UpsertEmbeddingSpaceParams{
			GraphID:    graphID,
			Version:    int64(space.Version),
			Norm:       string(space.Norm),
			Dimensions: int32(space.Dimensions),
			Loss:       space.Loss,
			Epochs:     int32(space.Epochs),
			TrainedAt:  space.TrainedAt,
			HeldOut:    heldOut,
		}); err != nil {
			return fmt.Errorf("failed to upsert embedding space: %w", err)
		}
		if err := qtx.DeleteEntityEmbeddings(ctx, graphID); err != nil {
			return err
		}
		if err := qtx.DeleteRelationEmbeddings(ctx, graphID); err != nil {
			return err
		}
		if _, err := qtx.CopyEntityEmbeddings(ctx, entities); err != nil {
			return fmt.Errorf("failed to copy entity embeddings: %w", err)
		}
		if _, err := qtx.CopyRelationEmbeddings(ctx, relations); err != nil {
			return fmt.Errorf("failed to copy relation embeddings: %w", err)
		}
		return nil
	})
}

// LoadSpace returns the stored embedding space of graphID, or nil without
// error when none was saved.
func (s *GraphDBStorage) LoadSpace(ctx context.Context, graphID string) (*embedding.Space, error) {
	q := pgdb.New(s.conn)

	meta, err := q.GetEmbeddingSpace(ctx, graphID)
	if err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load embedding space: %w", err)
	}
	entities, err := q.ListEntityEmbeddings(ctx, graphID)
	if err != nil {
		return nil, fmt.Errorf("failed to load entity embeddings: %w", err)
	}
	relations, err := q.ListRelationEmbeddings(ctx, graphID)
	if err != nil {
		return nil, fmt.Errorf("failed to load relation embeddings: %w", err)
	}
	return rowsToSpace(meta, entities, relations)
}

// SaveReport stores report as JSON and returns its row id.
func (s *GraphDBStorage) SaveReport(ctx context.Context, graphID, kind, refID string, version uint64, report any) (int64, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal %s report: %w", kind, err)
	}
	id, err := pgdb.New(s.conn).InsertReport(ctx, pgdb.InsertReportParams{
		GraphID: graphID,
		Kind:    kind,
		RefID:   refID,
		Version: int64(version),
		Report:  data,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s report: %w", kind, err)
	}
	return id, nil
}

// LatestReport decodes the newest report of kind into out.
func (s *GraphDBStorage) LatestReport(ctx context.Context, graphID, kind string, out any) error {
	row, err := pgdb.New(s.conn).GetLatestReport(ctx, pgdb.GetLatestReportParams{GraphID: graphID, Kind: kind})
	if err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return store.ErrNoReport
		}
		return fmt.Errorf("failed to load %s report: %w", kind, err)
	}
	return json.Unmarshal(row.Report, out)
}
