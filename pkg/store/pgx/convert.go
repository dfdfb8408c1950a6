package pgx

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/internal/util"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
	pgdb "github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/db/pgx"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/embedding"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/graph"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/store"

	"github.com/pgvector/pgvector-go"
)

type snapshotRows struct {
	entities   []pgdb.GraphEntity
	triples    []pgdb.GraphTriple
	provenance []pgdb.TripleProvenance
}

func snapshotToRows(graphID string, snap *graph.Snapshot) snapshotRows {
	rows := snapshotRows{
		entities: make([]pgdb.GraphEntity, 0, len(snap.Entities)),
		triples:  make([]pgdb.GraphTriple, 0, len(snap.Triples)),
	}
	for _, e := range snap.Entities {
		aliases := make([]string, 0, len(e.Aliases))
		for _, a := range e.Aliases {
			aliases = append(aliases, util.SanitizePostgresText(a))
		}
		rows.entities = append(rows.entities, pgdb.GraphEntity{
			GraphID:    graphID,
			EntityID:   int64(e.ID),
			Label:      util.SanitizePostgresText(e.Label),
			Type:       util.SanitizePostgresText(e.Type),
			Aliases:    store.Dedupe(aliases),
			Mentions:   int32(e.Mentions),
			CreatedAt:  e.CreatedAt,
			RedirectTo: int64(e.RedirectTo),
		})
	}
	for _, t := range snap.Triples {
		rows.triples = append(rows.triples, pgdb.GraphTriple{
			GraphID:      graphID,
			TripleID:     int64(t.ID),
			SubjectID:    int64(t.Subject),
			Predicate:    t.Predicate,
			ObjectID:     int64(t.Object),
			Confidence:   t.Confidence,
			Ts:           t.Timestamp,
			Status:       string(t.Status),
			SupersededBy: int64(t.SupersededBy),
			Inferred:     t.Inferred,
		})
		for i, p := range t.Provenance {
			rows.provenance = append(rows.provenance, pgdb.TripleProvenance{
				GraphID:      graphID,
				TripleID:     int64(t.ID),
				Position:     int32(i),
				PublicID:     p.ID,
				SourceTurnID: util.SanitizePostgresText(p.SourceTurnID),
				Confidence:   p.Confidence,
				Ts:           p.Timestamp,
				SourceText:   util.SanitizePostgresText(p.SourceText),
				Inferred:     p.Inferred,
			})
		}
	}
	return rows
}

// rowsToSnapshot rebuilds a snapshot. Outgoing and incoming ids are derived
// from the triples because they are not stored.
func rowsToSnapshot(g pgdb.Graph, rows snapshotRows) (*graph.Snapshot, error) {
	snap := &graph.Snapshot{
		Version:  uint64(g.Version),
		TakenAt:  g.TakenAt,
		Entities: make([]graph.EntityRecord, 0, len(rows.entities)),
		Triples:  make([]common.Triple, 0, len(rows.triples)),
	}
	for _, e := range rows.entities {
		snap.Entities = append(snap.Entities, graph.EntityRecord{
			Entity: common.Entity{
				ID:        common.EntityID(e.EntityID),
				Label:     e.Label,
				Type:      e.Type,
				Aliases:   e.Aliases,
				Mentions:  int(e.Mentions),
				CreatedAt: e.CreatedAt,
			},
			RedirectTo: common.EntityID(e.RedirectTo),
		})
	}

	byTriple := make(map[int64][]common.Provenance, len(rows.triples))
	for _, p := range rows.provenance {
		byTriple[p.TripleID] = append(byTriple[p.TripleID], common.Provenance{
			ID:           p.PublicID,
			SourceTurnID: p.SourceTurnID,
			Confidence:   p.Confidence,
			Timestamp:    p.Ts,
			SourceText:   p.SourceText,
			Inferred:     p.Inferred,
		})
	}

	for _, t := range rows.triples {
		status := common.TripleStatus(t.Status)
		if status != common.StatusActive && status != common.StatusSuperseded {
			return nil, fmt.Errorf("triple %d has unknown status %q", t.TripleID, t.Status)
		}
		tr := common.Triple{
			ID:           common.TripleID(t.TripleID),
			Subject:      common.EntityID(t.SubjectID),
			Predicate:    t.Predicate,
			Object:       common.EntityID(t.ObjectID),
			Confidence:   t.Confidence,
			Timestamp:    t.Ts,
			Status:       status,
			SupersededBy: common.TripleID(t.SupersededBy),
			Inferred:     t.Inferred,
			Provenance:   byTriple[t.TripleID],
		}
		snap.Triples = append(snap.Triples, tr)

		if s := tr.Subject; s >= 0 && int(s) < len(snap.Entities) {
			snap.Entities[s].Outgoing = append(snap.Entities[s].Outgoing, tr.ID)
		}
		if o := tr.Object; o >= 0 && int(o) < len(snap.Entities) {
			snap.Entities[o].Incoming = append(snap.Entities[o].Incoming, tr.ID)
		}
	}
	return snap, nil
}

func spaceToRows(graphID string, space *embedding.Space) ([]pgdb.EntityEmbedding, []pgdb.RelationEmbedding) {
	ids := make([]common.EntityID, 0, len(space.Entities))
	for id := range space.Entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	entities := make([]pgdb.EntityEmbedding, 0, len(ids))
	for _, id := range ids {
		entities = append(entities, pgdb.EntityEmbedding{
			GraphID:   graphID,
			EntityID:  int64(id),
			Embedding: pgvector.NewVector(store.ToFloat32(space.Entities[id])),
		})
	}

	preds := make([]string, 0, len(space.Relations))
	for p := range space.Relations {
		preds = append(preds, p)
	}
	sort.Strings(preds)
	relations := make([]pgdb.RelationEmbedding, 0, len(preds))
	for _, p := range preds {
		relations = append(relations, pgdb.RelationEmbedding{
			GraphID:   graphID,
			Predicate: p,
			Embedding: pgvector.NewVector(store.ToFloat32(space.Relations[p])),
		})
	}
	return entities, relations
}

func heldOutToJSON(keys []common.TripleKey) ([]byte, error) {
	if len(keys) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(keys)
}

func rowsToSpace(meta pgdb.EmbeddingSpace, entities []pgdb.EntityEmbedding, relations []pgdb.RelationEmbedding) (*embedding.Space, error) {
	space := &embedding.Space{
		Version:    uint64(meta.Version),
		Norm:       embedding.Norm(meta.Norm),
		Dimensions: int(meta.Dimensions),
		Entities:   make(map[common.EntityID][]float64, len(entities)),
		Relations:  make(map[string][]float64, len(relations)),
		Loss:       meta.Loss,
		Epochs:     int(meta.Epochs),
		TrainedAt:  meta.TrainedAt,
	}
	for _, e := range entities {
		space.Entities[common.EntityID(e.EntityID)] = store.ToFloat64(e.Embedding.Slice())
	}
	for _, r := range relations {
		space.Relations[r.Predicate] = store.ToFloat64(r.Embedding.Slice())
	}
	if len(meta.HeldOut) > 0 {
		var keys []common.TripleKey
		if err := json.Unmarshal(meta.HeldOut, &keys); err != nil {
			return nil, fmt.Errorf("failed to decode held-out triples: %w", err)
		}
		if len(keys) > 0 {
			space.HeldOut = keys
		}
	}
	return space, nil
}
