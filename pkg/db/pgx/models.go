package pgx

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

type Graph struct {
	GraphID   string
	Version   int64
	TakenAt   time.Time
	UpdatedAt time.Time
}

type GraphEntity struct {
	GraphID    string
	EntityID   int64
	Label      string
	Type       string
	Aliases    []string
	Mentions   int32
	CreatedAt  time.Time
	RedirectTo int64
}

type GraphTriple struct {
	GraphID      string
	TripleID     int64
	SubjectID    int64
	Predicate    string
	ObjectID     int64
	Confidence   float64
	Ts           time.Time
	Status       string
	SupersededBy int64
	Inferred     bool
}

type TripleProvenance struct {
	GraphID      string
	TripleID     int64
	Position     int32
	PublicID     string
	SourceTurnID string
	Confidence   float64
	Ts           time.Time
	SourceText   string
	Inferred     bool
}

type EmbeddingSpace struct {
	GraphID    string
	Version    int64
	Norm       string
	Dimensions int32
	Loss       float64
	Epochs     int32
	TrainedAt  time.Time
	HeldOut    []byte
}

type EntityEmbedding struct {
	GraphID   string
	EntityID  int64
	Embedding pgvector.Vector
}

type RelationEmbedding struct {
	GraphID   string
	Predicate string
	Embedding pgvector.Vector
}

type CorrectionReport struct {
	ID        int64
	GraphID   string
	Kind      string
	RefID     string
	Version   int64
	Report    []byte
	CreatedAt time.Time
}
