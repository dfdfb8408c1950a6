package queue

import (
	"time"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
)

// RawTriplesMsg is consumed from the raw triples queue. A body that is a
// bare JSON array is read as the Triples field.
type RawTriplesMsg struct {
	GraphID       string             `json:"graph_id,omitempty"`
	CorrelationID string             `json:"correlation_id,omitempty"`
	Triples       []common.RawTriple `json:"triples"`
}

// CorrectionMsg asks for a correction pass, optionally followed by
// retraining the embedding space.
type CorrectionMsg struct {
	GraphID       string `json:"graph_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Train         bool   `json:"train,omitempty"`
}

// CorrectedEvent is published on the corrected topic after every pass.
type CorrectedEvent struct {
	GraphID          string    `json:"graph_id"`
	CorrelationID    string    `json:"correlation_id,omitempty"`
	PassID           string    `json:"pass_id"`
	Version          uint64    `json:"version"`
	DuplicatesMerged int       `json:"duplicates_merged"`
	Conflicts        int       `json:"conflicts"`
	Superseded       int       `json:"superseded"`
	Inferred         int       `json:"inferred"`
	SchemaGaps       []string  `json:"schema_gaps,omitempty"`
	SpaceVersion     uint64    `json:"space_version,omitempty"`
	CorrectedAt      time.Time `json:"corrected_at"`
}
