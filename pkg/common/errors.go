package common

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrUnknownEntity = errors.New("unknown entity")
)

// InputError reports a malformed raw triple. It is raised at ingestion and
// only rejects the offending triple, never the rest of the batch.
type InputError struct {
	Index  int    `json:"index"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid raw triple %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("invalid raw triple %d: field %s: %s", e.Index, e.Field, e.Reason)
}

// SchemaGapError is a warning for a predicate without a schema entry. Such
// predicates are treated as non-exclusive.
type SchemaGapError struct {
	Predicate string
}

func (e *SchemaGapError) Error() string {
	return fmt.Sprintf("predicate %q is not declared in the predicate schema", e.Predicate)
}

// InsufficientDataError is returned as a warning when the graph is too small
// to train embeddings.
type InsufficientDataError struct {
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d active triples, need at least %d", e.Have, e.Need)
}

// ConsistencyFault signals a broken store invariant. It is fatal for the
// running operation and carries the offending triple.
type ConsistencyFault struct {
	TripleID TripleID
	Reason   string
}

func (e *ConsistencyFault) Error() string {
	return fmt.Sprintf("consistency fault on triple %d: %s", e.TripleID, e.Reason)
}

// IsConsistencyFault reports whether err wraps a ConsistencyFault.
func IsConsistencyFault(err error) bool {
	var fault *ConsistencyFault
	return errors.As(err, &fault)
}
