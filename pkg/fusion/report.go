package fusion

import (
	"sort"
	"time"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/graph"
)

// Report summarizes one correction pass.
type Report struct {
	PassID            string              `json:"pass_id"`
	Version           uint64              `json:"version"`
	DuplicatesMerged  int                 `json:"duplicates_merged"`
	ConflictsResolved map[Strategy]int    `json:"conflicts_resolved"`
	TotalSuperseded   int                 `json:"total_superseded"`
	Inferred          int                 `json:"inferred"`
	SchemaGaps        []string            `json:"schema_gaps"`
	Decisions         []Decision          `json:"decisions"`
	Active            []common.TripleView `json:"active"`
	Duration          time.Duration       `json:"duration"`
}

func newReport(passID string) *Report {
	r := &Report{
		PassID:            passID,
		ConflictsResolved: make(map[Strategy]int, len(strategies)),
		SchemaGaps:        []string{},
		Decisions:         []Decision{},
	}
	for _, s := range strategies {
		r.ConflictsResolved[s.name] = 0
	}
	return r
}

func (r *Report) finish(store *graph.TripleStore, gaps map[string]struct{}, d time.Duration) {
	for p := range gaps {
		r.SchemaGaps = append(r.SchemaGaps, p)
	}
	sort.Strings(r.SchemaGaps)
	r.Active = store.ActiveViews()
	r.Version = store.Version()
	r.Duration = d
}

// Conflicts is the total number of conflict sets decided in the pass.
func (r *Report) Conflicts() int {
	n := 0
	for _, c := range r.ConflictsResolved {
		n += c
	}
	return n
}

// Changed reports whether the pass modified the graph.
func (r *Report) Changed() bool {
	return r.DuplicatesMerged > 0 || r.TotalSuperseded > 0 || r.Inferred > 0
}
