package evaluation

// Diff is after minus before for every metric. Link prediction deltas are
// only set when both reports carry link prediction results.
type Diff struct {
	MRR    *float64 `json:"mrr,omitempty"`
	Hits1  *float64 `json:"hits_at_1,omitempty"`
	Hits3  *float64 `json:"hits_at_3,omitempty"`
	Hits10 *float64 `json:"hits_at_10,omitempty"`

	Entities      int     `json:"entities"`
	Predicates    int     `json:"predicates"`
	ActiveTriples int     `json:"active_triples"`
	Density       float64 `json:"density"`
	MeanDegree    float64 `json:"mean_degree"`
	Coverage      float64 `json:"coverage"`
	Completeness  float64 `json:"completeness"`
}

// Improved reports whether link prediction got better without losing
// schema coverage.
func (d Diff) Improved() bool {
	return d.MRR != nil && *d.MRR > 0 && d.Coverage >= 0
}

// Compare returns the change from before to after.
func Compare(before, after *Report) Diff {
	d := Diff{
		Entities:      after.Stats.Entities - before.Stats.Entities,
		Predicates:    after.Stats.Predicates - before.Stats.Predicates,
		ActiveTriples: after.Stats.ActiveTriples - before.Stats.ActiveTriples,
		Density:       after.Stats.Density - before.Stats.Density,
		MeanDegree:    after.Stats.Degree.Mean - before.Stats.Degree.Mean,
		Coverage:      after.Coverage - before.Coverage,
		Completeness:  after.Completeness - before.Completeness,
	}
	if b, a := before.LinkPrediction, after.LinkPrediction; b != nil && a != nil {
		d.MRR = delta(a.MRR, b.MRR)
		d.Hits1 = delta(a.Hits1, b.Hits1)
		d.Hits3 = delta(a.Hits3, b.Hits3)
		d.Hits10 = delta(a.Hits10, b.Hits10)
	}
	return d
}

func delta(after, before float64) *float64 {
	v := after - before
	return &v
}
