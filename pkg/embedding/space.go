package embedding

import (
	"math"
	"sort"
	"time"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
)

// Norm selects the distance TransE minimizes for true triples.
type Norm string

const (
	L1 Norm = "l1"
	L2 Norm = "l2"
)

// Space holds trained entity and relation vectors. It is immutable once
// returned by the trainer and may be shared between goroutines.
type Space struct {
	// Version is the store version the space was trained on.
	Version    uint64                        `json:"version"`
	Norm       Norm                          `json:"norm"`
	Dimensions int                           `json:"dimensions"`
	Entities   map[common.EntityID][]float64 `json:"entities"`
	Relations  map[string][]float64          `json:"relations"`
	Loss       float64                       `json:"loss"`
	Epochs     int                           `json:"epochs"`
	TrainedAt  time.Time                     `json:"trained_at"`

	// HeldOut lists the active triples that were kept out of training, in
	// snapshot order.
	HeldOut []common.TripleKey `json:"held_out,omitempty"`
}

// Stale reports whether the space no longer matches the store version. A
// nil space is always stale.
func (s *Space) Stale(version uint64) bool {
	return s == nil || s.Version != version
}

// Distance returns ||h + r - t|| under the space's norm. It reports false
// when any part of the triple is unknown to the space.
func (s *Space) Distance(head common.EntityID, relation string, tail common.EntityID) (float64, bool) {
	if s == nil {
		return 0, false
	}
	h, ok := s.Entities[head]
	if !ok {
		return 0, false
	}
	r, ok := s.Relations[relation]
	if !ok {
		return 0, false
	}
	t, ok := s.Entities[tail]
	if !ok {
		return 0, false
	}
	return distance(s.Norm, h, r, t), true
}

// Score is the plausibility of a triple, higher is better.
func (s *Space) Score(head common.EntityID, relation string, tail common.EntityID) (float64, bool) {
	d, ok := s.Distance(head, relation, tail)
	return -d, ok
}

func distance(norm Norm, h, r, t []float64) float64 {
	var sum float64
	for i := range h {
		d := h[i] + r[i] - t[i]
		if norm == L1 {
			sum += math.Abs(d)
		} else {
			sum += d * d
		}
	}
	if norm == L1 {
		return sum
	}
	return math.Sqrt(sum)
}

// Neighbour is an entity close to another in the embedding space.
type Neighbour struct {
	ID       common.EntityID `json:"id"`
	Distance float64         `json:"distance"`
}

// Nearest returns up to k entities closest to id under the space's norm,
// nearest first and ties by id. It reports false when id has no vector.
func (s *Space) Nearest(id common.EntityID, k int) ([]Neighbour, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.Entities[id]
	if !ok {
		return nil, false
	}
	out := make([]Neighbour, 0, len(s.Entities))
	for other, w := range s.Entities {
		if other == id {
			continue
		}
		out = append(out, Neighbour{ID: other, Distance: vectorDistance(s.Norm, v, w)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].ID < out[j].ID
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, true
}

func vectorDistance(norm Norm, a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		if norm == L1 {
			sum += math.Abs(d)
		} else {
			sum += d * d
		}
	}
	if norm == L1 {
		return sum
	}
	return math.Sqrt(sum)
}
