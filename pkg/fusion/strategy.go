package fusion

import (
	"sort"

	"github.com/OFFIS-RIT/kiwi/kgcorrect/pkg/common"
)

// Strategy names the rule that picked a winner.
type Strategy string

const (
	StrategyVoting      Strategy = "voting"
	StrategyRecency     Strategy = "recency"
	StrategyReliability Strategy = "reliability"
	StrategyTiebreak    Strategy = "tiebreak"
)

const epsilon = 1e-9

// strategyFunc picks a winner from a conflict set or declines. Strategies
// are pure; they never touch the store and only compare provenance
// evidence, never a confidence fused by an earlier pass.
type strategyFunc func(p Params, set []common.Triple) (common.Triple, bool)

type namedStrategy struct {
	name Strategy
	fn   strategyFunc
}

// strategies run in order, the first that returns a winner decides.
var strategies = []namedStrategy{
	{StrategyVoting, voting},
	{StrategyRecency, recency},
	{StrategyReliability, reliability},
	{StrategyTiebreak, tiebreak},
}

// voting picks the most confident triple when it leads every other member
// by more than the confidence margin.
func voting(p Params, set []common.Triple) (common.Triple, bool) {
	if len(set) == 1 {
		return set[0], true
	}
	ranked := make([]common.Triple, len(set))
	copy(ranked, set)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].EvidenceConfidence() > ranked[j].EvidenceConfidence()
	})
	if ranked[0].EvidenceConfidence()-ranked[1].EvidenceConfidence() > p.ConfidenceMargin+epsilon {
		return ranked[0], true
	}
	return common.Triple{}, false
}

// contenders returns the members whose confidence is within the margin of
// the top confidence.
func contenders(p Params, set []common.Triple) []common.Triple {
	top := set[0].EvidenceConfidence()
	for _, t := range set[1:] {
		top = max(top, t.EvidenceConfidence())
	}
	out := make([]common.Triple, 0, len(set))
	for _, t := range set {
		if top-t.EvidenceConfidence() <= p.ConfidenceMargin+epsilon {
			out = append(out, t)
		}
	}
	return out
}

// recency picks the contender with the unique latest timestamp.
func recency(p Params, set []common.Triple) (common.Triple, bool) {
	cs := contenders(p, set)
	best := cs[0]
	unique := true
	for _, t := range cs[1:] {
		switch {
		case t.Timestamp.After(best.Timestamp):
			best, unique = t, true
		case t.Timestamp.Equal(best.Timestamp):
			unique = false
		}
	}
	return best, unique
}

// reliability picks the contender with the unique best confidence-weighted
// count of independent source turns. It only applies when some contender is
// corroborated by at least two turns.
func reliability(p Params, set []common.Triple) (common.Triple, bool) {
	cs := contenders(p, set)
	corroborated := false
	var (
		best      common.Triple
		bestScore = -1.0
		unique    bool
	)
	for _, t := range cs {
		turns := t.SourceTurns()
		if len(turns) >= 2 {
			corroborated = true
		}
		score := 0.0
		for _, c := range turns {
			score += c
		}
		switch {
		case score > bestScore+epsilon:
			best, bestScore, unique = t, score, true
		case score > bestScore-epsilon:
			unique = false
		}
	}
	if !corroborated || !unique {
		return common.Triple{}, false
	}
	return best, true
}

// tiebreak always decides: smallest object id, then predicate, then triple
// id. Entity ids follow creation order, so the earliest object wins.
func tiebreak(p Params, set []common.Triple) (common.Triple, bool) {
	cs := contenders(p, set)
	best := cs[0]
	for _, t := range cs[1:] {
		if less(t, best) {
			best = t
		}
	}
	return best, true
}

func less(a, b common.Triple) bool {
	if a.Object != b.Object {
		return a.Object < b.Object
	}
	if a.Predicate != b.Predicate {
		return a.Predicate < b.Predicate
	}
	return a.ID < b.ID
}

// fusedConfidence boosts the winner's provenance evidence by the
// corroboration bonus for every independent source turn beyond the first.
// It is derived from provenance alone, so winning again without new
// turns leaves it unchanged.
func fusedConfidence(p Params, winner common.Triple) float64 {
	own := winner.EvidenceConfidence()
	turns := len(winner.SourceTurns())
	return min(1, max(own, own+p.CorroborationBonus*float64(turns-1)))
}
