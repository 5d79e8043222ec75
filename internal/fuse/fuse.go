// Package fuse merges per-mode search results with reciprocal rank fusion.
package fuse

import (
	"sort"

	"github.com/dmribeiro/contexto-mcp/pkg/types"
)

// ModeList is one retrieval mode's ranked hits, best first.
type ModeList struct {
	Mode types.RetrievalMode
	Hits []types.SearchHit
}

// Fuser combines mode lists using RRF: each appearance contributes
// 1/(k + rank) with 1-based ranks, so agreement between modes compounds
// while native score scales never mix.
type Fuser struct {
	k float64
}

// New creates a fuser; k <= 0 selects the standard constant of 60.
func New(k float64) *Fuser {
	if k <= 0 {
		k = types.DefaultRRFK
	}
	return &Fuser{k: k}
}

// K returns the fusion constant in use.
func (f *Fuser) K() float64 { return f.k }

// Fuse deduplicates by chunk identity, accumulates RRF scores and returns
// at most topN candidates. Ordering is deterministic: score descending,
// then more contributing modes, then the better single-mode rank, then
// first-seen input order.
func (f *Fuser) Fuse(lists []ModeList, topN int) []types.FusedHit {
	type candidate struct {
		hit types.FusedHit
		seq int
	}

	byKey := make(map[string]*candidate)
	order := make([]*candidate, 0)

	for _, list := range lists {
		for i, hit := range list.Hits {
			if hit.Chunk == nil {
				continue
			}
			rank := i + 1
			key := hit.Chunk.Key()

			cand, ok := byKey[key]
			if !ok {
				cand = &candidate{
					hit: types.FusedHit{
						Chunk:      hit.Chunk,
						ModeRanks:  make(map[types.RetrievalMode]int),
						ModeScores: make(map[types.RetrievalMode]float64),
					},
					seq: len(order),
				}
				byKey[key] = cand
				order = append(order, cand)
			}

			// A duplicate within one mode list keeps its best rank.
			if _, seen := cand.hit.ModeRanks[list.Mode]; seen {
				continue
			}
			cand.hit.Modes = append(cand.hit.Modes, list.Mode)
			cand.hit.ModeRanks[list.Mode] = rank
			cand.hit.ModeScores[list.Mode] = hit.Score
			cand.hit.RRFScore += 1.0 / (f.k + float64(rank))
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.hit.RRFScore != b.hit.RRFScore {
			return a.hit.RRFScore > b.hit.RRFScore
		}
		if len(a.hit.Modes) != len(b.hit.Modes) {
			return len(a.hit.Modes) > len(b.hit.Modes)
		}
		if ar, br := a.hit.BestRank(), b.hit.BestRank(); ar != br {
			return ar < br
		}
		return a.seq < b.seq
	})

	if topN > 0 && len(order) > topN {
		order = order[:topN]
	}

	fused := make([]types.FusedHit, len(order))
	for i, cand := range order {
		cand.hit.Score = cand.hit.RRFScore
		fused[i] = cand.hit
	}
	return fused
}
