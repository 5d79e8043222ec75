package sparse

import (
	"context"
	"math"
	"sort"

	"github.com/dmribeiro/contexto-mcp/internal/textproc"
	"github.com/dmribeiro/contexto-mcp/pkg/types"
)

// Search runs BM25 over the current snapshot and returns up to topK hits
// ordered by score. Filters restrict the candidate set before scoring.
// Must-have terms boost matching candidates but never exclude anyone; the
// terms act as evidence, not as a hard AND.
//
// An empty index, an empty query, or a query of only stop words yields an
// empty result, not an error.
func (idx *Index) Search(ctx context.Context, query string, mustHave []string, filters *types.Filters, topK int) ([]types.SearchHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	snap := idx.snap.Load()
	if len(snap.docs) == 0 {
		return nil, nil
	}

	terms := textproc.Tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	// Pre-filter: resolve the allowed candidate set before any scoring.
	allowed := snap.allowedDocs(filters)
	if allowed != nil && len(allowed) == 0 {
		return nil, nil
	}

	scores := snap.score(terms, allowed)
	if idx.boost > 1 && len(mustHave) > 0 {
		snap.applyMustHaveBoost(scores, mustHave, idx.boost)
	}

	candidates := make([]int, 0, len(scores))
	for doc := range scores {
		candidates = append(candidates, doc)
	}

	// Deterministic order: score desc, then chunk ordinal, then ID.
	sort.Slice(candidates, func(i, j int) bool {
		di, dj := candidates[i], candidates[j]
		if scores[di] != scores[dj] {
			return scores[di] > scores[dj]
		}
		ci, cj := snap.docs[di].chunk, snap.docs[dj].chunk
		if ci.ChunkID != cj.ChunkID {
			return ci.ChunkID < cj.ChunkID
		}
		return ci.ID < cj.ID
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	hits := make([]types.SearchHit, len(candidates))
	for rank, doc := range candidates {
		hits[rank] = types.SearchHit{
			Chunk: snap.docs[doc].chunk,
			Rank:  rank + 1,
			Score: scores[doc],
			Mode:  types.ModeSparse,
		}
	}
	return hits, nil
}

// allowedDocs returns the set of document indexes matching the filters, or
// nil when no filter is set (meaning all documents are allowed).
func (s *snapshot) allowedDocs(filters *types.Filters) map[int]bool {
	if filters.IsZero() {
		return nil
	}
	allowed := make(map[int]bool)
	for i, d := range s.docs {
		if filters.Matches(d.chunk) {
			allowed[i] = true
		}
	}
	return allowed
}

// score computes BM25 Okapi scores for every allowed document matching at
// least one term. Only strictly positive scores are kept.
func (s *snapshot) score(terms []string, allowed map[int]bool) map[int]float64 {
	n := float64(len(s.docs))
	scores := make(map[int]float64)

	for _, term := range terms {
		plist, ok := s.postings[term]
		if !ok {
			continue
		}

		df := float64(len(plist))
		idf := math.Log((n-df+0.5)/(df+0.5) + 1)

		for _, p := range plist {
			if allowed != nil && !allowed[p.doc] {
				continue
			}
			tf := float64(p.tf)
			norm := 1 - s.b + s.b*float64(s.docs[p.doc].length)/s.avgLen
			scores[p.doc] += idf * tf * (s.k1 + 1) / (tf + s.k1*norm)
		}
	}

	for doc, sc := range scores {
		if sc <= 0 {
			delete(scores, doc)
		}
	}
	return scores
}

// applyMustHaveBoost multiplies each already-scored candidate once per
// must-have term it contains.
func (s *snapshot) applyMustHaveBoost(scores map[int]float64, mustHave []string, boost float64) {
	for _, raw := range mustHave {
		term := textproc.Normalize(raw)
		for _, p := range s.postings[term] {
			if _, scored := scores[p.doc]; scored {
				scores[p.doc] *= boost
			}
		}
	}
}
