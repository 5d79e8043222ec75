package types

// RetrievalMode identifies which backend produced a hit.
type RetrievalMode string

const (
	ModeDense  RetrievalMode = "dense"
	ModeSparse RetrievalMode = "sparse"
)

// SearchHit is a single result from one retrieval mode. Rank is 1-based
// within the mode's result list. Score carries the backend's native scale
// (cosine similarity for dense, BM25 for sparse) and is never compared
// across modes.
type SearchHit struct {
	Chunk *Chunk        `json:"chunk"`
	Rank  int           `json:"rank"`
	Score float64       `json:"score"`
	Mode  RetrievalMode `json:"mode"`
}

// FusedHit is a deduplicated candidate after reciprocal-rank fusion. It
// keeps per-mode provenance so downstream stages can explain the pick.
type FusedHit struct {
	Chunk    *Chunk  `json:"chunk"`
	RRFScore float64 `json:"rrf_score"`

	// Score is the working relevance used for final ordering. It starts as
	// RRFScore and is replaced by the normalized cross-encoder score when
	// reranking succeeds.
	Score float64 `json:"score"`

	// Modes lists the backends that returned this chunk, in mode order.
	Modes []RetrievalMode `json:"modes"`

	// ModeRanks and ModeScores record the 1-based rank and native score the
	// chunk held in each contributing mode.
	ModeRanks  map[RetrievalMode]int     `json:"mode_ranks"`
	ModeScores map[RetrievalMode]float64 `json:"mode_scores"`

	// Reranked reports whether Score came from the cross-encoder.
	Reranked bool `json:"reranked"`
}

// HasMode reports whether the given mode contributed this hit.
func (f *FusedHit) HasMode(m RetrievalMode) bool {
	for _, mode := range f.Modes {
		if mode == m {
			return true
		}
	}
	return false
}

// BestRank returns the lowest 1-based rank the chunk held across modes.
// Used as a fusion tie-break: a chunk ranked #1 anywhere beats one whose
// best showing was #5.
func (f *FusedHit) BestRank() int {
	best := 0
	for _, r := range f.ModeRanks {
		if best == 0 || r < best {
			best = r
		}
	}
	return best
}

// ContextChunk is a final, consumer-facing result. Chunk fields are
// flattened into the JSON encoding alongside the selection metadata.
type ContextChunk struct {
	Chunk

	// Rank is the 1-based position in the returned context.
	Rank int `json:"rank"`

	// Score is the final relevance in [0, 1] when reranked, otherwise the
	// fusion score.
	Score float64 `json:"score"`

	// WhyPicked explains the selection: contributing modes with their ranks,
	// the rerank score when applied, and diversity annotations.
	WhyPicked string `json:"why_picked"`
}

// Validate checks result invariants before returning to callers.
func (cc *ContextChunk) Validate() error {
	if cc.Rank < 1 {
		return ErrInvalidRank
	}
	return cc.Chunk.Validate()
}
