package types

import "math"

// Default retrieval knobs. Zero-valued fields resolve to these.
const (
	DefaultDenseTopK  = 60
	DefaultSparseTopK = 60
	DefaultFusedTopK  = 80
	DefaultRerankTopK = 12

	DefaultMaxPerDoc = 3
	DefaultMinDocs   = 3

	DefaultRRFK = 60.0
)

// TopKConfig sets candidate counts per pipeline stage.
type TopKConfig struct {
	Dense  int `json:"dense"`
	Sparse int `json:"sparse"`
	Fused  int `json:"fused"`
	Rerank int `json:"rerank"`
}

// WithDefaults returns a copy with zero fields replaced by defaults.
func (c TopKConfig) WithDefaults() TopKConfig {
	if c.Dense <= 0 {
		c.Dense = DefaultDenseTopK
	}
	if c.Sparse <= 0 {
		c.Sparse = DefaultSparseTopK
	}
	if c.Fused <= 0 {
		c.Fused = DefaultFusedTopK
	}
	if c.Rerank <= 0 {
		c.Rerank = DefaultRerankTopK
	}
	return c
}

// Scale widens the per-mode candidate counts by the given factor,
// rounding up. The fused and rerank sizes stay fixed so a retry casts a
// wider net without growing the cross-encoder workload.
func (c TopKConfig) Scale(factor float64) TopKConfig {
	c.Dense = scaleUp(c.Dense, factor)
	c.Sparse = scaleUp(c.Sparse, factor)
	return c
}

func scaleUp(n int, factor float64) int {
	scaled := int(math.Ceil(float64(n) * factor))
	if scaled <= n {
		return n + 1
	}
	return scaled
}

// DiversityConfig bounds document dominance in the final context.
type DiversityConfig struct {
	// MaxPerDoc caps chunks accepted per document during the greedy pass.
	MaxPerDoc int `json:"max_per_doc"`

	// MinDocs is the minimum distinct documents to aim for; the rescue pass
	// may exceed MaxPerDoc ordering constraints to reach it when enough
	// distinct documents exist among the candidates.
	MinDocs int `json:"min_docs"`
}

// WithDefaults returns a copy with zero fields replaced by defaults.
func (c DiversityConfig) WithDefaults() DiversityConfig {
	if c.MaxPerDoc <= 0 {
		c.MaxPerDoc = DefaultMaxPerDoc
	}
	if c.MinDocs <= 0 {
		c.MinDocs = DefaultMinDocs
	}
	return c
}
