package sparse

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/dmribeiro/contexto-mcp/internal/textproc"
	"github.com/dmribeiro/contexto-mcp/pkg/types"
)

// Default BM25 Okapi parameters.
const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// Config tunes the index.
type Config struct {
	// K1 controls term-frequency saturation. Sensible values are 1.2-1.5.
	K1 float64

	// B controls document-length normalization in [0, 1].
	B float64

	// MustHaveBoost multiplies a candidate's score once per matched
	// must-have term. Values <= 1 disable boosting.
	MustHaveBoost float64

	Logger *logrus.Logger
}

// document is one indexed chunk with its derived token statistics.
type document struct {
	chunk  *types.Chunk
	tokens []string
	length int
}

// posting records one document's occurrences of a term.
type posting struct {
	doc int // index into snapshot.docs
	tf  int
}

// snapshot is an immutable view of the index. Readers score against a
// snapshot while writers build and swap in a replacement, so searches never
// observe a half-updated corpus.
type snapshot struct {
	docs     []*document
	byID     map[string]int
	postings map[string][]posting
	avgLen   float64
	k1, b    float64
}

// Index is an in-memory BM25 index over chunks. Writes replace whole
// documents keyed by chunk ID and are safe to run concurrently with
// searches.
type Index struct {
	mu     sync.Mutex // serializes writers
	snap   atomic.Pointer[snapshot]
	k1, b  float64
	boost  float64
	logger *logrus.Logger
}

// New creates an empty index. Zero config fields get defaults.
func New(cfg Config) *Index {
	if cfg.K1 <= 0 {
		cfg.K1 = DefaultK1
	}
	if cfg.B < 0 || cfg.B > 1 {
		cfg.B = DefaultB
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	idx := &Index{
		k1:     cfg.K1,
		b:      cfg.B,
		boost:  cfg.MustHaveBoost,
		logger: cfg.Logger,
	}
	idx.snap.Store(buildSnapshot(nil, cfg.K1, cfg.B))
	return idx
}

// Upsert inserts or replaces chunks keyed by their stable ID. Incoming
// chunks are cloned, so callers may reuse the slice. Idempotent: indexing
// the same chunk twice leaves one entry.
func (idx *Index) Upsert(chunks ...*types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return err
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	current := idx.snap.Load()
	docs := make([]*document, len(current.docs))
	copy(docs, current.docs)
	byID := make(map[string]int, len(current.byID)+len(chunks))
	for id, i := range current.byID {
		byID[id] = i
	}

	for _, c := range chunks {
		clone := c.Clone()
		clone.EnsureID()
		doc := newDocument(clone)

		if i, ok := byID[clone.ID]; ok {
			docs[i] = doc
		} else {
			docs = append(docs, doc)
			byID[clone.ID] = len(docs) - 1
		}
	}

	idx.snap.Store(buildSnapshot(docs, idx.k1, idx.b))
	idx.logger.WithFields(logrus.Fields{
		"upserted": len(chunks),
		"total":    len(docs),
	}).Debug("sparse index updated")
	return nil
}

// Delete removes chunks by ID. Unknown IDs are ignored.
func (idx *Index) Delete(ids ...string) {
	if len(ids) == 0 {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	current := idx.snap.Load()
	docs := make([]*document, 0, len(current.docs))
	for _, d := range current.docs {
		if !drop[d.chunk.ID] {
			docs = append(docs, d)
		}
	}
	if len(docs) == len(current.docs) {
		return
	}

	idx.snap.Store(buildSnapshot(docs, idx.k1, idx.b))
	idx.logger.WithField("total", len(docs)).Debug("sparse index updated")
}

// Reset drops every document.
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.snap.Store(buildSnapshot(nil, idx.k1, idx.b))
}

// Count returns the number of indexed chunks.
func (idx *Index) Count() int {
	return len(idx.snap.Load().docs)
}

// TermCount returns the number of distinct terms in the index.
func (idx *Index) TermCount() int {
	return len(idx.snap.Load().postings)
}

// IsReady reports whether the index holds at least one document.
func (idx *Index) IsReady() bool {
	return idx.Count() > 0
}

func newDocument(c *types.Chunk) *document {
	tokens := textproc.Tokenize(c.Text)
	return &document{chunk: c, tokens: tokens, length: len(tokens)}
}

func buildSnapshot(docs []*document, k1, b float64) *snapshot {
	snap := &snapshot{
		docs:     docs,
		byID:     make(map[string]int, len(docs)),
		postings: make(map[string][]posting),
		k1:       k1,
		b:        b,
	}

	totalLen := 0
	for i, d := range docs {
		snap.byID[d.chunk.ID] = i
		totalLen += d.length

		freq := make(map[string]int, len(d.tokens))
		for _, t := range d.tokens {
			freq[t]++
		}
		for term, tf := range freq {
			snap.postings[term] = append(snap.postings[term], posting{doc: i, tf: tf})
		}
	}

	if len(docs) > 0 {
		snap.avgLen = float64(totalLen) / float64(len(docs))
	}
	return snap
}
