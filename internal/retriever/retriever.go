// Package retriever orchestrates the hybrid retrieval pipeline: query
// analysis, concurrent dense and sparse search, reciprocal rank fusion,
// cross-encoder reranking and diversity-aware final selection. Every
// request returns the selected context chunks together with per-stage
// timings, counts and degradation notes.
package retriever

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dmribeiro/contexto-mcp/internal/embedder"
	"github.com/dmribeiro/contexto-mcp/internal/fuse"
	"github.com/dmribeiro/contexto-mcp/internal/rerank"
	"github.com/dmribeiro/contexto-mcp/internal/textproc"
	"github.com/dmribeiro/contexto-mcp/pkg/types"
)

// Defaults for the pipeline knobs not covered by pkg/types.
const (
	DefaultMaxCharsPerChunk  = 1600
	DefaultMaxIterations     = 2
	DefaultCoverageThreshold = 0.4
	DefaultWidenFactor       = 1.2
	DefaultCacheTTL          = time.Hour
)

// DenseSearcher is the vector side of the pipeline. The dense package's
// store implementations satisfy it.
type DenseSearcher interface {
	Search(ctx context.Context, vector []float32, filters *types.Filters, topK int) ([]types.SearchHit, error)
}

// SparseSearcher is the lexical side of the pipeline. *sparse.Index
// satisfies it.
type SparseSearcher interface {
	Search(ctx context.Context, query string, mustHave []string, filters *types.Filters, topK int) ([]types.SearchHit, error)
}

// Config holds the retriever defaults. Per-request knobs in Request
// override TopK and Diversity; everything else is fixed at construction.
type Config struct {
	TopK      types.TopKConfig
	Diversity types.DiversityConfig

	// RRFK is the reciprocal-rank fusion constant.
	RRFK float64

	// MaxCharsPerChunk bounds each returned chunk's text.
	MaxCharsPerChunk int

	// MaxIterations caps the coverage-driven retry loop; 1 disables
	// retries entirely.
	MaxIterations int

	// CoverageThreshold is the must-have coverage ratio below which the
	// search is widened and repeated.
	CoverageThreshold float64

	// WidenFactor scales the per-mode top-k on each retry.
	WidenFactor float64

	// CacheSize is the query-result LRU capacity; 0 disables caching.
	CacheSize int
	CacheTTL  time.Duration

	Logger *logrus.Logger
}

func (c Config) withDefaults() Config {
	c.TopK = c.TopK.WithDefaults()
	c.Diversity = c.Diversity.WithDefaults()
	if c.RRFK <= 0 {
		c.RRFK = types.DefaultRRFK
	}
	if c.MaxCharsPerChunk <= 0 {
		c.MaxCharsPerChunk = DefaultMaxCharsPerChunk
	}
	if c.MaxIterations < 1 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.CoverageThreshold <= 0 {
		c.CoverageThreshold = DefaultCoverageThreshold
	}
	if c.WidenFactor <= 1 {
		c.WidenFactor = DefaultWidenFactor
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	return c
}

// Request is a single retrieval invocation. Zero-valued TopK and
// Diversity fall back to the retriever's configured defaults.
type Request struct {
	Query     string
	TopK      types.TopKConfig
	Diversity types.DiversityConfig
	Filters   *types.Filters

	// SkipCache bypasses the query cache for this request.
	SkipCache bool
}

// Response carries the final context and the per-request observability
// record. An empty Chunks slice with populated Debug is a valid result.
type Response struct {
	Chunks   []types.ContextChunk `json:"chunks"`
	Debug    *types.DebugInfo     `json:"debug,omitempty"`
	CacheHit bool                 `json:"cache_hit,omitempty"`
}

// Retriever coordinates the pipeline stages over injected collaborators.
// It holds no mutable request state; concurrent Retrieve calls are safe.
type Retriever struct {
	denseSearcher  DenseSearcher
	sparseSearcher SparseSearcher
	embedder       embedder.Embedder
	reranker       rerank.Reranker
	fuser          *fuse.Fuser
	config         Config
	cache          *resultCache
	logger         *logrus.Logger
}

// New creates a retriever. A nil reranker disables the rerank stage.
func New(denseSearcher DenseSearcher, sparseSearcher SparseSearcher, emb embedder.Embedder, reranker rerank.Reranker, cfg Config) *Retriever {
	cfg = cfg.withDefaults()
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if reranker == nil {
		reranker = rerank.NewDisabled()
	}

	var cache *resultCache
	if cfg.CacheSize > 0 {
		cache = newResultCache(cfg.CacheSize, cfg.CacheTTL)
	}

	return &Retriever{
		denseSearcher:  denseSearcher,
		sparseSearcher: sparseSearcher,
		embedder:       emb,
		reranker:       reranker,
		fuser:          fuse.New(cfg.RRFK),
		config:         cfg,
		cache:          cache,
		logger:         cfg.Logger,
	}
}

// Retrieve runs the full pipeline for one query.
//
// Failure policy: a blank query fails immediately with ErrInvalidQuery;
// a single retrieval mode failing degrades the request to the surviving
// mode with a note in Debug; both modes failing is a hard error. Rerank
// failures fall back to the fusion order and are never fatal.
func (r *Retriever) Retrieve(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if strings.TrimSpace(req.Query) == "" {
		return nil, types.ErrInvalidQuery
	}

	topk := req.TopK
	if topk == (types.TopKConfig{}) {
		topk = r.config.TopK
	}
	topk = topk.WithDefaults()

	div := req.Diversity
	if div == (types.DiversityConfig{}) {
		div = r.config.Diversity
	}
	div = div.WithDefaults()

	var key cacheKey
	if r.cache != nil && !req.SkipCache {
		key = r.cache.keyFor(req.Query, topk, div, req.Filters)
		if resp, ok := r.cache.get(key); ok {
			resp.CacheHit = true
			r.logger.WithField("query", req.Query).Debug("Query cache hit")
			return resp, nil
		}
	}

	debug := types.NewDebugInfo()
	debug.SetParam("topk", topk)
	debug.SetParam("diversity", div)
	debug.SetParam("rrf_k", r.fuser.K())
	debug.SetParam("max_iterations", r.config.MaxIterations)
	if !req.Filters.IsZero() {
		debug.SetParam("filters", req.Filters)
	}

	t0 := time.Now()
	analysis := textproc.Analyze(req.Query)
	debug.RecordTiming(types.StageAnalyze, time.Since(t0))
	if len(analysis.MustHave) > 0 {
		debug.AddNote("must-have terms: %s", strings.Join(analysis.MustHave, ", "))
	}

	// Embed once; retry iterations reuse the vector since the query text
	// never changes.
	var vector []float32
	var embedErr error
	t0 = time.Now()
	emb, err := r.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: analysis.DenseQuery})
	debug.RecordTiming(types.StageEmbed, time.Since(t0))
	if err != nil {
		embedErr = fmt.Errorf("query embedding: %w", err)
		r.logger.WithError(err).Warn("Query embedding failed, dense search unavailable")
	} else {
		vector = emb.Vector
	}

	effective := topk
	iter := 0
	var reranked []types.FusedHit
	var denseFailed, sparseFailed, rerankNoted bool

	for iter < r.config.MaxIterations {
		iter++

		modes := r.searchModes(ctx, vector, embedErr, analysis, req.Filters, effective, debug)
		if modes.denseErr != nil && modes.sparseErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: dense: %v; sparse: %v",
				types.ErrBackendUnavailable, modes.denseErr, modes.sparseErr)
		}
		if modes.denseErr != nil && !denseFailed {
			denseFailed = true
			r.logger.WithError(modes.denseErr).Warn("Dense search failed, continuing sparse-only")
			debug.AddNote("dense unavailable: %v", modes.denseErr)
		}
		if modes.sparseErr != nil && !sparseFailed {
			sparseFailed = true
			r.logger.WithError(modes.sparseErr).Warn("Sparse search failed, continuing dense-only")
			debug.AddNote("sparse unavailable: %v", modes.sparseErr)
		}

		t0 = time.Now()
		fused := r.fuser.Fuse([]fuse.ModeList{
			{Mode: types.ModeDense, Hits: modes.dense},
			{Mode: types.ModeSparse, Hits: modes.sparse},
		}, effective.Fused)
		debug.RecordTiming(types.StageFuse, time.Since(t0))
		debug.SetCount(types.StageFuse, len(fused))

		reranked, rerankNoted = r.rerankShortlist(ctx, req.Query, fused, topk.Rerank, debug, rerankNoted)

		if len(analysis.MustHave) == 0 || len(reranked) == 0 || iter >= r.config.MaxIterations {
			break
		}
		ratio := coverageRatio(reranked, analysis.MustHave)
		if ratio >= r.config.CoverageThreshold {
			break
		}

		debug.AddNote("iteration %d: weak coverage (%.1f%%), expanding search", iter, ratio*100)
		r.logger.WithFields(logrus.Fields{
			"iteration": iter,
			"coverage":  ratio,
		}).Info("Weak term coverage, widening search")
		effective = effective.Scale(r.config.WidenFactor)
	}

	if iter > 1 {
		debug.AddNote("used %d iterations", iter)
	}

	annotation := ""
	if denseFailed {
		annotation = "dense unavailable"
	} else if sparseFailed {
		annotation = "sparse unavailable"
	}

	t0 = time.Now()
	chunks := selectDiverse(reranked, div, topk.Rerank, r.config.MaxCharsPerChunk, annotation)
	debug.RecordTiming(types.StageDiversity, time.Since(t0))
	debug.SetCount(types.StageDiversity, len(chunks))

	debug.RecordTiming(types.StageTotal, time.Since(start))

	resp := &Response{Chunks: chunks, Debug: debug}
	if r.cache != nil && !req.SkipCache && len(chunks) > 0 {
		r.cache.put(key, resp)
	}
	return resp, nil
}

// InvalidateCache drops every cached response. Index writers call this so
// cached results never outlive the corpus state they were computed from.
func (r *Retriever) InvalidateCache() {
	if r.cache != nil {
		r.cache.purge()
	}
}

// modeResult is one retrieval mode's outcome, produced in its goroutine
// and recorded by the caller so the shared DebugInfo is touched from a
// single goroutine only.
type modeResult struct {
	hits    []types.SearchHit
	err     error
	elapsed time.Duration
}

type modeResults struct {
	dense     []types.SearchHit
	sparse    []types.SearchHit
	denseErr  error
	sparseErr error
}

// searchModes runs the dense and sparse searches concurrently and waits
// for both, so per-query latency is bounded by the slower mode rather
// than the sum. Timings and counts are recorded here; failure policy is
// the caller's.
func (r *Retriever) searchModes(ctx context.Context, vector []float32, embedErr error, analysis textproc.Analysis, filters *types.Filters, topk types.TopKConfig, debug *types.DebugInfo) modeResults {
	denseChan := make(chan modeResult, 1)
	sparseChan := make(chan modeResult, 1)

	go func() {
		var res modeResult
		start := time.Now()
		if embedErr != nil {
			res.err = embedErr
		} else {
			res.hits, res.err = r.denseSearcher.Search(ctx, vector, filters, topk.Dense)
		}
		res.elapsed = time.Since(start)
		denseChan <- res
	}()

	go func() {
		var res modeResult
		start := time.Now()
		res.hits, res.err = r.sparseSearcher.Search(ctx, analysis.SparseQuery, analysis.MustHave, filters, topk.Sparse)
		res.elapsed = time.Since(start)
		sparseChan <- res
	}()

	denseRes := <-denseChan
	sparseRes := <-sparseChan

	debug.RecordTiming(types.StageDense, denseRes.elapsed)
	debug.RecordTiming(types.StageSparse, sparseRes.elapsed)
	debug.SetCount(types.StageDense, len(denseRes.hits))
	debug.SetCount(types.StageSparse, len(sparseRes.hits))

	return modeResults{
		dense:     denseRes.hits,
		sparse:    sparseRes.hits,
		denseErr:  denseRes.err,
		sparseErr: sparseRes.err,
	}
}

// rerankShortlist reranks the fused shortlist, falling back to the fusion
// order when the reranker is disabled or unavailable. The noted flag keeps
// the fallback annotation from repeating across retry iterations.
func (r *Retriever) rerankShortlist(ctx context.Context, query string, fused []types.FusedHit, topK int, debug *types.DebugInfo, noted bool) ([]types.FusedHit, bool) {
	if !r.reranker.Enabled() {
		if !noted {
			noted = true
			debug.AddNote("rerank_skipped: disabled")
		}
		reranked := truncateFused(fused, topK)
		debug.SetCount(types.StageRerank, len(reranked))
		return reranked, noted
	}

	t0 := time.Now()
	reranked, err := r.reranker.Rerank(ctx, query, fused, topK)
	debug.RecordTiming(types.StageRerank, time.Since(t0))
	if err != nil {
		if !noted {
			noted = true
			r.logger.WithError(err).Warn("Rerank failed, falling back to fusion order")
			debug.AddNote("rerank_skipped: %v", err)
		}
		reranked = truncateFused(fused, topK)
	}
	debug.SetCount(types.StageRerank, len(reranked))
	return reranked, noted
}

// truncateFused returns the first topK fused hits. The fused list is
// already in descending score order, so this is the rerank fallback.
func truncateFused(fused []types.FusedHit, topK int) []types.FusedHit {
	if topK > 0 && len(fused) > topK {
		return fused[:topK]
	}
	return fused
}

// coverageRatio reports the fraction of the top candidates containing at
// least one must-have term. A low ratio means the evidence for the
// query's key terms is weak and the search should widen.
func coverageRatio(hits []types.FusedHit, mustHave []string) float64 {
	window := len(hits)
	if window > 5 {
		window = 5
	}
	covered := 0
	for _, hit := range hits[:window] {
		if found, _ := textproc.TermCoverage(hit.Chunk.Text, mustHave); found > 0 {
			covered++
		}
	}
	return float64(covered) / float64(window)
}
