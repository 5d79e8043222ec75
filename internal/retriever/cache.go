package retriever

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dmribeiro/contexto-mcp/pkg/types"
)

type cacheKey = [32]byte

// cacheEntry pairs a cached response with its expiration time.
type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// resultCache memoizes complete responses keyed by the query and every
// knob that shapes the result. Entries expire after the TTL and the whole
// cache is purged on index writes; reads and writes deep-copy so callers
// and the cache never share mutable state.
type resultCache struct {
	cache *lru.Cache[cacheKey, *cacheEntry]
	ttl   time.Duration
	mu    sync.RWMutex
}

func newResultCache(size int, ttl time.Duration) *resultCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	cache, err := lru.New[cacheKey, *cacheEntry](size)
	if err != nil {
		// Only reachable with a non-positive size; fall back small.
		cache, _ = lru.New[cacheKey, *cacheEntry](128)
	}
	return &resultCache{cache: cache, ttl: ttl}
}

// keyFor builds a deterministic digest over the query and the effective
// retrieval knobs. Two requests share an entry only when every knob
// matches.
func (c *resultCache) keyFor(query string, topk types.TopKConfig, div types.DiversityConfig, filters *types.Filters) cacheKey {
	var b strings.Builder
	b.WriteString(query)
	fmt.Fprintf(&b, "|%d:%d:%d:%d|%d:%d",
		topk.Dense, topk.Sparse, topk.Fused, topk.Rerank,
		div.MaxPerDoc, div.MinDocs)

	if !filters.IsZero() {
		fmt.Fprintf(&b, "|tenant=%s|source=%s|doc=%s|tags=%s",
			filters.TenantID, filters.SourceID, filters.DocID,
			strings.Join(filters.Tags, ","))
		if filters.DateFrom != nil {
			fmt.Fprintf(&b, "|from=%d", filters.DateFrom.Unix())
		}
		if filters.DateTo != nil {
			fmt.Fprintf(&b, "|to=%d", filters.DateTo.Unix())
		}
	}
	return sha256.Sum256([]byte(b.String()))
}

func (c *resultCache) get(key cacheKey) (*Response, bool) {
	now := time.Now()

	c.mu.RLock()
	entry, found := c.cache.Get(key)
	if !found {
		c.mu.RUnlock()
		return nil, false
	}

	if now.After(entry.expiresAt) {
		c.mu.RUnlock()
		c.mu.Lock()
		c.cache.Remove(key)
		c.mu.Unlock()
		return nil, false
	}

	// Copy while still holding the read lock so a concurrent purge cannot
	// interleave with the copy.
	response := copyResponse(entry.response)
	c.mu.RUnlock()
	return response, true
}

func (c *resultCache) put(key cacheKey, resp *Response) {
	entry := &cacheEntry{
		response:  copyResponse(resp),
		expiresAt: time.Now().Add(c.ttl),
	}
	c.mu.Lock()
	c.cache.Add(key, entry)
	c.mu.Unlock()
}

func (c *resultCache) purge() {
	c.mu.Lock()
	c.cache.Purge()
	c.mu.Unlock()
}

func (c *resultCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache.Len()
}

// copyResponse deep-copies a response, including the chunk slices and the
// debug maps, so cached state is isolated from caller mutations.
func copyResponse(src *Response) *Response {
	if src == nil {
		return nil
	}
	dst := &Response{
		Chunks:   make([]types.ContextChunk, len(src.Chunks)),
		CacheHit: src.CacheHit,
	}
	for i, cc := range src.Chunks {
		dst.Chunks[i] = cc
		dst.Chunks[i].Chunk = *cc.Chunk.Clone()
	}
	if src.Debug != nil {
		dst.Debug = copyDebugInfo(src.Debug)
	}
	return dst
}

func copyDebugInfo(src *types.DebugInfo) *types.DebugInfo {
	dst := types.NewDebugInfo()
	for k, v := range src.Timings {
		dst.Timings[k] = v
	}
	for k, v := range src.Counts {
		dst.Counts[k] = v
	}
	for k, v := range src.Params {
		dst.Params[k] = v
	}
	dst.Notes = append([]string(nil), src.Notes...)
	return dst
}
