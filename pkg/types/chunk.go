package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Chunk is a unit of retrievable text with its source metadata. Chunks are
// produced by an external ingestion pipeline and indexed by both the sparse
// and dense backends.
type Chunk struct {
	// ID is the stable identifier derived from (tenant_id, doc_id, chunk_id).
	// Re-indexing the same chunk always yields the same ID.
	ID string `json:"id"`

	// DocID identifies the source document.
	DocID string `json:"doc_id"`

	// ChunkID is the ordinal of this chunk within its document.
	ChunkID int `json:"chunk_id"`

	// Text is the retrievable content.
	Text string `json:"text"`

	Title    string `json:"title,omitempty"`
	URL      string `json:"url,omitempty"`
	SourceID string `json:"source_id,omitempty"`

	// Tags are free-form labels used for filtered retrieval.
	Tags []string `json:"tags,omitempty"`

	// TenantID scopes the chunk in multi-tenant deployments. Empty means the
	// default tenant.
	TenantID string `json:"tenant_id,omitempty"`

	// PublishedAt enables date-range filtering. Nil when unknown.
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Key returns the logical identity "tenant:doc:chunk" used to derive the
// stable ID and to deduplicate hits across retrieval modes.
func (c *Chunk) Key() string {
	return fmt.Sprintf("%s:%s:%d", c.TenantID, c.DocID, c.ChunkID)
}

// DeriveID computes the stable chunk ID from its logical identity.
func (c *Chunk) DeriveID() string {
	sum := sha256.Sum256([]byte(c.Key()))
	return hex.EncodeToString(sum[:])
}

// EnsureID fills ID from the logical identity when unset.
func (c *Chunk) EnsureID() {
	if c.ID == "" {
		c.ID = c.DeriveID()
	}
}

// Validate checks that the chunk can be indexed.
func (c *Chunk) Validate() error {
	if c.DocID == "" {
		return ErrMissingDocID
	}
	if c.ChunkID < 0 {
		return ErrInvalidChunkOrdinal
	}
	if c.Text == "" {
		return ErrEmptyText
	}
	return nil
}

// Clone returns a deep copy. Hits returned from caches share no mutable
// state with the cached entry.
func (c *Chunk) Clone() *Chunk {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Tags != nil {
		cp.Tags = append([]string(nil), c.Tags...)
	}
	if c.PublishedAt != nil {
		t := *c.PublishedAt
		cp.PublishedAt = &t
	}
	return &cp
}
