package types

import "time"

// Filters narrows retrieval to chunks matching every set field. The zero
// value matches everything. Backends translate it to their native filter
// form; Matches implements the same semantics in-process for backends that
// filter before scoring.
type Filters struct {
	TenantID string `json:"tenant_id,omitempty"`

	// Tags matches chunks sharing at least one tag.
	Tags []string `json:"tags,omitempty"`

	SourceID string `json:"source_id,omitempty"`
	DocID    string `json:"doc_id,omitempty"`

	// DateFrom/DateTo bound Chunk.PublishedAt inclusively. A chunk without
	// a publish date never matches a date-bounded filter.
	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`
}

// IsZero reports whether no filter field is set.
func (f *Filters) IsZero() bool {
	if f == nil {
		return true
	}
	return f.TenantID == "" && len(f.Tags) == 0 && f.SourceID == "" &&
		f.DocID == "" && f.DateFrom == nil && f.DateTo == nil
}

// Matches reports whether the chunk satisfies every set field.
func (f *Filters) Matches(c *Chunk) bool {
	if f.IsZero() {
		return true
	}
	if f.TenantID != "" && c.TenantID != f.TenantID {
		return false
	}
	if f.SourceID != "" && c.SourceID != f.SourceID {
		return false
	}
	if f.DocID != "" && c.DocID != f.DocID {
		return false
	}
	if len(f.Tags) > 0 && !intersects(f.Tags, c.Tags) {
		return false
	}
	if f.DateFrom != nil || f.DateTo != nil {
		if c.PublishedAt == nil {
			return false
		}
		if f.DateFrom != nil && c.PublishedAt.Before(*f.DateFrom) {
			return false
		}
		if f.DateTo != nil && c.PublishedAt.After(*f.DateTo) {
			return false
		}
	}
	return true
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
