// Package sparse implements in-memory BM25 lexical retrieval over chunks.
//
// The index keeps an inverted posting list per term and scores with BM25
// Okapi (tunable k1 and b). Retrieval filters resolve the candidate set
// before scoring, must-have terms boost candidates without excluding
// anyone, and ties break deterministically by chunk ordinal then ID.
//
// # Snapshot Isolation
//
// Readers load an immutable snapshot through an atomic pointer; writers
// rebuild derived state copy-on-write and swap. A search that started
// before an upsert completes against the corpus it started with.
//
// # Persistence
//
// Save and Load round-trip the corpus as a versioned JSON snapshot.
// Postings are rebuilt on load from the chunk text.
package sparse
