// Package textproc analyzes Brazilian Portuguese queries and text for
// retrieval.
//
// The analyzer derives three views of a user query:
//
//   - a dense query with natural phrasing preserved for embedding,
//   - a sparse query of deduplicated keywords (acronyms, identifiers,
//     proper nouns, content tokens) for BM25,
//   - must-have terms whose absence from top results signals weak evidence.
//
// Tokenization is accent-folding and stop-word aware:
//
//	textproc.Tokenize("Como emitir a certidão do INSS?")
//	// ["emitir", "certidao", "inss"]
//
// Identifier patterns keep CPF/CNPJ numbers and short codes intact as
// single tokens, since exact matches on those dominate lexical relevance.
//
// The package also owns text shaping for context assembly: Truncate cuts
// at a word boundary, and TermCoverage measures how much of a term set a
// text satisfies.
package textproc
