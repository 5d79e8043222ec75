package textproc

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	acronymPattern = regexp.MustCompile(`\b[A-Z]{2,}\b`)

	// High-specificity identifiers: CPF, CNPJ, plain numbers and short codes
	// like ABC-123. Order matters only for output determinism.
	numberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{3}\.\d{3}\.\d{3}-\d{2}\b`),
		regexp.MustCompile(`\b\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2}\b`),
		regexp.MustCompile(`\b\d+(?:[.,]\d+)*\b`),
		regexp.MustCompile(`\b[A-Z]{2,3}-?\d{3,}\b`),
	}

	quotedPattern  = regexp.MustCompile(`"([^"]+)"`)
	sentenceSplit  = regexp.MustCompile(`[.!?]\s+`)
	nonWordPattern = regexp.MustCompile(`[^\p{L}\p{N}_]`)
)

// Analysis is the structured form of a user query, feeding each retrieval
// mode with the representation it works best on.
type Analysis struct {
	// DenseQuery preserves the natural-language phrasing for embedding.
	DenseQuery string

	// SparseQuery is the keyword form for lexical search: acronyms,
	// identifiers, proper nouns and content tokens, deduplicated.
	SparseQuery string

	// MustHave are high-specificity terms (acronyms, identifiers, quoted
	// tokens) whose absence from top results signals weak evidence.
	MustHave []string

	// Terms are the individual sparse-query tokens.
	Terms []string
}

// Analyze derives the per-mode query representations. The caller validates
// that the query is non-blank.
func Analyze(query string) Analysis {
	sparse := SparseQuery(query)
	return Analysis{
		DenseQuery:  DenseQuery(query),
		SparseQuery: sparse,
		MustHave:    MustHaveTerms(query),
		Terms:       strings.Fields(sparse),
	}
}

// DenseQuery lightly normalizes for embedding: whitespace cleanup only,
// keeping word order and accents intact.
func DenseQuery(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

// SparseQuery extracts the keyword form for BM25: acronyms first (highest
// signal), then identifiers, proper nouns and remaining content tokens,
// lowercased and deduplicated in that order.
func SparseQuery(query string) string {
	var parts []string
	parts = append(parts, ExtractAcronyms(query)...)
	parts = append(parts, ExtractNumbers(query)...)
	parts = append(parts, ExtractProperNouns(query)...)
	parts = append(parts, Tokenize(query)...)

	seen := make(map[string]bool, len(parts))
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		lower := strings.ToLower(p)
		if !seen[lower] {
			seen[lower] = true
			result = append(result, lower)
		}
	}
	return strings.Join(result, " ")
}

// ExtractAcronyms returns runs of two or more uppercase ASCII letters.
func ExtractAcronyms(text string) []string {
	return acronymPattern.FindAllString(text, -1)
}

// ExtractNumbers returns numeric identifiers: CPF and CNPJ formats, plain
// and formatted numbers, and letter-digit codes. Deduplicated, first
// occurrence order.
func ExtractNumbers(text string) []string {
	seen := make(map[string]bool)
	var results []string
	for _, p := range numberPatterns {
		for _, m := range p.FindAllString(text, -1) {
			if !seen[m] {
				seen[m] = true
				results = append(results, m)
			}
		}
	}
	return results
}

// ExtractProperNouns returns lowercased capitalized words that do not open
// a sentence, the cheap heuristic for names without a tagger.
func ExtractProperNouns(text string) []string {
	seen := make(map[string]bool)
	var nouns []string

	for _, sentence := range sentenceSplit.Split(text, -1) {
		words := strings.Fields(sentence)
		if len(words) < 2 {
			continue
		}
		// The first word is capitalized for grammatical reasons, skip it.
		for _, word := range words[1:] {
			if len([]rune(word)) <= 2 {
				continue
			}
			first, _ := firstRune(word)
			if !unicode.IsUpper(first) {
				continue
			}
			clean := nonWordPattern.ReplaceAllString(word, "")
			if clean == "" {
				continue
			}
			if cf, _ := firstRune(clean); !unicode.IsUpper(cf) {
				continue
			}
			lower := strings.ToLower(clean)
			if !seen[lower] {
				seen[lower] = true
				nouns = append(nouns, lower)
			}
		}
	}
	return nouns
}

// MustHaveTerms extracts the terms good results are expected to contain:
// acronyms, numeric identifiers, and every token of quoted phrases
// (stop words included, quoting makes them intentional).
func MustHaveTerms(query string) []string {
	seen := make(map[string]bool)
	var must []string

	add := func(t string) {
		t = strings.ToLower(t)
		if t != "" && !seen[t] {
			seen[t] = true
			must = append(must, t)
		}
	}

	for _, a := range ExtractAcronyms(query) {
		add(a)
	}
	for _, n := range ExtractNumbers(query) {
		add(n)
	}
	for _, m := range quotedPattern.FindAllStringSubmatch(query, -1) {
		for _, tok := range TokenizeAll(m[1]) {
			add(tok)
		}
	}
	return must
}

// TermCoverage counts how many of the terms occur in the text, compared
// accent-folded so "José" satisfies "jose". Returns (found, total);
// (0, 0) when terms is empty.
func TermCoverage(text string, terms []string) (found, total int) {
	if len(terms) == 0 {
		return 0, 0
	}
	normalized := Normalize(text)
	for _, t := range terms {
		if strings.Contains(normalized, Normalize(t)) {
			found++
		}
	}
	return found, len(terms)
}

func firstRune(s string) (rune, bool) {
	for _, r := range s {
		return r, true
	}
	return 0, false
}
