package textproc

import (
	"regexp"
	"strings"
)

// Folds the accented letters that occur in lowercased Portuguese text.
// Normalize lowercases before folding, so uppercase forms are not needed.
var accentFold = map[rune]rune{
	'á': 'a', 'à': 'a', 'â': 'a', 'ã': 'a', 'ä': 'a', 'å': 'a',
	'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e',
	'í': 'i', 'ì': 'i', 'î': 'i', 'ï': 'i',
	'ó': 'o', 'ò': 'o', 'ô': 'o', 'õ': 'o', 'ö': 'o',
	'ú': 'u', 'ù': 'u', 'û': 'u', 'ü': 'u',
	'ç': 'c', 'ñ': 'n', 'ý': 'y', 'ÿ': 'y',
}

// Tokens are letters and digits, allowing interior dots and hyphens so
// formatted identifiers (3.14, 123-456) survive as single tokens.
var tokenPattern = regexp.MustCompile(`\b[a-z0-9]+(?:[.\-][a-z0-9]+)*\b`)

// Normalize lowercases, folds accents, drops invalid UTF-8 bytes and
// collapses whitespace.
func Normalize(text string) string {
	text = strings.ToValidUTF8(text, "")
	text = strings.ToLower(text)
	text = strings.Map(func(r rune) rune {
		if folded, ok := accentFold[r]; ok {
			return folded
		}
		return r
	}, text)
	return strings.Join(strings.Fields(text), " ")
}

// Tokenize splits text into normalized search tokens, dropping stop words
// and single-character tokens.
func Tokenize(text string) []string {
	return tokenize(text, true)
}

// TokenizeAll is Tokenize without stop-word removal. Used for quoted
// phrases, where even common words are intentional.
func TokenizeAll(text string) []string {
	return tokenize(text, false)
}

func tokenize(text string, removeStopwords bool) []string {
	normalized := Normalize(text)
	matches := tokenPattern.FindAllString(normalized, -1)

	tokens := make([]string, 0, len(matches))
	for _, t := range matches {
		if len(t) <= 1 {
			continue
		}
		if removeStopwords && IsStopword(t) {
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens
}
