package services

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/xrash/smetrics"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const (
	jaroWinklerBoostThreshold = 0.7
	jaroWinklerPrefixSize     = 4
	minSearchTokenRunes       = 2
)

// normalizeName folds compatibility forms and case and collapses whitespace.
func normalizeName(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s) // a Caser holds state and cannot be shared
	return strings.Join(strings.Fields(s), " ")
}

// nameTokens splits a normalized name on anything that is not a letter or digit.
func nameTokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// searchToken picks the longest token of a normalized name, preferring tokens
// with letters. Ties keep the earlier token. Returns "" when nothing is long
// enough to search for.
func searchToken(normalized string) string {
	best, bestLen, bestLetters := "", 0, false
	for _, tok := range nameTokens(normalized) {
		n := utf8.RuneCountInString(tok)
		if n < minSearchTokenRunes {
			continue
		}
		letters := strings.IndexFunc(tok, unicode.IsLetter) >= 0
		if letters && !bestLetters || letters == bestLetters && n > bestLen {
			best, bestLen, bestLetters = tok, n, letters
		}
	}
	return best
}

// truncateRunes cuts s to at most n runes. n <= 0 leaves s unchanged.
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// levenshteinRatio is 1 - distance/longer length, over runes.
func levenshteinRatio(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// nameSimilarity scores two normalized names in [0, 1] as the mean of the
// Levenshtein ratio and the Jaro-Winkler similarity.
func nameSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	lev := levenshteinRatio(a, b)
	ba, bb := runeBytes(a, b)
	jw := smetrics.JaroWinkler(ba, bb, jaroWinklerBoostThreshold, jaroWinklerPrefixSize)
	return (lev + jw) / 2
}

// runeBytes re-encodes a and b with one byte per distinct rune. JaroWinkler
// compares bytes, and multi-byte UTF-8 would match on shared lead bytes.
// Pairs with more than 256 distinct runes are returned unchanged.
func runeBytes(a, b string) (string, string) {
	codes := make(map[rune]byte)
	encode := func(s string) ([]byte, bool) {
		out := make([]byte, 0, len(s))
		for _, r := range s {
			c, ok := codes[r]
			if !ok {
				if len(codes) == 256 {
					return nil, false
				}
				c = byte(len(codes))
				codes[r] = c
			}
			out = append(out, c)
		}
		return out, true
	}
	ea, ok := encode(a)
	if !ok {
		return a, b
	}
	eb, ok := encode(b)
	if !ok {
		return a, b
	}
	return string(ea), string(eb)
}

// scoredName pairs an index into a candidate list with its similarity.
type scoredName struct {
	index int
	score float64
}

// rankNames scores every name against query and keeps those reaching
// minScore, best first. Equal scores keep the input order.
func rankNames(query string, names []string, minScore float64) []scoredName {
	q := normalizeName(query)
	var ranked []scoredName
	for i, name := range names {
		score := nameSimilarity(q, normalizeName(name))
		if score >= minScore {
			ranked = append(ranked, scoredName{index: i, score: score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	return ranked
}
