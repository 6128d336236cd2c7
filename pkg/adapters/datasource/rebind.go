package datasource

import (
	"strconv"
	"strings"
)

// RebindNumbered replaces "?" placeholders outside string literals and quoted
// identifiers with prefix followed by a 1-based index ("$1", "@p1").
func RebindNumbered(query, prefix string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	var quote rune
	for _, r := range query {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
			b.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			b.WriteRune(r)
		case r == '?':
			n++
			b.WriteString(prefix)
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
