package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "мляко верея 3% 1л", normalizeName("  МЛЯКО   Верея\t3% 1Л "))
	assert.Equal(t, "cafe", normalizeName("ＣＡＦＥ"))
}

func TestSearchToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"мляко верея 3% 1л", "мляко"},
		{"кафе лаваца оро 250г", "лаваца"},
		{"12345 x", "12345"},
		{"a b", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, searchToken(tt.in))
		})
	}
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "мля", truncateRunes("мляко", 3))
	assert.Equal(t, "мляко", truncateRunes("мляко", 0))
	assert.Equal(t, "мляко", truncateRunes("мляко", 10))
}

func TestNameSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, nameSimilarity("хляб", "хляб"))
	assert.Equal(t, 0.0, nameSimilarity("", "хляб"))

	near := nameSimilarity("мляко верея", "мляко верея 3% 1л")
	far := nameSimilarity("мляко верея", "кафе лаваца оро 250г")
	assert.Greater(t, near, far)
	assert.GreaterOrEqual(t, near, DefaultNameMinScore)
	assert.Equal(t, 0.0, nameSimilarity("мляко", "zzz"))
}

func TestRuneBytes(t *testing.T) {
	a, b := runeBytes("мля", "ляк")
	assert.Equal(t, "\x00\x01\x02", a)
	assert.Equal(t, "\x01\x02\x03", b)
}

func TestRankNames(t *testing.T) {
	names := []string{
		"ZZZ",
		"Мляко Верея 3% 1л",
		"Мляко Верея 2% 1л",
	}

	ranked := rankNames("Мляко Верея", names, DefaultNameMinScore)

	require.Len(t, ranked, 2)
	assert.Equal(t, 1, ranked[0].index, "equal scores keep input order")
	assert.Equal(t, 2, ranked[1].index)
	assert.InDelta(t, ranked[0].score, ranked[1].score, 1e-9)
}
