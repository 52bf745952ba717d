package memory

import (
	"math"
	"strings"
)

// CosineSimilarity returns the cosine of the angle between a and b.
// Mismatched lengths and zero vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Normalize converts vec to a unit vector. Zero vectors are returned
// unchanged.
func Normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = v / norm
	}
	return normalized
}

// KeywordOverlap is the degraded-mode similarity: the fraction of
// distinct query tokens that appear in content. Tokens are lowercased
// and trimmed of surrounding punctuation, so the result is
// deterministic for a given pair of strings.
func KeywordOverlap(query, content string) float64 {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return 0
	}
	contentTokens := tokenize(content)

	matched := 0
	for tok := range queryTokens {
		if _, ok := contentTokens[tok]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTokens))
}

func tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, field := range strings.Fields(strings.ToLower(s)) {
		tok := strings.Trim(field, ".,!?;:\"'()[]{}")
		if tok != "" {
			tokens[tok] = struct{}{}
		}
	}
	return tokens
}
