package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextSimilarity_Empty(t *testing.T) {
	assert.Equal(t, 0.0, textSimilarity("", ""))
	assert.Equal(t, 0.0, textSimilarity("renal impairment", ""))
	assert.Equal(t, 0.0, textSimilarity("", "renal impairment"))
}

func TestTextSimilarity_Identical(t *testing.T) {
	assert.Equal(t, 1.0, textSimilarity("severe hepatic disease", "severe hepatic disease"))
	// Case and surrounding whitespace do not matter.
	assert.Equal(t, 1.0, textSimilarity("  Severe Hepatic Disease ", "severe hepatic disease"))
}

func TestTextSimilarity_Partial(t *testing.T) {
	// "abc" vs "abd": matching blocks "ab" only, 2*2/6.
	assert.InDelta(t, 0.6667, textSimilarity("abc", "abd"), 0.001)

	// Shared prefix and suffix around a different middle.
	sim := textSimilarity(
		"contraindicated in patients with angioedema",
		"contraindicated in patients with anuria",
	)
	assert.Greater(t, sim, 0.8)
	assert.Less(t, sim, 1.0)
}

func TestTextSimilarity_Disjoint(t *testing.T) {
	assert.Equal(t, 0.0, textSimilarity("xyz", "abc"))
}

func TestTextSimilarity_BelowAgreementThreshold(t *testing.T) {
	sim := textSimilarity("xyzzy qqqq", "mmmm wwww")
	assert.Less(t, sim, AgreementThreshold)
}
