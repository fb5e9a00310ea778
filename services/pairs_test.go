package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePair_Commutative(t *testing.T) {
	cases := [][2]string{
		{"alpha", "beta"},
		{"beta", "alpha"},
		{"tag-zz", "tag-aa"},
		{"9d2f", "1a3c"},
		{"react", "javascript"},
	}
	for _, pair := range cases {
		lowAB, highAB, err := NormalizePair(pair[0], pair[1])
		require.NoError(t, err)
		lowBA, highBA, err := NormalizePair(pair[1], pair[0])
		require.NoError(t, err)

		assert.Equal(t, lowAB, lowBA)
		assert.Equal(t, highAB, highBA)
		assert.True(t, lowAB <= highAB)
	}
}

func TestNormalizePair_SelfPairRejected(t *testing.T) {
	_, _, err := NormalizePair("alpha", "alpha")
	require.Error(t, err)

	se, ok := AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, CodeSelfPair, se.Code)
}

func TestNormalizePair_EmptyRejected(t *testing.T) {
	_, _, err := NormalizePair("", "beta")
	require.Error(t, err)

	se, ok := AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, CodeValidation, se.Code)

	_, _, err = NormalizePair("alpha", "   ")
	require.Error(t, err)
}

func TestNormalizePair_TrimsWhitespace(t *testing.T) {
	low, high, err := NormalizePair("  beta ", "alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", low)
	assert.Equal(t, "beta", high)
}
