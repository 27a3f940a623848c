package peer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNegotiatePicksLexicographicallyGreatestCommonTag(t *testing.T) {
	tag, ok := Negotiate([]string{"V0", "V1"}, []string{"V0", "V1"})
	require.True(t, ok)
	require.Equal(t, "V1", tag)
}

func TestNegotiateFallsBackToV0WhenOnlyCommonTag(t *testing.T) {
	tag, ok := Negotiate([]string{V0, "V1"}, []string{V0})
	require.True(t, ok)
	require.Equal(t, V0, tag)
}

func TestNegotiateDisjointSetsReturnsNotOK(t *testing.T) {
	_, ok := Negotiate([]string{"V2"}, []string{"V3"})
	require.False(t, ok)
}

func TestNegotiateEmptySetsReturnsNotOK(t *testing.T) {
	_, ok := Negotiate(nil, []string{V0})
	require.False(t, ok)

	_, ok = Negotiate([]string{V0}, nil)
	require.False(t, ok)
}
