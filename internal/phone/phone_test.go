package phone

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeNationalAndInternationalForms(t *testing.T) {
	n := NewNormalizer("pk")

	forms := []string{"03001234567", "0300-1234567", "+92 300 1234567", "+923001234567"}
	for _, raw := range forms {
		got, err := n.Normalize(raw)
		require.NoError(t, err, raw)
		require.Equal(t, "+923001234567", got, raw)
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	n := NewNormalizer("PK")

	for _, raw := range []string{"", "   ", "abc", "12"} {
		_, err := n.Normalize(raw)
		require.ErrorIs(t, err, ErrInvalid, raw)
	}
}

func TestDigits(t *testing.T) {
	require.Equal(t, "0300123", Digits("0300-123"))
	require.Equal(t, "92300", Digits("+92 300"))
}

func TestSupportedRegion(t *testing.T) {
	require.True(t, SupportedRegion("PK"))
	require.True(t, SupportedRegion("us"))
	require.False(t, SupportedRegion("XX"))
}
