package phone

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"leading 8", "89991234567", "79991234567"},
		{"plus seven with separators", "+7 999 123-45-67", "79991234567"},
		{"bare ten digits", "9991234567", "79991234567"},
		{"already canonical", "79991234567", "79991234567"},
		{"parentheses", "8 (999) 123-45-67", "79991234567"},
		{"too short", "12345", ""},
		{"too long", "779991234567", ""},
		{"empty", "", ""},
		{"letters only", "abc", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestVariantsAreMutuallyMatchable(t *testing.T) {
	// Все три написания одного номера должны давать одинаковый
	// канонический вид и пересекающиеся варианты.
	inputs := []string{"89991234567", "+7 999 123-45-67", "9991234567"}

	for _, in := range inputs {
		norm := Normalize(in)
		require.Equal(t, "79991234567", norm)

		variants := Variants(norm)
		require.ElementsMatch(t,
			[]string{"79991234567", "+79991234567", "89991234567", "9991234567"},
			variants,
		)
	}
}

func TestVariantsEmpty(t *testing.T) {
	require.Nil(t, Variants(""))
	require.Nil(t, MatchVariants("not a phone"))
}
