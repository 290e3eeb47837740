package subjectkey_test

import (
	"testing"

	"muse/internal/subjectkey"
)

func TestNormalizeFoldsCaseAndWhitespace(t *testing.T) {
	cases := map[string]string{
		"hope":              "hope",
		"  Hope  ":          "hope",
		"SERENDIPITY":       "serendipity",
		"two   words\there": "two words here",
		"Straße":            "strasse",
	}
	for input, want := range cases {
		if got := subjectkey.Normalize(input); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNormalizeBlankInput(t *testing.T) {
	for _, input := range []string{"", "   ", "\t\n"} {
		if got := subjectkey.Normalize(input); got != "" {
			t.Errorf("Normalize(%q) = %q, want empty", input, got)
		}
	}
}
