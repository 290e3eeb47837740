// Package subjectkey normalizes user-supplied subjects into the natural keys
// used for deduplication, coalescing, and library uniqueness.
//
// Two inputs that differ only in case, Unicode form, or surrounding
// whitespace must map to the same key so a re-request for "Hope " joins the
// in-flight call for "hope" and never creates a duplicate library record.
package subjectkey

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalize converts raw input into its canonical natural key: NFC form,
// case-folded, with runs of whitespace collapsed to single spaces. It returns
// an empty string for blank input.
func Normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	// cases.Caser is stateful and not safe for concurrent use; construct
	// one per call.
	folded := cases.Fold().String(norm.NFC.String(trimmed))
	return strings.Join(strings.Fields(folded), " ")
}
