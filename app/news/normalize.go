package news

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/width"
)

// Fold lowers a string for comparison: Unicode case folding plus width
// folding, so full-width CJK punctuation and half-width Latin collapse to
// the same form.
func Fold(s string) string {
	return cases.Fold().String(width.Fold.String(s))
}

// NormalizeTitle produces the identity key component for a title: folded
// and with all whitespace runs collapsed to single spaces. The same story
// observed with different spacing or casing across rounds yields the same
// key.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(Fold(title)), " ")
}

// IdentityKey builds the aggregation identity for a platform and an
// already-normalized title key.
func IdentityKey(platform, titleKey string) string {
	return platform + "\x00" + titleKey
}
