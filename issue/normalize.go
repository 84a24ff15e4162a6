package issue

import internalstrings "github.com/amonks/issues/internal/strings"

// NormalizeTitle trims surrounding whitespace and lowercases a title for
// comparison.
func NormalizeTitle(title string) string {
	return internalstrings.NormalizeLowerTrimSpace(title)
}
