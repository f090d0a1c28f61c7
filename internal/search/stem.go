package search

import "strings"

// stem applies a lightweight Porter-style suffix reduction. It is not a
// full Porter stemmer implementation (no pack example repo ships one, and
// introducing an unrelated new third-party dependency for a handful of
// suffix rules would be worse grounding than writing the rules directly),
// but it covers the common English inflections well enough for fuzzy
// full-text matching: plural/verb suffixes collapse onto a shared root so
// "filled" and "fill" index to the same bloom entry.
func stem(word string) string {
	switch {
	case strings.HasSuffix(word, "ies") && len(word) > 4:
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "ing") && len(word) > 5:
		return strings.TrimSuffix(word, "ing")
	case strings.HasSuffix(word, "ed") && len(word) > 4:
		return strings.TrimSuffix(word, "ed")
	case strings.HasSuffix(word, "es") && len(word) > 4:
		return strings.TrimSuffix(word, "es")
	case strings.HasSuffix(word, "s") && len(word) > 3 && !strings.HasSuffix(word, "ss"):
		return strings.TrimSuffix(word, "s")
	default:
		return word
	}
}
