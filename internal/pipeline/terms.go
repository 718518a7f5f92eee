package pipeline

import "strings"

// containsAny reports whether any term appears as a substring of text.
// Both sides are expected to be lower-cased already; empty terms never match.
func containsAny(text string, terms []string) bool {
	if text == "" || len(terms) == 0 {
		return false
	}
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

// normalizeTerms lower-cases terms and drops empty ones.
func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(t)
		if t == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}
