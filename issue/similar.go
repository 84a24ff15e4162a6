package issue

import (
	"strings"
	"unicode/utf8"
)

// MinSimilarTitleLength is the shortest trimmed candidate, in characters,
// that FindSimilar will compare.
const MinSimilarTitleLength = 3

// Matcher decides whether two titles describe the same issue.
type Matcher interface {
	Similar(candidate, existing string) bool
}

// ContainmentMatcher treats titles as similar when either normalized title
// contains the other.
type ContainmentMatcher struct{}

// Similar implements Matcher.
func (ContainmentMatcher) Similar(candidate, existing string) bool {
	c := NormalizeTitle(candidate)
	e := NormalizeTitle(existing)
	if c == "" || e == "" {
		return false
	}
	return strings.Contains(e, c) || strings.Contains(c, e)
}

// FindSimilar returns the issues whose titles look like candidate, in the
// order they appear in issues. Short candidates match nothing.
func FindSimilar(candidate string, issues []Issue) []Issue {
	return FindSimilarWith(ContainmentMatcher{}, candidate, issues)
}

// FindSimilarWith is FindSimilar with a custom Matcher.
func FindSimilarWith(matcher Matcher, candidate string, issues []Issue) []Issue {
	matches := make([]Issue, 0)
	if utf8.RuneCountInString(strings.TrimSpace(candidate)) < MinSimilarTitleLength {
		return matches
	}
	for _, item := range issues {
		if matcher.Similar(candidate, item.Title) {
			matches = append(matches, item)
		}
	}
	return matches
}
