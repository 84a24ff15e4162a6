package issue

import (
	"fmt"

	"github.com/amonks/issues/internal/ids"
)

// IDIndex resolves ID prefixes against a set of issues.
type IDIndex struct {
	ids []string
}

// NewIDIndex builds an IDIndex from a slice of issues.
func NewIDIndex(issues []Issue) IDIndex {
	issueIDs := make([]string, 0, len(issues))
	for _, item := range issues {
		issueIDs = append(issueIDs, item.ID)
	}
	return IDIndex{ids: ids.NormalizeUniqueIDs(issueIDs)}
}

// Resolve returns the full issue ID for a prefix.
func (index IDIndex) Resolve(prefix string) (string, error) {
	if prefix == "" {
		return "", ErrIssueNotFound
	}

	match, found, ambiguous := ids.MatchPrefixNormalized(index.ids, prefix)
	if !found {
		return "", fmt.Errorf("%w: %s", ErrIssueNotFound, prefix)
	}
	if ambiguous {
		return "", fmt.Errorf("%w: %s", ErrAmbiguousIssueIDPrefix, prefix)
	}

	return match, nil
}

// PrefixLengths returns the shortest unique prefix length for each ID.
func (index IDIndex) PrefixLengths() map[string]int {
	return ids.UniquePrefixLengthsNormalized(index.ids)
}
