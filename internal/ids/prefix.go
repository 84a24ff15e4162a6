package ids

import "strings"

// NormalizeUniqueIDs lowercases ids and drops empty values and duplicates,
// keeping first-seen order.
func NormalizeUniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		idLower := strings.ToLower(id)
		if idLower == "" || seen[idLower] {
			continue
		}
		seen[idLower] = true
		out = append(out, idLower)
	}
	return out
}

// UniquePrefixLengths returns the shortest unique prefix length for each ID.
func UniquePrefixLengths(ids []string) map[string]int {
	return UniquePrefixLengthsNormalized(NormalizeUniqueIDs(ids))
}

// UniquePrefixLengthsNormalized is UniquePrefixLengths for ids that have
// already been passed through NormalizeUniqueIDs.
func UniquePrefixLengthsNormalized(ids []string) map[string]int {
	lengths := make(map[string]int, len(ids))
	for _, id := range ids {
		lengths[id] = uniquePrefixLength(id, ids)
	}
	return lengths
}

// MatchPrefix finds the id that prefix identifies, case-insensitively.
// An exact match always wins over longer ids sharing the prefix.
func MatchPrefix(ids []string, prefix string) (match string, found bool, ambiguous bool) {
	return MatchPrefixNormalized(NormalizeUniqueIDs(ids), prefix)
}

// MatchPrefixNormalized is MatchPrefix for pre-normalized ids.
func MatchPrefixNormalized(ids []string, prefix string) (match string, found bool, ambiguous bool) {
	needle := strings.ToLower(prefix)
	if needle == "" {
		return "", false, false
	}
	for _, id := range ids {
		if id == needle {
			return id, true, false
		}
	}
	for _, id := range ids {
		if !strings.HasPrefix(id, needle) {
			continue
		}
		if found {
			return "", true, true
		}
		match = id
		found = true
	}
	return match, found, false
}

func uniquePrefixLength(id string, ids []string) int {
	for length := 1; length <= len(id); length++ {
		prefix := id[:length]
		unique := true
		for _, other := range ids {
			if other == id {
				continue
			}
			if strings.HasPrefix(other, prefix) {
				unique = false
				break
			}
		}
		if unique {
			return length
		}
	}

	return len(id)
}
