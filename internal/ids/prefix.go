// Package ids resolves abbreviated document ids.
//
// Ids are compared case-insensitively but always returned in their
// original spelling.
package ids

import "strings"

// UniquePrefixLengths returns the shortest unique prefix length for each ID,
// keyed by the lowercased ID.
func UniquePrefixLengths(ids []string) map[string]int {
	uniqueIDs := normalizeUnique(ids)

	lengths := make(map[string]int, len(uniqueIDs))
	for _, id := range uniqueIDs {
		lengths[id] = uniquePrefixLength(id, uniqueIDs)
	}

	return lengths
}

// MatchPrefix finds the ID that starts with prefix. An exact match wins over
// longer IDs sharing the prefix.
func MatchPrefix(ids []string, prefix string) (match string, found bool, ambiguous bool) {
	needle := strings.ToLower(strings.TrimSpace(prefix))
	if needle == "" {
		return "", false, false
	}

	seen := make(map[string]bool)
	for _, id := range ids {
		idLower := strings.ToLower(id)
		if idLower == needle {
			return id, true, false
		}
		if !strings.HasPrefix(idLower, needle) || seen[idLower] {
			continue
		}
		seen[idLower] = true
		if found {
			ambiguous = true
			continue
		}
		match = id
		found = true
	}
	if ambiguous {
		return "", true, true
	}
	return match, found, false
}

func normalizeUnique(ids []string) []string {
	uniqueIDs := make([]string, 0, len(ids))
	seen := make(map[string]bool)
	for _, id := range ids {
		idLower := strings.ToLower(id)
		if idLower == "" || seen[idLower] {
			continue
		}
		seen[idLower] = true
		uniqueIDs = append(uniqueIDs, idLower)
	}
	return uniqueIDs
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
