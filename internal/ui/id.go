package ui

import (
	"strings"

	"github.com/amonks/daybook/internal/ids"
)

// HighlightID renders an ID with its unique prefix in the ID style.
func HighlightID(styles Styles, id string, prefixLen int) string {
	if id == "" || prefixLen <= 0 || prefixLen > len(id) {
		return id
	}
	return styles.ID.Render(id[:prefixLen]) + id[prefixLen:]
}

// PrefixLengths returns the shortest unique prefix length for each ID.
func PrefixLengths(idList []string) map[string]int {
	return ids.UniquePrefixLengths(idList)
}

// PrefixLength looks up an ID case-insensitively in lengths.
func PrefixLength(lengths map[string]int, id string) int {
	if id == "" || lengths == nil {
		return 0
	}
	return lengths[strings.ToLower(id)]
}
