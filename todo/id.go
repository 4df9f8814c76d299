package todo

import (
	"fmt"
	"time"

	"github.com/amonks/daybook/internal/ids"
)

// NewID returns the id of a todo created at now: its ISO creation instant.
func NewID(now time.Time) string {
	return FormatISO(now)
}

// CreatedAt returns the creation instant encoded in a todo id.
func CreatedAt(id string) (time.Time, bool) {
	return validCreationID(id)
}

// IDIndex indexes todo IDs for prefix matching and display.
type IDIndex struct {
	ids []string
}

// NewIDIndex builds an IDIndex from a slice of todos.
func NewIDIndex(todos []Todo) IDIndex {
	todoIDs := make([]string, 0, len(todos))
	for _, todo := range todos {
		todoIDs = append(todoIDs, todo.ID)
	}
	return IDIndex{ids: todoIDs}
}

// NewIDIndexFromIDs builds an IDIndex from raw ids.
func NewIDIndexFromIDs(todoIDs []string) IDIndex {
	return IDIndex{ids: append([]string(nil), todoIDs...)}
}

// Resolve returns the full todo ID for a prefix.
func (index IDIndex) Resolve(prefix string) (string, error) {
	if prefix == "" {
		return "", ErrTodoNotFound
	}

	match, found, ambiguous := ids.MatchPrefix(index.ids, prefix)
	if !found {
		return "", fmt.Errorf("%w: %s", ErrTodoNotFound, prefix)
	}
	if ambiguous {
		return "", fmt.Errorf("%w: %s", ErrAmbiguousTodoIDPrefix, prefix)
	}

	return match, nil
}

// PrefixLengths returns the shortest unique prefix length for each ID.
func (index IDIndex) PrefixLengths() map[string]int {
	return ids.UniquePrefixLengths(index.ids)
}
