package board

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/amonks/daybook/internal/validation"
	"github.com/amonks/daybook/todo"
)

// ErrInvalidStatus is returned for an unknown status filter.
var ErrInvalidStatus = errors.New("invalid status")

// Status filters todos by completion.
type Status string

const (
	StatusAll        Status = "all"
	StatusCompleted  Status = "completed"
	StatusIncomplete Status = "incomplete"
)

// ValidStatuses returns all valid statuses.
func ValidStatuses() []Status {
	return []Status{StatusAll, StatusCompleted, StatusIncomplete}
}

// IsValid returns true if the status is known.
func (s Status) IsValid() bool {
	for _, valid := range ValidStatuses() {
		if s == valid {
			return true
		}
	}
	return false
}

// ParseStatus parses user input. Empty means StatusAll.
func ParseStatus(value string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	if status == "" {
		return StatusAll, nil
	}
	if !status.IsValid() {
		return "", validation.FormatInvalidValueError(ErrInvalidStatus, Status(value), ValidStatuses())
	}
	return status, nil
}

// Filters narrow a board. Empty Contexts or Tags match everything.
type Filters struct {
	Contexts []string `json:"contexts,omitempty"`
	Status   Status   `json:"status,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Match reports whether t passes every filter. Tags match when t carries
// at least one of the selected tags.
func (f Filters) Match(t todo.Todo) bool {
	if len(f.Contexts) > 0 && !slices.Contains(f.Contexts, t.Context) {
		return false
	}
	switch f.Status {
	case StatusCompleted:
		if !t.IsCompleted() {
			return false
		}
	case StatusIncomplete:
		if t.IsCompleted() {
			return false
		}
	}
	if len(f.Tags) > 0 && !slices.ContainsFunc(t.Tags, func(tag string) bool {
		return slices.Contains(f.Tags, tag)
	}) {
		return false
	}
	return true
}

// key renders the filters canonically, ignoring selection order.
func (f Filters) key() string {
	contexts := slices.Clone(f.Contexts)
	slices.Sort(contexts)
	tags := slices.Clone(f.Tags)
	slices.Sort(tags)
	status := f.Status
	if status == "" {
		status = StatusAll
	}
	return fmt.Sprintf("contexts=%s;status=%s;tags=%s",
		strings.Join(slices.Compact(contexts), ","), status, strings.Join(slices.Compact(tags), ","))
}
