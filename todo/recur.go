package todo

import (
	"errors"
	"time"

	"github.com/amonks/daybook/internal/validation"
)

// ErrInvalidAnchor is returned for an unknown recurrence anchor.
var ErrInvalidAnchor = errors.New("invalid recurrence anchor")

// Anchor selects the date a recurring todo's next due date is counted from.
type Anchor string

const (
	// AnchorDue counts from the completed occurrence's due date.
	AnchorDue Anchor = "due"

	// AnchorCompletion counts from the completion instant.
	AnchorCompletion Anchor = "completion"
)

// ValidAnchors returns all valid anchor values.
func ValidAnchors() []Anchor {
	return []Anchor{AnchorDue, AnchorCompletion}
}

// IsValid returns true if the anchor is a known value.
func (a Anchor) IsValid() bool {
	for _, valid := range ValidAnchors() {
		if a == valid {
			return true
		}
	}
	return false
}

// ParseAnchor parses a configured anchor. The empty string means AnchorDue.
func ParseAnchor(value string) (Anchor, error) {
	if value == "" {
		return AnchorDue, nil
	}
	anchor := Anchor(value)
	if !anchor.IsValid() {
		return "", validation.FormatInvalidValueError(ErrInvalidAnchor, anchor, ValidAnchors())
	}
	return anchor, nil
}

// RecurOptions carries the inputs to NextOccurrence that are not part of the todo.
type RecurOptions struct {
	// Now is the completion instant. It becomes the successor's id.
	Now time.Time

	// Anchor selects what the interval is counted from. Defaults to AnchorDue.
	Anchor Anchor

	// Location determines calendar days. Defaults to UTC.
	Location *time.Location
}

// NextOccurrence returns the successor of a completed recurring todo.
//
// Every field except the revision is copied. The successor has no sessions,
// is open, gets a fresh id from opts.Now and is due at the end of the day
// repeatDays days after the anchor.
func NextOccurrence(t Todo, repeatDays int, opts RecurOptions) Todo {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	anchor := t.Due
	if opts.Anchor == AnchorCompletion || anchor.IsZero() {
		anchor = opts.Now
	}
	local := anchor.In(loc)
	target := time.Date(local.Year(), local.Month(), local.Day()+repeatDays, 12, 0, 0, 0, loc)

	next := t.Clone()
	next.Rev = ""
	next.ID = successorID(t.ID, opts.Now)
	next.Due = EndOfDay(target, loc)
	next.Completed = nil
	next.Active = Sessions{}
	return next
}

// successorID derives an id from now that cannot collide with the source.
func successorID(sourceID string, now time.Time) string {
	id := FormatISO(now)
	if id <= sourceID {
		if source, err := ParseISO(sourceID); err == nil {
			id = FormatISO(source.Add(time.Millisecond))
		}
	}
	return id
}
