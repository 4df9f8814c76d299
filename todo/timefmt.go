package todo

import (
	"fmt"
	"strings"
	"time"
)

// ISOLayout is the fixed-width instant format used for ids and view keys.
// Instants are always rendered in UTC with millisecond precision so that
// lexicographic order matches chronological order.
const ISOLayout = "2006-01-02T15:04:05.000Z07:00"

// DateLayout is the layout of calendar-day strings (e.g. "2026-02-10").
const DateLayout = "2006-01-02"

// FormatISO renders an instant in ISOLayout.
func FormatISO(t time.Time) string {
	return t.UTC().Format(ISOLayout)
}

// ParseISO parses an RFC 3339 instant with optional fractional seconds.
func ParseISO(value string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse instant %q: %w", value, err)
	}
	return instant(parsed), nil
}

// ParseDue parses user input for a due date. A bare date is normalized to
// the end of that day in loc; a full instant is kept as is.
func ParseDue(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrInvalidDue
	}
	if loc == nil {
		loc = time.UTC
	}
	if day, err := time.ParseInLocation(DateLayout, value, loc); err == nil {
		return EndOfDay(day, loc), nil
	}
	parsed, err := ParseISO(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDue, value)
	}
	return parsed, nil
}

// EndOfDay returns the last millisecond of t's calendar day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	year, month, day := t.In(loc).Date()
	return time.Date(year, month, day, 23, 59, 59, int(999*time.Millisecond), loc).UTC()
}

// StartOfDay returns midnight at the start of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	year, month, day := t.In(loc).Date()
	return time.Date(year, month, day, 0, 0, 0, 0, loc).UTC()
}

// DayString returns t's calendar day in loc as YYYY-MM-DD.
func DayString(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

// instant normalizes t to the precision stored in documents.
func instant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func formatOptionalISO(t *time.Time) *string {
	if t == nil {
		return nil
	}
	value := FormatISO(*t)
	return &value
}

func parseOptionalISO(value *string) (*time.Time, error) {
	if value == nil {
		return nil, nil
	}
	parsed, err := ParseISO(*value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
