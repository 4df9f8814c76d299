package board

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amonks/daybook/internal/validation"
	"github.com/amonks/daybook/todo"
	"github.com/amonks/daybook/view"
)

// ErrInvalidWindow is returned for an unknown window kind or bad custom dates.
var ErrInvalidWindow = errors.New("invalid window")

// WindowKind selects how a window resolves to dates.
type WindowKind string

const (
	CurrentDay   WindowKind = "current-day"
	CurrentWeek  WindowKind = "current-week"
	CurrentMonth WindowKind = "current-month"
	CurrentYear  WindowKind = "current-year"
	Custom       WindowKind = "custom"
	AllTime      WindowKind = "all-time"
)

// The all-time window is a fixed range so it uses the same range query as
// every other window.
const (
	AllTimeStart = "2000-01-01"
	AllTimeEnd   = "2099-12-31"
)

// ValidWindowKinds returns all valid window kinds.
func ValidWindowKinds() []WindowKind {
	return []WindowKind{CurrentDay, CurrentWeek, CurrentMonth, CurrentYear, Custom, AllTime}
}

// IsValid returns true if the window kind is known.
func (k WindowKind) IsValid() bool {
	for _, valid := range ValidWindowKinds() {
		if k == valid {
			return true
		}
	}
	return false
}

// Window is a user-selected time window. From and To are only used by
// Custom windows and are inclusive YYYY-MM-DD dates.
type Window struct {
	Kind WindowKind `json:"kind"`
	From string     `json:"from,omitempty"`
	To   string     `json:"to,omitempty"`
}

// ParseWindow builds a window from user input. An empty kind means
// CurrentWeek.
func ParseWindow(kind, from, to string) (Window, error) {
	k := WindowKind(strings.ToLower(strings.TrimSpace(kind)))
	if k == "" {
		k = CurrentWeek
	}
	if !k.IsValid() {
		return Window{}, validation.FormatInvalidValueError(ErrInvalidWindow, WindowKind(kind), ValidWindowKinds())
	}
	w := Window{Kind: k}
	if k == Custom {
		w.From = strings.TrimSpace(from)
		w.To = strings.TrimSpace(to)
	}
	return w, nil
}

// String renders the window for logs and request keys.
func (w Window) String() string {
	if w.Kind == Custom {
		return fmt.Sprintf("%s:%s..%s", w.Kind, w.From, w.To)
	}
	return string(w.Kind)
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Contains reports whether day (YYYY-MM-DD) falls inside the range.
func (r DateRange) Contains(day string) bool {
	return day >= r.Start && day <= r.End
}

// Resolve turns the window into calendar days, using now's date in loc.
func (w Window) Resolve(now time.Time, loc *time.Location) (DateRange, error) {
	if loc == nil {
		loc = time.UTC
	}
	year, month, day := now.In(loc).Date()
	today := time.Date(year, month, day, 12, 0, 0, 0, loc)

	switch w.Kind {
	case CurrentDay:
		return span(today, today), nil
	case CurrentWeek:
		offset := (int(today.Weekday()) + 6) % 7
		monday := today.AddDate(0, 0, -offset)
		return span(monday, monday.AddDate(0, 0, 6)), nil
	case CurrentMonth:
		first := time.Date(year, month, 1, 12, 0, 0, 0, loc)
		return span(first, first.AddDate(0, 1, -1)), nil
	case CurrentYear:
		first := time.Date(year, time.January, 1, 12, 0, 0, 0, loc)
		return span(first, first.AddDate(1, 0, -1)), nil
	case AllTime:
		return DateRange{Start: AllTimeStart, End: AllTimeEnd}, nil
	case Custom:
		from, err := time.ParseInLocation(todo.DateLayout, w.From, loc)
		if err != nil {
			return DateRange{}, fmt.Errorf("%w: from %q", ErrInvalidWindow, w.From)
		}
		to, err := time.ParseInLocation(todo.DateLayout, w.To, loc)
		if err != nil {
			return DateRange{}, fmt.Errorf("%w: to %q", ErrInvalidWindow, w.To)
		}
		if to.Before(from) {
			return DateRange{}, fmt.Errorf("%w: %s is before %s", ErrInvalidWindow, w.To, w.From)
		}
		return span(from, to), nil
	default:
		return DateRange{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidWindow, w.Kind)
	}
}

func span(start, end time.Time) DateRange {
	return DateRange{Start: start.Format(todo.DateLayout), End: end.Format(todo.DateLayout)}
}

// KeyRange is a half-open range of view keys.
type KeyRange struct {
	Start view.Key
	End   view.Key
}

// Keys converts the range to view keys: midnight starting Start through
// midnight after End, both taken in loc and rendered in UTC.
func (r DateRange) Keys(loc *time.Location) (KeyRange, error) {
	if loc == nil {
		loc = time.UTC
	}
	start, err := time.ParseInLocation(todo.DateLayout, r.Start, loc)
	if err != nil {
		return KeyRange{}, fmt.Errorf("%w: start %q", ErrInvalidWindow, r.Start)
	}
	end, err := time.ParseInLocation(todo.DateLayout, r.End, loc)
	if err != nil {
		return KeyRange{}, fmt.Errorf("%w: end %q", ErrInvalidWindow, r.End)
	}
	// AddDate keeps the wall clock at midnight across DST changes.
	end = end.AddDate(0, 0, 1)
	return KeyRange{Start: view.TimeKey(start), End: view.TimeKey(end)}, nil
}

// Options returns query options selecting the range.
func (k KeyRange) Options() view.QueryOptions {
	return view.QueryOptions{StartKey: view.KeyPtr(k.Start), EndKey: view.KeyPtr(k.End)}
}
