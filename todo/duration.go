package todo

import (
	"fmt"
	"strings"
	"time"
)

// ActiveDuration sums the length of every session. Running sessions are
// measured up to asOf.
func ActiveDuration(sessions Sessions, asOf time.Time) time.Duration {
	var total time.Duration
	for start, end := range sessions {
		total += sessionLength(start, end, asOf)
	}
	return total
}

// ActiveDurationOn sums the sessions whose start falls on day (YYYY-MM-DD in
// loc). A session crossing midnight counts entirely toward its start day.
func ActiveDurationOn(sessions Sessions, day string, asOf time.Time, loc *time.Location) time.Duration {
	var total time.Duration
	for start, end := range sessions {
		if DayString(start, loc) != day {
			continue
		}
		total += sessionLength(start, end, asOf)
	}
	return total
}

func sessionLength(start time.Time, end *time.Time, asOf time.Time) time.Duration {
	stop := asOf
	if end != nil {
		stop = *end
	}
	if stop.Before(start) {
		return 0
	}
	return stop.Sub(start)
}

const day = 24 * time.Hour

// FormatDuration renders a duration using d/h/m units. Units that are zero
// are omitted, and seconds are only shown for durations under a minute.
func FormatDuration(duration time.Duration) string {
	if duration < 0 {
		duration = 0
	}
	if duration < time.Minute {
		return fmt.Sprintf("%ds", int64(duration/time.Second))
	}

	days := duration / day
	duration -= days * day
	hours := duration / time.Hour
	duration -= hours * time.Hour
	minutes := duration / time.Minute

	parts := make([]string, 0, 3)
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	return strings.Join(parts, " ")
}
