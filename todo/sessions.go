package todo

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Sessions maps the start of each tracked work session to its end.
// A nil end means the session is still running. Keys are normalized to
// UTC millisecond instants.
type Sessions map[time.Time]*time.Time

// Session is one tracked interval.
type Session struct {
	Start time.Time
	End   *time.Time
}

// IsRunning reports whether the session has no end yet.
func (s Session) IsRunning() bool {
	return s.End == nil
}

// Clone returns a deep copy of the sessions.
func (s Sessions) Clone() Sessions {
	clone := make(Sessions, len(s))
	for start, end := range s {
		clone[start] = cloneTime(end)
	}
	return clone
}

// Sorted returns the sessions ordered by start.
func (s Sessions) Sorted() []Session {
	sessions := make([]Session, 0, len(s))
	for start, end := range s {
		sessions = append(sessions, Session{Start: start, End: end})
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Start.Before(sessions[j].Start)
	})
	return sessions
}

// Running returns the start of the most recent running session.
func (s Sessions) Running() (time.Time, bool) {
	var latest time.Time
	found := false
	for start, end := range s {
		if end != nil {
			continue
		}
		if !found || start.After(latest) {
			latest = start
			found = true
		}
	}
	return latest, found
}

// RunningCount returns the number of sessions without an end.
func (s Sessions) RunningCount() int {
	count := 0
	for _, end := range s {
		if end == nil {
			count++
		}
	}
	return count
}

// Start returns a copy of s with a new running session beginning at at.
func (s Sessions) Start(at time.Time) (Sessions, error) {
	if _, ok := s.Running(); ok {
		return nil, ErrSessionRunning
	}
	at = instant(at)
	if _, exists := s[at]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSession, FormatISO(at))
	}
	next := s.Clone()
	next[at] = nil
	return next, nil
}

// Stop returns a copy of s with every running session ended at at.
// An end before its start is clamped to the start.
func (s Sessions) Stop(at time.Time) (Sessions, error) {
	if _, ok := s.Running(); !ok {
		return nil, ErrNoRunningSession
	}
	at = instant(at)
	next := s.Clone()
	for start, end := range next {
		if end != nil {
			continue
		}
		stop := at
		if stop.Before(start) {
			stop = start
		}
		next[start] = &stop
	}
	return next, nil
}

// MarshalJSON encodes sessions as an object of ISO start to ISO end or null.
func (s Sessions) MarshalJSON() ([]byte, error) {
	wire := make(map[string]*string, len(s))
	for start, end := range s {
		wire[FormatISO(start)] = formatOptionalISO(end)
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes sessions from an object of ISO start to ISO end or null.
func (s *Sessions) UnmarshalJSON(data []byte) error {
	var wire map[string]*string
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	decoded := make(Sessions, len(wire))
	for rawStart, rawEnd := range wire {
		start, err := ParseISO(rawStart)
		if err != nil {
			return fmt.Errorf("session start: %w", err)
		}
		end, err := parseOptionalISO(rawEnd)
		if err != nil {
			return fmt.Errorf("session end for %s: %w", rawStart, err)
		}
		decoded[start] = end
	}
	*s = decoded
	return nil
}
