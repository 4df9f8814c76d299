// Package todo implements the daybook todo document.
//
// Todos live in a replicated document store. Every document carries the
// schema generation it was written with; readers decode whichever
// generation they find and walk it forward with [Migrate] before any other
// code touches it, so the rest of the program only ever sees the latest
// shape ([Todo]).
//
// The package is pure: nothing here performs I/O or reads the wall clock.
// Callers pass "now" explicitly so one computation never observes two
// different instants.
//
// The public API is organized by concern:
//   - Decode, Migrate, MigrateAll, IsLatest for the version chain
//   - ActiveDuration, ActiveDurationOn, FormatDuration for time tracking
//   - NextOccurrence for recurring items
//   - New, ToggleCompleted, ToggleTracking, Patch.Apply for mutations
package todo

import (
	"encoding/json"
	"fmt"
	"time"
)

// Version identifies a schema generation.
type Version string

const (
	// VersionAlpha1 is the original, unversioned document shape.
	VersionAlpha1 Version = "alpha1"

	// VersionAlpha2 adds due dates and contexts.
	VersionAlpha2 Version = "alpha2"

	// VersionAlpha3 adds links and parent ids.
	VersionAlpha3 Version = "alpha3"

	// LatestVersion is the generation every in-memory todo is migrated to.
	LatestVersion = VersionAlpha3
)

// ValidVersions returns every known generation, oldest first.
func ValidVersions() []Version {
	return []Version{VersionAlpha1, VersionAlpha2, VersionAlpha3}
}

// IsValid returns true if the version is a known generation.
func (v Version) IsValid() bool {
	for _, valid := range ValidVersions() {
		if v == valid {
			return true
		}
	}
	return false
}

// DefaultContext is used when neither configuration nor the caller supplies one.
const DefaultContext = "private"

// MaxTitleLength is the maximum allowed length for a todo title.
const MaxTitleLength = 500

// Todo is a todo document at the latest schema generation.
type Todo struct {
	// ID is the creation instant in ISO form. It doubles as the creation-order key.
	ID string `json:"id"`

	// Rev is the store revision the todo was read with.
	Rev string `json:"rev,omitempty"`

	// Title is the short summary of the todo.
	Title string `json:"title"`

	// Description is free-form markdown.
	Description string `json:"description"`

	// Context is the grouping dimension on the board (e.g. "work").
	Context string `json:"context"`

	// Due is when the todo is due. Always a full instant.
	Due time.Time `json:"due"`

	// Completed is when the todo was completed (nil while open).
	Completed *time.Time `json:"completed"`

	// Tags are labels; order is kept, duplicates are dropped on write.
	Tags []string `json:"tags"`

	// Active holds tracked work sessions.
	Active Sessions `json:"active"`

	// Repeat is the recurrence interval in days (nil if not recurring).
	Repeat *int `json:"repeat"`

	// Link is an optional URL.
	Link *string `json:"link"`

	// ParentID is the id of the parent todo (nil for top-level todos).
	ParentID *string `json:"parentId"`
}

// IsCompleted reports whether the todo has been completed.
func (t Todo) IsCompleted() bool {
	return t.Completed != nil
}

// IsTracking reports whether a session is currently running.
func (t Todo) IsTracking() bool {
	_, ok := t.Active.Running()
	return ok
}

// Clone returns a deep copy of the todo.
func (t Todo) Clone() Todo {
	clone := t
	clone.Completed = cloneTime(t.Completed)
	clone.Tags = append([]string{}, t.Tags...)
	clone.Active = t.Active.Clone()
	clone.Repeat = cloneInt(t.Repeat)
	clone.Link = cloneString(t.Link)
	clone.ParentID = cloneString(t.ParentID)
	return clone
}

// wireTodo is the stored body of an alpha3 document.
type wireTodo struct {
	Version     Version  `json:"version"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Context     string   `json:"context"`
	Due         string   `json:"due"`
	Completed   *string  `json:"completed"`
	Tags        []string `json:"tags"`
	Active      Sessions `json:"active"`
	Repeat      *int     `json:"repeat"`
	Link        *string  `json:"link"`
	ParentID    *string  `json:"parentId"`
}

// Encode returns the stored document body for a todo.
// The id and revision travel outside the body.
func Encode(t Todo) ([]byte, error) {
	if err := Validate(t); err != nil {
		return nil, err
	}
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	active := t.Active
	if active == nil {
		active = Sessions{}
	}
	body, err := json.Marshal(wireTodo{
		Version:     LatestVersion,
		Title:       t.Title,
		Description: t.Description,
		Context:     t.Context,
		Due:         FormatISO(t.Due),
		Completed:   formatOptionalISO(t.Completed),
		Tags:        tags,
		Active:      active,
		Repeat:      t.Repeat,
		Link:        t.Link,
		ParentID:    t.ParentID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode todo %s: %w", t.ID, err)
	}
	return body, nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	value := *t
	return &value
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	value := *v
	return &value
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	value := *v
	return &value
}
