package todo

import (
	"fmt"
	"strings"
	"time"

	internalstrings "github.com/amonks/daybook/internal/strings"
)

// NewOptions configures a new todo.
type NewOptions struct {
	// Title is required.
	Title string

	// Description provides additional context.
	Description string

	// Context defaults to DefaultContext when empty.
	Context string

	// DefaultContext overrides the package default for an empty Context.
	DefaultContext string

	// Due defaults to the end of the creation day when zero.
	Due time.Time

	Tags     []string
	Repeat   *int
	Link     *string
	ParentID *string

	// Now is the creation instant. It becomes the id.
	Now time.Time

	// Location determines calendar days. Defaults to UTC.
	Location *time.Location
}

// New builds a todo at the latest generation with no sessions.
func New(opts NewOptions) (Todo, error) {
	if opts.Now.IsZero() {
		return Todo{}, fmt.Errorf("new todo: creation instant is required")
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	context := strings.TrimSpace(opts.Context)
	if context == "" {
		context = opts.DefaultContext
	}
	if context == "" {
		context = DefaultContext
	}
	due := opts.Due
	if due.IsZero() {
		due = EndOfDay(opts.Now, loc)
	}

	t := Todo{
		ID:          NewID(opts.Now),
		Title:       NormalizeTitle(opts.Title),
		Description: opts.Description,
		Context:     context,
		Due:         instant(due),
		Tags:        NormalizeTags(opts.Tags),
		Active:      Sessions{},
		Repeat:      cloneInt(opts.Repeat),
		Link:        normalizeOptional(opts.Link),
		ParentID:    normalizeOptional(opts.ParentID),
	}
	if err := Validate(t); err != nil {
		return Todo{}, err
	}
	return t, nil
}

// NormalizeTitle collapses runs of whitespace and trims the ends.
func NormalizeTitle(title string) string {
	return internalstrings.NormalizeWhitespace(title)
}

// NormalizeTags trims tags and drops empty and repeated ones, keeping the
// first occurrence's position.
func NormalizeTags(tags []string) []string {
	normalized := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		normalized = append(normalized, tag)
	}
	return normalized
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// Transition is the outcome of toggling a todo's completion.
type Transition struct {
	// Todo is the toggled todo.
	Todo Todo

	// Completed reports whether the toggle completed (rather than reopened) the todo.
	Completed bool

	// StoppedSession reports whether completing closed a running session.
	StoppedSession bool

	// Successor is the next occurrence of a recurring todo. It is only set
	// when an open todo with a repeat interval was completed.
	Successor *Todo
}

// ToggleCompleted completes an open todo or reopens a completed one.
//
// Completing closes any running session at opts.Now and, for recurring
// todos, produces exactly one successor. Reopening never produces one.
func ToggleCompleted(t Todo, opts RecurOptions) (Transition, error) {
	if t.IsCompleted() {
		next := t.Clone()
		next.Completed = nil
		return Transition{Todo: next}, nil
	}
	return Complete(t, opts)
}

// Complete marks an open todo completed at opts.Now.
func Complete(t Todo, opts RecurOptions) (Transition, error) {
	if t.IsCompleted() {
		return Transition{}, fmt.Errorf("complete %s: already completed", t.ID)
	}
	if opts.Now.IsZero() {
		return Transition{}, fmt.Errorf("complete %s: completion instant is required", t.ID)
	}

	next := t.Clone()
	result := Transition{Completed: true}
	if next.IsTracking() {
		active, err := next.Active.Stop(opts.Now)
		if err != nil {
			return Transition{}, fmt.Errorf("complete %s: %w", t.ID, err)
		}
		next.Active = active
		result.StoppedSession = true
	}
	completed := instant(opts.Now)
	next.Completed = &completed
	result.Todo = next

	if t.Repeat != nil {
		successor := NextOccurrence(t, *t.Repeat, opts)
		result.Successor = &successor
	}
	return result, nil
}

// ToggleTracking stops the running session, or starts one at now if none is
// running. started reports which happened.
func ToggleTracking(t Todo, now time.Time) (next Todo, started bool, err error) {
	next = t.Clone()
	if t.IsTracking() {
		next.Active, err = t.Active.Stop(now)
		if err != nil {
			return Todo{}, false, fmt.Errorf("stop tracking %s: %w", t.ID, err)
		}
		return next, false, nil
	}
	next.Active, err = t.Active.Start(now)
	if err != nil {
		return Todo{}, false, fmt.Errorf("start tracking %s: %w", t.ID, err)
	}
	return next, true, nil
}

// Patch describes a field update.
// Nil pointers mean "don't update this field".
type Patch struct {
	Title       *string
	Description *string
	Context     *string
	Due         *time.Time
	Tags        *[]string
	Repeat      *int
	Link        *string
	ParentID    *string

	// ClearRepeat, ClearLink and ClearParent unset the optional fields.
	ClearRepeat bool
	ClearLink   bool
	ClearParent bool
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Context == nil &&
		p.Due == nil && p.Tags == nil && p.Repeat == nil && p.Link == nil &&
		p.ParentID == nil && !p.ClearRepeat && !p.ClearLink && !p.ClearParent
}

// Apply returns a copy of t with the patch applied. The result is validated.
func (p Patch) Apply(t Todo) (Todo, error) {
	if p.Repeat != nil && p.ClearRepeat {
		return Todo{}, fmt.Errorf("patch: cannot both set and clear repeat")
	}
	if p.Link != nil && p.ClearLink {
		return Todo{}, fmt.Errorf("patch: cannot both set and clear link")
	}
	if p.ParentID != nil && p.ClearParent {
		return Todo{}, fmt.Errorf("patch: cannot both set and clear parent")
	}

	next := t.Clone()
	if p.Title != nil {
		next.Title = NormalizeTitle(*p.Title)
	}
	if p.Description != nil {
		next.Description = *p.Description
	}
	if p.Context != nil {
		next.Context = strings.TrimSpace(*p.Context)
	}
	if p.Due != nil {
		if p.Due.IsZero() {
			return Todo{}, ErrInvalidDue
		}
		next.Due = instant(*p.Due)
	}
	if p.Tags != nil {
		next.Tags = NormalizeTags(*p.Tags)
	}
	switch {
	case p.ClearRepeat:
		next.Repeat = nil
	case p.Repeat != nil:
		next.Repeat = cloneInt(p.Repeat)
	}
	switch {
	case p.ClearLink:
		next.Link = nil
	case p.Link != nil:
		next.Link = normalizeOptional(p.Link)
	}
	switch {
	case p.ClearParent:
		next.ParentID = nil
	case p.ParentID != nil:
		next.ParentID = normalizeOptional(p.ParentID)
	}

	if err := Validate(next); err != nil {
		return Todo{}, err
	}
	return next, nil
}
