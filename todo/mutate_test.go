package todo

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestNewAppliesDefaults(t *testing.T) {
	now := time.Date(2026, 2, 10, 14, 5, 6, 789000000, time.UTC)

	got, err := New(NewOptions{
		Title: "  write   the report ",
		Tags:  []string{"work", " work", "", "q1"},
		Now:   now,
	})
	if err != nil {
		t.Fatalf("expected new to succeed, got %v", err)
	}

	want := Todo{
		ID:      "2026-02-10T14:05:06.789Z",
		Title:   "write the report",
		Context: DefaultContext,
		Due:     time.Date(2026, 2, 10, 23, 59, 59, int(999*time.Millisecond), time.UTC),
		Tags:    []string{"work", "q1"},
		Active:  Sessions{},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("new todo mismatch (-want +got):\n%s", diff)
	}
}

func TestNewValidates(t *testing.T) {
	now := time.Date(2026, 2, 10, 14, 0, 0, 0, time.UTC)
	zero := 0

	cases := []struct {
		name string
		opts NewOptions
		want error
	}{
		{name: "empty title", opts: NewOptions{Title: "  ", Now: now}, want: ErrEmptyTitle},
		{name: "long title", opts: NewOptions{Title: strings.Repeat("x", MaxTitleLength+1), Now: now}, want: ErrTitleTooLong},
		{name: "zero repeat", opts: NewOptions{Title: "x", Repeat: &zero, Now: now}, want: ErrInvalidRepeat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.opts); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestToggleCompletedWithRepeatProducesOneSuccessor(t *testing.T) {
	source := recurringTodo(t, 5)
	now := time.Date(2025, 1, 10, 17, 0, 0, 0, time.UTC)

	transition, err := ToggleCompleted(source, RecurOptions{Now: now})
	if err != nil {
		t.Fatalf("expected toggle to succeed, got %v", err)
	}
	if !transition.Completed {
		t.Fatalf("expected toggle to complete the todo")
	}
	if transition.Todo.Completed == nil || !transition.Todo.Completed.Equal(now) {
		t.Fatalf("expected completed at %s, got %v", now, transition.Todo.Completed)
	}
	if source.Completed != nil {
		t.Fatalf("expected source todo to be untouched")
	}
	if transition.Successor == nil {
		t.Fatalf("expected a successor")
	}
	if got := FormatISO(transition.Successor.Due); got != "2025-01-15T23:59:59.999Z" {
		t.Fatalf("expected successor due 2025-01-15T23:59:59.999Z, got %s", got)
	}
	if transition.Successor.Completed != nil || len(transition.Successor.Active) != 0 {
		t.Fatalf("expected successor to be open with no sessions")
	}

	reopened, err := ToggleCompleted(transition.Todo, RecurOptions{Now: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("expected reopen to succeed, got %v", err)
	}
	if reopened.Completed || reopened.Todo.Completed != nil {
		t.Fatalf("expected todo to be reopened")
	}
	if reopened.Successor != nil {
		t.Fatalf("expected reopening never to produce a successor")
	}
}

func TestToggleCompletedWithoutRepeat(t *testing.T) {
	source := recurringTodo(t, 1)
	source.Repeat = nil

	transition, err := ToggleCompleted(source, RecurOptions{Now: time.Date(2025, 1, 10, 17, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("expected toggle to succeed, got %v", err)
	}
	if transition.Successor != nil {
		t.Fatalf("expected no successor for a non-recurring todo")
	}
}

func TestCompleteStopsRunningSession(t *testing.T) {
	source := recurringTodo(t, 1)
	source.Repeat = nil
	start := time.Date(2025, 1, 10, 16, 0, 0, 0, time.UTC)
	source.Active[start] = nil
	now := start.Add(45 * time.Minute)

	transition, err := Complete(source, RecurOptions{Now: now})
	if err != nil {
		t.Fatalf("expected complete to succeed, got %v", err)
	}
	if !transition.StoppedSession {
		t.Fatalf("expected the running session to be stopped")
	}
	if transition.Todo.IsTracking() {
		t.Fatalf("expected no running session after completion")
	}
	if end := transition.Todo.Active[start]; end == nil || !end.Equal(now) {
		t.Fatalf("expected session to end at completion, got %v", end)
	}
	if !source.IsTracking() {
		t.Fatalf("expected source sessions to be untouched")
	}

	if _, err := Complete(transition.Todo, RecurOptions{Now: now}); err == nil {
		t.Fatalf("expected completing twice to fail")
	}
}

func TestToggleTracking(t *testing.T) {
	source := recurringTodo(t, 1)
	start := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	running, started, err := ToggleTracking(source, start)
	if err != nil || !started {
		t.Fatalf("expected tracking to start, got started=%v err=%v", started, err)
	}
	if !running.IsTracking() || source.IsTracking() {
		t.Fatalf("expected only the result to be tracking")
	}

	stopped, started, err := ToggleTracking(running, start.Add(time.Minute))
	if err != nil || started {
		t.Fatalf("expected tracking to stop, got started=%v err=%v", started, err)
	}
	if stopped.IsTracking() {
		t.Fatalf("expected tracking to be stopped")
	}
	if got := ActiveDurationOn(stopped.Active, "2025-01-10", start.Add(time.Hour), time.UTC); got != time.Minute {
		t.Fatalf("expected 1m tracked on 2025-01-10, got %s", got)
	}
}

func TestPatchApply(t *testing.T) {
	source := recurringTodo(t, 2)
	title := "  water   the plants "
	context := "garden"
	tags := []string{"a", "a", "b"}
	due := time.Date(2025, 2, 1, 23, 59, 59, 0, time.UTC)
	parent := "2024-12-31T00:00:00.000Z"

	got, err := Patch{
		Title:       &title,
		Context:     &context,
		Tags:        &tags,
		Due:         &due,
		ParentID:    &parent,
		ClearRepeat: true,
		ClearLink:   true,
	}.Apply(source)
	if err != nil {
		t.Fatalf("expected patch to succeed, got %v", err)
	}

	want := source.Clone()
	want.Title = "water the plants"
	want.Context = "garden"
	want.Tags = []string{"a", "b"}
	want.Due = due
	want.ParentID = &parent
	want.Repeat = nil
	want.Link = nil
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("patched todo mismatch (-want +got):\n%s", diff)
	}
	if source.Repeat == nil || source.Link == nil {
		t.Fatalf("expected source todo to be untouched")
	}
}

func TestPatchApplyRejectsInvalid(t *testing.T) {
	source := recurringTodo(t, 2)
	empty := ""
	self := source.ID
	negative := -1

	cases := []struct {
		name  string
		patch Patch
		want  error
	}{
		{name: "empty title", patch: Patch{Title: &empty}, want: ErrEmptyTitle},
		{name: "empty context", patch: Patch{Context: &empty}, want: ErrEmptyContext},
		{name: "self parent", patch: Patch{ParentID: &self}, want: ErrSelfParent},
		{name: "negative repeat", patch: Patch{Repeat: &negative}, want: ErrInvalidRepeat},
		{name: "zero due", patch: Patch{Due: &time.Time{}}, want: ErrInvalidDue},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.patch.Apply(source); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := (Patch{Repeat: &negative, ClearRepeat: true}).Apply(source); err == nil {
		t.Fatalf("expected conflicting repeat patch to fail")
	}
}

func TestPatchIsEmpty(t *testing.T) {
	if !(Patch{}).IsEmpty() {
		t.Fatalf("expected zero patch to be empty")
	}
	if (Patch{ClearLink: true}).IsEmpty() {
		t.Fatalf("expected clear patch not to be empty")
	}
}
