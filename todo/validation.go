package todo

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidDocument is returned when a stored document matches no known generation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrEmptyTitle is returned when a todo title is empty.
	ErrEmptyTitle = errors.New("title cannot be empty")

	// ErrTitleTooLong is returned when a todo title exceeds MaxTitleLength.
	ErrTitleTooLong = errors.New("title exceeds maximum length")

	// ErrEmptyContext is returned when a todo has no context.
	ErrEmptyContext = errors.New("context cannot be empty")

	// ErrInvalidDue is returned when a due date is missing or malformed.
	ErrInvalidDue = errors.New("invalid due date")

	// ErrInvalidRepeat is returned when a repeat interval is not positive.
	ErrInvalidRepeat = errors.New("repeat must be a positive number of days")

	// ErrSelfParent is returned when a todo names itself as its parent.
	ErrSelfParent = errors.New("todo cannot be its own parent")

	// ErrSessionRunning is returned when starting a session while one is running.
	ErrSessionRunning = errors.New("a session is already running")

	// ErrNoRunningSession is returned when stopping without a running session.
	ErrNoRunningSession = errors.New("no session is running")

	// ErrDuplicateSession is returned when a session already starts at the same instant.
	ErrDuplicateSession = errors.New("a session already starts at this instant")

	// ErrMultipleRunningSessions is returned when more than one session has no end.
	ErrMultipleRunningSessions = errors.New("only one session may be running")

	// ErrTodoNotFound is returned when a todo with the given ID doesn't exist.
	ErrTodoNotFound = errors.New("todo not found")

	// ErrAmbiguousTodoIDPrefix is returned when an ID prefix matches multiple todos.
	ErrAmbiguousTodoIDPrefix = errors.New("ambiguous todo ID prefix")
)

// InvalidDocumentError describes why a document could not be decoded.
type InvalidDocumentError struct {
	ID     string
	Reason string
}

func (e *InvalidDocumentError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("invalid document: %s", e.Reason)
	}
	return fmt.Sprintf("invalid document %s: %s", e.ID, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidDocument) match.
func (e *InvalidDocumentError) Is(target error) bool {
	return target == ErrInvalidDocument
}

func invalidDocument(id, format string, args ...any) error {
	return &InvalidDocumentError{ID: id, Reason: fmt.Sprintf(format, args...)}
}

// ValidateTitle checks if the title is valid.
func ValidateTitle(title string) error {
	if title == "" {
		return ErrEmptyTitle
	}
	if len(title) > MaxTitleLength {
		return fmt.Errorf("%w: %d > %d", ErrTitleTooLong, len(title), MaxTitleLength)
	}
	return nil
}

// ValidateRepeat checks if a repeat interval is valid.
func ValidateRepeat(repeat *int) error {
	if repeat != nil && *repeat <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidRepeat, *repeat)
	}
	return nil
}

// Validate checks the invariants every persisted todo must satisfy.
func Validate(t Todo) error {
	if t.ID == "" {
		return fmt.Errorf("todo id cannot be empty")
	}
	if err := ValidateTitle(t.Title); err != nil {
		return err
	}
	if t.Context == "" {
		return ErrEmptyContext
	}
	if t.Due.IsZero() {
		return ErrInvalidDue
	}
	if err := ValidateRepeat(t.Repeat); err != nil {
		return err
	}
	if t.ParentID != nil && *t.ParentID == t.ID {
		return ErrSelfParent
	}
	if t.Active.RunningCount() > 1 {
		return ErrMultipleRunningSessions
	}
	return nil
}

func validCreationID(id string) (time.Time, bool) {
	created, err := ParseISO(id)
	if err != nil {
		return time.Time{}, false
	}
	return created, true
}
