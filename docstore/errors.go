package docstore

import (
	"errors"
	"fmt"
)

// Kind classifies a store failure.
type Kind string

const (
	// KindNotFound means the document does not exist.
	KindNotFound Kind = "not-found"

	// KindConflict means the write carried a stale revision.
	KindConflict Kind = "conflict"

	// KindNetwork means the store could not be reached. Retryable.
	KindNetwork Kind = "network"

	// KindQuotaExceeded means the store is out of space.
	KindQuotaExceeded Kind = "quota-exceeded"

	// KindPermissionDenied means the store refused access.
	KindPermissionDenied Kind = "permission-denied"

	// KindCorruption means the stored data is damaged.
	KindCorruption Kind = "corruption"

	// KindInvalidDocument means the document body was rejected.
	KindInvalidDocument Kind = "invalid-document"

	// KindUnknown is any other failure.
	KindUnknown Kind = "unknown"
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrNotFound         = errors.New("document not found")
	ErrConflict         = errors.New("document update conflict")
	ErrNetwork          = errors.New("store unreachable")
	ErrQuotaExceeded    = errors.New("store quota exceeded")
	ErrPermissionDenied = errors.New("store permission denied")
	ErrCorruption       = errors.New("store corrupted")
	ErrInvalidDocument  = errors.New("invalid document")
)

func (k Kind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindNetwork:
		return ErrNetwork
	case KindQuotaExceeded:
		return ErrQuotaExceeded
	case KindPermissionDenied:
		return ErrPermissionDenied
	case KindCorruption:
		return ErrCorruption
	case KindInvalidDocument:
		return ErrInvalidDocument
	default:
		return nil
	}
}

// Retryable reports whether an operation failing with this kind may succeed
// if tried again. Conflicts are retryable after reloading the document.
func (k Kind) Retryable() bool {
	return k == KindNetwork || k == KindConflict
}

// Error is a classified store failure.
type Error struct {
	Kind Kind
	Op   string
	ID   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.ID != "" {
		msg += " " + e.ID
	}
	msg += ": " + string(e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	sentinel := e.Kind.sentinel()
	return sentinel != nil && target == sentinel
}

// Retryable reports whether the operation may succeed if tried again.
func (e *Error) Retryable() bool {
	return e.Kind.Retryable()
}

func newError(kind Kind, op, id string, err error) *Error {
	return &Error{Kind: kind, Op: op, ID: id, Err: err}
}

// NewError returns a classified error. Backends outside this package use it.
func NewError(kind Kind, op, id string, err error) error {
	return newError(kind, op, id, err)
}

// KindOf returns the kind of err. Errors that are not store errors are
// KindUnknown; a nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is a retryable store error.
func IsRetryable(err error) bool {
	var storeErr *Error
	return errors.As(err, &storeErr) && storeErr.Retryable()
}

func conflictf(op, id, format string, args ...any) error {
	return newError(KindConflict, op, id, fmt.Errorf(format, args...))
}
