package production

import (
	"errors"
	"fmt"

	"wotrack/internal/store"
)

// Kind classifies engine failures for callers that map them to responses.
type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindValidation    Kind = "validation"
	KindNotApplicable Kind = "not_applicable"
	KindCapacity      Kind = "capacity"
	KindConflict      Kind = "conflict"
)

// ErrorClassifier allows errors to declare their classification.
type ErrorClassifier interface {
	ErrorKind() string
}

// Error is returned by every engine operation that rejects its input.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) ErrorKind() string { return string(e.Kind) }

// Is matches the kind sentinels, so errors.Is(err, ErrCapacity) works for
// any capacity failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrValidation    = &Error{Kind: KindValidation}
	ErrNotApplicable = &Error{Kind: KindNotApplicable}
	ErrCapacity      = &Error{Kind: KindCapacity}
	ErrConflict      = &Error{Kind: KindConflict}
)

// KindOf returns the classification of err, or "" for unclassified errors.
func KindOf(err error) Kind {
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		return Kind(classifier.ErrorKind())
	}
	return ""
}

// Capacity scopes.
const (
	ScopeGlobal = "global"
	ScopeLocal  = "local"
	ScopePool   = "pool"
)

// CapacityError describes a rejected quantity. Attempted is the value that
// would have been stored (the in-use total for global checks), Limit the
// material pool and Available the headroom that remained.
type CapacityError struct {
	Scope     string
	ProcessID int64
	Attempted int
	Limit     int
	Available int
}

func (c *CapacityError) Error() string {
	switch c.Scope {
	case ScopeGlobal:
		return fmt.Sprintf("in-use total %d exceeds material pool %d (available %d)", c.Attempted, c.Limit, c.Available)
	case ScopeLocal:
		return fmt.Sprintf("completed quantity %d exceeds material pool %d", c.Attempted, c.Limit)
	default:
		return fmt.Sprintf("process %d has completed %d which a pool of %d would complete or exceed", c.ProcessID, c.Attempted, c.Limit)
	}
}

func notFound(op, format string, args ...any) error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

func invalid(op string, err error) error {
	return &Error{Kind: KindValidation, Op: op, Message: "invalid input", Err: err}
}

func notApplicable(op string, instanceID int64) error {
	return &Error{Kind: KindNotApplicable, Op: op,
		Message: fmt.Sprintf("instance %d is not a Motor instance and has no process tracking", instanceID)}
}

func capacity(op string, c *CapacityError) error {
	return &Error{Kind: KindCapacity, Op: op, Message: "capacity exceeded", Err: c}
}

// classify maps storage failures onto engine kinds. Already classified
// errors and store.ErrConflict pass through with their meaning intact.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return err
	}
	switch {
	case errors.Is(err, store.ErrConflict), store.IsBusy(err):
		return &Error{Kind: KindConflict, Op: op, Message: "concurrent update, retries exhausted", Err: err}
	case store.IsUniqueViolation(err):
		return &Error{Kind: KindConflict, Op: op, Message: "already exists", Err: err}
	case store.IsForeignKeyViolation(err):
		return &Error{Kind: KindNotFound, Op: op, Message: "referenced record does not exist", Err: err}
	case store.IsCheckViolation(err):
		return &Error{Kind: KindValidation, Op: op, Message: "value out of range", Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
