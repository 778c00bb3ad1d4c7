package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure by where it originated
type ErrorKind string

// Error kinds
const (
	// KindParse is returned when document structure could not be extracted
	KindParse ErrorKind = "parse"
	// KindClassification marks a missing task boundary where one was expected
	KindClassification ErrorKind = "classification"
	// KindProvider covers network, timeout and quota failures of the suggestion provider
	KindProvider ErrorKind = "provider"
	// KindExecution is a sandboxed program error; it is evidence, not a failure
	KindExecution ErrorKind = "execution"
	// KindEnvironment means the sandbox itself could not be provisioned or timed out
	KindEnvironment ErrorKind = "environment"
	// KindComposition is returned when an insertion target cannot be resolved
	KindComposition ErrorKind = "composition"
	// KindValidation is returned for rejected input
	KindValidation ErrorKind = "validation"
	// KindConflict is returned when a state change collides with another one
	KindConflict ErrorKind = "conflict"
	// KindNotFound is returned when a referenced record does not exist
	KindNotFound ErrorKind = "not_found"
)

// Sentinel errors shared across packages
var (
	ErrParse             = errors.New("document could not be parsed")
	ErrUnsupportedFile   = errors.New("unsupported file type")
	ErrTaskBusy          = errors.New("task already has an execution in flight")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotTerminal       = errors.New("task has not reached a terminal state")
	ErrInsertionTarget   = errors.New("insertion target cannot be resolved")
	ErrTimeout           = errors.New("execution timed out")
	ErrNoCode            = errors.New("no code available to execute")
	ErrConfidence        = errors.New("confidence out of range")
	ErrNotFound          = errors.New("record not found")
)

// Error carries the originating kind of a failure through wrapping layers
type Error struct {
	Kind      ErrorKind
	Op        string
	Retryable bool
	Err       error
}

// NewError builds an Error for the given kind and operation
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NewRetryableError builds an Error that the caller may retry manually
func NewRetryableError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err, Retryable: true}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether err carries a retryable *Error
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
