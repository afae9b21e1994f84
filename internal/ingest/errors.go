package ingest

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidURL          = errors.New("invalid feed url")
	ErrUnsupportedProtocol = errors.New("only http and https feed urls are supported")
	ErrHostNotAllowed      = errors.New("feed host is not allowed")
	ErrInvalidCollection   = errors.New("invalid collection name")
)

// Kind classifies pipeline failures. Metadata failures are logged and
// swallowed; every other kind propagates to the caller.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindFetch
	KindMetadata
	KindStoreWrite
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindFetch:
		return "fetch"
	case KindMetadata:
		return "metadata"
	case KindStoreWrite:
		return "store_write"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Recoverable reports whether the pipeline may continue past this error.
func (e *Error) Recoverable() bool {
	return e.Kind == KindMetadata
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func validationErrorf(sentinel error, format string, args ...any) *Error {
	return newError(KindValidation, "validate", fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...))
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind, true
	}
	return 0, false
}

// IsValidation reports whether err was rejected before any network call.
func IsValidation(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindValidation
}
