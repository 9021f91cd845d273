package core

import "github.com/pkg/errors"

var (
	// document store errors
	ErrDocNotFound       = errors.New("document not found")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrTooManyValues     = errors.Errorf("membership filters accept at most %d values", MaxDisjunctionValues)
	ErrInvalidPath       = errors.New("invalid document path")
	ErrUnsupportedFilter = errors.New("unsupported filter operator")
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}

// IsPermissionDenied reports whether the root cause of err is ErrPermissionDenied.
func IsPermissionDenied(err error) bool {
	return errors.Cause(err) == ErrPermissionDenied
}

// IsNotFound reports whether the root cause of err is ErrDocNotFound.
func IsNotFound(err error) bool {
	return errors.Cause(err) == ErrDocNotFound
}
