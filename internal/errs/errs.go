// Package errs holds the error kinds the service distinguishes at its boundary.
//
// Attempt level outcomes (compile errors, timeouts, crashes) are not errors,
// they travel inside the feedback. Everything here means the request itself
// failed.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrSandbox    = errors.New("sandbox error")
	ErrStore      = errors.New("store error")
)

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Sandbox(msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrSandbox, msg)
	}
	return fmt.Errorf("%w: %s: %w", ErrSandbox, msg, err)
}

func Store(msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrStore, msg)
	}
	return fmt.Errorf("%w: %s: %w", ErrStore, msg, err)
}

// Code is a short machine readable name for the kind of err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSandbox):
		return "sandbox_error"
	case errors.Is(err, ErrStore):
		return "store_error"
	default:
		return "internal_error"
	}
}
