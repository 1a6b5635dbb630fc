package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates an entity is absent or inactive.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates a malformed phase, move type, position or bounds.
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates a spatial overlap with existing devices.
	ErrConflict = errors.New("conflict detected")

	// ErrInternal indicates a storage or transaction failure.
	ErrInternal = errors.New("internal error")
)

// ErrorKind classifies an error for callers
type ErrorKind string

const (
	KindNotFound   ErrorKind = "NOT_FOUND"
	KindValidation ErrorKind = "VALIDATION_ERROR"
	KindConflict   ErrorKind = "CONFLICT"
	KindInternal   ErrorKind = "INTERNAL"
)

// ConflictError carries the devices a placement collides with
type ConflictError struct {
	RackID  string
	Phase   Phase
	Devices []Device
}

func (e *ConflictError) Error() string {
	ids := make([]string, 0, len(e.Devices))
	for _, d := range e.Devices {
		ids = append(ids, d.ID)
	}
	return fmt.Sprintf("%s: rack %s in %s overlaps %s", ErrConflict, e.RackID, e.Phase, strings.Join(ids, ", "))
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// KindOf classifies err. Unclassified errors are internal.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	}
	return KindInternal
}

// Internal wraps a storage failure so it classifies as ErrInternal
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindInternal || errors.Is(err, ErrInternal) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}
