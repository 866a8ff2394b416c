// Package errs defines the error taxonomy shared by the scripts, planner,
// and search compiler (spec.md §7). It follows the same sentinel-error
// plus typed-wrapper convention the storage layer it was grounded on uses
// (see sqlite/errors.go: ErrNotFound/ErrConflict plus wrapDBError).
package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every typed wrapper below satisfies errors.Is against
// exactly one of these via Unwrap, so callers can branch on errors.Is
// without caring whether they hold the sentinel or the richer wrapper.
var (
	ErrInvalidPayload            = errors.New("invalid_payload")
	ErrEntityNotFound             = errors.New("entity_not_found")
	ErrVersionConflict            = errors.New("version_conflict")
	ErrUniqueConstraintViolation  = errors.New("unique_constraint_violation")
	ErrVersionReadFailed          = errors.New("version_read_failed")
	ErrUnknownOperation           = errors.New("unknown_operation")
	ErrValidation                 = errors.New("validation")
	ErrInternal                   = errors.New("internal_error")
)

// Kind returns the short error-kind string spec.md §7 uses in JSON replies
// ("error" field), or "" if err does not match any known sentinel.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, ErrEntityNotFound):
		return "entity_not_found"
	case errors.Is(err, ErrVersionConflict):
		return "version_conflict"
	case errors.Is(err, ErrUniqueConstraintViolation):
		return "unique_constraint_violation"
	case errors.Is(err, ErrVersionReadFailed):
		return "version_read_failed"
	case errors.Is(err, ErrUnknownOperation):
		return "unknown_operation"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInternal):
		return "internal_error"
	default:
		return ""
	}
}

// VersionConflictError carries the expected/actual versions for
// errs.ErrVersionConflict (spec.md §7).
type VersionConflictError struct {
	Expected int
	Actual   int
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version_conflict: expected %d, actual %d", e.Expected, e.Actual)
}

func (e *VersionConflictError) Unwrap() error { return ErrVersionConflict }

// UniqueConstraintViolationError carries the offending fields/values and
// the id of the entity already holding the reservation (spec.md §7).
type UniqueConstraintViolationError struct {
	Fields           []string
	Values           []string
	ExistingEntityID string
}

func (e *UniqueConstraintViolationError) Error() string {
	return fmt.Sprintf("unique_constraint_violation: fields %v values %v already owned by %q",
		e.Fields, e.Values, e.ExistingEntityID)
}

func (e *UniqueConstraintViolationError) Unwrap() error { return ErrUniqueConstraintViolation }

// ValidationError carries the offending field path and rule name
// (planner-only, spec.md §4.6 rule 5).
type ValidationError struct {
	FieldPath string
	Rule      string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: field %q failed rule %q", e.FieldPath, e.Rule)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// wrap attaches op context to err while preserving errors.Is-compatibility
// with the sentinel err already wraps (or is).
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Wrap is the exported form of wrap, for callers outside this package that
// need the same "<op>: <sentinel/wrapper>" convention (e.g. script
// dispatch wrapping a store-level failure as ErrInternal).
func Wrap(op string, err error) error { return wrap(op, err) }

// Internal wraps err (or, if nil, a new message) as ErrInternal with op context.
func Internal(op string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", op, ErrInternal)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrInternal, err)
}
