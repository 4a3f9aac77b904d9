package store

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ValidationError is returned when fields fail the store's policy.
type ValidationError struct {
	MissingFields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: missing required fields: %s", strings.Join(e.MissingFields, ", "))
}

// StatusCode returns the HTTP status code for this error.
func (e *ValidationError) StatusCode() int {
	return http.StatusBadRequest
}

// InvalidFieldError is returned when a field value cannot be stored as JSON.
type InvalidFieldError struct {
	Field string
	Err   error
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid value for field %q: %v", e.Field, e.Err)
}

func (e *InvalidFieldError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status code for this error.
func (e *InvalidFieldError) StatusCode() int {
	return http.StatusBadRequest
}

// NotFoundError is returned when no record has the requested id.
type NotFoundError struct {
	ID uint64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("record %d not found", e.ID)
}

// StatusCode returns the HTTP status code for this error.
func (e *NotFoundError) StatusCode() int {
	return http.StatusNotFound
}

// VersionConflictError is returned when an update names a stale version.
type VersionConflictError struct {
	ID       uint64
	Expected uint64
	Actual   uint64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("record %d: version conflict: expected %d, actual %d", e.ID, e.Expected, e.Actual)
}

// StatusCode returns the HTTP status code for this error.
func (e *VersionConflictError) StatusCode() int {
	return http.StatusConflict
}

// StatusCodeError is implemented by errors that carry an HTTP status.
type StatusCodeError interface {
	error
	StatusCode() int
}

// IsNotFound reports whether err is, or wraps, a *NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsConflict reports whether err is, or wraps, a *VersionConflictError.
func IsConflict(err error) bool {
	var e *VersionConflictError
	return errors.As(err, &e)
}

// IsValidation reports whether err is, or wraps, a *ValidationError or
// an *InvalidFieldError.
func IsValidation(err error) bool {
	var (
		ve *ValidationError
		fe *InvalidFieldError
	)
	return errors.As(err, &ve) || errors.As(err, &fe)
}
