package store

import (
	"errors"
	"time"
)

// Operation names reported to an Observer.
const (
	OpCreate = "create"
	OpGet    = "get"
	OpList   = "list"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Outcome labels reported to an Observer.
const (
	OutcomeOK         = "ok"
	OutcomeValidation = "validation"
	OutcomeNotFound   = "not_found"
	OutcomeConflict   = "conflict"
	OutcomeError      = "error"
)

// Observer receives a callback after every store operation. It is called
// outside the store lock and must be safe for concurrent use.
type Observer interface {
	ObserveOperation(op, outcome string, duration time.Duration)
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) ObserveOperation(string, string, time.Duration) {}

// Outcome classifies err into one of the Outcome labels.
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	var (
		ne *NotFoundError
		ce *VersionConflictError
	)
	switch {
	case IsValidation(err):
		return OutcomeValidation
	case errors.As(err, &ne):
		return OutcomeNotFound
	case errors.As(err, &ce):
		return OutcomeConflict
	default:
		return OutcomeError
	}
}
