package domain

import (
	"errors"
	"fmt"
)

// Lifecycle errors.
var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

// Malformed query input. These are detected before the store is touched.
var (
	ErrInvalidFilterField   = errors.New("invalid filter field")
	ErrInvalidFilterValue   = errors.New("invalid filter value")
	ErrUnsupportedOperator  = errors.New("unsupported filter operator")
	ErrInvalidSortField     = errors.New("invalid sort field")
	ErrInvalidSortDirection = errors.New("invalid sort direction")
	ErrInvalidRange         = errors.New("invalid range")
)

// ErrInvalidPayload marks a create/update payload that does not fit the kind's schema.
var ErrInvalidPayload = errors.New("invalid payload")

// ErrStorage wraps any lower-layer fault that is not otherwise classified.
var ErrStorage = errors.New("storage failure")

// IsMalformedQuery reports whether err stems from bad filter, sort or range input.
func IsMalformedQuery(err error) bool {
	for _, target := range []error{
		ErrInvalidFilterField,
		ErrInvalidFilterValue,
		ErrUnsupportedOperator,
		ErrInvalidSortField,
		ErrInvalidSortDirection,
		ErrInvalidRange,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Reason names the error class of err for logs and metrics labels.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case IsMalformedQuery(err):
		return "malformed_query"
	case errors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	}
	return "storage"
}

// Classify passes errors that already carry a domain kind through and wraps anything
// else as ErrStorage.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrNotFound, ErrAlreadyExists, ErrInvalidPayload, ErrStorage} {
		if errors.Is(err, known) {
			return err
		}
	}
	if IsMalformedQuery(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorage, err)
}
