package billing

import "errors"

var (
	// ErrInvalidArgument reports a caller bug such as an empty lookup key.
	// It is never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned when no subscription matches a user or
	// gateway customer id.
	ErrNotFound = errors.New("subscription not found")

	// ErrConflict is returned when a record already exists for a user or
	// gateway customer.
	ErrConflict = errors.New("subscription already exists")
)
