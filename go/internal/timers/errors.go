package timers

import "errors"

var (
	// ErrNotFound is returned when the named timer does not exist
	ErrNotFound = errors.New("timer not found")

	// ErrForbidden is returned when a team may not perform the requested turn action
	ErrForbidden = errors.New("team is not allowed to perform this action")

	// ErrStoreFailure wraps any error the record store returns that is not a known condition
	ErrStoreFailure = errors.New("timer store failure")

	// ErrConflict is returned by the compare-and-swap write policy when the row changed underneath us
	ErrConflict = errors.New("timer was modified concurrently")

	// ErrAlreadyExists is returned when creating a timer whose name is taken
	ErrAlreadyExists = errors.New("timer already exists")

	// ErrInvalidArgument is returned for malformed requests; nothing is written
	ErrInvalidArgument = errors.New("invalid argument")
)
