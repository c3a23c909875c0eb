package lock

import "errors"

var (
	// ErrNotAcquired is returned by Hold when the key stayed busy for every attempt.
	ErrNotAcquired = errors.New("lock not acquired")

	// ErrNotOwned is returned when a release finds the key expired and
	// possibly taken by another holder.
	ErrNotOwned = errors.New("lock not owned")
)
