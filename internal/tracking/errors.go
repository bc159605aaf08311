package tracking

import (
	"errors"
	"fmt"

	"github.com/banshee-data/trail.report/internal/geo"
)

// Precondition failures returned synchronously by the engine. None of them
// changes persisted state.
var (
	ErrAlreadyTracking   = errors.New("already tracking")
	ErrNoActiveSession   = errors.New("no active tracking session")
	ErrPermissionDenied  = errors.New("location permission not granted")
	ErrLocationDisabled  = errors.New("location services disabled")
	ErrInvalidCoordinate = errors.New("invalid coordinate")
)

// ErrRepositoryFailure matches any *RepositoryError under errors.Is.
var ErrRepositoryFailure = errors.New("repository failure")

// ErrSessionNotFound is returned by repositories for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// RepositoryError wraps a storage failure with the operation that caused it.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

func (e *RepositoryError) Is(target error) bool {
	return target == ErrRepositoryFailure
}

// ValidateCoordinate returns ErrInvalidCoordinate when lat or lon is out of
// range.
func ValidateCoordinate(lat, lon float64) error {
	if !geo.ValidCoordinate(lat, lon) {
		return fmt.Errorf("%w: latitude %f, longitude %f", ErrInvalidCoordinate, lat, lon)
	}
	return nil
}
