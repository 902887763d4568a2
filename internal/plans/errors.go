package plans

import "errors"

var (
	// ErrPlanNotFound is returned when no plan matches the id.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrInvalidKind is returned for an unknown plan kind.
	ErrInvalidKind = errors.New("plan kind must be single or monthly")

	// ErrMissingSessionFormat is returned when a single plan omits the format.
	ErrMissingSessionFormat = errors.New("single plan requires a session format")

	// ErrInvalidSessionsPerMonth is returned when a monthly plan grants no sessions.
	ErrInvalidSessionsPerMonth = errors.New("monthly plan requires sessions per month >= 1")

	// ErrInvalidPrice is returned for a zero or negative price.
	ErrInvalidPrice = errors.New("plan price must be positive")

	// ErrInvalidDuration is returned for a zero or negative session duration.
	ErrInvalidDuration = errors.New("plan duration must be positive")

	// ErrMissingExpert is returned when the owning expert is not set.
	ErrMissingExpert = errors.New("plan requires an owning expert")
)
