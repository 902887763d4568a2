package appointments

import "errors"

var (
	// ErrNotFound is returned when no appointment matches the id.
	ErrNotFound = errors.New("appointment not found")

	// ErrInvalidTimeRange is returned when end time is not after start time.
	ErrInvalidTimeRange = errors.New("end time must be after start time")

	// ErrDurationMismatch is returned when the stored duration disagrees with
	// the start/end delta beyond tolerance.
	ErrDurationMismatch = errors.New("duration does not match the scheduled time range")

	// ErrSlotUnavailable is returned when the candidate interval overlaps an
	// existing non-cancelled one-to-one booking for the expert.
	ErrSlotUnavailable = errors.New("slot unavailable")

	// ErrInvalidTransition is returned for an illegal status change.
	ErrInvalidTransition = errors.New("invalid appointment status transition")

	// ErrPaymentRequired is returned when an expert accepts a booking that
	// still awaits payment; confirmation is driven by reconciliation instead.
	ErrPaymentRequired = errors.New("appointment awaits payment")

	// ErrReasonRequired is returned when an administrative cancellation omits
	// the mandatory reason.
	ErrReasonRequired = errors.New("cancellation reason required")

	// ErrNotCompleted is returned when feedback targets a session that has
	// not completed.
	ErrNotCompleted = errors.New("appointment is not completed")

	// ErrInvalidRating is returned for a rating outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)
