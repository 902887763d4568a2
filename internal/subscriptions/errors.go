package subscriptions

import "errors"

var (
	// ErrNotFound is returned when no subscription matches the id.
	ErrNotFound = errors.New("subscription not found")

	// ErrNotActive is returned when an operation needs an active
	// subscription but it is cancelled or expired.
	ErrNotActive = errors.New("subscription is not active")

	// ErrNotMonthly is returned when a purchase targets a plan that is not
	// a monthly subscription plan.
	ErrNotMonthly = errors.New("plan is not a monthly subscription")
)
