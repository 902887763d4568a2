package payments

import "errors"

var (
	// ErrOrderNotFound is returned when no order matches the lookup.
	ErrOrderNotFound = errors.New("payment order not found")

	// ErrInvalidSignature is returned when a webhook signature does not
	// verify against the shared secret.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrMissingTarget is returned when an order references neither an
	// appointment nor a plan instance.
	ErrMissingTarget = errors.New("order must target an appointment or a plan instance")

	// ErrNothingToPay is returned when an order would be created for a zero
	// amount.
	ErrNothingToPay = errors.New("nothing to pay")
)
