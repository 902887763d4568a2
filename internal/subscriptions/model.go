package subscriptions

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks the subscription lifecycle.
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// period is how long a monthly purchase stays usable.
const period = 30 * 24 * time.Hour

// Subscription is one purchased month of a recurring plan. Its id doubles
// as the plan instance id stamped on every session booked under it, which
// is what makes session accounting derivable instead of stored.
type Subscription struct {
	ID       uuid.UUID `json:"id"`
	ClientID uuid.UUID `json:"client_id"`
	ExpertID uuid.UUID `json:"expert_id"`
	PlanID   uuid.UUID `json:"plan_id"`

	SessionsTotal int    `json:"sessions_total"`
	PriceCents    int64  `json:"price_cents"`
	Currency      string `json:"currency"`
	AutoRenew     bool   `json:"auto_renew"`

	Status        Status     `json:"status"`
	PurchasedAt   time.Time  `json:"purchased_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	NextBillingAt *time.Time `json:"next_billing_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy   string     `json:"cancelled_by,omitempty"`
	CancelReason  string     `json:"cancel_reason,omitempty"`

	ExpiringNotifiedAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ledger is the derived session accounting for one subscription. Used and
// remaining are always computed from the sibling appointments, never from
// a stored counter that could drift.
type Ledger struct {
	SubscriptionID    uuid.UUID `json:"subscription_id"`
	Status            Status    `json:"status"`
	SessionsTotal     int       `json:"sessions_total"`
	SessionsUsed      int       `json:"sessions_used"`
	SessionsPending   int       `json:"sessions_pending"`
	SessionsRemaining int       `json:"sessions_remaining"`
	ExpiresAt         time.Time `json:"expires_at"`
}
