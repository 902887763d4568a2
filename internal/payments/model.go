package payments

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus tracks a payment order through the gateway.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderFailed     OrderStatus = "failed"
	OrderRefunded   OrderStatus = "refunded"
	OrderCancelled  OrderStatus = "cancelled"
)

// Order is one payment attempt against the gateway. Exactly one of
// AppointmentID and PlanInstanceID is set: single bookings pay per
// appointment, subscription purchases pay for the whole sibling set.
type Order struct {
	ID       uuid.UUID `json:"id"`
	ClientID uuid.UUID `json:"client_id"`

	AppointmentID  *uuid.UUID `json:"appointment_id,omitempty"`
	PlanInstanceID *uuid.UUID `json:"plan_instance_id,omitempty"`

	AmountCents int64       `json:"amount_cents"`
	Currency    string      `json:"currency"`
	Status      OrderStatus `json:"status"`

	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id,omitempty"`
	FailureReason    string `json:"failure_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
