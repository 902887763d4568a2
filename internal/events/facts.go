package events

import "time"

// FactKind enumerates the notification facts the core emits. Delivery
// mechanics (templates, email/push, retries) belong to the notification
// collaborator; the core only decides that a fact fired and with what
// payload.
type FactKind string

const (
	KindReminder  FactKind = "reminder"
	KindImminent  FactKind = "imminent"
	KindConfirmed FactKind = "confirmed"
	KindCancelled FactKind = "cancelled"
	KindRefundDue FactKind = "refund_due"
	KindExpiring  FactKind = "expiring"
	KindExpired   FactKind = "expired"
	KindStale     FactKind = "stale"
)

// Audience selects who the fact is addressed to.
type Audience string

const (
	AudienceClient Audience = "client"
	AudienceExpert Audience = "expert"
)

// Fact is the structured payload handed to the notification collaborator.
type Fact struct {
	Kind           FactKind  `json:"kind"`
	AppointmentID  string    `json:"appointment_id,omitempty"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	ClientID       string    `json:"client_id,omitempty"`
	ExpertID       string    `json:"expert_id,omitempty"`
	Audience       Audience  `json:"audience,omitempty"`
	StartsAt       *time.Time `json:"starts_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}
