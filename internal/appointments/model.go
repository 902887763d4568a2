package appointments

import (
	"time"

	"github.com/google/uuid"

	"github.com/careconnect/telehealth-platform/internal/plans"
)

// Status tracks the appointment lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
)

// PaymentStatus tracks the money side of a booking.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Method specifies how the consultation is conducted.
type Method string

const (
	MethodVideo    Method = "video"
	MethodAudio    Method = "audio"
	MethodChat     Method = "chat"
	MethodInPerson Method = "in_person"
)

// durationTolerance is the allowed drift between the stored duration and
// the start/end delta.
const durationTolerance = time.Minute

// Appointment is one scheduled session between a client and an expert.
type Appointment struct {
	ID       uuid.UUID `json:"id"`
	ClientID uuid.UUID `json:"client_id"`
	ExpertID uuid.UUID `json:"expert_id"`

	ScheduledDate   time.Time           `json:"scheduled_date"`
	StartTime       time.Time           `json:"start_time"`
	EndTime         time.Time           `json:"end_time"`
	DurationMinutes int                 `json:"duration_minutes"`
	Method          Method              `json:"method"`
	SessionFormat   plans.SessionFormat `json:"session_format"`

	Status        Status        `json:"status"`
	PriceCents    int64         `json:"price_cents"`
	Currency      string        `json:"currency"`
	PaymentStatus PaymentStatus `json:"payment_status"`

	PlanID         *uuid.UUID `json:"plan_id,omitempty"`
	PlanInstanceID *uuid.UUID `json:"plan_instance_id,omitempty"`
	SessionNumber  int        `json:"session_number,omitempty"`
	TotalSessions  int        `json:"total_sessions,omitempty"`
	GroupSessionID *uuid.UUID `json:"group_session_id,omitempty"`

	ChannelName *string `json:"channel_name,omitempty"`

	CancelledBy  string `json:"cancelled_by,omitempty"`
	CancelReason string `json:"cancel_reason,omitempty"`

	Rating          *int    `json:"rating,omitempty"`
	FeedbackComment *string `json:"feedback_comment,omitempty"`

	ClientReminderSentAt *time.Time `json:"client_reminder_sent_at,omitempty"`
	ExpertReminderSentAt *time.Time `json:"expert_reminder_sent_at,omitempty"`
	ImminentNotifiedAt   *time.Time `json:"imminent_notified_at,omitempty"`
	StaleNotifiedAt      *time.Time `json:"stale_notified_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// validTransitions is the authoritative state machine. Terminal states have
// no outgoing edges; everything absent here fails with ErrInvalidTransition.
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled, StatusRejected},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether from → to is a legal lifecycle move.
func CanTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition for an illegal move, so
// callers fail loudly instead of silently coercing.
func CheckTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return ErrInvalidTransition
	}
	return nil
}

// IsTerminal reports whether the status has no outgoing transitions.
func (s Status) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// ValidateTimes enforces the time-range invariants. Dynamic group sessions
// inherit their timing from the plan's recurring schedule, so their stored
// times are not held to the duration check.
func ValidateTimes(start, end time.Time, durationMinutes int, dynamicGroup bool) error {
	if dynamicGroup {
		return nil
	}
	if !end.After(start) {
		return ErrInvalidTimeRange
	}
	delta := end.Sub(start)
	want := time.Duration(durationMinutes) * time.Minute
	drift := delta - want
	if drift < 0 {
		drift = -drift
	}
	if drift > durationTolerance {
		return ErrDurationMismatch
	}
	return nil
}
