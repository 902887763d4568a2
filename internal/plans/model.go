package plans

import (
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes single-session offerings from monthly plans.
type Kind string

const (
	KindSingle  Kind = "single"
	KindMonthly Kind = "monthly"
)

// SessionFormat describes how a session is delivered.
type SessionFormat string

const (
	FormatOneToOne  SessionFormat = "one_to_one"
	FormatOneToMany SessionFormat = "one_to_many"
)

// Plan is an expert-defined sellable offering. Once a booking references a
// plan the row is immutable; edits insert a replacement row and retire the
// original (SupersededBy).
type Plan struct {
	ID              uuid.UUID     `json:"id"`
	ExpertID        uuid.UUID     `json:"expert_id"`
	Kind            Kind          `json:"kind"`
	SessionFormat   SessionFormat `json:"session_format,omitempty"`
	DurationMinutes int           `json:"duration_minutes,omitempty"`
	PriceCents      int64         `json:"price_cents"`
	Currency        string        `json:"currency"`
	SessionsPerMonth int          `json:"sessions_per_month,omitempty"`

	// Recurring schedule for dynamic group sessions. Appointments in
	// one_to_many format inherit these at read time so the expert can move
	// the whole group without rewriting every instance.
	RecurringStartsAt *time.Time `json:"recurring_starts_at,omitempty"`
	RecurringEndsAt   *time.Time `json:"recurring_ends_at,omitempty"`

	Active       bool       `json:"active"`
	SupersededBy *uuid.UUID `json:"superseded_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Validate enforces the per-kind required fields before any write.
func (p *Plan) Validate() error {
	switch p.Kind {
	case KindSingle:
		if p.SessionFormat != FormatOneToOne && p.SessionFormat != FormatOneToMany {
			return ErrMissingSessionFormat
		}
		if p.DurationMinutes <= 0 {
			return ErrInvalidDuration
		}
	case KindMonthly:
		if p.SessionsPerMonth < 1 {
			return ErrInvalidSessionsPerMonth
		}
	default:
		return ErrInvalidKind
	}
	if p.PriceCents <= 0 {
		return ErrInvalidPrice
	}
	if p.ExpertID == uuid.Nil {
		return ErrMissingExpert
	}
	return nil
}

// IsRecurringGroup reports whether appointments under this plan share a
// plan-derived group room and schedule.
func (p *Plan) IsRecurringGroup() bool {
	return p.SessionFormat == FormatOneToMany && p.RecurringStartsAt != nil
}
