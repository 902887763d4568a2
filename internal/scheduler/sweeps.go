package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/careconnect/telehealth-platform/internal/appointments"
	"github.com/careconnect/telehealth-platform/internal/events"
	"github.com/careconnect/telehealth-platform/internal/subscriptions"
)

// Sweep is one periodic pass over due rows. Run returns how many rows this
// pass handled; claiming is the store's job, so overlapping runs are safe.
type Sweep interface {
	Name() string
	Run(ctx context.Context, now time.Time) (int, error)
}

// FactSink records notification facts for asynchronous delivery.
type FactSink interface {
	InsertFact(ctx context.Context, fact events.Fact) (uuid.UUID, error)
}

// AppointmentSweeper is the slice of the appointment store the sweeps use.
type AppointmentSweeper interface {
	ClaimReminderDue(ctx context.Context, audience events.Audience, now time.Time, lead time.Duration, limit int32) ([]appointments.SweepClaim, error)
	ClaimImminent(ctx context.Context, now time.Time, lead time.Duration, limit int32) ([]appointments.SweepClaim, error)
	CompleteElapsed(ctx context.Context, now time.Time, limit int32) ([]uuid.UUID, error)
	ClaimStalePending(ctx context.Context, now time.Time, olderThan time.Duration, limit int32) ([]appointments.SweepClaim, error)
}

// SubscriptionSweeper is the slice of the subscription store the sweeps use.
type SubscriptionSweeper interface {
	ClaimExpiring(ctx context.Context, now time.Time, lead time.Duration, limit int32) ([]subscriptions.ExpiryClaim, error)
	ExpireDue(ctx context.Context, now time.Time, limit int32) ([]subscriptions.ExpiryClaim, error)
}

// ReminderSweep sends session reminders to one audience ahead of the start.
type ReminderSweep struct {
	store    AppointmentSweeper
	facts    FactSink
	audience events.Audience
	lead     time.Duration
	batch    int32
}

// NewReminderSweep creates the reminder sweep for one audience.
func NewReminderSweep(store AppointmentSweeper, facts FactSink, audience events.Audience, lead time.Duration, batch int32) *ReminderSweep {
	return &ReminderSweep{store: store, facts: facts, audience: audience, lead: lead, batch: batch}
}

func (s *ReminderSweep) Name() string { return "reminder_" + string(s.audience) }

func (s *ReminderSweep) Run(ctx context.Context, now time.Time) (int, error) {
	claims, err := s.store.ClaimReminderDue(ctx, s.audience, now, s.lead, s.batch)
	if err != nil {
		return 0, err
	}
	for _, c := range claims {
		start := c.StartTime
		if _, err := s.facts.InsertFact(ctx, events.Fact{
			Kind:          events.KindReminder,
			AppointmentID: c.ID.String(),
			ClientID:      c.ClientID.String(),
			ExpertID:      c.ExpertID.String(),
			Audience:      s.audience,
			StartsAt:      &start,
			OccurredAt:    now,
		}); err != nil {
			return len(claims), err
		}
	}
	return len(claims), nil
}

// ImminentSweep notifies both parties shortly before a session starts.
type ImminentSweep struct {
	store AppointmentSweeper
	facts FactSink
	lead  time.Duration
	batch int32
}

// NewImminentSweep creates the session-about-to-start sweep.
func NewImminentSweep(store AppointmentSweeper, facts FactSink, lead time.Duration, batch int32) *ImminentSweep {
	return &ImminentSweep{store: store, facts: facts, lead: lead, batch: batch}
}

func (s *ImminentSweep) Name() string { return "imminent" }

func (s *ImminentSweep) Run(ctx context.Context, now time.Time) (int, error) {
	claims, err := s.store.ClaimImminent(ctx, now, s.lead, s.batch)
	if err != nil {
		return 0, err
	}
	for _, c := range claims {
		start := c.StartTime
		for _, aud := range []events.Audience{events.AudienceClient, events.AudienceExpert} {
			if _, err := s.facts.InsertFact(ctx, events.Fact{
				Kind:          events.KindImminent,
				AppointmentID: c.ID.String(),
				ClientID:      c.ClientID.String(),
				ExpertID:      c.ExpertID.String(),
				Audience:      aud,
				StartsAt:      &start,
				OccurredAt:    now,
			}); err != nil {
				return len(claims), err
			}
		}
	}
	return len(claims), nil
}

// CompletionSweep settles confirmed sessions whose end time has passed.
type CompletionSweep struct {
	store AppointmentSweeper
	batch int32
}

// NewCompletionSweep creates the completion sweep.
func NewCompletionSweep(store AppointmentSweeper, batch int32) *CompletionSweep {
	return &CompletionSweep{store: store, batch: batch}
}

func (s *CompletionSweep) Name() string { return "completion" }

func (s *CompletionSweep) Run(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.store.CompleteElapsed(ctx, now, s.batch)
	return len(ids), err
}

// StaleSweep nudges experts about booking requests stuck in pending.
type StaleSweep struct {
	store AppointmentSweeper
	facts FactSink
	after time.Duration
	batch int32
}

// NewStaleSweep creates the stale-pending sweep.
func NewStaleSweep(store AppointmentSweeper, facts FactSink, after time.Duration, batch int32) *StaleSweep {
	return &StaleSweep{store: store, facts: facts, after: after, batch: batch}
}

func (s *StaleSweep) Name() string { return "stale_pending" }

func (s *StaleSweep) Run(ctx context.Context, now time.Time) (int, error) {
	claims, err := s.store.ClaimStalePending(ctx, now, s.after, s.batch)
	if err != nil {
		return 0, err
	}
	for _, c := range claims {
		if _, err := s.facts.InsertFact(ctx, events.Fact{
			Kind:          events.KindStale,
			AppointmentID: c.ID.String(),
			ClientID:      c.ClientID.String(),
			ExpertID:      c.ExpertID.String(),
			Audience:      events.AudienceExpert,
			OccurredAt:    now,
		}); err != nil {
			return len(claims), err
		}
	}
	return len(claims), nil
}

// ExpiringSweep warns clients before a subscription month runs out.
type ExpiringSweep struct {
	store SubscriptionSweeper
	facts FactSink
	lead  time.Duration
	batch int32
}

// NewExpiringSweep creates the expiring-soon sweep.
func NewExpiringSweep(store SubscriptionSweeper, facts FactSink, lead time.Duration, batch int32) *ExpiringSweep {
	return &ExpiringSweep{store: store, facts: facts, lead: lead, batch: batch}
}

func (s *ExpiringSweep) Name() string { return "subscription_expiring" }

func (s *ExpiringSweep) Run(ctx context.Context, now time.Time) (int, error) {
	claims, err := s.store.ClaimExpiring(ctx, now, s.lead, s.batch)
	if err != nil {
		return 0, err
	}
	for _, c := range claims {
		expires := c.ExpiresAt
		if _, err := s.facts.InsertFact(ctx, events.Fact{
			Kind:           events.KindExpiring,
			SubscriptionID: c.ID.String(),
			ClientID:       c.ClientID.String(),
			Audience:       events.AudienceClient,
			ExpiresAt:      &expires,
			OccurredAt:     now,
		}); err != nil {
			return len(claims), err
		}
	}
	return len(claims), nil
}

// ExpirySweep settles overdue subscriptions. Reads already settle expiry
// lazily; the sweep catches subscriptions nobody is reading.
type ExpirySweep struct {
	store SubscriptionSweeper
	facts FactSink
	batch int32
}

// NewExpirySweep creates the expiry sweep.
func NewExpirySweep(store SubscriptionSweeper, facts FactSink, batch int32) *ExpirySweep {
	return &ExpirySweep{store: store, facts: facts, batch: batch}
}

func (s *ExpirySweep) Name() string { return "subscription_expiry" }

func (s *ExpirySweep) Run(ctx context.Context, now time.Time) (int, error) {
	claims, err := s.store.ExpireDue(ctx, now, s.batch)
	if err != nil {
		return 0, err
	}
	for _, c := range claims {
		expires := c.ExpiresAt
		if _, err := s.facts.InsertFact(ctx, events.Fact{
			Kind:           events.KindExpired,
			SubscriptionID: c.ID.String(),
			ClientID:       c.ClientID.String(),
			Audience:       events.AudienceClient,
			ExpiresAt:      &expires,
			OccurredAt:     now,
		}); err != nil {
			return len(claims), err
		}
	}
	return len(claims), nil
}
