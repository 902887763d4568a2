package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/careconnect/telehealth-platform/internal/appointments"
	"github.com/careconnect/telehealth-platform/internal/events"
	"github.com/careconnect/telehealth-platform/internal/identity"
	"github.com/careconnect/telehealth-platform/internal/plans"
	"github.com/careconnect/telehealth-platform/pkg/logging"
)

// PlanSource resolves plans referenced by purchases.
type PlanSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*plans.Plan, error)
}

// SessionBooker creates the session set for a purchased month.
type SessionBooker interface {
	BookPlanSessions(ctx context.Context, clientID, planID uuid.UUID, method appointments.Method, slots []appointments.PlanSlot) ([]appointments.Appointment, uuid.UUID, error)
}

// SessionCanceller cancels the session siblings of a subscription.
type SessionCanceller interface {
	CancelFutureByPlanInstance(ctx context.Context, planInstanceID uuid.UUID, actor, reason string, now time.Time) ([]appointments.ConfirmedSibling, error)
	CancelAllByPlanInstance(ctx context.Context, planInstanceID uuid.UUID, actor, reason string) ([]appointments.ConfirmedSibling, error)
}

// FactSink records notification facts for asynchronous delivery.
type FactSink interface {
	InsertFact(ctx context.Context, fact events.Fact) (uuid.UUID, error)
}

// Service implements the subscription lifecycle on top of the store.
type Service struct {
	store     *Store
	plans     PlanSource
	booker    SessionBooker
	canceller SessionCanceller
	cache     *LedgerCache
	facts     FactSink
	logger    *logging.Logger
	tracer    trace.Tracer
}

// NewService wires the subscription service.
func NewService(store *Store, planSource PlanSource, booker SessionBooker, canceller SessionCanceller, cache *LedgerCache, facts FactSink, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:     store,
		plans:     planSource,
		booker:    booker,
		canceller: canceller,
		cache:     cache,
		facts:     facts,
		logger:    logger,
		tracer:    otel.Tracer("subscriptions"),
	}
}

// PurchaseResult pairs the new subscription with its booked sessions.
type PurchaseResult struct {
	Subscription *Subscription              `json:"subscription"`
	Appointments []appointments.Appointment `json:"appointments"`
}

// Purchase buys one month of a recurring plan: the full session set is
// booked as a unit and the subscription row takes the shared plan instance
// id, so every later count can be derived from the siblings.
func (s *Service) Purchase(ctx context.Context, clientID, planID uuid.UUID, method appointments.Method, slots []appointments.PlanSlot, autoRenew bool) (*PurchaseResult, error) {
	ctx, span := s.tracer.Start(ctx, "subscriptions.Purchase",
		trace.WithAttributes(attribute.String("plan_id", planID.String())))
	defer span.End()

	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Kind != plans.KindMonthly {
		return nil, ErrNotMonthly
	}

	booked, instanceID, err := s.booker.BookPlanSessions(ctx, clientID, planID, method, slots)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		ID:            instanceID,
		ClientID:      clientID,
		ExpertID:      plan.ExpertID,
		PlanID:        plan.ID,
		SessionsTotal: plan.SessionsPerMonth,
		PriceCents:    plan.PriceCents,
		Currency:      plan.Currency,
		AutoRenew:     autoRenew,
	}
	if err := s.store.Create(ctx, sub); err != nil {
		// The sessions exist without their subscription row; unwind every
		// sibling so the purchase is all-or-nothing.
		if _, cerr := s.canceller.CancelAllByPlanInstance(ctx, instanceID, "system", "purchase failed"); cerr != nil {
			s.logger.Error("failed to unwind purchase", "plan_instance_id", instanceID, "error", cerr)
		}
		return nil, err
	}

	s.logger.Info("subscription purchased",
		"subscription_id", sub.ID,
		"plan_id", planID,
		"client_id", clientID,
		"sessions", sub.SessionsTotal)
	return &PurchaseResult{Subscription: sub, Appointments: booked}, nil
}

// Get returns one subscription visible to the caller.
func (s *Service) Get(ctx context.Context, caller identity.Caller, id uuid.UUID) (*Subscription, error) {
	sub, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.visible(caller, sub) {
		return nil, ErrNotFound
	}
	return sub, nil
}

// List returns the caller's subscriptions.
func (s *Service) List(ctx context.Context, clientID uuid.UUID) ([]Subscription, error) {
	return s.store.ListByClient(ctx, clientID)
}

// GetLedger computes the derived session ledger, serving from cache when a
// fresh enough copy exists.
func (s *Service) GetLedger(ctx context.Context, caller identity.Caller, id uuid.UUID) (*Ledger, error) {
	if ledger, ok := s.cache.Get(ctx, id); ok {
		sub, err := s.store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if !s.visible(caller, sub) {
			return nil, ErrNotFound
		}
		return ledger, nil
	}

	sub, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.visible(caller, sub) {
		return nil, ErrNotFound
	}
	used, pending, err := s.store.SessionCounts(ctx, id)
	if err != nil {
		return nil, err
	}

	remaining := sub.SessionsTotal - used
	if remaining < 0 {
		remaining = 0
	}
	ledger := &Ledger{
		SubscriptionID:    sub.ID,
		Status:            sub.Status,
		SessionsTotal:     sub.SessionsTotal,
		SessionsUsed:      used,
		SessionsPending:   pending,
		SessionsRemaining: remaining,
		ExpiresAt:         sub.ExpiresAt,
	}
	if err := s.cache.Set(ctx, ledger); err != nil {
		s.logger.Warn("failed to cache ledger", "subscription_id", id, "error", err)
	}
	return ledger, nil
}

// Cancel cancels an active subscription and every future session booked
// under it. Paid subscriptions with unused sessions queue a refund fact.
func (s *Service) Cancel(ctx context.Context, caller identity.Caller, id uuid.UUID, reason string) (*Subscription, error) {
	ctx, span := s.tracer.Start(ctx, "subscriptions.Cancel",
		trace.WithAttributes(attribute.String("subscription_id", id.String())))
	defer span.End()

	sub, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.visible(caller, sub) {
		return nil, ErrNotFound
	}
	if caller.Role == identity.RoleAdmin && reason == "" {
		return nil, appointments.ErrReasonRequired
	}

	used, _, err := s.store.SessionCounts(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	cancelled, err := s.store.Cancel(ctx, id, string(caller.Role), reason, now)
	if err != nil {
		return nil, err
	}

	dropped, err := s.canceller.CancelFutureByPlanInstance(ctx, id, string(caller.Role), reason, now)
	if err != nil {
		s.logger.Error("failed to cascade subscription cancellation", "subscription_id", id, "error", err)
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.Warn("failed to invalidate ledger cache", "subscription_id", id, "error", err)
	}

	s.emit(ctx, events.Fact{
		Kind:           events.KindCancelled,
		SubscriptionID: cancelled.ID.String(),
		ClientID:       cancelled.ClientID.String(),
		ExpertID:       cancelled.ExpertID.String(),
		Audience:       events.AudienceClient,
		Reason:         reason,
		OccurredAt:     now,
	})
	if cancelled.PriceCents > 0 && used < cancelled.SessionsTotal {
		s.emit(ctx, events.Fact{
			Kind:           events.KindRefundDue,
			SubscriptionID: cancelled.ID.String(),
			ClientID:       cancelled.ClientID.String(),
			ExpertID:       cancelled.ExpertID.String(),
			OccurredAt:     now,
		})
	}

	s.logger.Info("subscription cancelled",
		"subscription_id", id,
		"cancelled_by", caller.Role,
		"sessions_dropped", len(dropped))
	return cancelled, nil
}

// ConfirmPaid marks the purchase settled: invalidates the cached ledger so
// the freshly confirmed siblings show up in the next read.
func (s *Service) ConfirmPaid(ctx context.Context, id uuid.UUID) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.Warn("failed to invalidate ledger cache", "subscription_id", id, "error", err)
	}
}

func (s *Service) visible(caller identity.Caller, sub *Subscription) bool {
	switch caller.Role {
	case identity.RoleAdmin:
		return true
	case identity.RoleClient:
		return sub.ClientID.String() == caller.ID
	case identity.RoleExpert:
		return sub.ExpertID.String() == caller.ID
	}
	return false
}

func (s *Service) emit(ctx context.Context, fact events.Fact) {
	if s.facts == nil {
		return
	}
	if _, err := s.facts.InsertFact(ctx, fact); err != nil {
		s.logger.Error("failed to record notification fact",
			"kind", fact.Kind,
			"subscription_id", fact.SubscriptionID,
			"error", err)
	}
}
