package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/careconnect/telehealth-platform/internal/events"
	"github.com/careconnect/telehealth-platform/internal/identity"
	"github.com/careconnect/telehealth-platform/internal/plans"
	"github.com/careconnect/telehealth-platform/internal/rtc"
	"github.com/careconnect/telehealth-platform/pkg/logging"
)

// PlanSource resolves plans referenced by bookings.
type PlanSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*plans.Plan, error)
}

// FactSink records notification facts for asynchronous delivery.
type FactSink interface {
	InsertFact(ctx context.Context, fact events.Fact) (uuid.UUID, error)
}

// Service implements the booking workflows on top of the store.
type Service struct {
	store  *Store
	plans  PlanSource
	facts  FactSink
	logger *logging.Logger
	tracer trace.Tracer
}

// NewService wires the booking service.
func NewService(store *Store, planSource PlanSource, facts FactSink, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:  store,
		plans:  planSource,
		facts:  facts,
		logger: logger,
		tracer: otel.Tracer("appointments"),
	}
}

// BookRequest carries everything needed to create one appointment.
type BookRequest struct {
	ClientID       uuid.UUID
	ExpertID       uuid.UUID
	PlanID         *uuid.UUID
	StartTime      time.Time
	EndTime        time.Time
	Method         Method
	GroupSessionID *uuid.UUID
}

// Book creates a pending appointment. Price, currency and duration are
// snapshotted from the plan at booking time so later plan edits never
// reprice an existing booking. Zero-price bookings confirm immediately.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointments.Book",
		trace.WithAttributes(
			attribute.String("expert_id", req.ExpertID.String()),
			attribute.String("client_id", req.ClientID.String()),
		))
	defer span.End()

	appt := &Appointment{
		ClientID:      req.ClientID,
		ExpertID:      req.ExpertID,
		StartTime:     req.StartTime.UTC(),
		EndTime:       req.EndTime.UTC(),
		Method:        req.Method,
		SessionFormat: plans.FormatOneToOne,
	}

	var plan *plans.Plan
	if req.PlanID != nil {
		var err error
		plan, err = s.plans.GetByID(ctx, *req.PlanID)
		if err != nil {
			return nil, err
		}
		appt.PlanID = &plan.ID
		appt.SessionFormat = plan.SessionFormat
		appt.DurationMinutes = plan.DurationMinutes
		appt.PriceCents = plan.PriceCents
		appt.Currency = plan.Currency
		if plan.IsRecurringGroup() {
			// Dynamic group sessions follow the plan's recurring schedule,
			// not client-chosen times.
			if plan.RecurringStartsAt != nil {
				appt.StartTime = plan.RecurringStartsAt.UTC()
			}
			if plan.RecurringEndsAt != nil {
				appt.EndTime = plan.RecurringEndsAt.UTC()
			}
		}
	} else {
		appt.DurationMinutes = int(req.EndTime.Sub(req.StartTime) / time.Minute)
	}
	if req.GroupSessionID != nil {
		appt.GroupSessionID = req.GroupSessionID
		appt.SessionFormat = plans.FormatOneToMany
	}
	appt.ScheduledDate = dateOf(appt.StartTime)

	dynamicGroup := plan != nil && plan.IsRecurringGroup()
	if err := ValidateTimes(appt.StartTime, appt.EndTime, appt.DurationMinutes, dynamicGroup); err != nil {
		return nil, err
	}

	if err := s.checkAvailability(ctx, appt); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, appt); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("appointment_id", appt.ID.String()))

	if appt.PriceCents == 0 {
		if err := s.confirmAndNotify(ctx, appt, s.store.ConfirmFree); err != nil {
			return nil, err
		}
	}

	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"expert_id", appt.ExpertID,
		"status", appt.Status,
		"price_cents", appt.PriceCents)
	return appt, nil
}

// PlanSlot is one requested session time within a subscription booking.
type PlanSlot struct {
	StartTime time.Time
	EndTime   time.Time
}

// BookPlanSessions creates the full set of sessions for a monthly plan as
// one atomic unit sharing a fresh plan instance id. Any conflicting slot
// fails the whole batch.
func (s *Service) BookPlanSessions(ctx context.Context, clientID, planID uuid.UUID, method Method, slots []PlanSlot) ([]Appointment, uuid.UUID, error) {
	ctx, span := s.tracer.Start(ctx, "appointments.BookPlanSessions",
		trace.WithAttributes(attribute.String("plan_id", planID.String())))
	defer span.End()

	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if plan.Kind != plans.KindMonthly {
		return nil, uuid.Nil, plans.ErrInvalidKind
	}
	if len(slots) != plan.SessionsPerMonth {
		return nil, uuid.Nil, fmt.Errorf("%w: plan grants %d sessions, got %d",
			ErrInvalidTimeRange, plan.SessionsPerMonth, len(slots))
	}

	instanceID := uuid.New()
	total := len(slots)
	batch := make([]*Appointment, 0, total)
	for i, slot := range slots {
		appt := &Appointment{
			ClientID:        clientID,
			ExpertID:        plan.ExpertID,
			ScheduledDate:   dateOf(slot.StartTime.UTC()),
			StartTime:       slot.StartTime.UTC(),
			EndTime:         slot.EndTime.UTC(),
			DurationMinutes: plan.DurationMinutes,
			Method:          method,
			SessionFormat:   plan.SessionFormat,
			PriceCents:      plan.PriceCents,
			Currency:        plan.Currency,
			PlanID:          &plan.ID,
			PlanInstanceID:  &instanceID,
			SessionNumber:   i + 1,
			TotalSessions:   total,
		}
		if err := ValidateTimes(appt.StartTime, appt.EndTime, appt.DurationMinutes, plan.IsRecurringGroup()); err != nil {
			return nil, uuid.Nil, err
		}
		if err := s.checkAvailability(ctx, appt); err != nil {
			return nil, uuid.Nil, err
		}
		batch = append(batch, appt)
	}

	created := make([]Appointment, 0, total)
	for _, appt := range batch {
		if err := s.store.Create(ctx, appt); err != nil {
			// A racing booking took one of the slots; unwind what we made.
			for _, prior := range created {
				if _, cerr := s.store.Cancel(ctx, prior.ID, "system", "batch booking failed"); cerr != nil {
					s.logger.Error("failed to unwind batch booking", "appointment_id", prior.ID, "error", cerr)
				}
			}
			return nil, uuid.Nil, err
		}
		created = append(created, *appt)
	}

	s.logger.Info("plan sessions booked",
		"plan_id", planID,
		"plan_instance_id", instanceID,
		"sessions", total)
	return created, instanceID, nil
}

// Accept lets the expert confirm a pending booking. Paid bookings confirm
// through payment reconciliation instead; accepting one that still awaits
// payment fails with ErrPaymentRequired.
func (s *Service) Accept(ctx context.Context, expertID, apptID uuid.UUID) (*Appointment, error) {
	appt, err := s.store.GetByID(ctx, apptID)
	if err != nil {
		return nil, err
	}
	if appt.ExpertID != expertID {
		return nil, ErrNotFound
	}
	if err := CheckTransition(appt.Status, StatusConfirmed); err != nil {
		return nil, err
	}
	if appt.PriceCents > 0 && appt.PaymentStatus != PaymentPaid {
		return nil, ErrPaymentRequired
	}

	if err := s.confirmAndNotify(ctx, appt, s.store.ConfirmFree); err != nil {
		return nil, err
	}
	return appt, nil
}

// ConfirmPaid is the reconciliation entry point: payment completed, so the
// pending booking becomes confirmed. Safe to call repeatedly.
func (s *Service) ConfirmPaid(ctx context.Context, apptID uuid.UUID) error {
	appt, err := s.store.GetByID(ctx, apptID)
	if err != nil {
		return err
	}
	if appt.Status != StatusPending {
		return nil
	}
	return s.confirmAndNotify(ctx, appt, s.store.Confirm)
}

// ConfirmPaidPlanInstance confirms every pending sibling of a subscription
// purchase after its payment completes.
func (s *Service) ConfirmPaidPlanInstance(ctx context.Context, planInstanceID uuid.UUID) error {
	confirmed, err := s.store.ConfirmByPlanInstance(ctx, planInstanceID)
	if err != nil {
		return err
	}
	for _, c := range confirmed {
		appt, err := s.store.GetByID(ctx, c.ID)
		if err != nil {
			s.logger.Error("failed to load confirmed sibling", "appointment_id", c.ID, "error", err)
			continue
		}
		if err := s.assignChannel(ctx, appt); err != nil {
			s.logger.Error("failed to assign channel", "appointment_id", c.ID, "error", err)
		}
		s.emitConfirmed(ctx, appt)
	}
	return nil
}

// FailPayment marks the booking's payment failed while leaving the
// appointment itself pending, so the client can retry or the stale sweep
// can eventually nudge the expert.
func (s *Service) FailPayment(ctx context.Context, apptID uuid.UUID) error {
	_, err := s.store.UpdatePaymentStatus(ctx, apptID, PaymentPending, PaymentFailed)
	return err
}

// FailPaymentPlanInstance marks a subscription purchase failed across all
// of its siblings.
func (s *Service) FailPaymentPlanInstance(ctx context.Context, planInstanceID uuid.UUID) error {
	_, err := s.store.UpdatePaymentStatusByPlanInstance(ctx, planInstanceID, PaymentPending, PaymentFailed)
	return err
}

// MarkRefunded records that the gateway refunded a cancelled booking.
func (s *Service) MarkRefunded(ctx context.Context, apptID uuid.UUID) error {
	_, err := s.store.UpdatePaymentStatus(ctx, apptID, PaymentPaid, PaymentRefunded)
	return err
}

// Cancel cancels a pending or confirmed appointment. Clients and experts
// cancel their own bookings; admins cancel anything but must give a reason.
// A paid booking queues a refund fact for the payment collaborator.
func (s *Service) Cancel(ctx context.Context, caller identity.Caller, apptID uuid.UUID, reason string) (*Appointment, error) {
	appt, err := s.store.GetByID(ctx, apptID)
	if err != nil {
		return nil, err
	}
	switch caller.Role {
	case identity.RoleClient:
		if appt.ClientID.String() != caller.ID {
			return nil, ErrNotFound
		}
	case identity.RoleExpert:
		if appt.ExpertID.String() != caller.ID {
			return nil, ErrNotFound
		}
	case identity.RoleAdmin:
		if reason == "" {
			return nil, ErrReasonRequired
		}
	default:
		return nil, ErrNotFound
	}

	wasPaid := appt.PaymentStatus == PaymentPaid
	cancelled, err := s.store.Cancel(ctx, apptID, string(caller.Role), reason)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, aud := range []events.Audience{events.AudienceClient, events.AudienceExpert} {
		s.emit(ctx, events.Fact{
			Kind:          events.KindCancelled,
			AppointmentID: cancelled.ID.String(),
			ClientID:      cancelled.ClientID.String(),
			ExpertID:      cancelled.ExpertID.String(),
			Audience:      aud,
			Reason:        reason,
			OccurredAt:    now,
		})
	}
	if wasPaid {
		s.emit(ctx, events.Fact{
			Kind:          events.KindRefundDue,
			AppointmentID: cancelled.ID.String(),
			ClientID:      cancelled.ClientID.String(),
			ExpertID:      cancelled.ExpertID.String(),
			OccurredAt:    now,
		})
	}

	s.logger.Info("appointment cancelled",
		"appointment_id", cancelled.ID,
		"cancelled_by", caller.Role,
		"refund_due", wasPaid)
	return cancelled, nil
}

// Reject lets the expert decline a pending, not-yet-paid booking.
func (s *Service) Reject(ctx context.Context, expertID, apptID uuid.UUID) error {
	appt, err := s.store.GetByID(ctx, apptID)
	if err != nil {
		return err
	}
	if appt.ExpertID != expertID {
		return ErrNotFound
	}
	if err := s.store.Reject(ctx, apptID); err != nil {
		return err
	}
	s.emit(ctx, events.Fact{
		Kind:          events.KindCancelled,
		AppointmentID: appt.ID.String(),
		ClientID:      appt.ClientID.String(),
		ExpertID:      appt.ExpertID.String(),
		Audience:      events.AudienceClient,
		Reason:        "declined by expert",
		OccurredAt:    time.Now().UTC(),
	})
	return nil
}

// SubmitFeedback records the client's rating for a completed session.
func (s *Service) SubmitFeedback(ctx context.Context, clientID, apptID uuid.UUID, rating int, comment string) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	appt, err := s.store.GetByID(ctx, apptID)
	if err != nil {
		return err
	}
	if appt.ClientID != clientID {
		return ErrNotFound
	}
	return s.store.SetFeedback(ctx, apptID, rating, comment)
}

// Get returns one appointment visible to the caller.
func (s *Service) Get(ctx context.Context, caller identity.Caller, apptID uuid.UUID) (*Appointment, error) {
	appt, err := s.store.GetByID(ctx, apptID)
	if err != nil {
		return nil, err
	}
	if caller.Role != identity.RoleAdmin && appt.ClientID.String() != caller.ID && appt.ExpertID.String() != caller.ID {
		return nil, ErrNotFound
	}
	if appt.SessionFormat == plans.FormatOneToMany && appt.PlanID != nil {
		if plan, err := s.plans.GetByID(ctx, *appt.PlanID); err == nil {
			overlayPlanSchedule(appt, plan)
		} else {
			s.logger.Warn("failed to load plan for group session", "plan_id", *appt.PlanID, "error", err)
		}
	}
	return appt, nil
}

// List returns the caller's own appointments.
func (s *Service) List(ctx context.Context, caller identity.Caller) ([]Appointment, error) {
	callerID, err := uuid.Parse(caller.ID)
	if err != nil {
		return nil, ErrNotFound
	}
	var appts []Appointment
	if caller.Role == identity.RoleExpert {
		appts, err = s.store.ListByExpert(ctx, callerID)
	} else {
		appts, err = s.store.ListByClient(ctx, callerID)
	}
	if err != nil {
		return nil, err
	}
	s.applyRecurringSchedule(ctx, appts)
	return appts, nil
}

// applyRecurringSchedule overlays the plan's current recurring times on
// dynamic group sessions. Their stored times are only the schedule at
// booking; the plan stays authoritative, so a reschedule shows up on every
// read without rewriting instances.
func (s *Service) applyRecurringSchedule(ctx context.Context, appts []Appointment) {
	var cache map[uuid.UUID]*plans.Plan
	for i := range appts {
		appt := &appts[i]
		if appt.SessionFormat != plans.FormatOneToMany || appt.PlanID == nil {
			continue
		}
		if cache == nil {
			cache = make(map[uuid.UUID]*plans.Plan)
		}
		plan, seen := cache[*appt.PlanID]
		if !seen {
			var err error
			plan, err = s.plans.GetByID(ctx, *appt.PlanID)
			if err != nil {
				s.logger.Warn("failed to load plan for group session", "plan_id", *appt.PlanID, "error", err)
				plan = nil
			}
			cache[*appt.PlanID] = plan
		}
		overlayPlanSchedule(appt, plan)
	}
}

func overlayPlanSchedule(appt *Appointment, plan *plans.Plan) {
	if plan == nil || !plan.IsRecurringGroup() {
		return
	}
	if plan.RecurringStartsAt != nil {
		appt.StartTime = plan.RecurringStartsAt.UTC()
		appt.ScheduledDate = dateOf(appt.StartTime)
	}
	if plan.RecurringEndsAt != nil {
		appt.EndTime = plan.RecurringEndsAt.UTC()
	}
}

// FreeSlots computes the expert's open intervals within a window on one day.
func (s *Service) FreeSlots(ctx context.Context, expertID uuid.UUID, window Interval) ([]Interval, error) {
	existing, err := s.store.ListActiveForExpertDay(ctx, expertID, dateOf(window.Start))
	if err != nil {
		return nil, err
	}
	busy := make([]Interval, 0, len(existing))
	for i := range existing {
		if existing[i].SessionFormat == plans.FormatOneToMany {
			continue
		}
		busy = append(busy, Interval{Start: existing[i].StartTime, End: existing[i].EndTime})
	}
	return FreeIntervals(window, busy), nil
}

func (s *Service) checkAvailability(ctx context.Context, appt *Appointment) error {
	existing, err := s.store.ListActiveForExpertDay(ctx, appt.ExpertID, appt.ScheduledDate)
	if err != nil {
		return err
	}
	candidate := Interval{Start: appt.StartTime, End: appt.EndTime}
	if conflict := FirstConflict(existing, candidate, appt.SessionFormat); conflict != nil {
		return ErrSlotUnavailable
	}
	return nil
}

func (s *Service) confirmAndNotify(ctx context.Context, appt *Appointment, confirm func(context.Context, uuid.UUID) (bool, error)) error {
	ok, err := confirm(ctx, appt.ID)
	if err != nil {
		return err
	}
	if !ok {
		// Someone else moved the row first; reload to report the truth.
		current, err := s.store.GetByID(ctx, appt.ID)
		if err != nil {
			return err
		}
		*appt = *current
		return nil
	}
	appt.Status = StatusConfirmed
	if err := s.assignChannel(ctx, appt); err != nil {
		return err
	}
	s.emitConfirmed(ctx, appt)
	return nil
}

// assignChannel derives and persists the deterministic communication room
// name for a confirmed appointment.
func (s *Service) assignChannel(ctx context.Context, appt *Appointment) error {
	var channel string
	switch {
	case appt.GroupSessionID != nil:
		channel = rtc.GroupChannel(*appt.GroupSessionID)
	case appt.SessionFormat == plans.FormatOneToMany && appt.PlanID != nil:
		channel = rtc.PlanGroupChannel(*appt.PlanID)
	default:
		channel = rtc.AppointmentChannel(appt.ID)
	}
	if err := s.store.AssignChannel(ctx, appt.ID, channel); err != nil {
		return err
	}
	if appt.ChannelName == nil {
		appt.ChannelName = &channel
	}
	return nil
}

func (s *Service) emitConfirmed(ctx context.Context, appt *Appointment) {
	now := time.Now().UTC()
	start := appt.StartTime
	for _, aud := range []events.Audience{events.AudienceClient, events.AudienceExpert} {
		s.emit(ctx, events.Fact{
			Kind:          events.KindConfirmed,
			AppointmentID: appt.ID.String(),
			ClientID:      appt.ClientID.String(),
			ExpertID:      appt.ExpertID.String(),
			Audience:      aud,
			StartsAt:      &start,
			OccurredAt:    now,
		})
	}
}

func (s *Service) emit(ctx context.Context, fact events.Fact) {
	if s.facts == nil {
		return
	}
	if _, err := s.facts.InsertFact(ctx, fact); err != nil {
		s.logger.Error("failed to record notification fact",
			"kind", fact.Kind,
			"appointment_id", fact.AppointmentID,
			"error", err)
	}
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsNotFound reports whether the error chain means the appointment does not
// exist, for handlers mapping errors to status codes.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, plans.ErrPlanNotFound)
}
