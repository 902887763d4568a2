package appointments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careconnect/telehealth-platform/internal/events"
	"github.com/careconnect/telehealth-platform/internal/identity"
	"github.com/careconnect/telehealth-platform/internal/plans"
)

type fakePlanSource struct {
	plan *plans.Plan
	err  error
}

func (f *fakePlanSource) GetByID(context.Context, uuid.UUID) (*plans.Plan, error) {
	return f.plan, f.err
}

type fakeFactSink struct {
	facts []events.Fact
}

func (f *fakeFactSink) InsertFact(_ context.Context, fact events.Fact) (uuid.UUID, error) {
	f.facts = append(f.facts, fact)
	return uuid.New(), nil
}

func (f *fakeFactSink) kinds() []events.FactKind {
	kinds := make([]events.FactKind, len(f.facts))
	for i, fact := range f.facts {
		kinds[i] = fact.Kind
	}
	return kinds
}

var apptCols = []string{
	"id", "client_id", "expert_id", "scheduled_date", "start_time", "end_time", "duration_minutes",
	"method", "session_format", "status", "price_cents", "currency", "payment_status",
	"plan_id", "plan_instance_id", "session_number", "total_sessions", "group_session_id", "channel_name",
	"cancelled_by", "cancel_reason", "rating", "feedback_comment",
	"client_reminder_sent_at", "expert_reminder_sent_at", "imminent_notified_at", "stale_notified_at",
	"created_at", "updated_at",
}

func apptRow(a *Appointment) *pgxmock.Rows {
	return pgxmock.NewRows(apptCols).AddRow(
		a.ID, a.ClientID, a.ExpertID, a.ScheduledDate, a.StartTime, a.EndTime, a.DurationMinutes,
		string(a.Method), string(a.SessionFormat), string(a.Status), a.PriceCents, a.Currency, string(a.PaymentStatus),
		a.PlanID, a.PlanInstanceID, a.SessionNumber, a.TotalSessions, a.GroupSessionID, a.ChannelName,
		nil, nil, a.Rating, a.FeedbackComment,
		a.ClientReminderSentAt, a.ExpertReminderSentAt, a.ImminentNotifiedAt, a.StaleNotifiedAt,
		a.CreatedAt, a.UpdatedAt,
	)
}

func newTestService(t *testing.T, planSource PlanSource, sink FactSink) (*Service, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewService(NewStore(mock), planSource, sink, nil), mock
}

func TestBookRejectsConflictingSlot(t *testing.T) {
	sink := &fakeFactSink{}
	svc, mock := newTestService(t, &fakePlanSource{}, sink)

	expertID := uuid.New()
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	existing := pendingAppointment()
	existing.ID = uuid.New()
	existing.ExpertID = expertID
	existing.Status = StatusConfirmed
	existing.StartTime = start.Add(30 * time.Minute)
	existing.EndTime = start.Add(90 * time.Minute)

	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs(expertID, dateOf(start)).
		WillReturnRows(apptRow(existing))

	_, err := svc.Book(context.Background(), BookRequest{
		ClientID:  uuid.New(),
		ExpertID:  expertID,
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Method:    MethodVideo,
	})
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.Empty(t, sink.facts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookSnapshotsPlanPrice(t *testing.T) {
	planID := uuid.New()
	expertID := uuid.New()
	plan := &plans.Plan{
		ID:              planID,
		ExpertID:        expertID,
		Kind:            plans.KindSingle,
		SessionFormat:   plans.FormatOneToOne,
		DurationMinutes: 45,
		PriceCents:      7500,
		Currency:        "USD",
	}
	svc, mock := newTestService(t, &fakePlanSource{plan: plan}, &fakeFactSink{})

	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs(expertID, dateOf(start)).
		WillReturnRows(pgxmock.NewRows(apptCols))
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), expertID, dateOf(start), start, start.Add(45*time.Minute),
			45, "video", "one_to_one", "pending", int64(7500), "USD", "pending",
			&planID, pgxmock.AnyArg(), 0, 0, pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	appt, err := svc.Book(context.Background(), BookRequest{
		ClientID:  uuid.New(),
		ExpertID:  expertID,
		PlanID:    &planID,
		StartTime: start,
		EndTime:   start.Add(45 * time.Minute),
		Method:    MethodVideo,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7500), appt.PriceCents)
	assert.Equal(t, 45, appt.DurationMinutes)
	assert.Equal(t, StatusPending, appt.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookFreeConfirmsImmediately(t *testing.T) {
	planID := uuid.New()
	expertID := uuid.New()
	plan := &plans.Plan{
		ID:              planID,
		ExpertID:        expertID,
		Kind:            plans.KindSingle,
		SessionFormat:   plans.FormatOneToOne,
		DurationMinutes: 30,
		PriceCents:      0,
		Currency:        "USD",
	}
	sink := &fakeFactSink{}
	svc, mock := newTestService(t, &fakePlanSource{plan: plan}, sink)

	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs(expertID, dateOf(start)).
		WillReturnRows(pgxmock.NewRows(apptCols))
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), expertID, dateOf(start), start, start.Add(30*time.Minute),
			30, "video", "one_to_one", "pending", int64(0), "USD", "pending",
			&planID, pgxmock.AnyArg(), 0, 0, pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	// Free bookings skip payment: confirm, then pin the channel name.
	mock.ExpectExec("UPDATE appointments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE appointments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	appt, err := svc.Book(context.Background(), BookRequest{
		ClientID:  uuid.New(),
		ExpertID:  expertID,
		PlanID:    &planID,
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
		Method:    MethodVideo,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)
	require.NotNil(t, appt.ChannelName)
	assert.Equal(t, "appointment:"+appt.ID.String(), *appt.ChannelName)
	assert.Equal(t, []events.FactKind{events.KindConfirmed, events.KindConfirmed}, sink.kinds())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcceptRequiresPayment(t *testing.T) {
	svc, mock := newTestService(t, &fakePlanSource{}, &fakeFactSink{})

	appt := pendingAppointment()
	appt.ID = uuid.New()
	appt.Status = StatusPending

	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs(appt.ID).
		WillReturnRows(apptRow(appt))

	_, err := svc.Accept(context.Background(), appt.ExpertID, appt.ID)
	assert.ErrorIs(t, err, ErrPaymentRequired)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcceptHidesForeignAppointments(t *testing.T) {
	svc, mock := newTestService(t, &fakePlanSource{}, &fakeFactSink{})

	appt := pendingAppointment()
	appt.ID = uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs(appt.ID).
		WillReturnRows(apptRow(appt))

	_, err := svc.Accept(context.Background(), uuid.New(), appt.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelPaidQueuesRefund(t *testing.T) {
	sink := &fakeFactSink{}
	svc, mock := newTestService(t, &fakePlanSource{}, sink)

	appt := pendingAppointment()
	appt.ID = uuid.New()
	appt.Status = StatusConfirmed
	appt.PaymentStatus = PaymentPaid

	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs(appt.ID).
		WillReturnRows(apptRow(appt))

	cancelled := *appt
	cancelled.Status = StatusCancelled
	mock.ExpectQuery("UPDATE appointments").
		WithArgs("client", "schedule conflict", pgxmock.AnyArg(), appt.ID).
		WillReturnRows(apptRow(&cancelled))

	caller := identity.Caller{ID: appt.ClientID.String(), Role: identity.RoleClient}
	result, err := svc.Cancel(context.Background(), caller, appt.ID, "schedule conflict")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, result.Status)
	assert.Equal(t, []events.FactKind{events.KindCancelled, events.KindCancelled, events.KindRefundDue}, sink.kinds())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelByAdminRequiresReason(t *testing.T) {
	svc, mock := newTestService(t, &fakePlanSource{}, &fakeFactSink{})

	appt := pendingAppointment()
	appt.ID = uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs(appt.ID).
		WillReturnRows(apptRow(appt))

	caller := identity.Caller{ID: uuid.NewString(), Role: identity.RoleAdmin}
	_, err := svc.Cancel(context.Background(), caller, appt.ID, "")
	assert.ErrorIs(t, err, ErrReasonRequired)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitFeedbackValidatesRating(t *testing.T) {
	svc, _ := newTestService(t, &fakePlanSource{}, &fakeFactSink{})

	err := svc.SubmitFeedback(context.Background(), uuid.New(), uuid.New(), 0, "")
	assert.ErrorIs(t, err, ErrInvalidRating)

	err = svc.SubmitFeedback(context.Background(), uuid.New(), uuid.New(), 6, "")
	assert.ErrorIs(t, err, ErrInvalidRating)
}

func TestBookPlanSessionsRequiresFullSet(t *testing.T) {
	planID := uuid.New()
	plan := &plans.Plan{
		ID:               planID,
		ExpertID:         uuid.New(),
		Kind:             plans.KindMonthly,
		SessionFormat:    plans.FormatOneToOne,
		DurationMinutes:  60,
		PriceCents:       20000,
		Currency:         "USD",
		SessionsPerMonth: 4,
	}
	svc, _ := newTestService(t, &fakePlanSource{plan: plan}, &fakeFactSink{})

	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	_, _, err := svc.BookPlanSessions(context.Background(), uuid.New(), planID, MethodVideo,
		[]PlanSlot{{StartTime: start, EndTime: start.Add(time.Hour)}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTimeRange)
}

func TestGetGroupSessionFollowsPlanReschedule(t *testing.T) {
	planID := uuid.New()
	oldStart := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	newStart := time.Date(2026, 3, 12, 14, 0, 0, 0, time.UTC)
	newEnd := newStart.Add(time.Hour)
	plan := &plans.Plan{
		ID:                planID,
		ExpertID:          uuid.New(),
		Kind:              plans.KindSingle,
		SessionFormat:     plans.FormatOneToMany,
		DurationMinutes:   60,
		RecurringStartsAt: &newStart,
		RecurringEndsAt:   &newEnd,
	}
	svc, mock := newTestService(t, &fakePlanSource{plan: plan}, &fakeFactSink{})

	// Booked before the reschedule: the row still carries the old times.
	appt := pendingAppointment()
	appt.ID = uuid.New()
	appt.ExpertID = plan.ExpertID
	appt.SessionFormat = plans.FormatOneToMany
	appt.PlanID = &planID
	appt.StartTime = oldStart
	appt.EndTime = oldStart.Add(time.Hour)
	appt.ScheduledDate = dateOf(oldStart)

	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs(appt.ID).
		WillReturnRows(apptRow(appt))

	caller := identity.Caller{ID: appt.ClientID.String(), Role: identity.RoleClient}
	got, err := svc.Get(context.Background(), caller, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, newStart, got.StartTime)
	assert.Equal(t, newEnd, got.EndTime)
	assert.Equal(t, dateOf(newStart), got.ScheduledDate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListOverlaysGroupSessionSchedule(t *testing.T) {
	planID := uuid.New()
	newStart := time.Date(2026, 3, 12, 14, 0, 0, 0, time.UTC)
	newEnd := newStart.Add(time.Hour)
	plan := &plans.Plan{
		ID:                planID,
		ExpertID:          uuid.New(),
		Kind:              plans.KindSingle,
		SessionFormat:     plans.FormatOneToMany,
		DurationMinutes:   60,
		RecurringStartsAt: &newStart,
		RecurringEndsAt:   &newEnd,
	}
	svc, mock := newTestService(t, &fakePlanSource{plan: plan}, &fakeFactSink{})

	solo := pendingAppointment()
	solo.ID = uuid.New()
	group := pendingAppointment()
	group.ID = uuid.New()
	group.ClientID = solo.ClientID
	group.SessionFormat = plans.FormatOneToMany
	group.PlanID = &planID

	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs(solo.ClientID).
		WillReturnRows(apptRow(solo).AddRow(
			group.ID, group.ClientID, group.ExpertID, group.ScheduledDate, group.StartTime, group.EndTime, group.DurationMinutes,
			string(group.Method), string(group.SessionFormat), string(group.Status), group.PriceCents, group.Currency, string(group.PaymentStatus),
			group.PlanID, group.PlanInstanceID, group.SessionNumber, group.TotalSessions, group.GroupSessionID, group.ChannelName,
			nil, nil, group.Rating, group.FeedbackComment,
			group.ClientReminderSentAt, group.ExpertReminderSentAt, group.ImminentNotifiedAt, group.StaleNotifiedAt,
			group.CreatedAt, group.UpdatedAt,
		))

	caller := identity.Caller{ID: solo.ClientID.String(), Role: identity.RoleClient}
	appts, err := svc.List(context.Background(), caller)
	require.NoError(t, err)
	require.Len(t, appts, 2)
	// One-to-one rows keep their stored times; the group row follows the plan.
	assert.Equal(t, solo.StartTime, appts[0].StartTime)
	assert.Equal(t, newStart, appts[1].StartTime)
	assert.Equal(t, newEnd, appts[1].EndTime)
	require.NoError(t, mock.ExpectationsWereMet())
}
