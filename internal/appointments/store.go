package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/careconnect/telehealth-platform/internal/plans"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides persistence for appointments.
type Store struct {
	db DB
}

// NewStore creates an appointment store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const apptColumns = `id, client_id, expert_id, scheduled_date, start_time, end_time, duration_minutes,
		method, session_format, status, price_cents, currency, payment_status,
		plan_id, plan_instance_id, session_number, total_sessions, group_session_id, channel_name,
		cancelled_by, cancel_reason, rating, feedback_comment,
		client_reminder_sent_at, expert_reminder_sent_at, imminent_notified_at, stale_notified_at,
		created_at, updated_at`

// Create inserts a pending appointment. The partial unique index on
// (expert_id, scheduled_date, start_time) for live one-to-one rows is the
// concurrency backstop: the loser of a race gets ErrSlotUnavailable.
func (s *Store) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = StatusPending
	}
	if a.PaymentStatus == "" {
		a.PaymentStatus = PaymentPending
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO appointments (id, client_id, expert_id, scheduled_date, start_time, end_time,
			duration_minutes, method, session_format, status, price_cents, currency, payment_status,
			plan_id, plan_instance_id, session_number, total_sessions, group_session_id,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		a.ID, a.ClientID, a.ExpertID, a.ScheduledDate, a.StartTime, a.EndTime,
		a.DurationMinutes, string(a.Method), string(a.SessionFormat), string(a.Status),
		a.PriceCents, a.Currency, string(a.PaymentStatus),
		a.PlanID, a.PlanInstanceID, a.SessionNumber, a.TotalSessions, a.GroupSessionID,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrSlotUnavailable
		}
		return fmt.Errorf("appointments: create: %w", err)
	}
	return nil
}

// GetByID fetches an appointment.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE id = $1`, id)
	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: load: %w", err)
	}
	return appt, nil
}

// ListActiveForExpertDay returns the expert's pending/confirmed bookings on
// a date; cancelled and rejected rows never block a slot.
func (s *Store) ListActiveForExpertDay(ctx context.Context, expertID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE expert_id = $1 AND scheduled_date = $2 AND status IN ('pending', 'confirmed')
		ORDER BY start_time`, expertID, date)
	if err != nil {
		return nil, fmt.Errorf("appointments: list for expert day: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// ListByClient returns the client's appointments, most recent first.
func (s *Store) ListByClient(ctx context.Context, clientID uuid.UUID) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE client_id = $1
		ORDER BY start_time DESC
		LIMIT 200`, clientID)
	if err != nil {
		return nil, fmt.Errorf("appointments: list by client: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// ListByExpert returns the expert's appointments, most recent first.
func (s *Store) ListByExpert(ctx context.Context, expertID uuid.UUID) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE expert_id = $1
		ORDER BY start_time DESC
		LIMIT 200`, expertID)
	if err != nil {
		return nil, fmt.Errorf("appointments: list by expert: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// ListByPlanInstance returns every sibling appointment of a plan instance.
func (s *Store) ListByPlanInstance(ctx context.Context, planInstanceID uuid.UUID) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE plan_instance_id = $1
		ORDER BY session_number`, planInstanceID)
	if err != nil {
		return nil, fmt.Errorf("appointments: list by plan instance: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// Confirm transitions pending → confirmed and marks the booking paid, as a
// single conditional update. False means the row was not pending (or gone).
func (s *Store) Confirm(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET status = 'confirmed', payment_status = 'paid', updated_at = $1
		WHERE id = $2 AND status = 'pending'`, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("appointments: confirm: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ConfirmFree transitions pending → confirmed without touching payment
// status, for bookings that require no payment.
func (s *Store) ConfirmFree(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET status = 'confirmed', updated_at = $1
		WHERE id = $2 AND status = 'pending'`, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("appointments: confirm free: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ConfirmedSibling identifies an appointment confirmed in a batch.
type ConfirmedSibling struct {
	ID       uuid.UUID
	ClientID uuid.UUID
	ExpertID uuid.UUID
}

// ConfirmByPlanInstance confirms every pending sibling of a plan instance
// and returns the affected rows, so one fact fires per appointment.
func (s *Store) ConfirmByPlanInstance(ctx context.Context, planInstanceID uuid.UUID) ([]ConfirmedSibling, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE appointments
		SET status = 'confirmed', payment_status = 'paid', updated_at = $1
		WHERE plan_instance_id = $2 AND status = 'pending'
		RETURNING id, client_id, expert_id`, time.Now().UTC(), planInstanceID)
	if err != nil {
		return nil, fmt.Errorf("appointments: confirm by plan instance: %w", err)
	}
	defer rows.Close()

	var confirmed []ConfirmedSibling
	for rows.Next() {
		var c ConfirmedSibling
		if err := rows.Scan(&c.ID, &c.ClientID, &c.ExpertID); err != nil {
			return nil, fmt.Errorf("appointments: scan confirmed sibling: %w", err)
		}
		confirmed = append(confirmed, c)
	}
	return confirmed, rows.Err()
}

// AssignChannel persists the communication-room name once; an already
// assigned channel is never overwritten.
func (s *Store) AssignChannel(ctx context.Context, id uuid.UUID, channel string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET channel_name = $1, updated_at = $2
		WHERE id = $3 AND channel_name IS NULL`, channel, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("appointments: assign channel: %w", err)
	}
	return nil
}

// Cancel transitions pending/confirmed → cancelled and records the actor
// and reason, returning the row as it was after the update.
func (s *Store) Cancel(ctx context.Context, id uuid.UUID, actor, reason string) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled', cancelled_by = $1, cancel_reason = $2, updated_at = $3
		WHERE id = $4 AND status IN ('pending', 'confirmed')
		RETURNING `+apptColumns, actor, reason, time.Now().UTC(), id)
	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.transitionFailure(ctx, id)
		}
		return nil, fmt.Errorf("appointments: cancel: %w", err)
	}
	return appt, nil
}

// Reject transitions pending → rejected; expert-only, before payment.
func (s *Store) Reject(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET status = 'rejected', updated_at = $1
		WHERE id = $2 AND status = 'pending' AND payment_status = 'pending'`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("appointments: reject: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionFailure(ctx, id)
	}
	return nil
}

// SetFeedback stores post-session feedback; completed sessions only.
func (s *Store) SetFeedback(ctx context.Context, id uuid.UUID, rating int, comment string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET rating = $1, feedback_comment = $2, updated_at = $3
		WHERE id = $4 AND status = 'completed'`, rating, comment, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("appointments: set feedback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrNotCompleted
	}
	return nil
}

// CancelFutureByPlanInstance cancels all still-future pending/confirmed
// siblings of a plan instance; past sessions are untouched.
func (s *Store) CancelFutureByPlanInstance(ctx context.Context, planInstanceID uuid.UUID, actor, reason string, now time.Time) ([]ConfirmedSibling, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE appointments
		SET status = 'cancelled', cancelled_by = $1, cancel_reason = $2, updated_at = $3
		WHERE plan_instance_id = $4 AND status IN ('pending', 'confirmed') AND start_time >= $5
		RETURNING id, client_id, expert_id`, actor, reason, now.UTC(), planInstanceID, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("appointments: cancel future by plan instance: %w", err)
	}
	defer rows.Close()

	var cancelled []ConfirmedSibling
	for rows.Next() {
		var c ConfirmedSibling
		if err := rows.Scan(&c.ID, &c.ClientID, &c.ExpertID); err != nil {
			return nil, fmt.Errorf("appointments: scan cancelled sibling: %w", err)
		}
		cancelled = append(cancelled, c)
	}
	return cancelled, rows.Err()
}

// CancelAllByPlanInstance cancels every live sibling of a plan instance
// regardless of start time. Used to unwind a purchase that failed partway.
func (s *Store) CancelAllByPlanInstance(ctx context.Context, planInstanceID uuid.UUID, actor, reason string) ([]ConfirmedSibling, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE appointments
		SET status = 'cancelled', cancelled_by = $1, cancel_reason = $2, updated_at = $3
		WHERE plan_instance_id = $4 AND status IN ('pending', 'confirmed')
		RETURNING id, client_id, expert_id`, actor, reason, time.Now().UTC(), planInstanceID)
	if err != nil {
		return nil, fmt.Errorf("appointments: cancel all by plan instance: %w", err)
	}
	defer rows.Close()

	var cancelled []ConfirmedSibling
	for rows.Next() {
		var c ConfirmedSibling
		if err := rows.Scan(&c.ID, &c.ClientID, &c.ExpertID); err != nil {
			return nil, fmt.Errorf("appointments: scan cancelled sibling: %w", err)
		}
		cancelled = append(cancelled, c)
	}
	return cancelled, rows.Err()
}

// UpdatePaymentStatus moves the payment marker with a compare-and-set on
// the prior value, so replayed gateway events cannot flip it twice.
func (s *Store) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to PaymentStatus) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET payment_status = $1, updated_at = $2
		WHERE id = $3 AND payment_status = $4`, string(to), time.Now().UTC(), id, string(from))
	if err != nil {
		return false, fmt.Errorf("appointments: update payment status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdatePaymentStatusByPlanInstance applies the same compare-and-set across
// all siblings of a plan instance.
func (s *Store) UpdatePaymentStatusByPlanInstance(ctx context.Context, planInstanceID uuid.UUID, from, to PaymentStatus) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET payment_status = $1, updated_at = $2
		WHERE plan_instance_id = $3 AND payment_status = $4`, string(to), time.Now().UTC(), planInstanceID, string(from))
	if err != nil {
		return 0, fmt.Errorf("appointments: update payment status by plan instance: %w", err)
	}
	return tag.RowsAffected(), nil
}

// transitionFailure distinguishes a missing row from an illegal transition
// after a conditional update touched nothing.
func (s *Store) transitionFailure(ctx context.Context, id uuid.UUID) error {
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrInvalidTransition
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		result = append(result, *appt)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (*Appointment, error) {
	var a Appointment
	var method, format, status, paymentStatus string
	var cancelledBy, cancelReason *string
	if err := row.Scan(
		&a.ID, &a.ClientID, &a.ExpertID, &a.ScheduledDate, &a.StartTime, &a.EndTime, &a.DurationMinutes,
		&method, &format, &status, &a.PriceCents, &a.Currency, &paymentStatus,
		&a.PlanID, &a.PlanInstanceID, &a.SessionNumber, &a.TotalSessions, &a.GroupSessionID, &a.ChannelName,
		&cancelledBy, &cancelReason, &a.Rating, &a.FeedbackComment,
		&a.ClientReminderSentAt, &a.ExpertReminderSentAt, &a.ImminentNotifiedAt, &a.StaleNotifiedAt,
		&a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.Method = Method(method)
	a.SessionFormat = plans.SessionFormat(format)
	a.Status = Status(status)
	a.PaymentStatus = PaymentStatus(paymentStatus)
	if cancelledBy != nil {
		a.CancelledBy = *cancelledBy
	}
	if cancelReason != nil {
		a.CancelReason = *cancelReason
	}
	return &a, nil
}
