package plans

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides persistence for the plan catalog.
type Store struct {
	db DB
}

// NewStore creates a plan store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const planColumns = `id, expert_id, kind, session_format, duration_minutes, price_cents, currency,
		sessions_per_month, recurring_starts_at, recurring_ends_at, active, superseded_by, created_at, updated_at`

// Create inserts a new plan row.
func (s *Store) Create(ctx context.Context, p *Plan) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Active = true

	_, err := s.db.Exec(ctx, `
		INSERT INTO plans (id, expert_id, kind, session_format, duration_minutes, price_cents, currency,
			sessions_per_month, recurring_starts_at, recurring_ends_at, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ID, p.ExpertID, string(p.Kind), nullableFormat(p.SessionFormat), p.DurationMinutes,
		p.PriceCents, p.Currency, p.SessionsPerMonth, p.RecurringStartsAt, p.RecurringEndsAt,
		p.Active, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("plans: create: %w", err)
	}
	return nil
}

// GetByID fetches a plan.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Plan, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+planColumns+`
		FROM plans
		WHERE id = $1`, id)
	plan, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("plans: load: %w", err)
	}
	return plan, nil
}

// ListByExpert returns the expert's active plans.
func (s *Store) ListByExpert(ctx context.Context, expertID uuid.UUID) ([]Plan, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+planColumns+`
		FROM plans
		WHERE expert_id = $1 AND active
		ORDER BY created_at DESC`, expertID)
	if err != nil {
		return nil, fmt.Errorf("plans: list by expert: %w", err)
	}
	defer rows.Close()

	var result []Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("plans: scan: %w", err)
		}
		result = append(result, *plan)
	}
	return result, rows.Err()
}

// Referenced reports whether any appointment points at the plan. Referenced
// plans are immutable; edits must go through Supersede.
func (s *Store) Referenced(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists int
	err := s.db.QueryRow(ctx,
		`SELECT 1 FROM appointments WHERE plan_id = $1 LIMIT 1`, id).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("plans: check referenced: %w", err)
	}
	return true, nil
}

// Supersede inserts the replacement row and retires the original, preserving
// the history already-booked appointments priced against.
func (s *Store) Supersede(ctx context.Context, oldID uuid.UUID, replacement *Plan) error {
	if err := s.Create(ctx, replacement); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE plans SET active = false, superseded_by = $1, updated_at = $2
		WHERE id = $3 AND active`, replacement.ID, time.Now().UTC(), oldID)
	if err != nil {
		return fmt.Errorf("plans: retire superseded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	return nil
}

// UpdateRecurringSchedule moves the recurring slot of a dynamic group plan.
// Appointments inherit the new times at read; no per-instance rewrite.
func (s *Store) UpdateRecurringSchedule(ctx context.Context, id uuid.UUID, startsAt, endsAt time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE plans SET recurring_starts_at = $1, recurring_ends_at = $2, updated_at = $3
		WHERE id = $4 AND session_format = 'one_to_many'`,
		startsAt, endsAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("plans: update recurring schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*Plan, error) {
	var p Plan
	var kind string
	var format *string
	if err := row.Scan(
		&p.ID, &p.ExpertID, &kind, &format, &p.DurationMinutes, &p.PriceCents, &p.Currency,
		&p.SessionsPerMonth, &p.RecurringStartsAt, &p.RecurringEndsAt, &p.Active, &p.SupersededBy,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Kind = Kind(kind)
	if format != nil {
		p.SessionFormat = SessionFormat(*format)
	}
	return &p, nil
}

func nullableFormat(f SessionFormat) *string {
	if f == "" {
		return nil
	}
	s := string(f)
	return &s
}
