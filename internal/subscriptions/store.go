package subscriptions

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

// Store provides persistence for subscriptions.
type Store struct {
	db DB
}

// NewStore creates a subscription store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const subColumns = `id, client_id, expert_id, plan_id, sessions_total, price_cents, currency, auto_renew,
		status, purchased_at, expires_at, next_billing_at, cancelled_at, cancelled_by, cancel_reason,
		expiring_notified_at, created_at, updated_at`

// Create inserts a new active subscription.
func (s *Store) Create(ctx context.Context, sub *Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	if sub.PurchasedAt.IsZero() {
		sub.PurchasedAt = now
	}
	if sub.ExpiresAt.IsZero() {
		sub.ExpiresAt = sub.PurchasedAt.Add(period)
	}
	if sub.Status == "" {
		sub.Status = StatusActive
	}
	if sub.AutoRenew && sub.NextBillingAt == nil {
		next := sub.ExpiresAt
		sub.NextBillingAt = &next
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO subscriptions (id, client_id, expert_id, plan_id, sessions_total,
			price_cents, currency, auto_renew, status, purchased_at, expires_at,
			next_billing_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		sub.ID, sub.ClientID, sub.ExpertID, sub.PlanID, sub.SessionsTotal,
		sub.PriceCents, sub.Currency, sub.AutoRenew, string(sub.Status), sub.PurchasedAt,
		sub.ExpiresAt, sub.NextBillingAt, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("subscriptions: create: %w", err)
	}
	return nil
}

// GetByID fetches a subscription, first settling any lapsed expiry so a
// read never reports an overdue subscription as active.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	if _, err := s.ExpireIfDue(ctx, id, time.Now().UTC()); err != nil {
		return nil, err
	}
	row := s.db.QueryRow(ctx, `
		SELECT `+subColumns+`
		FROM subscriptions
		WHERE id = $1`, id)
	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("subscriptions: load: %w", err)
	}
	return sub, nil
}

// ListByClient returns the client's subscriptions, newest first. Lapsed
// expiries are settled set-wide first so the list never shows an overdue
// subscription as active.
func (s *Store) ListByClient(ctx context.Context, clientID uuid.UUID) ([]Subscription, error) {
	if _, err := s.db.Exec(ctx, `
		UPDATE subscriptions
		SET status = 'expired', updated_at = $1
		WHERE client_id = $2 AND status = 'active' AND expires_at <= $1`,
		time.Now().UTC(), clientID); err != nil {
		return nil, fmt.Errorf("subscriptions: expire due for client: %w", err)
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+subColumns+`
		FROM subscriptions
		WHERE client_id = $1
		ORDER BY purchased_at DESC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("subscriptions: list by client: %w", err)
	}
	defer rows.Close()

	var result []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("subscriptions: scan: %w", err)
		}
		result = append(result, *sub)
	}
	return result, rows.Err()
}

// ExpireIfDue settles a lapsed subscription in place. True means this call
// performed the transition.
func (s *Store) ExpireIfDue(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE subscriptions
		SET status = 'expired', updated_at = $1
		WHERE id = $2 AND status = 'active' AND expires_at <= $1`, now.UTC(), id)
	if err != nil {
		return false, fmt.Errorf("subscriptions: expire if due: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Cancel transitions active → cancelled, recording who cancelled and why,
// and returns the updated row.
func (s *Store) Cancel(ctx context.Context, id uuid.UUID, actor, reason string, now time.Time) (*Subscription, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE subscriptions
		SET status = 'cancelled', cancelled_at = $1, cancelled_by = $2, cancel_reason = $3,
			next_billing_at = NULL, updated_at = $1
		WHERE id = $4 AND status = 'active'
		RETURNING `+subColumns, now.UTC(), actor, reason, id)
	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, gerr := s.GetByID(ctx, id); gerr != nil {
				return nil, gerr
			}
			return nil, ErrNotActive
		}
		return nil, fmt.Errorf("subscriptions: cancel: %w", err)
	}
	return sub, nil
}

// SessionCounts derives the used and pending session tallies from the
// sibling appointments stamped with this subscription's id.
func (s *Store) SessionCounts(ctx context.Context, id uuid.UUID) (used, pending int, err error) {
	row := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE status IN ('confirmed', 'completed')),
		       COUNT(*) FILTER (WHERE status = 'pending')
		FROM appointments
		WHERE plan_instance_id = $1`, id)
	if err := row.Scan(&used, &pending); err != nil {
		return 0, 0, fmt.Errorf("subscriptions: session counts: %w", err)
	}
	return used, pending, nil
}

// ExpiryClaim is a row claimed by an expiry-related sweep.
type ExpiryClaim struct {
	ID        uuid.UUID
	ClientID  uuid.UUID
	ExpiresAt time.Time
}

// ClaimExpiring stamps active subscriptions expiring within the lead window
// and returns them for expiring-soon facts. The stamp makes each claimable
// once.
func (s *Store) ClaimExpiring(ctx context.Context, now time.Time, lead time.Duration, limit int32) ([]ExpiryClaim, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE subscriptions
		SET expiring_notified_at = $1, updated_at = $1
		WHERE id IN (
			SELECT id FROM subscriptions
			WHERE status = 'active'
			  AND expiring_notified_at IS NULL
			  AND expires_at > $1
			  AND expires_at <= $2
			ORDER BY expires_at
			LIMIT $3
		)
		RETURNING id, client_id, expires_at`, now.UTC(), now.UTC().Add(lead), limit)
	if err != nil {
		return nil, fmt.Errorf("subscriptions: claim expiring: %w", err)
	}
	defer rows.Close()
	return scanExpiryClaims(rows)
}

// ExpireDue transitions every overdue active subscription to expired and
// returns the affected rows for expired facts.
func (s *Store) ExpireDue(ctx context.Context, now time.Time, limit int32) ([]ExpiryClaim, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE subscriptions
		SET status = 'expired', updated_at = $1
		WHERE id IN (
			SELECT id FROM subscriptions
			WHERE status = 'active' AND expires_at <= $1
			ORDER BY expires_at
			LIMIT $2
		)
		RETURNING id, client_id, expires_at`, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("subscriptions: expire due: %w", err)
	}
	defer rows.Close()
	return scanExpiryClaims(rows)
}

func scanExpiryClaims(rows pgx.Rows) ([]ExpiryClaim, error) {
	var claims []ExpiryClaim
	for rows.Next() {
		var c ExpiryClaim
		if err := rows.Scan(&c.ID, &c.ClientID, &c.ExpiresAt); err != nil {
			return nil, fmt.Errorf("subscriptions: scan expiry claim: %w", err)
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	var sub Subscription
	var status string
	var cancelledBy, cancelReason *string
	if err := row.Scan(
		&sub.ID, &sub.ClientID, &sub.ExpertID, &sub.PlanID, &sub.SessionsTotal,
		&sub.PriceCents, &sub.Currency, &sub.AutoRenew, &status, &sub.PurchasedAt,
		&sub.ExpiresAt, &sub.NextBillingAt, &sub.CancelledAt, &cancelledBy, &cancelReason,
		&sub.ExpiringNotifiedAt, &sub.CreatedAt, &sub.UpdatedAt,
	); err != nil {
		return nil, err
	}
	sub.Status = Status(status)
	if cancelledBy != nil {
		sub.CancelledBy = *cancelledBy
	}
	if cancelReason != nil {
		sub.CancelReason = *cancelReason
	}
	return &sub, nil
}
