package payments

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

// Store provides persistence for payment orders.
type Store struct {
	db DB
}

// NewStore creates a payment order store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const orderColumns = `id, client_id, appointment_id, plan_instance_id, amount_cents, currency,
		status, gateway_order_id, gateway_payment_id, failure_reason, created_at, updated_at`

// Create inserts a pending order.
func (s *Store) Create(ctx context.Context, order *Order) error {
	if order.AppointmentID == nil && order.PlanInstanceID == nil {
		return ErrMissingTarget
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	if order.Status == "" {
		order.Status = OrderPending
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO payment_orders (id, client_id, appointment_id, plan_instance_id,
			amount_cents, currency, status, gateway_order_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		order.ID, order.ClientID, order.AppointmentID, order.PlanInstanceID,
		order.AmountCents, order.Currency, string(order.Status), order.GatewayOrderID,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("payments: create order: %w", err)
	}
	return nil
}

// GetByID fetches an order.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM payment_orders
		WHERE id = $1`, id)
	return s.scanOne(row)
}

// GetByGatewayOrderID resolves the gateway's order reference from a webhook.
func (s *Store) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Order, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM payment_orders
		WHERE gateway_order_id = $1`, gatewayOrderID)
	return s.scanOne(row)
}

// MarkProcessing transitions pending → processing when the client comes back
// from the gateway checkout. A false return is harmless: the order already
// moved on.
func (s *Store) MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE payment_orders
		SET status = 'processing', updated_at = $1
		WHERE id = $2 AND status = 'pending'`, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("payments: mark processing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCompleted transitions an in-flight order to completed and records the
// gateway payment id. False means the order already settled, which is how a
// replayed webhook lands as a no-op.
func (s *Store) MarkCompleted(ctx context.Context, id uuid.UUID, gatewayPaymentID string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE payment_orders
		SET status = 'completed', gateway_payment_id = $1, updated_at = $2
		WHERE id = $3 AND status IN ('pending', 'processing')`, gatewayPaymentID, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("payments: mark completed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed transitions an in-flight order to failed with the gateway's
// reason, so a failed payment is never left looking in-flight.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE payment_orders
		SET status = 'failed', failure_reason = $1, updated_at = $2
		WHERE id = $3 AND status IN ('pending', 'processing')`, reason, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("payments: mark failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCancelled transitions an in-flight order to cancelled. Used when the
// client abandons checkout before the gateway reports anything.
func (s *Store) MarkCancelled(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE payment_orders
		SET status = 'cancelled', updated_at = $1
		WHERE id = $2 AND status IN ('pending', 'processing')`, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("payments: mark cancelled: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkSettlementFailed records a reconciliation failure that happened after
// the order settled, so the order never reads completed while the booking
// behind it is unconfirmed.
func (s *Store) MarkSettlementFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE payment_orders
		SET status = 'failed', failure_reason = $1, updated_at = $2
		WHERE id = $3 AND status = 'completed'`, reason, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("payments: mark settlement failed: %w", err)
	}
	return nil
}

// MarkRefunded transitions completed → refunded.
func (s *Store) MarkRefunded(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE payment_orders
		SET status = 'refunded', updated_at = $1
		WHERE id = $2 AND status = 'completed'`, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("payments: mark refunded: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) scanOne(row pgx.Row) (*Order, error) {
	var o Order
	var status string
	var paymentID, failureReason *string
	if err := row.Scan(
		&o.ID, &o.ClientID, &o.AppointmentID, &o.PlanInstanceID, &o.AmountCents, &o.Currency,
		&status, &o.GatewayOrderID, &paymentID, &failureReason, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("payments: load order: %w", err)
	}
	o.Status = OrderStatus(status)
	if paymentID != nil {
		o.GatewayPaymentID = *paymentID
	}
	if failureReason != nil {
		o.FailureReason = *failureReason
	}
	return &o, nil
}
