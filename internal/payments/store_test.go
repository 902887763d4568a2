package payments

import (
	"context"
	"testing"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewStore(mock), mock
}

func TestStoreCreateRequiresTarget(t *testing.T) {
	store, mock := newMockStore(t)

	err := store.Create(context.Background(), &Order{
		ClientID:       uuid.New(),
		AmountCents:    5000,
		Currency:       "USD",
		GatewayOrderID: "order_x",
	})
	assert.ErrorIs(t, err, ErrMissingTarget)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreCreate(t *testing.T) {
	store, mock := newMockStore(t)
	apptID := uuid.New()
	order := &Order{
		ClientID:       uuid.New(),
		AppointmentID:  &apptID,
		AmountCents:    5000,
		Currency:       "USD",
		GatewayOrderID: "order_x",
	}

	mock.ExpectExec("INSERT INTO payment_orders").
		WithArgs(
			pgxmock.AnyArg(), order.ClientID, &apptID, pgxmock.AnyArg(),
			int64(5000), "USD", "pending", "order_x",
			pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Create(context.Background(), order))
	assert.Equal(t, OrderPending, order.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreMarkCompletedIsCompareAndSet(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE payment_orders").
		WithArgs("pay_1", pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	settled, err := store.MarkCompleted(context.Background(), id, "pay_1")
	require.NoError(t, err)
	assert.True(t, settled)

	// Replay: the order already left pending.
	mock.ExpectExec("UPDATE payment_orders").
		WithArgs("pay_1", pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	settled, err = store.MarkCompleted(context.Background(), id, "pay_1")
	require.NoError(t, err)
	assert.False(t, settled)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreMarkCancelledOnlyInFlight(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE payment_orders").
		WithArgs(pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	cancelled, err := store.MarkCancelled(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, cancelled)

	// Settled orders cannot be cancelled.
	mock.ExpectExec("UPDATE payment_orders").
		WithArgs(pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	cancelled, err = store.MarkCancelled(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, cancelled)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreMarkRefundedNeedsCompleted(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE payment_orders").
		WithArgs(pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	settled, err := store.MarkRefunded(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, settled)
	require.NoError(t, mock.ExpectationsWereMet())
}
