package subscriptions

import (
	"context"
	"testing"
	"time"

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

func TestStoreCreateDefaults(t *testing.T) {
	store, mock := newMockStore(t)
	sub := &Subscription{
		ClientID:      uuid.New(),
		ExpertID:      uuid.New(),
		PlanID:        uuid.New(),
		SessionsTotal: 4,
		PriceCents:    20000,
		Currency:      "USD",
	}

	mock.ExpectExec("INSERT INTO subscriptions").
		WithArgs(
			pgxmock.AnyArg(), sub.ClientID, sub.ExpertID, sub.PlanID, 4,
			int64(20000), "USD", false, "active", pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Create(context.Background(), sub))
	assert.NotEqual(t, uuid.Nil, sub.ID)
	assert.Equal(t, StatusActive, sub.Status)
	assert.Equal(t, sub.PurchasedAt.Add(period), sub.ExpiresAt)
	assert.Nil(t, sub.NextBillingAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreCreateAutoRenewSetsNextBilling(t *testing.T) {
	store, mock := newMockStore(t)
	sub := &Subscription{
		ClientID:      uuid.New(),
		ExpertID:      uuid.New(),
		PlanID:        uuid.New(),
		SessionsTotal: 4,
		PriceCents:    20000,
		Currency:      "USD",
		AutoRenew:     true,
	}

	mock.ExpectExec("INSERT INTO subscriptions").
		WithArgs(
			pgxmock.AnyArg(), sub.ClientID, sub.ExpertID, sub.PlanID, 4,
			int64(20000), "USD", true, "active", pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Create(context.Background(), sub))
	require.NotNil(t, sub.NextBillingAt)
	assert.Equal(t, sub.ExpiresAt, *sub.NextBillingAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreSessionCounts(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"used", "pending"}).AddRow(3, 1))

	used, pending, err := store.SessionCounts(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 3, used)
	assert.Equal(t, 1, pending)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreExpireIfDue(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	now := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE subscriptions").
		WithArgs(now, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	expired, err := store.ExpireIfDue(context.Background(), id, now)
	require.NoError(t, err)
	assert.True(t, expired)

	// Already settled: nothing to do.
	mock.ExpectExec("UPDATE subscriptions").
		WithArgs(now, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	expired, err = store.ExpireIfDue(context.Background(), id, now)
	require.NoError(t, err)
	assert.False(t, expired)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreClaimExpiring(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	subID, client := uuid.New(), uuid.New()
	expires := now.Add(48 * time.Hour)

	mock.ExpectQuery("UPDATE subscriptions").
		WithArgs(now, now.Add(72*time.Hour), int32(100)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "client_id", "expires_at"}).
			AddRow(subID, client, expires))

	claims, err := store.ClaimExpiring(context.Background(), now, 72*time.Hour, 100)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, subID, claims[0].ID)
	assert.Equal(t, expires, claims[0].ExpiresAt)

	// Claimed rows carry the stamp and drop out of the next sweep.
	mock.ExpectQuery("UPDATE subscriptions").
		WithArgs(now, now.Add(72*time.Hour), int32(100)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "client_id", "expires_at"}))

	claims, err = store.ClaimExpiring(context.Background(), now, 72*time.Hour, 100)
	require.NoError(t, err)
	assert.Empty(t, claims)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreListByClientSettlesExpiryFirst(t *testing.T) {
	store, mock := newMockStore(t)
	sub := activeSub()
	sub.Status = StatusExpired

	// One set-based settle covers every overdue row for the client before
	// the list is read, so an overdue month can never show up as active.
	mock.ExpectExec(`(?s)UPDATE subscriptions.*status = 'active' AND expires_at <= \$1`).
		WithArgs(pgxmock.AnyArg(), sub.ClientID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("SELECT (.+) FROM subscriptions").
		WithArgs(sub.ClientID).
		WillReturnRows(subRow(sub))

	subs, err := store.ListByClient(context.Background(), sub.ClientID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, StatusExpired, subs[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
