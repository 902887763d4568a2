package plans

import (
	"context"
	"testing"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// anyPlanArgs matches every argument of the plans INSERT when a test does not
// care about the inserted values.
func anyPlanArgs() []interface{} {
	args := make([]interface{}, 13)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestStoreCreateValidatesBeforeWrite(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	err = store.Create(context.Background(), &Plan{Kind: "weekly"})
	assert.ErrorIs(t, err, ErrInvalidKind)
	// No SQL expectations: validation failures never reach the database.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	plan := &Plan{
		ExpertID:        uuid.New(),
		Kind:            KindSingle,
		SessionFormat:   FormatOneToOne,
		DurationMinutes: 30,
		PriceCents:      5000,
		Currency:        "USD",
	}

	mock.ExpectExec("INSERT INTO plans").
		WithArgs(pgxmock.AnyArg(), plan.ExpertID, "single", pgxmock.AnyArg(), 30,
			int64(5000), "USD", 0, pgxmock.AnyArg(), pgxmock.AnyArg(), true, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Create(context.Background(), plan))
	assert.NotEqual(t, uuid.Nil, plan.ID)
	assert.True(t, plan.Active)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreSupersedeRetiresOriginal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	oldID := uuid.New()
	replacement := &Plan{
		ExpertID:         uuid.New(),
		Kind:             KindMonthly,
		SessionsPerMonth: 8,
		PriceCents:       40000,
		Currency:         "USD",
	}

	mock.ExpectExec("INSERT INTO plans").
		WithArgs(anyPlanArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE plans SET active = false").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), oldID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.Supersede(context.Background(), oldID, replacement))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreSupersedeMissingOriginal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	replacement := &Plan{
		ExpertID:         uuid.New(),
		Kind:             KindMonthly,
		SessionsPerMonth: 4,
		PriceCents:       20000,
		Currency:         "USD",
	}

	mock.ExpectExec("INSERT INTO plans").
		WithArgs(anyPlanArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE plans SET active = false").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.Supersede(context.Background(), uuid.New(), replacement)
	assert.ErrorIs(t, err, ErrPlanNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreReferenced(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT 1 FROM appointments").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(1))

	referenced, err := store.Referenced(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, referenced)
	require.NoError(t, mock.ExpectationsWereMet())
}
