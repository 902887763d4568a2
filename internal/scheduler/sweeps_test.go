package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careconnect/telehealth-platform/internal/appointments"
	"github.com/careconnect/telehealth-platform/internal/events"
	"github.com/careconnect/telehealth-platform/internal/subscriptions"
)

// fakeApptSweeper hands out each claim exactly once, the way the store's
// conditional updates do.
type fakeApptSweeper struct {
	reminders map[events.Audience][]appointments.SweepClaim
	imminent  []appointments.SweepClaim
	elapsed   []uuid.UUID
	stale     []appointments.SweepClaim
}

func (f *fakeApptSweeper) ClaimReminderDue(_ context.Context, audience events.Audience, _ time.Time, _ time.Duration, _ int32) ([]appointments.SweepClaim, error) {
	claims := f.reminders[audience]
	f.reminders[audience] = nil
	return claims, nil
}

func (f *fakeApptSweeper) ClaimImminent(context.Context, time.Time, time.Duration, int32) ([]appointments.SweepClaim, error) {
	claims := f.imminent
	f.imminent = nil
	return claims, nil
}

func (f *fakeApptSweeper) CompleteElapsed(context.Context, time.Time, int32) ([]uuid.UUID, error) {
	ids := f.elapsed
	f.elapsed = nil
	return ids, nil
}

func (f *fakeApptSweeper) ClaimStalePending(context.Context, time.Time, time.Duration, int32) ([]appointments.SweepClaim, error) {
	claims := f.stale
	f.stale = nil
	return claims, nil
}

type fakeSubSweeper struct {
	expiring []subscriptions.ExpiryClaim
	expired  []subscriptions.ExpiryClaim
}

func (f *fakeSubSweeper) ClaimExpiring(context.Context, time.Time, time.Duration, int32) ([]subscriptions.ExpiryClaim, error) {
	claims := f.expiring
	f.expiring = nil
	return claims, nil
}

func (f *fakeSubSweeper) ExpireDue(context.Context, time.Time, int32) ([]subscriptions.ExpiryClaim, error) {
	claims := f.expired
	f.expired = nil
	return claims, nil
}

type recordingSink struct {
	mu    sync.Mutex
	facts []events.Fact
}

func (r *recordingSink) InsertFact(_ context.Context, fact events.Fact) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.facts = append(r.facts, fact)
	return uuid.New(), nil
}

func claim() appointments.SweepClaim {
	return appointments.SweepClaim{
		ID:        uuid.New(),
		ClientID:  uuid.New(),
		ExpertID:  uuid.New(),
		StartTime: time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC),
	}
}

func TestReminderSweepFiresOncePerAudience(t *testing.T) {
	c := claim()
	store := &fakeApptSweeper{reminders: map[events.Audience][]appointments.SweepClaim{
		events.AudienceClient: {c},
	}}
	sink := &recordingSink{}
	sweep := NewReminderSweep(store, sink, events.AudienceClient, 24*time.Hour, 100)
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	processed, err := sweep.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	require.Len(t, sink.facts, 1)
	assert.Equal(t, events.KindReminder, sink.facts[0].Kind)
	assert.Equal(t, events.AudienceClient, sink.facts[0].Audience)
	assert.Equal(t, c.ID.String(), sink.facts[0].AppointmentID)
	require.NotNil(t, sink.facts[0].StartsAt)
	assert.Equal(t, c.StartTime, *sink.facts[0].StartsAt)

	// The claims are stamped; a second run finds nothing to do.
	processed, err = sweep.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, processed)
	assert.Len(t, sink.facts, 1)
}

func TestImminentSweepNotifiesBothParties(t *testing.T) {
	store := &fakeApptSweeper{imminent: []appointments.SweepClaim{claim()}}
	sink := &recordingSink{}
	sweep := NewImminentSweep(store, sink, 15*time.Minute, 100)

	processed, err := sweep.Run(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	require.Len(t, sink.facts, 2)
	assert.Equal(t, events.AudienceClient, sink.facts[0].Audience)
	assert.Equal(t, events.AudienceExpert, sink.facts[1].Audience)
}

func TestCompletionSweepCountsSettledRows(t *testing.T) {
	store := &fakeApptSweeper{elapsed: []uuid.UUID{uuid.New(), uuid.New()}}
	sweep := NewCompletionSweep(store, 100)

	processed, err := sweep.Run(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
}

func TestStaleSweepTargetsExpert(t *testing.T) {
	store := &fakeApptSweeper{stale: []appointments.SweepClaim{claim()}}
	sink := &recordingSink{}
	sweep := NewStaleSweep(store, sink, 48*time.Hour, 100)

	_, err := sweep.Run(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, sink.facts, 1)
	assert.Equal(t, events.KindStale, sink.facts[0].Kind)
	assert.Equal(t, events.AudienceExpert, sink.facts[0].Audience)
}

func TestExpirySweeps(t *testing.T) {
	expires := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeSubSweeper{
		expiring: []subscriptions.ExpiryClaim{{ID: uuid.New(), ClientID: uuid.New(), ExpiresAt: expires}},
		expired:  []subscriptions.ExpiryClaim{{ID: uuid.New(), ClientID: uuid.New(), ExpiresAt: expires}},
	}
	sink := &recordingSink{}

	_, err := NewExpiringSweep(store, sink, 72*time.Hour, 100).Run(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	_, err = NewExpirySweep(store, sink, 100).Run(context.Background(), time.Now().UTC())
	require.NoError(t, err)

	require.Len(t, sink.facts, 2)
	assert.Equal(t, events.KindExpiring, sink.facts[0].Kind)
	assert.Equal(t, events.KindExpired, sink.facts[1].Kind)
	require.NotNil(t, sink.facts[0].ExpiresAt)
	assert.Equal(t, expires, *sink.facts[0].ExpiresAt)
}

type countingSweep struct {
	mu   sync.Mutex
	runs int
}

func (c *countingSweep) Name() string { return "counting" }

func (c *countingSweep) Run(context.Context, time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs++
	return 0, nil
}

func (c *countingSweep) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs
}

func TestRunnerRunsImmediatelyAndOnTicks(t *testing.T) {
	sweep := &countingSweep{}
	runner := NewRunner(nil).Add(sweep, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
	defer cancel()
	runner.Start(ctx)

	// One immediate run plus a few ticks; exact count depends on timing.
	assert.GreaterOrEqual(t, sweep.count(), 3)
}

func TestRunnerStopsOnCancel(t *testing.T) {
	sweep := &countingSweep{}
	runner := NewRunner(nil).Add(sweep, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		runner.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after cancellation")
	}
}
