package appointments

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careconnect/telehealth-platform/internal/plans"
)

func at(hour, min int) time.Time {
	return time.Date(2026, 3, 10, hour, min, 0, 0, time.UTC)
}

func TestIntervalOverlaps(t *testing.T) {
	a := Interval{Start: at(9, 0), End: at(10, 0)}

	assert.True(t, a.Overlaps(Interval{Start: at(9, 30), End: at(10, 30)}))
	assert.True(t, a.Overlaps(Interval{Start: at(8, 0), End: at(11, 0)}))
	assert.True(t, a.Overlaps(a))

	// Back-to-back bookings share a boundary instant but not a slot.
	assert.False(t, a.Overlaps(Interval{Start: at(10, 0), End: at(11, 0)}))
	assert.False(t, a.Overlaps(Interval{Start: at(8, 0), End: at(9, 0)}))
	assert.False(t, a.Overlaps(Interval{Start: at(11, 0), End: at(12, 0)}))
}

func TestBlocks(t *testing.T) {
	candidate := Interval{Start: at(9, 0), End: at(10, 0)}
	overlapping := func(status Status, format plans.SessionFormat) *Appointment {
		return &Appointment{
			Status:        status,
			SessionFormat: format,
			StartTime:     at(9, 30),
			EndTime:       at(10, 30),
		}
	}

	assert.True(t, Blocks(overlapping(StatusPending, plans.FormatOneToOne), candidate, plans.FormatOneToOne))
	assert.True(t, Blocks(overlapping(StatusConfirmed, plans.FormatOneToOne), candidate, plans.FormatOneToOne))

	// Cancelled and rejected rows release the slot.
	assert.False(t, Blocks(overlapping(StatusCancelled, plans.FormatOneToOne), candidate, plans.FormatOneToOne))
	assert.False(t, Blocks(overlapping(StatusRejected, plans.FormatOneToOne), candidate, plans.FormatOneToOne))

	// Group sessions coexist with each other but not with one-to-one.
	assert.False(t, Blocks(overlapping(StatusConfirmed, plans.FormatOneToMany), candidate, plans.FormatOneToMany))
	assert.True(t, Blocks(overlapping(StatusConfirmed, plans.FormatOneToMany), candidate, plans.FormatOneToOne))
	assert.True(t, Blocks(overlapping(StatusConfirmed, plans.FormatOneToOne), candidate, plans.FormatOneToMany))
}

func TestFirstConflict(t *testing.T) {
	existing := []Appointment{
		{Status: StatusConfirmed, SessionFormat: plans.FormatOneToOne, StartTime: at(8, 0), EndTime: at(9, 0)},
		{Status: StatusConfirmed, SessionFormat: plans.FormatOneToOne, StartTime: at(11, 0), EndTime: at(12, 0)},
	}

	assert.Nil(t, FirstConflict(existing, Interval{Start: at(9, 0), End: at(10, 0)}, plans.FormatOneToOne))

	conflict := FirstConflict(existing, Interval{Start: at(11, 30), End: at(12, 30)}, plans.FormatOneToOne)
	require.NotNil(t, conflict)
	assert.Equal(t, at(11, 0), conflict.StartTime)
}

func TestFreeIntervals(t *testing.T) {
	window := Interval{Start: at(9, 0), End: at(17, 0)}

	free := FreeIntervals(window, nil)
	require.Len(t, free, 1)
	assert.Equal(t, window, free[0])

	busy := []Interval{
		{Start: at(10, 0), End: at(11, 0)},
		{Start: at(13, 0), End: at(14, 0)},
	}
	free = FreeIntervals(window, busy)
	require.Len(t, free, 3)
	assert.Equal(t, Interval{Start: at(9, 0), End: at(10, 0)}, free[0])
	assert.Equal(t, Interval{Start: at(11, 0), End: at(13, 0)}, free[1])
	assert.Equal(t, Interval{Start: at(14, 0), End: at(17, 0)}, free[2])

	// Overlapping busy intervals coalesce.
	free = FreeIntervals(window, []Interval{
		{Start: at(10, 0), End: at(12, 0)},
		{Start: at(11, 0), End: at(13, 0)},
	})
	require.Len(t, free, 2)
	assert.Equal(t, Interval{Start: at(9, 0), End: at(10, 0)}, free[0])
	assert.Equal(t, Interval{Start: at(13, 0), End: at(17, 0)}, free[1])

	// Busy cover extending past the window leaves nothing.
	free = FreeIntervals(window, []Interval{{Start: at(8, 0), End: at(18, 0)}})
	assert.Empty(t, free)
}

func TestFreeIntervalsProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	day := Interval{Start: at(0, 0), End: at(23, 59)}

	for run := 0; run < 200; run++ {
		busy := make([]Interval, rng.Intn(8))
		for i := range busy {
			start := day.Start.Add(time.Duration(rng.Intn(22*60)) * time.Minute)
			busy[i] = Interval{Start: start, End: start.Add(time.Duration(15+rng.Intn(120)) * time.Minute)}
		}

		free := FreeIntervals(day, busy)
		for i, f := range free {
			require.True(t, f.End.After(f.Start), "free interval %v is empty or inverted", f)
			require.False(t, f.Start.Before(day.Start))
			require.False(t, f.End.After(day.End))
			for _, b := range busy {
				require.False(t, f.Overlaps(b), "free %v overlaps busy %v", f, b)
			}
			if i > 0 {
				require.True(t, f.Start.After(free[i-1].End), "free intervals not sorted and disjoint")
			}
		}
	}
}
