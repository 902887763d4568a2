package appointments

import (
	"sort"
	"time"

	"github.com/careconnect/telehealth-platform/internal/plans"
)

// Interval is a half-open [Start, End) time range.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether two half-open intervals intersect. Adjacent
// intervals (a.End == b.Start) do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// Blocks reports whether an existing booking blocks a candidate in the
// given format. Group sessions share the expert's slot with each other but
// block one-to-one bookings and vice versa.
func Blocks(existing *Appointment, candidate Interval, candidateFormat plans.SessionFormat) bool {
	if existing.Status != StatusPending && existing.Status != StatusConfirmed {
		return false
	}
	if existing.SessionFormat == plans.FormatOneToMany && candidateFormat == plans.FormatOneToMany {
		return false
	}
	return Interval{Start: existing.StartTime, End: existing.EndTime}.Overlaps(candidate)
}

// FirstConflict returns the first existing booking that blocks the
// candidate, or nil when the slot is free.
func FirstConflict(existing []Appointment, candidate Interval, candidateFormat plans.SessionFormat) *Appointment {
	for i := range existing {
		if Blocks(&existing[i], candidate, candidateFormat) {
			return &existing[i]
		}
	}
	return nil
}

// FreeIntervals subtracts the busy intervals from the window and returns
// the remaining free ranges, sorted and coalesced.
func FreeIntervals(window Interval, busy []Interval) []Interval {
	if !window.End.After(window.Start) {
		return nil
	}

	sorted := make([]Interval, 0, len(busy))
	for _, b := range busy {
		if b.Overlaps(window) {
			sorted = append(sorted, b)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var free []Interval
	cursor := window.Start
	for _, b := range sorted {
		if b.Start.After(cursor) {
			free = append(free, Interval{Start: cursor, End: minTime(b.Start, window.End)})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
		if !cursor.Before(window.End) {
			return free
		}
	}
	if cursor.Before(window.End) {
		free = append(free, Interval{Start: cursor, End: window.End})
	}
	return free
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
