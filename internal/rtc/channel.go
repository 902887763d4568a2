// Package rtc derives communication-room identifiers for live sessions.
// Names are pure functions of stable ids so every participant can compute
// the same room without a directory lookup. Once persisted on an
// appointment the name is never regenerated.
package rtc

import "github.com/google/uuid"

const (
	appointmentPrefix = "appointment:"
	groupPrefix       = "group:"
	planGroupPrefix   = "group-plan:"
)

// AppointmentChannel names the room for a one-to-one session.
func AppointmentChannel(appointmentID uuid.UUID) string {
	return appointmentPrefix + appointmentID.String()
}

// GroupChannel names the room for an expert-led group session. The group
// session id is assigned once by the expert and copied onto every
// participating appointment.
func GroupChannel(groupSessionID uuid.UUID) string {
	return groupPrefix + groupSessionID.String()
}

// PlanGroupChannel names the room for a dynamic group session tied to a
// plan's recurring schedule. The name excludes date/time so rescheduling
// the recurring slot does not orphan the room.
func PlanGroupChannel(planID uuid.UUID) string {
	return planGroupPrefix + planID.String()
}
