package appointments

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careconnect/telehealth-platform/internal/identity"
	"github.com/careconnect/telehealth-platform/internal/observability/metrics"
	"github.com/careconnect/telehealth-platform/pkg/logging"
)

// Handler handles HTTP requests for appointments.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

// NewHandler creates an appointments handler.
func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// BookAppointmentRequest is the request body for a single booking.
type BookAppointmentRequest struct {
	ExpertID       string    `json:"expert_id"`
	PlanID         string    `json:"plan_id,omitempty"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Method         Method    `json:"method"`
	GroupSessionID string    `json:"group_session_id,omitempty"`
}

// Book handles POST /appointments (client only).
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	clientID, ok := callerUUID(w, r, identity.RoleClient)
	if !ok {
		return
	}
	var req BookAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	expertID, err := uuid.Parse(req.ExpertID)
	if err != nil {
		http.Error(w, "invalid expert id", http.StatusBadRequest)
		return
	}

	book := BookRequest{
		ClientID:  clientID,
		ExpertID:  expertID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Method:    req.Method,
	}
	if req.PlanID != "" {
		planID, err := uuid.Parse(req.PlanID)
		if err != nil {
			http.Error(w, "invalid plan id", http.StatusBadRequest)
			return
		}
		book.PlanID = &planID
	}
	if req.GroupSessionID != "" {
		groupID, err := uuid.Parse(req.GroupSessionID)
		if err != nil {
			http.Error(w, "invalid group session id", http.StatusBadRequest)
			return
		}
		book.GroupSessionID = &groupID
	}

	appt, err := h.svc.Book(r.Context(), book)
	if err != nil {
		h.writeError(w, err, "failed to book appointment")
		return
	}
	metrics.BookingsTotal.WithLabelValues(string(appt.SessionFormat)).Inc()
	writeJSON(w, http.StatusCreated, appt)
}

// BookPlanRequest is the request body for booking a monthly plan's sessions.
type BookPlanRequest struct {
	PlanID string `json:"plan_id"`
	Method Method `json:"method"`
	Slots  []struct {
		StartTime time.Time `json:"start_time"`
		EndTime   time.Time `json:"end_time"`
	} `json:"slots"`
}

// BookPlan handles POST /appointments/plan (client only).
func (h *Handler) BookPlan(w http.ResponseWriter, r *http.Request) {
	clientID, ok := callerUUID(w, r, identity.RoleClient)
	if !ok {
		return
	}
	var req BookPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	planID, err := uuid.Parse(req.PlanID)
	if err != nil {
		http.Error(w, "invalid plan id", http.StatusBadRequest)
		return
	}
	slots := make([]PlanSlot, len(req.Slots))
	for i, s := range req.Slots {
		slots[i] = PlanSlot{StartTime: s.StartTime, EndTime: s.EndTime}
	}

	created, instanceID, err := h.svc.BookPlanSessions(r.Context(), clientID, planID, req.Method, slots)
	if err != nil {
		h.writeError(w, err, "failed to book plan sessions")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"plan_instance_id": instanceID,
		"appointments":     created,
	})
}

// List handles GET /appointments: the caller's own bookings.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	appts, err := h.svc.List(r.Context(), caller)
	if err != nil {
		h.writeError(w, err, "failed to list appointments")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": appts, "count": len(appts)})
}

// Get handles GET /appointments/{appointmentID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	appt, err := h.svc.Get(r.Context(), caller, id)
	if err != nil {
		h.writeError(w, err, "failed to load appointment")
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// Accept handles POST /appointments/{appointmentID}/accept (expert only).
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	expertID, ok := callerUUID(w, r, identity.RoleExpert)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	appt, err := h.svc.Accept(r.Context(), expertID, id)
	if err != nil {
		h.writeError(w, err, "failed to accept appointment")
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// Cancel handles POST /appointments/{appointmentID}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	appt, err := h.svc.Cancel(r.Context(), caller, id, req.Reason)
	if err != nil {
		h.writeError(w, err, "failed to cancel appointment")
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// Reject handles POST /appointments/{appointmentID}/reject (expert only).
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	expertID, ok := callerUUID(w, r, identity.RoleExpert)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	if err := h.svc.Reject(r.Context(), expertID, id); err != nil {
		h.writeError(w, err, "failed to reject appointment")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Feedback handles POST /appointments/{appointmentID}/feedback (client only).
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	clientID, ok := callerUUID(w, r, identity.RoleClient)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	var req struct {
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.svc.SubmitFeedback(r.Context(), clientID, id, req.Rating, req.Comment); err != nil {
		h.writeError(w, err, "failed to record feedback")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FreeSlots handles GET /experts/{expertID}/slots?from=&to=.
func (h *Handler) FreeSlots(w http.ResponseWriter, r *http.Request) {
	expertID, err := uuid.Parse(chi.URLParam(r, "expertID"))
	if err != nil {
		http.Error(w, "invalid expert id", http.StatusBadRequest)
		return
	}
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		http.Error(w, "invalid from time", http.StatusBadRequest)
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		http.Error(w, "invalid to time", http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	free, err := h.svc.FreeSlots(r.Context(), expertID, Interval{Start: from.UTC(), End: to.UTC()})
	if err != nil {
		h.writeError(w, err, "failed to compute free slots")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": free, "count": len(free)})
}

func (h *Handler) writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrSlotUnavailable):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrPaymentRequired),
		errors.Is(err, ErrNotCompleted):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrInvalidTimeRange),
		errors.Is(err, ErrDurationMismatch),
		errors.Is(err, ErrReasonRequired),
		errors.Is(err, ErrInvalidRating):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error(fallback, "error", err)
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}

// callerUUID extracts the authenticated caller's id when it has the wanted
// role, writing the error response otherwise.
func callerUUID(w http.ResponseWriter, r *http.Request, role identity.Role) (uuid.UUID, bool) {
	caller, ok := identity.CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return uuid.Nil, false
	}
	if caller.Role != role {
		http.Error(w, "forbidden", http.StatusForbidden)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(caller.ID)
	if err != nil {
		http.Error(w, "invalid caller id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
