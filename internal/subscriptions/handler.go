package subscriptions

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careconnect/telehealth-platform/internal/appointments"
	"github.com/careconnect/telehealth-platform/internal/identity"
	"github.com/careconnect/telehealth-platform/internal/plans"
	"github.com/careconnect/telehealth-platform/pkg/logging"
)

// Handler handles HTTP requests for subscriptions.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

// NewHandler creates a subscriptions handler.
func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// PurchaseRequest is the request body for buying a month of a plan.
type PurchaseRequest struct {
	PlanID    string              `json:"plan_id"`
	Method    appointments.Method `json:"method"`
	AutoRenew bool                `json:"auto_renew"`
	Slots     []struct {
		StartTime time.Time `json:"start_time"`
		EndTime   time.Time `json:"end_time"`
	} `json:"slots"`
}

// Purchase handles POST /subscriptions (client only).
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	clientID, ok := clientUUID(w, r)
	if !ok {
		return
	}
	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	planID, err := uuid.Parse(req.PlanID)
	if err != nil {
		http.Error(w, "invalid plan id", http.StatusBadRequest)
		return
	}
	slots := make([]appointments.PlanSlot, len(req.Slots))
	for i, s := range req.Slots {
		slots[i] = appointments.PlanSlot{StartTime: s.StartTime, EndTime: s.EndTime}
	}

	result, err := h.svc.Purchase(r.Context(), clientID, planID, req.Method, slots, req.AutoRenew)
	if err != nil {
		h.writeError(w, err, "failed to purchase subscription")
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// List handles GET /subscriptions (client only).
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	clientID, ok := clientUUID(w, r)
	if !ok {
		return
	}
	subs, err := h.svc.List(r.Context(), clientID)
	if err != nil {
		h.writeError(w, err, "failed to list subscriptions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscriptions": subs, "count": len(subs)})
}

// Get handles GET /subscriptions/{subscriptionID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := callerAndID(w, r)
	if !ok {
		return
	}
	sub, err := h.svc.Get(r.Context(), caller, id)
	if err != nil {
		h.writeError(w, err, "failed to load subscription")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// Ledger handles GET /subscriptions/{subscriptionID}/ledger.
func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := callerAndID(w, r)
	if !ok {
		return
	}
	ledger, err := h.svc.GetLedger(r.Context(), caller, id)
	if err != nil {
		h.writeError(w, err, "failed to compute ledger")
		return
	}
	writeJSON(w, http.StatusOK, ledger)
}

// Cancel handles POST /subscriptions/{subscriptionID}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	caller, id, ok := callerAndID(w, r)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	sub, err := h.svc.Cancel(r.Context(), caller, id, req.Reason)
	if err != nil {
		h.writeError(w, err, "failed to cancel subscription")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, plans.ErrPlanNotFound), errors.Is(err, appointments.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrNotActive), errors.Is(err, appointments.ErrSlotUnavailable):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrNotMonthly),
		errors.Is(err, appointments.ErrInvalidTimeRange),
		errors.Is(err, appointments.ErrDurationMismatch),
		errors.Is(err, appointments.ErrReasonRequired):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error(fallback, "error", err)
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}

func clientUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	caller, ok := identity.CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return uuid.Nil, false
	}
	if caller.Role != identity.RoleClient {
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

func callerAndID(w http.ResponseWriter, r *http.Request) (identity.Caller, uuid.UUID, bool) {
	caller, ok := identity.CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return identity.Caller{}, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "subscriptionID"))
	if err != nil {
		http.Error(w, "invalid subscription id", http.StatusBadRequest)
		return identity.Caller{}, uuid.Nil, false
	}
	return caller, id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
