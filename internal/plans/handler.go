package plans

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careconnect/telehealth-platform/internal/identity"
	"github.com/careconnect/telehealth-platform/pkg/logging"
)

// Handler handles HTTP requests for the plan catalog.
type Handler struct {
	store    *Store
	currency string
	logger   *logging.Logger
}

// NewHandler creates a plans handler.
func NewHandler(store *Store, currency string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, currency: currency, logger: logger}
}

// CreatePlanRequest is the request body for creating a plan.
type CreatePlanRequest struct {
	Kind             Kind          `json:"kind"`
	SessionFormat    SessionFormat `json:"session_format"`
	DurationMinutes  int           `json:"duration_minutes"`
	PriceCents       int64         `json:"price_cents"`
	SessionsPerMonth int           `json:"sessions_per_month"`
}

// Create handles POST /plans (expert only).
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.CallerFromContext(r.Context())
	if !ok || caller.Role != identity.RoleExpert {
		http.Error(w, "expert identity required", http.StatusForbidden)
		return
	}
	expertID, err := uuid.Parse(caller.ID)
	if err != nil {
		http.Error(w, "invalid expert id", http.StatusBadRequest)
		return
	}

	var req CreatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	plan := &Plan{
		ExpertID:         expertID,
		Kind:             req.Kind,
		SessionFormat:    req.SessionFormat,
		DurationMinutes:  req.DurationMinutes,
		PriceCents:       req.PriceCents,
		Currency:         h.currency,
		SessionsPerMonth: req.SessionsPerMonth,
	}
	if err := h.store.Create(r.Context(), plan); err != nil {
		if isValidationError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to create plan", "error", err)
		http.Error(w, "failed to create plan", http.StatusInternalServerError)
		return
	}

	h.logger.Info("plan created", "id", plan.ID, "expert_id", expertID, "kind", plan.Kind)
	writeJSON(w, http.StatusCreated, plan)
}

// Get handles GET /plans/{planID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "planID"))
	if err != nil {
		http.Error(w, "invalid plan id", http.StatusBadRequest)
		return
	}
	plan, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			http.Error(w, "plan not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load plan", "error", err, "id", id)
		http.Error(w, "failed to load plan", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// ListByExpert handles GET /experts/{expertID}/plans.
func (h *Handler) ListByExpert(w http.ResponseWriter, r *http.Request) {
	expertID, err := uuid.Parse(chi.URLParam(r, "expertID"))
	if err != nil {
		http.Error(w, "invalid expert id", http.StatusBadRequest)
		return
	}
	result, err := h.store.ListByExpert(r.Context(), expertID)
	if err != nil {
		h.logger.Error("failed to list plans", "error", err, "expert_id", expertID)
		http.Error(w, "failed to list plans", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": result, "count": len(result)})
}

// Update handles PUT /plans/{planID}. A referenced plan is never mutated:
// the update inserts a replacement row and retires the original.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.CallerFromContext(r.Context())
	if !ok || caller.Role != identity.RoleExpert {
		http.Error(w, "expert identity required", http.StatusForbidden)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "planID"))
	if err != nil {
		http.Error(w, "invalid plan id", http.StatusBadRequest)
		return
	}

	existing, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			http.Error(w, "plan not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load plan", http.StatusInternalServerError)
		return
	}
	if existing.ExpertID.String() != caller.ID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var req CreatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	replacement := &Plan{
		ExpertID:         existing.ExpertID,
		Kind:             req.Kind,
		SessionFormat:    req.SessionFormat,
		DurationMinutes:  req.DurationMinutes,
		PriceCents:       req.PriceCents,
		Currency:         existing.Currency,
		SessionsPerMonth: req.SessionsPerMonth,
	}

	referenced, err := h.store.Referenced(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to check plan references", "error", err, "id", id)
		http.Error(w, "failed to update plan", http.StatusInternalServerError)
		return
	}
	if !referenced {
		// Unreferenced plans can be replaced in place without history concerns.
		replacement.ID = id
	}

	if err := h.store.Supersede(r.Context(), id, replacement); err != nil {
		if isValidationError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to supersede plan", "error", err, "id", id)
		http.Error(w, "failed to update plan", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, replacement)
}

// Reschedule handles PATCH /plans/{planID}/recurring-schedule for dynamic
// group plans.
func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "planID"))
	if err != nil {
		http.Error(w, "invalid plan id", http.StatusBadRequest)
		return
	}
	var req struct {
		StartsAt time.Time `json:"starts_at"`
		EndsAt   time.Time `json:"ends_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.EndsAt.After(req.StartsAt) {
		http.Error(w, "ends_at must be after starts_at", http.StatusBadRequest)
		return
	}
	if err := h.store.UpdateRecurringSchedule(r.Context(), id, req.StartsAt.UTC(), req.EndsAt.UTC()); err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			http.Error(w, "plan not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to reschedule plan", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func isValidationError(err error) bool {
	return errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrMissingSessionFormat) ||
		errors.Is(err, ErrInvalidSessionsPerMonth) ||
		errors.Is(err, ErrInvalidPrice) ||
		errors.Is(err, ErrInvalidDuration) ||
		errors.Is(err, ErrMissingExpert)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
