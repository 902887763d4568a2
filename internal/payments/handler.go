package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careconnect/telehealth-platform/internal/appointments"
	"github.com/careconnect/telehealth-platform/internal/identity"
	"github.com/careconnect/telehealth-platform/internal/subscriptions"
	"github.com/careconnect/telehealth-platform/pkg/logging"
)

// AppointmentSource resolves appointments an order pays for.
type AppointmentSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
}

// SubscriptionSource resolves subscriptions an order pays for.
type SubscriptionSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*subscriptions.Subscription, error)
}

// Handler handles HTTP requests for payment orders.
type Handler struct {
	store      *Store
	appts      AppointmentSource
	subs       SubscriptionSource
	reconciler *Reconciler
	processed  EventDeduper
	secret     string
	logger     *logging.Logger
}

// NewHandler creates a payments handler.
func NewHandler(store *Store, appts AppointmentSource, subs SubscriptionSource, reconciler *Reconciler, processed EventDeduper, secret string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		store:      store,
		appts:      appts,
		subs:       subs,
		reconciler: reconciler,
		processed:  processed,
		secret:     secret,
		logger:     logger,
	}
}

// CreateOrderRequest is the request body for opening a payment order.
// Exactly one target must be set.
type CreateOrderRequest struct {
	AppointmentID  string `json:"appointment_id,omitempty"`
	PlanInstanceID string `json:"plan_instance_id,omitempty"`
}

// CreateOrder handles POST /payments/orders (client only). The amount is
// taken from the booking's price snapshot, never from the request.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.CallerFromContext(r.Context())
	if !ok || caller.Role != identity.RoleClient {
		http.Error(w, "client identity required", http.StatusForbidden)
		return
	}
	clientID, err := uuid.Parse(caller.ID)
	if err != nil {
		http.Error(w, "invalid caller id", http.StatusBadRequest)
		return
	}

	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	order := &Order{ClientID: clientID, GatewayOrderID: "order_" + uuid.NewString()}
	switch {
	case req.AppointmentID != "" && req.PlanInstanceID == "":
		apptID, err := uuid.Parse(req.AppointmentID)
		if err != nil {
			http.Error(w, "invalid appointment id", http.StatusBadRequest)
			return
		}
		appt, err := h.appts.GetByID(r.Context(), apptID)
		if err != nil {
			h.writeError(w, err, "failed to load appointment")
			return
		}
		if appt.ClientID != clientID {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		order.AppointmentID = &appt.ID
		order.AmountCents = appt.PriceCents
		order.Currency = appt.Currency
	case req.PlanInstanceID != "" && req.AppointmentID == "":
		subID, err := uuid.Parse(req.PlanInstanceID)
		if err != nil {
			http.Error(w, "invalid plan instance id", http.StatusBadRequest)
			return
		}
		sub, err := h.subs.GetByID(r.Context(), subID)
		if err != nil {
			h.writeError(w, err, "failed to load subscription")
			return
		}
		if sub.ClientID != clientID {
			http.Error(w, "subscription not found", http.StatusNotFound)
			return
		}
		order.PlanInstanceID = &sub.ID
		order.AmountCents = sub.PriceCents
		order.Currency = sub.Currency
	default:
		http.Error(w, "exactly one of appointment_id and plan_instance_id is required", http.StatusBadRequest)
		return
	}

	if order.AmountCents <= 0 {
		http.Error(w, ErrNothingToPay.Error(), http.StatusBadRequest)
		return
	}
	if err := h.store.Create(r.Context(), order); err != nil {
		h.logger.Error("failed to create payment order", "error", err)
		http.Error(w, "failed to create order", http.StatusInternalServerError)
		return
	}

	h.logger.Info("payment order created",
		"order_id", order.ID,
		"gateway_order_id", order.GatewayOrderID,
		"amount_cents", order.AmountCents)
	writeJSON(w, http.StatusCreated, order)
}

// GetOrder handles GET /payments/orders/{orderID}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}
	order, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "failed to load order")
		return
	}
	if caller.Role != identity.RoleAdmin && order.ClientID.String() != caller.ID {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// CancelOrder handles POST /payments/orders/{orderID}/cancel: the client
// abandoned checkout before the gateway reported anything.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.CallerFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}
	order, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "failed to load order")
		return
	}
	if caller.Role != identity.RoleAdmin && order.ClientID.String() != caller.ID {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}
	cancelled, err := h.store.MarkCancelled(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "failed to cancel order")
		return
	}
	if !cancelled {
		http.Error(w, "order already settled", http.StatusConflict)
		return
	}
	order.Status = OrderCancelled
	writeJSON(w, http.StatusOK, order)
}

// VerifyRequest is the checkout-return verification body. The signature is
// the gateway's HMAC over "<order_id>|<payment_id>".
type VerifyRequest struct {
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

// Verify handles POST /payments/verify. The browser return path and the
// webhook race to settle the same order; the reconciler's compare-and-set
// lets whichever lands first win and the other fall through.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.GatewayOrderID == "" || req.GatewayPaymentID == "" {
		http.Error(w, "gateway order and payment ids required", http.StatusBadRequest)
		return
	}
	payload := []byte(req.GatewayOrderID + "|" + req.GatewayPaymentID)
	if !VerifySignature(h.secret, payload, req.Signature) {
		http.Error(w, ErrInvalidSignature.Error(), http.StatusUnauthorized)
		return
	}

	// The client is back from checkout: the order is in flight until the
	// reconciler settles it.
	if order, err := h.store.GetByGatewayOrderID(r.Context(), req.GatewayOrderID); err == nil {
		if _, err := h.store.MarkProcessing(r.Context(), order.ID); err != nil {
			h.logger.Warn("failed to mark order processing", "order_id", order.ID, "error", err)
		}
	}

	if err := h.reconciler.HandleCompleted(r.Context(), req.GatewayOrderID, req.GatewayPaymentID); err != nil {
		h.writeError(w, err, "failed to verify payment")
		return
	}

	order, err := h.store.GetByGatewayOrderID(r.Context(), req.GatewayOrderID)
	if err != nil {
		h.writeError(w, err, "failed to load order")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrOrderNotFound),
		errors.Is(err, appointments.ErrNotFound),
		errors.Is(err, subscriptions.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrMissingTarget), errors.Is(err, ErrNothingToPay):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error(fallback, "error", err)
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
