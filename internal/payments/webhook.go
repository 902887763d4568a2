package payments

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/careconnect/telehealth-platform/internal/observability/metrics"
	"github.com/careconnect/telehealth-platform/pkg/logging"
)

// SignatureHeader carries the gateway's HMAC over the raw request body.
const SignatureHeader = "X-Gateway-Signature"

const webhookSource = "gateway"

// maxWebhookBody bounds webhook payloads at 64 KiB.
const maxWebhookBody = 64 << 10

// webhookEvent is the gateway's webhook envelope.
type webhookEvent struct {
	EventID string `json:"event_id"`
	Event   string `json:"event"`
	Data    struct {
		OrderID   string `json:"order_id"`
		PaymentID string `json:"payment_id"`
		Reason    string `json:"reason"`
	} `json:"data"`
}

// EventDeduper records handled gateway event ids.
type EventDeduper interface {
	AlreadyProcessed(ctx context.Context, source, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, source, eventID string) (bool, error)
}

// WebhookHandler receives gateway payment webhooks: verify the signature,
// dedup the event id, then hand the outcome to the reconciler.
type WebhookHandler struct {
	secret     string
	reconciler *Reconciler
	processed  EventDeduper
	logger     *logging.Logger
}

// NewWebhookHandler wires the webhook endpoint.
func NewWebhookHandler(secret string, reconciler *Reconciler, processed EventDeduper, logger *logging.Logger) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{secret: secret, reconciler: reconciler, processed: processed, logger: logger}
}

// ServeHTTP handles POST /webhooks/payments.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if !VerifySignature(h.secret, body, r.Header.Get(SignatureHeader)) {
		metrics.WebhookRejectionsTotal.WithLabelValues("bad_signature").Inc()
		h.logger.Warn("webhook signature rejected", "remote", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil || event.EventID == "" || event.Data.OrderID == "" {
		metrics.WebhookRejectionsTotal.WithLabelValues("malformed").Inc()
		http.Error(w, "malformed event", http.StatusBadRequest)
		return
	}

	seen, err := h.processed.AlreadyProcessed(r.Context(), webhookSource, event.EventID)
	if err != nil {
		h.logger.Error("failed to dedup webhook", "event_id", event.EventID, "error", err)
		http.Error(w, "failed to process event", http.StatusInternalServerError)
		return
	}
	if seen {
		// Gateways redeliver; acknowledging duplicates stops the retries.
		metrics.WebhookRejectionsTotal.WithLabelValues("duplicate").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	switch event.Event {
	case "payment.completed":
		err = h.reconciler.HandleCompleted(r.Context(), event.Data.OrderID, event.Data.PaymentID)
	case "payment.failed":
		err = h.reconciler.HandleFailed(r.Context(), event.Data.OrderID, event.Data.Reason)
	case "payment.refunded":
		err = h.reconciler.HandleRefunded(r.Context(), event.Data.OrderID)
	default:
		// Unknown event types are acknowledged so the gateway stops resending.
		h.logger.Info("ignoring gateway event", "event", event.Event, "event_id", event.EventID)
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		h.logger.Error("webhook reconciliation failed",
			"event", event.Event,
			"event_id", event.EventID,
			"order_id", event.Data.OrderID,
			"error", err)
		http.Error(w, "failed to process event", http.StatusInternalServerError)
		return
	}

	// Record the event only after it applied. A crash between reconcile and
	// here just means the retry hits the order's compare-and-set as a no-op.
	if _, err := h.processed.MarkProcessed(r.Context(), webhookSource, event.EventID); err != nil {
		h.logger.Error("failed to record processed event", "event_id", event.EventID, "error", err)
	}
	w.WriteHeader(http.StatusOK)
}
