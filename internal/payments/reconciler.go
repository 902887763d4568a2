package payments

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/careconnect/telehealth-platform/internal/observability/metrics"
	"github.com/careconnect/telehealth-platform/pkg/logging"
)

// BookingSettler applies payment outcomes to appointments.
type BookingSettler interface {
	ConfirmPaid(ctx context.Context, apptID uuid.UUID) error
	ConfirmPaidPlanInstance(ctx context.Context, planInstanceID uuid.UUID) error
	FailPayment(ctx context.Context, apptID uuid.UUID) error
	FailPaymentPlanInstance(ctx context.Context, planInstanceID uuid.UUID) error
	MarkRefunded(ctx context.Context, apptID uuid.UUID) error
}

// LedgerInvalidator drops cached subscription ledgers after settlement.
type LedgerInvalidator interface {
	ConfirmPaid(ctx context.Context, subscriptionID uuid.UUID)
}

// Reconciler applies gateway payment outcomes to orders and their bookings.
// Every path is idempotent: the order-status compare-and-set decides whether
// this call is the one that settles. A replay of an already-settled outcome
// re-drives only the conditional booking-side update, covering a crash
// between the order flip and the booking flip.
type Reconciler struct {
	store    *Store
	bookings BookingSettler
	ledgers  LedgerInvalidator
	logger   *logging.Logger
	tracer   trace.Tracer
}

// NewReconciler wires the payment reconciler.
func NewReconciler(store *Store, bookings BookingSettler, ledgers LedgerInvalidator, logger *logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{
		store:    store,
		bookings: bookings,
		ledgers:  ledgers,
		logger:   logger,
		tracer:   otel.Tracer("payments"),
	}
}

// HandleCompleted settles a successful payment: the order flips to
// completed exactly once, and that flip confirms the booking(s).
func (r *Reconciler) HandleCompleted(ctx context.Context, gatewayOrderID, gatewayPaymentID string) error {
	ctx, span := r.tracer.Start(ctx, "payments.HandleCompleted",
		trace.WithAttributes(attribute.String("gateway_order_id", gatewayOrderID)))
	defer span.End()

	order, err := r.store.GetByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return err
	}
	settled, err := r.store.MarkCompleted(ctx, order.ID, gatewayPaymentID)
	if err != nil {
		return err
	}
	if !settled {
		metrics.ReconciliationsTotal.WithLabelValues("replay").Inc()
		r.logger.Info("payment already settled", "order_id", order.ID, "status", order.Status)
		if order.Status == OrderCompleted {
			// A prior attempt settled the order but may have died before the
			// booking confirmed. The booking-side update is conditional, so
			// re-driving it on replay heals that window.
			return r.settleCompleted(ctx, order)
		}
		return nil
	}

	err = r.settleCompleted(ctx, order)
	if err != nil {
		// The order settled but the booking did not confirm. Fail the order
		// so it never reads completed over an unconfirmed booking; the
		// client can open a fresh order.
		if ferr := r.store.MarkSettlementFailed(ctx, order.ID, err.Error()); ferr != nil {
			r.logger.Error("failed to record settlement failure", "order_id", order.ID, "error", ferr)
		}
		metrics.ReconciliationsTotal.WithLabelValues("error").Inc()
		return err
	}

	metrics.ReconciliationsTotal.WithLabelValues("completed").Inc()
	r.logger.Info("payment reconciled", "order_id", order.ID, "gateway_payment_id", gatewayPaymentID)
	return nil
}

func (r *Reconciler) settleCompleted(ctx context.Context, order *Order) error {
	var err error
	switch {
	case order.AppointmentID != nil:
		err = r.bookings.ConfirmPaid(ctx, *order.AppointmentID)
	case order.PlanInstanceID != nil:
		err = r.bookings.ConfirmPaidPlanInstance(ctx, *order.PlanInstanceID)
		if err == nil && r.ledgers != nil {
			r.ledgers.ConfirmPaid(ctx, *order.PlanInstanceID)
		}
	}
	return err
}

// HandleFailed records a failed payment so the order and its bookings never
// look in-flight forever.
func (r *Reconciler) HandleFailed(ctx context.Context, gatewayOrderID, reason string) error {
	order, err := r.store.GetByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return err
	}
	settled, err := r.store.MarkFailed(ctx, order.ID, reason)
	if err != nil {
		return err
	}
	if !settled {
		metrics.ReconciliationsTotal.WithLabelValues("replay").Inc()
		if order.Status == OrderFailed {
			// A prior attempt marked the order failed but may have died
			// before the booking followed. The booking-side flip is a
			// compare-and-set, so re-driving it on replay heals that window.
			return r.settleFailed(ctx, order)
		}
		return nil
	}

	if err := r.settleFailed(ctx, order); err != nil {
		return err
	}

	metrics.ReconciliationsTotal.WithLabelValues("failed").Inc()
	r.logger.Info("payment failed", "order_id", order.ID, "reason", reason)
	return nil
}

func (r *Reconciler) settleFailed(ctx context.Context, order *Order) error {
	switch {
	case order.AppointmentID != nil:
		return r.bookings.FailPayment(ctx, *order.AppointmentID)
	case order.PlanInstanceID != nil:
		return r.bookings.FailPaymentPlanInstance(ctx, *order.PlanInstanceID)
	}
	return nil
}

// HandleRefunded records a gateway refund against a completed order.
func (r *Reconciler) HandleRefunded(ctx context.Context, gatewayOrderID string) error {
	order, err := r.store.GetByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return err
	}
	settled, err := r.store.MarkRefunded(ctx, order.ID)
	if err != nil {
		return err
	}
	if !settled {
		metrics.ReconciliationsTotal.WithLabelValues("replay").Inc()
		return nil
	}

	if order.AppointmentID != nil {
		if err := r.bookings.MarkRefunded(ctx, *order.AppointmentID); err != nil {
			return err
		}
	}
	metrics.ReconciliationsTotal.WithLabelValues("refunded").Inc()
	r.logger.Info("payment refunded", "order_id", order.ID)
	return nil
}
