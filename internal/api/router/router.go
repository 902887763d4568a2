// Package router assembles the HTTP surface of the booking platform.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/careconnect/telehealth-platform/internal/appointments"
	httpmiddleware "github.com/careconnect/telehealth-platform/internal/http/middleware"
	"github.com/careconnect/telehealth-platform/internal/identity"
	"github.com/careconnect/telehealth-platform/internal/payments"
	"github.com/careconnect/telehealth-platform/internal/plans"
	"github.com/careconnect/telehealth-platform/internal/subscriptions"
	"github.com/careconnect/telehealth-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger *logging.Logger

	PlansHandler         *plans.Handler
	AppointmentsHandler  *appointments.Handler
	SubscriptionsHandler *subscriptions.Handler
	PaymentsHandler      *payments.Handler
	PaymentWebhook       *payments.WebhookHandler
	MetricsHandler       http.Handler

	AuthJWTSecret      string
	CORSAllowedOrigins []string
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints: health, metrics, gateway webhooks.
	r.Group(func(public chi.Router) {
		public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.PaymentWebhook != nil {
			public.Post("/webhooks/payments", cfg.PaymentWebhook.ServeHTTP)
		}
		// Plan catalog reads are public so prospective clients can browse.
		public.Get("/plans/{planID}", cfg.PlansHandler.Get)
		public.Get("/experts/{expertID}/plans", cfg.PlansHandler.ListByExpert)
		public.Get("/experts/{expertID}/slots", cfg.AppointmentsHandler.FreeSlots)
	})

	// Authenticated API.
	r.Group(func(api chi.Router) {
		api.Use(httpmiddleware.Auth(cfg.AuthJWTSecret))

		api.Route("/plans", func(r chi.Router) {
			r.With(httpmiddleware.RequireRole(identity.RoleExpert)).Post("/", cfg.PlansHandler.Create)
			r.With(httpmiddleware.RequireRole(identity.RoleExpert)).Put("/{planID}", cfg.PlansHandler.Update)
			r.With(httpmiddleware.RequireRole(identity.RoleExpert)).Patch("/{planID}/recurring-schedule", cfg.PlansHandler.Reschedule)
		})

		api.Route("/appointments", func(r chi.Router) {
			r.Get("/", cfg.AppointmentsHandler.List)
			r.Post("/", cfg.AppointmentsHandler.Book)
			r.Post("/plan", cfg.AppointmentsHandler.BookPlan)
			r.Get("/{appointmentID}", cfg.AppointmentsHandler.Get)
			r.Post("/{appointmentID}/accept", cfg.AppointmentsHandler.Accept)
			r.Post("/{appointmentID}/cancel", cfg.AppointmentsHandler.Cancel)
			r.Post("/{appointmentID}/reject", cfg.AppointmentsHandler.Reject)
			r.Post("/{appointmentID}/feedback", cfg.AppointmentsHandler.Feedback)
		})

		api.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", cfg.SubscriptionsHandler.Purchase)
			r.Get("/", cfg.SubscriptionsHandler.List)
			r.Get("/{subscriptionID}", cfg.SubscriptionsHandler.Get)
			r.Get("/{subscriptionID}/ledger", cfg.SubscriptionsHandler.Ledger)
			r.Post("/{subscriptionID}/cancel", cfg.SubscriptionsHandler.Cancel)
		})

		api.Route("/payments", func(r chi.Router) {
			r.Post("/orders", cfg.PaymentsHandler.CreateOrder)
			r.Get("/orders/{orderID}", cfg.PaymentsHandler.GetOrder)
			r.Post("/orders/{orderID}/cancel", cfg.PaymentsHandler.CancelOrder)
			r.Post("/verify", cfg.PaymentsHandler.Verify)
		})
	})

	return r
}
