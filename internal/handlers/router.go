package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	mw "github.com/gigbook/backend/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// RouterConfig carries everything the HTTP surface needs.
type RouterConfig struct {
	Bookings  *BookingHandler
	Payments  *PaymentHandler
	Wallet    *WalletHandler
	Admin     *AdminHandler
	Scheduler *SchedulerHandler

	JWTSecret           string
	SchedulerSecretHash string
	SwaggerURL          string
	RequestTimeout      time.Duration
	Log                 *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.NotFound(notFoundJSON)

	r.Use(mw.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if cfg.Log != nil {
		r.Use(mw.RequestLogger(cfg.Log))
	}
	r.Use(middleware.Recoverer)
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	r.Use(middleware.Timeout(timeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	if cfg.SwaggerURL != "" {
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL(cfg.SwaggerURL)))
	}

	// Provider callbacks authenticate by signature, not bearer token.
	r.Post("/webhooks/payments/{provider}", cfg.Payments.Webhook)

	r.Route("/internal/scheduler", func(r chi.Router) {
		r.Use(mw.SchedulerAuth(cfg.SchedulerSecretHash))
		r.Post("/run", cfg.Scheduler.RunAll)
		r.Post("/run/{sweep}", cfg.Scheduler.RunSweep)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.NewAuthMiddleware(cfg.JWTSecret))

		r.Post("/bookings", cfg.Bookings.CreateBooking)
		r.Get("/bookings/{bookingId}", cfg.Bookings.GetBooking)
		r.Get("/bookings/{bookingId}/escrow", cfg.Bookings.GetEscrow)
		r.Post("/bookings/{bookingId}/cancel", cfg.Bookings.CancelBooking)
		r.Post("/bookings/{bookingId}/complete", cfg.Bookings.MarkComplete)
		r.Post("/bookings/{bookingId}/release", cfg.Bookings.ReleaseFunds)
		r.Post("/bookings/{bookingId}/pay-from-wallet", cfg.Bookings.PayFromWallet)
		r.Post("/escrow/{escrowId}/release", cfg.Bookings.ReleaseEscrow)

		r.Post("/payments/verify", cfg.Payments.VerifyPayment)

		r.Get("/banks", cfg.Wallet.ListBanks)
		r.Get("/wallet", cfg.Wallet.GetWallet)
		r.Get("/wallet/journal", cfg.Wallet.ListJournal)
		r.Get("/wallet/statement", cfg.Wallet.Statement)
		r.Post("/wallet/withdrawals", cfg.Wallet.RequestWithdrawal)

		r.Route("/admin", func(r chi.Router) {
			r.Use(mw.RequireRole(mw.RoleAdmin))
			r.Post("/bookings/{id}/refund", cfg.Admin.RefundBooking)
			r.Post("/complaints", cfg.Admin.RecordComplaint)
			r.Get("/compliance/{musicianId}", cfg.Admin.GetCompliance)
			r.Post("/compliance/{musicianId}/reset", cfg.Admin.ResetCompliance)
			r.Post("/withdrawals/{id}/settle", cfg.Admin.SettleWithdrawal)
		})
	})

	return r
}

// notFoundJSON keeps 404s in the API's error shape.
func notFoundJSON(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(map[string]string{"error": "Not found"})
}
