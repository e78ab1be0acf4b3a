// cmd/server/server.go
package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ulisao/NuevoAnden/internal/api"
	adminapi "github.com/ulisao/NuevoAnden/internal/api/admin"
	"github.com/ulisao/NuevoAnden/internal/api/auth"
	bookingsapi "github.com/ulisao/NuevoAnden/internal/api/bookings"
	courtsapi "github.com/ulisao/NuevoAnden/internal/api/courts"
	paymentsapi "github.com/ulisao/NuevoAnden/internal/api/payments"
	"github.com/ulisao/NuevoAnden/internal/authz"
	"github.com/ulisao/NuevoAnden/internal/bookings"
	"github.com/ulisao/NuevoAnden/internal/config"
	"github.com/ulisao/NuevoAnden/internal/email"
	"github.com/ulisao/NuevoAnden/internal/payments"
	"github.com/ulisao/NuevoAnden/internal/ratelimit"
)

type serverDeps struct {
	service  *bookings.Service
	policy   *authz.Policy
	gateway  *payments.Client
	notifier *email.BookingNotifier
	limiter  *ratelimit.Limiter
}

func newServer(cfg *config.Config, deps serverDeps) *http.Server {
	router := http.NewServeMux()

	// Setup middleware chain
	handler := api.ChainMiddleware(
		router,
		api.WithLogging,
		auth.WithIdentity(cfg.App.Environment == "development" && cfg.Auth.AllowDevHeaders),
		api.WithRecovery,
		api.WithRequestID,
	)

	bookingsapi.InitHandlers(deps.service, deps.limiter, deps.notifier, cfg)
	adminapi.InitHandlers(deps.service)
	paymentsapi.InitHandlers(deps.service, deps.gateway, deps.policy, deps.notifier, cfg)
	courtsapi.InitHandlers(cfg)

	registerRoutes(router)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux) {
	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Court catalog
	mux.HandleFunc("GET /api/v1/courts", courtsapi.HandleCatalog)

	// Booking routes
	mux.HandleFunc("POST /api/v1/bookings", bookingsapi.HandleCreate)
	mux.HandleFunc("GET /api/v1/bookings", bookingsapi.HandleListByDate)
	mux.HandleFunc("GET /api/v1/bookings/mine", bookingsapi.HandleListMine)
	mux.HandleFunc("POST /api/v1/bookings/{id}/cancel", bookingsapi.HandleCancel)

	// Operator routes
	mux.HandleFunc("POST /api/v1/admin/blocks", adminapi.HandleBlock)
	mux.HandleFunc("GET /api/v1/admin/bookings", adminapi.HandleListAll)

	// Payment routes
	mux.HandleFunc("POST /api/v1/payments/preference", paymentsapi.HandleCreatePreference)
	mux.HandleFunc("GET /payments/return", paymentsapi.HandleReturn)
	mux.HandleFunc("POST /api/v1/payments/webhook", paymentsapi.HandleWebhook)
}
