// internal/api/bookings/handlers.go
package bookings

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ulisao/NuevoAnden/internal/api/apiutil"
	"github.com/ulisao/NuevoAnden/internal/authz"
	core "github.com/ulisao/NuevoAnden/internal/bookings"
	"github.com/ulisao/NuevoAnden/internal/config"
	"github.com/ulisao/NuevoAnden/internal/email"
	"github.com/ulisao/NuevoAnden/internal/ratelimit"
)

var (
	svc      *core.Service
	limiter  *ratelimit.Limiter
	notifier *email.BookingNotifier
	cfg      *config.Config
	initOnce sync.Once
)

const bookingQueryTimeout = 5 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(service *core.Service, lim *ratelimit.Limiter, n *email.BookingNotifier, conf *config.Config) {
	if service == nil {
		return
	}
	initOnce.Do(func() {
		svc = service
		limiter = lim
		notifier = n
		cfg = conf
	})
}

type createRequest struct {
	CourtType string `json:"court_type"`
	Date      string `json:"date"`
	Hour      int64  `json:"hour"`
	UserName  string `json:"user_name,omitempty"`
	UserEmail string `json:"user_email,omitempty"`
}

// POST /api/v1/bookings
func HandleCreate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if svc == nil {
		logger.Error().Msg("Booking service not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	identity := authz.IdentityFromContext(r.Context())
	if identity == nil {
		apiutil.WriteDomainError(w, r, core.ErrAuthRequired)
		return
	}

	if limiter != nil {
		result := limiter.AllowCreate(identity.ID, ratelimit.ClientIP(r))
		if !result.Allowed {
			logger.Warn().
				Str("user_id", identity.ID).
				Str("reason", result.Reason).
				Msg("Booking create throttled")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(result.RetryAfter.Seconds())+1))
			http.Error(w, "Too many booking attempts; try again shortly", http.StatusTooManyRequests)
			return
		}
	}

	var req createRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// The id comes from the verified session; display name and contact
	// email may be supplied by the client form, as on the booking page.
	caller := *identity
	if req.UserName != "" {
		caller.Name = req.UserName
	}
	if req.UserEmail != "" {
		caller.Email = req.UserEmail
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingQueryTimeout)
	defer cancel()

	created, err := svc.Create(ctx, &caller, core.Slot{
		CourtType: req.CourtType,
		Date:      req.Date,
		Hour:      req.Hour,
	})
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusCreated, created); err != nil {
		logger.Error().Err(err).Str("reservation_id", created.ID).Msg("Failed to write booking response")
	}
}

// POST /api/v1/bookings/{id}/cancel
func HandleCancel(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if svc == nil {
		logger.Error().Msg("Booking service not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	identity := authz.IdentityFromContext(r.Context())
	reservationID := r.PathValue("id")

	ctx, cancel := context.WithTimeout(r.Context(), bookingQueryTimeout)
	defer cancel()

	cancelled, err := svc.Cancel(ctx, identity, reservationID)
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	if notifier != nil {
		details := email.BookingDetails{
			UserName:   cancelled.UserName,
			CourtLabel: courtLabel(cancelled.CourtType),
			Date:       cancelled.Date,
			Hour:       cancelled.Hour,
		}
		notifier.BookingCancelled(r.Context(), cancelled.UserEmail, details)
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, cancelled); err != nil {
		logger.Error().Err(err).Str("reservation_id", cancelled.ID).Msg("Failed to write cancel response")
	}
}

// GET /api/v1/bookings?date=...&court_type=...
// Browsing view: no authentication required, confirmed rows only.
func HandleListByDate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if svc == nil {
		logger.Error().Msg("Booking service not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	date := r.URL.Query().Get("date")
	courtType := r.URL.Query().Get("court_type")
	if date == "" || courtType == "" {
		http.Error(w, "date and court_type are required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingQueryTimeout)
	defer cancel()

	rows, err := svc.GetByDate(ctx, date, courtType)
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, rows); err != nil {
		logger.Error().Err(err).Str("date", date).Msg("Failed to write booking list response")
	}
}

// GET /api/v1/bookings/mine
func HandleListMine(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if svc == nil {
		logger.Error().Msg("Booking service not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	identity := authz.IdentityFromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), bookingQueryTimeout)
	defer cancel()

	rows, err := svc.GetMine(ctx, identity)
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, rows); err != nil {
		logger.Error().Err(err).Msg("Failed to write my bookings response")
	}
}

func courtLabel(courtType string) string {
	if cfg != nil {
		if court, ok := cfg.Court(courtType); ok && court.Label != "" {
			return court.Label
		}
	}
	return courtType
}
