// internal/api/payments/handlers.go
package payments

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ulisao/NuevoAnden/internal/api/apiutil"
	"github.com/ulisao/NuevoAnden/internal/authz"
	core "github.com/ulisao/NuevoAnden/internal/bookings"
	"github.com/ulisao/NuevoAnden/internal/config"
	"github.com/ulisao/NuevoAnden/internal/db"
	"github.com/ulisao/NuevoAnden/internal/email"
	gateway "github.com/ulisao/NuevoAnden/internal/payments"
)

var (
	svc      *core.Service
	client   *gateway.Client
	policy   *authz.Policy
	notifier *email.BookingNotifier
	cfg      *config.Config
	initOnce sync.Once
)

const paymentQueryTimeout = 15 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(service *core.Service, gw *gateway.Client, pol *authz.Policy, n *email.BookingNotifier, conf *config.Config) {
	if service == nil {
		return
	}
	initOnce.Do(func() {
		svc = service
		client = gw
		policy = pol
		notifier = n
		cfg = conf
	})
}

type preferenceRequest struct {
	ReservationID string `json:"reservation_id"`
	Title         string `json:"title,omitempty"`
	ReturnBaseURL string `json:"return_base_url,omitempty"`
}

type preferenceResponse struct {
	RedirectURL string `json:"redirect_url"`
}

// POST /api/v1/payments/preference
// Creates the provider payment intent for a pending reservation and returns
// the redirect URL. The reservation itself is untouched; it must already be
// holding the slot as pending_payment.
func HandleCreatePreference(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if svc == nil || client == nil {
		logger.Error().Msg("Payment handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	identity := authz.IdentityFromContext(r.Context())
	if identity == nil {
		apiutil.WriteDomainError(w, r, core.ErrAuthRequired)
		return
	}

	var req preferenceRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ReservationID == "" {
		http.Error(w, "reservation_id is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), paymentQueryTimeout)
	defer cancel()

	reservation, err := svc.Get(ctx, req.ReservationID)
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}
	if err := policy.CanModifyReservation(identity, reservation.UserID); err != nil {
		apiutil.WriteDomainError(w, r, core.ErrPermissionDenied)
		return
	}
	if reservation.Status != db.StatusPendingPayment {
		apiutil.WriteDomainError(w, r, apiutil.HandlerError{
			Status:  http.StatusConflict,
			Message: "Reservation is not awaiting payment",
		})
		return
	}

	court, _ := cfg.Court(reservation.CourtType)
	title := req.Title
	if title == "" {
		title = fmt.Sprintf("Reserva %s %s %02d:00", court.Label, reservation.Date, reservation.Hour)
	}
	returnBase := req.ReturnBaseURL
	if returnBase == "" {
		returnBase = cfg.App.BaseURL
	}

	redirectURL, err := client.CreatePreference(ctx, gateway.PreferenceRequest{
		ReservationID: reservation.ID,
		Title:         title,
		Amount:        court.HourlyPrice,
		ReturnBaseURL: returnBase,
	})
	if err != nil {
		// The pending row is NOT rolled back here: the caller decides
		// whether to retry or cancel, and the sweep reclaims the slot
		// if they walk away.
		apiutil.WriteDomainError(w, r, err)
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, preferenceResponse{RedirectURL: redirectURL}); err != nil {
		logger.Error().Err(err).Str("reservation_id", reservation.ID).Msg("Failed to write preference response")
	}
}

type returnResponse struct {
	Status      string          `json:"status"`
	Message     string          `json:"message"`
	Reservation *db.Reservation `json:"reservation,omitempty"`
}

// GET /payments/return?status=...&reservationId=...
// The browser comes back here after paying off-site. Only success mutates
// state; failure and pending surface a notice. Note this path trusts the
// redirect parameters; the signed webhook is the tamper-proof counterpart.
func HandleReturn(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if svc == nil {
		logger.Error().Msg("Payment handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	identity := authz.IdentityFromContext(r.Context())
	if identity == nil {
		apiutil.WriteDomainError(w, r, core.ErrAuthRequired)
		return
	}

	status := r.URL.Query().Get("status")
	reservationID := r.URL.Query().Get("reservationId")
	if reservationID == "" {
		http.Error(w, "reservationId is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), paymentQueryTimeout)
	defer cancel()

	switch status {
	case gateway.ReturnStatusSuccess:
		confirmed, err := svc.Confirm(ctx, reservationID)
		if err != nil {
			apiutil.WriteDomainError(w, r, err)
			return
		}
		notifyConfirmed(r.Context(), confirmed)
		writeReturn(w, logger, returnResponse{
			Status:      status,
			Message:     "Payment received, your reservation is confirmed",
			Reservation: &confirmed,
		})

	case gateway.ReturnStatusPending:
		writeReturn(w, logger, returnResponse{
			Status:  status,
			Message: "Payment is still processing; your reservation stays pending",
		})

	case gateway.ReturnStatusFailure:
		writeReturn(w, logger, returnResponse{
			Status:  status,
			Message: "Payment did not complete; your slot is held briefly, try again or cancel",
		})

	default:
		http.Error(w, "Unknown payment status", http.StatusBadRequest)
	}
}

// POST /api/v1/payments/webhook
// Server-to-server notification from the provider. Unlike the browser
// return it is HMAC-signed, so this is the confirmation path to trust in
// production.
func HandleWebhook(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if svc == nil || client == nil {
		logger.Error().Msg("Payment handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if cfg.Payments.WebhookSecret == "" {
		logger.Warn().Msg("Webhook received but no webhook secret configured")
		http.Error(w, "Webhook not configured", http.StatusServiceUnavailable)
		return
	}

	dataID := r.URL.Query().Get("data.id")
	notificationType := r.URL.Query().Get("type")
	if dataID == "" || notificationType != "payment" {
		// Not a payment notification; acknowledge so the provider
		// stops retrying.
		w.WriteHeader(http.StatusOK)
		return
	}

	err := gateway.VerifyWebhookSignature(
		cfg.Payments.WebhookSecret,
		r.Header.Get("x-signature"),
		r.Header.Get("x-request-id"),
		dataID,
	)
	if err != nil {
		logger.Warn().Err(err).Str("data_id", dataID).Msg("Rejected webhook with bad signature")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), paymentQueryTimeout)
	defer cancel()

	payment, err := client.GetPayment(ctx, dataID)
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}
	if payment.Status != gateway.PaymentStatusApproved || payment.ExternalReference == "" {
		logger.Info().
			Str("data_id", dataID).
			Str("payment_status", payment.Status).
			Msg("Ignoring non-approved payment notification")
		w.WriteHeader(http.StatusOK)
		return
	}

	confirmed, err := svc.Confirm(ctx, payment.ExternalReference)
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}
	notifyConfirmed(r.Context(), confirmed)

	w.WriteHeader(http.StatusOK)
}

func notifyConfirmed(ctx context.Context, reservation db.Reservation) {
	if notifier == nil || reservation.Status != db.StatusConfirmed {
		return
	}
	label := reservation.CourtType
	if court, ok := cfg.Court(reservation.CourtType); ok && court.Label != "" {
		label = court.Label
	}
	notifier.BookingConfirmed(ctx, reservation.UserEmail, email.BookingDetails{
		UserName:   reservation.UserName,
		CourtLabel: label,
		Date:       reservation.Date,
		Hour:       reservation.Hour,
	})
}

func writeReturn(w http.ResponseWriter, logger *zerolog.Logger, resp returnResponse) {
	if err := apiutil.WriteJSON(w, http.StatusOK, resp); err != nil {
		logger.Error().Err(err).Msg("Failed to write payment return response")
	}
}
