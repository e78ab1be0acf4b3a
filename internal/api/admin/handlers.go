// internal/api/admin/handlers.go
package admin

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ulisao/NuevoAnden/internal/api/apiutil"
	"github.com/ulisao/NuevoAnden/internal/authz"
	core "github.com/ulisao/NuevoAnden/internal/bookings"
)

var (
	svc      *core.Service
	initOnce sync.Once
)

const adminQueryTimeout = 5 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(service *core.Service) {
	if service == nil {
		return
	}
	initOnce.Do(func() {
		svc = service
	})
}

type blockRequest struct {
	CourtType string `json:"court_type"`
	Date      string `json:"date"`
	Hour      int64  `json:"hour"`
}

// POST /api/v1/admin/blocks
// Inserts a confirmed reservation owned by the sentinel operator identity.
func HandleBlock(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if svc == nil {
		logger.Error().Msg("Booking service not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	identity := authz.IdentityFromContext(r.Context())

	var req blockRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), adminQueryTimeout)
	defer cancel()

	created, err := svc.Block(ctx, identity, core.Slot{
		CourtType: req.CourtType,
		Date:      req.Date,
		Hour:      req.Hour,
	})
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusCreated, created); err != nil {
		logger.Error().Err(err).Str("reservation_id", created.ID).Msg("Failed to write block response")
	}
}

// GET /api/v1/admin/bookings
// Operator view over every reservation. Non-operators receive an empty
// list rather than an error so the endpoint leaks nothing.
func HandleListAll(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if svc == nil {
		logger.Error().Msg("Booking service not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	identity := authz.IdentityFromContext(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), adminQueryTimeout)
	defer cancel()

	rows, err := svc.ListAll(ctx, identity)
	if err != nil {
		apiutil.WriteDomainError(w, r, err)
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, rows); err != nil {
		logger.Error().Err(err).Msg("Failed to write admin list response")
	}
}
