// internal/api/courts/handlers.go
package courts

import (
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ulisao/NuevoAnden/internal/api/apiutil"
	"github.com/ulisao/NuevoAnden/internal/config"
)

var (
	cfg      *config.Config
	initOnce sync.Once
)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(conf *config.Config) {
	if conf == nil {
		return
	}
	initOnce.Do(func() {
		cfg = conf
	})
}

type courtView struct {
	Type        string  `json:"type"`
	Label       string  `json:"label"`
	HourlyPrice float64 `json:"hourly_price"`
	OpenHour    int     `json:"open_hour"`
	CloseHour   int     `json:"close_hour"`
}

// GET /api/v1/courts
// Public catalog of bookable court types, their prices and operating hours.
func HandleCatalog(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if cfg == nil {
		logger.Error().Msg("Court catalog not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	views := make([]courtView, 0, len(cfg.Courts))
	for _, court := range cfg.Courts {
		views = append(views, courtView{
			Type:        court.Type,
			Label:       court.Label,
			HourlyPrice: court.HourlyPrice,
			OpenHour:    cfg.Booking.OpenHour,
			CloseHour:   cfg.Booking.CloseHour,
		})
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, views); err != nil {
		logger.Error().Err(err).Msg("Failed to write court catalog response")
	}
}
