package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ulisao/NuevoAnden/internal/db"
)

// Cadence of the pending-payment sweep.
const pendingSweepCron = "*/5 * * * *"

// RegisterPendingSweep schedules the periodic job that cancels
// pending_payment reservations older than ttl. Without it an abandoned
// checkout would hold its slot forever.
func RegisterPendingSweep(s *Service, database *db.DB, ttl time.Duration) error {
	_, err := s.AddJob("expire-pending-reservations", pendingSweepCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := ExpirePendingReservations(ctx, database, ttl, time.Now()); err != nil {
			log.Error().Err(err).Msg("Pending reservation sweep failed")
		}
	})
	return err
}

// ExpirePendingReservations cancels every pending_payment reservation
// created before now-ttl, releasing the slots they held. Rows that moved to
// confirmed or cancelled between listing and update are skipped.
func ExpirePendingReservations(ctx context.Context, database *db.DB, ttl time.Duration, now time.Time) error {
	if database == nil {
		return fmt.Errorf("pending reservation sweep requires database")
	}

	cutoff := now.UTC().Add(-ttl)
	rows, err := database.Queries.ListStalePending(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list stale pending reservations: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	logger := log.Ctx(ctx)
	for _, row := range rows {
		err := database.RunInTx(ctx, func(txdb *db.DB) error {
			current, err := txdb.Queries.GetReservation(ctx, row.ID)
			if err != nil {
				return fmt.Errorf("get reservation: %w", err)
			}
			if current.Status != db.StatusPendingPayment {
				return nil
			}
			if _, err := txdb.Queries.UpdateReservationStatus(ctx, db.UpdateReservationStatusParams{
				ID:     row.ID,
				Status: db.StatusCancelled,
			}); err != nil {
				return fmt.Errorf("cancel stale reservation: %w", err)
			}
			return nil
		})
		if err != nil {
			logger.Error().Err(err).Str("reservation_id", row.ID).Msg("Failed to expire pending reservation")
			continue
		}
		logger.Info().
			Str("reservation_id", row.ID).
			Str("date", row.Date).
			Int64("hour", row.Hour).
			Msg("Expired pending reservation")
	}
	return nil
}
