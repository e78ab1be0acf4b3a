// Package bookings implements the slot-reservation engine: slot allocation,
// the pending_payment -> confirmed/cancelled lifecycle, operator overrides
// and the calendar query views.
package bookings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ulisao/NuevoAnden/internal/authz"
	"github.com/ulisao/NuevoAnden/internal/config"
	"github.com/ulisao/NuevoAnden/internal/db"
)

const (
	dateLayout = "2006-01-02"
	// Most recent rows returned to the operator view.
	adminListLimit = 100
)

// Clock interface for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

// realClock implements Clock using the system time.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Slot identifies one bookable interval.
type Slot struct {
	Date      string
	CourtType string
	Hour      int64
}

func (s Slot) key() string {
	return fmt.Sprintf("%s|%s|%d", s.Date, s.CourtType, s.Hour)
}

// Service enforces the slot exclusivity and per-user limit invariants over
// the reservation store.
type Service struct {
	store  *db.DB
	policy *authz.Policy
	cfg    *config.Config
	clock  Clock
	locks  *slotLocks
}

func NewService(store *db.DB, policy *authz.Policy, cfg *config.Config) *Service {
	return &Service{
		store:  store,
		policy: policy,
		cfg:    cfg,
		clock:  realClock{},
		locks:  newSlotLocks(),
	}
}

// Create validates and inserts a pending_payment reservation for the caller.
// Validation order: authentication, input shape, past-slot check, per-user
// limit, slot occupancy. On success exactly one row is inserted; nothing
// else is mutated.
func (s *Service) Create(ctx context.Context, caller *authz.Identity, slot Slot) (db.Reservation, error) {
	if caller == nil {
		return db.Reservation{}, ErrAuthRequired
	}
	if err := s.validateSlot(slot); err != nil {
		return db.Reservation{}, err
	}
	if s.isPast(slot) {
		return db.Reservation{}, ErrPastSlot
	}

	release := s.locks.acquire(slot.key())
	defer release()

	var created db.Reservation
	err := s.store.RunInTx(ctx, func(txdb *db.DB) error {
		count, err := txdb.Queries.CountConfirmedByUser(ctx, caller.ID)
		if err != nil {
			return fmt.Errorf("count confirmed reservations: %w", err)
		}
		if count >= int64(s.cfg.Booking.MaxActivePerUser) {
			return ErrLimitExceeded
		}

		if err := s.ensureSlotFree(ctx, txdb, slot); err != nil {
			return err
		}

		created, err = txdb.Queries.CreateReservation(ctx, db.CreateReservationParams{
			ID:        uuid.NewString(),
			UserID:    caller.ID,
			UserName:  caller.Name,
			UserEmail: caller.Email,
			CourtType: slot.CourtType,
			Date:      slot.Date,
			Hour:      slot.Hour,
			Status:    db.StatusPendingPayment,
		})
		if err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}
		return nil
	})
	if err != nil {
		return db.Reservation{}, err
	}

	log.Ctx(ctx).Info().
		Str("reservation_id", created.ID).
		Str("user_id", caller.ID).
		Str("court_type", slot.CourtType).
		Str("date", slot.Date).
		Int64("hour", slot.Hour).
		Msg("Reservation created")
	return created, nil
}

// Confirm moves a pending_payment reservation to confirmed. It is
// idempotent: confirming an already confirmed or cancelled reservation is a
// no-op. Exclusivity and the per-user cap are re-checked here because two
// concurrent creates may both have inserted pending rows for the same slot;
// a pending row that lost its slot is cancelled rather than left orphaned.
func (s *Service) Confirm(ctx context.Context, reservationID string) (db.Reservation, error) {
	current, err := s.getReservation(ctx, reservationID)
	if err != nil {
		return db.Reservation{}, err
	}
	if current.Status != db.StatusPendingPayment {
		return current, nil
	}

	slot := Slot{Date: current.Date, CourtType: current.CourtType, Hour: current.Hour}
	release := s.locks.acquire(slot.key())
	defer release()

	var confirmed db.Reservation
	var lostSlot bool
	err = s.store.RunInTx(ctx, func(txdb *db.DB) error {
		row, err := txdb.Queries.GetReservation(ctx, reservationID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("get reservation: %w", err)
		}
		if row.Status != db.StatusPendingPayment {
			confirmed = row
			return nil
		}

		winner, err := txdb.Queries.GetConfirmedBySlot(ctx, db.SlotParams{
			Date:      slot.Date,
			CourtType: slot.CourtType,
			Hour:      slot.Hour,
		})
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check slot occupancy: %w", err)
		}
		if err == nil && winner.ID != row.ID {
			// Another confirmation won the slot during the payment
			// window. Cancel the loser so it stops holding the slot;
			// the cancellation must commit, so the error is surfaced
			// only after the transaction.
			if _, err := txdb.Queries.UpdateReservationStatus(ctx, db.UpdateReservationStatusParams{
				ID:     row.ID,
				Status: db.StatusCancelled,
			}); err != nil {
				return fmt.Errorf("cancel losing reservation: %w", err)
			}
			lostSlot = true
			return nil
		}

		count, err := txdb.Queries.CountConfirmedByUser(ctx, row.UserID)
		if err != nil {
			return fmt.Errorf("count confirmed reservations: %w", err)
		}
		if count >= int64(s.cfg.Booking.MaxActivePerUser) {
			return ErrLimitExceeded
		}

		confirmed, err = txdb.Queries.UpdateReservationStatus(ctx, db.UpdateReservationStatusParams{
			ID:     row.ID,
			Status: db.StatusConfirmed,
		})
		if err != nil {
			if db.IsUniqueViolation(err) {
				return ErrSlotTaken
			}
			return fmt.Errorf("confirm reservation: %w", err)
		}
		return nil
	})
	if err != nil {
		return db.Reservation{}, err
	}
	if lostSlot {
		return db.Reservation{}, ErrSlotTaken
	}

	if confirmed.Status == db.StatusConfirmed {
		log.Ctx(ctx).Info().
			Str("reservation_id", confirmed.ID).
			Msg("Reservation confirmed")
	}
	return confirmed, nil
}

// Cancel moves a reservation to the terminal cancelled state. Only the
// owner or the operator may cancel. Cancelling an already cancelled
// reservation is a no-op; the row is retained as an audit record.
func (s *Service) Cancel(ctx context.Context, caller *authz.Identity, reservationID string) (db.Reservation, error) {
	if caller == nil {
		return db.Reservation{}, ErrAuthRequired
	}

	var cancelled db.Reservation
	err := s.store.RunInTx(ctx, func(txdb *db.DB) error {
		row, err := txdb.Queries.GetReservation(ctx, reservationID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("get reservation: %w", err)
		}

		if err := s.policy.CanModifyReservation(caller, row.UserID); err != nil {
			return ErrPermissionDenied
		}

		if row.Status == db.StatusCancelled {
			cancelled = row
			return nil
		}

		cancelled, err = txdb.Queries.UpdateReservationStatus(ctx, db.UpdateReservationStatusParams{
			ID:     row.ID,
			Status: db.StatusCancelled,
		})
		if err != nil {
			return fmt.Errorf("cancel reservation: %w", err)
		}
		return nil
	})
	if err != nil {
		return db.Reservation{}, err
	}

	log.Ctx(ctx).Info().
		Str("reservation_id", cancelled.ID).
		Str("caller_id", caller.ID).
		Msg("Reservation cancelled")
	return cancelled, nil
}

// Block inserts a confirmed reservation owned by the sentinel operator
// identity, occupying the slot with no payment step. A block racing a user
// create behaves like two creates for the same slot.
func (s *Service) Block(ctx context.Context, caller *authz.Identity, slot Slot) (db.Reservation, error) {
	if err := s.policy.RequireAdmin(caller); err != nil {
		return db.Reservation{}, ErrPermissionDenied
	}
	if err := s.validateSlot(slot); err != nil {
		return db.Reservation{}, err
	}

	release := s.locks.acquire(slot.key())
	defer release()

	var created db.Reservation
	err := s.store.RunInTx(ctx, func(txdb *db.DB) error {
		if err := s.ensureSlotFree(ctx, txdb, slot); err != nil {
			return err
		}

		var err error
		created, err = txdb.Queries.CreateReservation(ctx, db.CreateReservationParams{
			ID:        uuid.NewString(),
			UserID:    authz.BlockOwnerID,
			UserName:  authz.BlockOwnerName,
			UserEmail: authz.BlockOwnerEmail,
			CourtType: slot.CourtType,
			Date:      slot.Date,
			Hour:      slot.Hour,
			Status:    db.StatusConfirmed,
		})
		if err != nil {
			if db.IsUniqueViolation(err) {
				return ErrSlotTaken
			}
			return fmt.Errorf("insert block: %w", err)
		}
		return nil
	})
	if err != nil {
		return db.Reservation{}, err
	}

	log.Ctx(ctx).Info().
		Str("reservation_id", created.ID).
		Str("court_type", slot.CourtType).
		Str("date", slot.Date).
		Int64("hour", slot.Hour).
		Msg("Slot blocked by operator")
	return created, nil
}

// ListAll returns the most recent reservations across all users and
// statuses. Non-operators get an empty sequence, not an error, so the
// endpoint reveals nothing about itself.
func (s *Service) ListAll(ctx context.Context, caller *authz.Identity) ([]db.Reservation, error) {
	if s.policy.RequireAdmin(caller) != nil {
		return []db.Reservation{}, nil
	}
	rows, err := s.store.Queries.ListRecentReservations(ctx, adminListLimit)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	if rows == nil {
		rows = []db.Reservation{}
	}
	return rows, nil
}

// GetByDate returns the confirmed reservations for one calendar day and
// court. Pending holds are intentionally invisible to browsers.
func (s *Service) GetByDate(ctx context.Context, date, courtType string) ([]db.Reservation, error) {
	if err := s.validateSlot(Slot{Date: date, CourtType: courtType, Hour: int64(s.cfg.Booking.OpenHour)}); err != nil {
		return nil, err
	}
	rows, err := s.store.Queries.ListConfirmedByDateCourt(ctx, db.ListConfirmedByDateCourtParams{
		Date:      date,
		CourtType: courtType,
	})
	if err != nil {
		return nil, fmt.Errorf("list reservations by date: %w", err)
	}
	if rows == nil {
		rows = []db.Reservation{}
	}
	return rows, nil
}

// GetMine returns the caller's confirmed reservations, ascending by date
// and hour.
func (s *Service) GetMine(ctx context.Context, caller *authz.Identity) ([]db.Reservation, error) {
	if caller == nil {
		return nil, ErrAuthRequired
	}
	rows, err := s.store.Queries.ListConfirmedByUser(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("list user reservations: %w", err)
	}
	if rows == nil {
		rows = []db.Reservation{}
	}
	return rows, nil
}

// Get returns a single reservation by id.
func (s *Service) Get(ctx context.Context, reservationID string) (db.Reservation, error) {
	return s.getReservation(ctx, reservationID)
}

func (s *Service) getReservation(ctx context.Context, reservationID string) (db.Reservation, error) {
	row, err := s.store.Queries.GetReservation(ctx, reservationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return db.Reservation{}, ErrNotFound
		}
		return db.Reservation{}, fmt.Errorf("get reservation: %w", err)
	}
	return row, nil
}

// ensureSlotFree fails with ErrSlotTaken when the slot is held by a
// confirmed reservation or by a pending one still inside its payment
// window. Pending rows past the TTL are cancelled on the spot instead of
// waiting for the sweep.
func (s *Service) ensureSlotFree(ctx context.Context, txdb *db.DB, slot Slot) error {
	active, err := txdb.Queries.ListActiveBySlot(ctx, db.SlotParams{
		Date:      slot.Date,
		CourtType: slot.CourtType,
		Hour:      slot.Hour,
	})
	if err != nil {
		return fmt.Errorf("check slot occupancy: %w", err)
	}

	cutoff := s.clock.Now().UTC().Add(-s.cfg.PendingTTL())
	for _, row := range active {
		if row.Status == db.StatusConfirmed {
			return ErrSlotTaken
		}
		// pending_payment
		if row.CreatedAt.After(cutoff) {
			return ErrSlotTaken
		}
		if _, err := txdb.Queries.UpdateReservationStatus(ctx, db.UpdateReservationStatusParams{
			ID:     row.ID,
			Status: db.StatusCancelled,
		}); err != nil {
			return fmt.Errorf("expire stale pending reservation: %w", err)
		}
		log.Ctx(ctx).Info().
			Str("reservation_id", row.ID).
			Msg("Expired stale pending reservation during slot check")
	}
	return nil
}

func (s *Service) validateSlot(slot Slot) error {
	if _, ok := s.cfg.Court(slot.CourtType); !ok {
		return ValidationError{Field: "courtType", Reason: "unknown court type"}
	}
	if _, err := time.Parse(dateLayout, slot.Date); err != nil {
		return ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	if slot.Hour < int64(s.cfg.Booking.OpenHour) || slot.Hour >= int64(s.cfg.Booking.CloseHour) {
		return ValidationError{
			Field:  "hour",
			Reason: fmt.Sprintf("must be between %d and %d", s.cfg.Booking.OpenHour, s.cfg.Booking.CloseHour-1),
		}
	}
	return nil
}

// isPast reports whether the slot starts at or before the current hour in
// the facility timezone. The boundary is inclusive: hour == currentHour on
// the current date is already past.
func (s *Service) isPast(slot Slot) bool {
	now := s.clock.Now().In(s.cfg.Location())
	today := now.Format(dateLayout)
	if slot.Date < today {
		return true
	}
	if slot.Date == today && slot.Hour <= int64(now.Hour()) {
		return true
	}
	return false
}
