// internal/db/reservations.go
package db

import (
	"context"
	"database/sql"
	"time"
)

// Reservation statuses. Transitions are monotonic: pending_payment may move
// to confirmed or cancelled, confirmed may move to cancelled, cancelled is
// terminal. Cancelled rows are kept as an audit trail.
const (
	StatusPendingPayment = "pending_payment"
	StatusConfirmed      = "confirmed"
	StatusCancelled      = "cancelled"
)

type Reservation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	UserEmail string    `json:"user_email"`
	CourtType string    `json:"court_type"`
	Date      string    `json:"date"`
	Hour      int64     `json:"hour"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DBTX is satisfied by both *sql.DB and *sql.Tx so the same query layer can
// run inside or outside a transaction.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

const reservationColumns = `id, user_id, user_name, user_email, court_type, date, hour, status, created_at, updated_at`

func scanReservation(row interface{ Scan(...interface{}) error }) (Reservation, error) {
	var r Reservation
	err := row.Scan(
		&r.ID,
		&r.UserID,
		&r.UserName,
		&r.UserEmail,
		&r.CourtType,
		&r.Date,
		&r.Hour,
		&r.Status,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}

func (q *Queries) collectReservations(ctx context.Context, query string, args ...interface{}) ([]Reservation, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

type CreateReservationParams struct {
	ID        string
	UserID    string
	UserName  string
	UserEmail string
	CourtType string
	Date      string
	Hour      int64
	Status    string
}

const createReservation = `
INSERT INTO reservations (id, user_id, user_name, user_email, court_type, date, hour, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + reservationColumns

func (q *Queries) CreateReservation(ctx context.Context, arg CreateReservationParams) (Reservation, error) {
	now := time.Now().UTC()
	row := q.db.QueryRowContext(ctx, createReservation,
		arg.ID,
		arg.UserID,
		arg.UserName,
		arg.UserEmail,
		arg.CourtType,
		arg.Date,
		arg.Hour,
		arg.Status,
		now,
		now,
	)
	return scanReservation(row)
}

const getReservation = `
SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`

func (q *Queries) GetReservation(ctx context.Context, id string) (Reservation, error) {
	return scanReservation(q.db.QueryRowContext(ctx, getReservation, id))
}

const countConfirmedByUser = `
SELECT COUNT(*) FROM reservations WHERE user_id = ? AND status = 'confirmed'`

func (q *Queries) CountConfirmedByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countConfirmedByUser, userID).Scan(&count)
	return count, err
}

type SlotParams struct {
	Date      string
	CourtType string
	Hour      int64
}

const getConfirmedBySlot = `
SELECT ` + reservationColumns + ` FROM reservations
WHERE date = ? AND court_type = ? AND hour = ? AND status = 'confirmed'`

// GetConfirmedBySlot returns the confirmed reservation occupying the slot,
// or sql.ErrNoRows when the slot is free.
func (q *Queries) GetConfirmedBySlot(ctx context.Context, arg SlotParams) (Reservation, error) {
	return scanReservation(q.db.QueryRowContext(ctx, getConfirmedBySlot, arg.Date, arg.CourtType, arg.Hour))
}

const listActiveBySlot = `
SELECT ` + reservationColumns + ` FROM reservations
WHERE date = ? AND court_type = ? AND hour = ? AND status != 'cancelled'
ORDER BY created_at`

// ListActiveBySlot returns every non-cancelled reservation for the slot,
// pending_payment holds included.
func (q *Queries) ListActiveBySlot(ctx context.Context, arg SlotParams) ([]Reservation, error) {
	return q.collectReservations(ctx, listActiveBySlot, arg.Date, arg.CourtType, arg.Hour)
}

type UpdateReservationStatusParams struct {
	ID     string
	Status string
}

const updateReservationStatus = `
UPDATE reservations SET status = ?, updated_at = ? WHERE id = ?
RETURNING ` + reservationColumns

func (q *Queries) UpdateReservationStatus(ctx context.Context, arg UpdateReservationStatusParams) (Reservation, error) {
	row := q.db.QueryRowContext(ctx, updateReservationStatus, arg.Status, time.Now().UTC(), arg.ID)
	return scanReservation(row)
}

type ListConfirmedByDateCourtParams struct {
	Date      string
	CourtType string
}

const listConfirmedByDateCourt = `
SELECT ` + reservationColumns + ` FROM reservations
WHERE date = ? AND court_type = ? AND status = 'confirmed'
ORDER BY hour`

func (q *Queries) ListConfirmedByDateCourt(ctx context.Context, arg ListConfirmedByDateCourtParams) ([]Reservation, error) {
	return q.collectReservations(ctx, listConfirmedByDateCourt, arg.Date, arg.CourtType)
}

const listConfirmedByUser = `
SELECT ` + reservationColumns + ` FROM reservations
WHERE user_id = ? AND status = 'confirmed'
ORDER BY date, hour`

func (q *Queries) ListConfirmedByUser(ctx context.Context, userID string) ([]Reservation, error) {
	return q.collectReservations(ctx, listConfirmedByUser, userID)
}

const listRecentReservations = `
SELECT ` + reservationColumns + ` FROM reservations
ORDER BY created_at DESC, id DESC
LIMIT ?`

func (q *Queries) ListRecentReservations(ctx context.Context, limit int64) ([]Reservation, error) {
	return q.collectReservations(ctx, listRecentReservations, limit)
}

const listStalePending = `
SELECT ` + reservationColumns + ` FROM reservations
WHERE status = 'pending_payment' AND created_at < ?
ORDER BY created_at`

// ListStalePending returns pending_payment reservations created before the
// cutoff, oldest first.
func (q *Queries) ListStalePending(ctx context.Context, before time.Time) ([]Reservation, error) {
	return q.collectReservations(ctx, listStalePending, before.UTC())
}
