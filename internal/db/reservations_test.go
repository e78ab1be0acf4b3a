package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ulisao/NuevoAnden/internal/db"
	"github.com/ulisao/NuevoAnden/internal/testutil"
)

func insert(t *testing.T, q *db.Queries, userID, status string, hour int64) db.Reservation {
	t.Helper()
	row, err := q.CreateReservation(context.Background(), db.CreateReservationParams{
		ID:        uuid.NewString(),
		UserID:    userID,
		UserName:  "Player",
		UserEmail: userID + "@example.com",
		CourtType: "5v5",
		Date:      "2026-09-10",
		Hour:      hour,
		Status:    status,
	})
	if err != nil {
		t.Fatalf("insert reservation: %v", err)
	}
	return row
}

func TestConfirmedSlotUniqueIndex(t *testing.T) {
	database := testutil.NewTestDB(t)
	q := database.Queries

	insert(t, q, "user_1", db.StatusConfirmed, 19)

	// A second confirmed row on the same slot violates the partial index.
	_, err := q.CreateReservation(context.Background(), db.CreateReservationParams{
		ID:        uuid.NewString(),
		UserID:    "user_2",
		UserName:  "Player",
		UserEmail: "user_2@example.com",
		CourtType: "5v5",
		Date:      "2026-09-10",
		Hour:      19,
		Status:    db.StatusConfirmed,
	})
	if err == nil {
		t.Fatal("expected unique constraint violation")
	}
	if !db.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}

	// Cancelled and pending rows on the slot are unconstrained.
	insert(t, q, "user_3", db.StatusCancelled, 19)
	insert(t, q, "user_4", db.StatusPendingPayment, 19)
}

func TestCountConfirmedByUser(t *testing.T) {
	database := testutil.NewTestDB(t)
	q := database.Queries
	ctx := context.Background()

	insert(t, q, "user_1", db.StatusConfirmed, 10)
	insert(t, q, "user_1", db.StatusConfirmed, 11)
	insert(t, q, "user_1", db.StatusPendingPayment, 12)
	insert(t, q, "user_1", db.StatusCancelled, 13)
	insert(t, q, "user_2", db.StatusConfirmed, 14)

	count, err := q.CountConfirmedByUser(ctx, "user_1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 confirmed, got %d", count)
	}
}

func TestListConfirmedByDateCourtOrdersByHour(t *testing.T) {
	database := testutil.NewTestDB(t)
	q := database.Queries

	insert(t, q, "user_1", db.StatusConfirmed, 21)
	insert(t, q, "user_2", db.StatusConfirmed, 9)
	insert(t, q, "user_3", db.StatusPendingPayment, 15)

	rows, err := q.ListConfirmedByDateCourt(context.Background(), db.ListConfirmedByDateCourtParams{
		Date:      "2026-09-10",
		CourtType: "5v5",
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 confirmed rows, got %d", len(rows))
	}
	if rows[0].Hour != 9 || rows[1].Hour != 21 {
		t.Fatalf("expected ascending hours, got %d then %d", rows[0].Hour, rows[1].Hour)
	}
}

func TestUpdateReservationStatus(t *testing.T) {
	database := testutil.NewTestDB(t)
	q := database.Queries
	ctx := context.Background()

	row := insert(t, q, "user_1", db.StatusPendingPayment, 19)

	updated, err := q.UpdateReservationStatus(ctx, db.UpdateReservationStatusParams{
		ID:     row.ID,
		Status: db.StatusConfirmed,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != db.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", updated.Status)
	}
	if !updated.UpdatedAt.After(updated.CreatedAt) && !updated.UpdatedAt.Equal(updated.CreatedAt) {
		t.Fatalf("updated_at went backwards: %v < %v", updated.UpdatedAt, updated.CreatedAt)
	}
}

func TestListStalePending(t *testing.T) {
	database := testutil.NewTestDB(t)
	q := database.Queries
	ctx := context.Background()

	stale := insert(t, q, "user_1", db.StatusPendingPayment, 10)
	insert(t, q, "user_2", db.StatusPendingPayment, 11)

	_, err := database.ExecContext(ctx,
		"UPDATE reservations SET created_at = ? WHERE id = ?",
		time.Now().UTC().Add(-time.Hour), stale.ID,
	)
	if err != nil {
		t.Fatalf("backdate: %v", err)
	}

	rows, err := q.ListStalePending(ctx, time.Now().UTC().Add(-15*time.Minute))
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != stale.ID {
		t.Fatalf("unexpected stale rows: %+v", rows)
	}
}
