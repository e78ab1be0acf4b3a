package bookings

import (
	"errors"
	"fmt"
)

// Domain error taxonomy. Every failure of a booking operation surfaces as
// exactly one of these, so the HTTP layer can map them without string
// matching. LimitExceeded and SlotTaken stay distinct: the first tells the
// user to free up a reservation, the second to pick another hour.
var (
	ErrAuthRequired     = errors.New("authentication required")
	ErrPastSlot         = errors.New("slot is in the past")
	ErrLimitExceeded    = errors.New("active reservation limit reached")
	ErrSlotTaken        = errors.New("slot already reserved")
	ErrNotFound         = errors.New("reservation not found")
	ErrPermissionDenied = errors.New("permission denied")
)

// ValidationError reports malformed input (unknown court type, bad date,
// hour outside operating hours). It is not part of the domain taxonomy.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}
