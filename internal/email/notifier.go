package email

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/ulisao/NuevoAnden/internal/authz"
)

// BookingNotifier sends reservation lifecycle emails. Delivery is best
// effort: failures are logged, never surfaced to the booking flow.
type BookingNotifier struct {
	sender   Sender
	facility string
}

// NewBookingNotifier returns a notifier; a nil sender disables delivery.
func NewBookingNotifier(sender Sender, facilityName string) *BookingNotifier {
	return &BookingNotifier{sender: sender, facility: facilityName}
}

func (n *BookingNotifier) BookingConfirmed(ctx context.Context, recipient string, details BookingDetails) {
	n.deliver(ctx, recipient, BuildBookingConfirmation(n.withFacility(details)))
}

func (n *BookingNotifier) BookingCancelled(ctx context.Context, recipient string, details BookingDetails) {
	n.deliver(ctx, recipient, BuildBookingCancellation(n.withFacility(details)))
}

func (n *BookingNotifier) withFacility(details BookingDetails) BookingDetails {
	if details.FacilityName == "" {
		details.FacilityName = n.facility
	}
	return details
}

func (n *BookingNotifier) deliver(ctx context.Context, recipient string, msg Message) {
	if n == nil || n.sender == nil {
		return
	}
	// Operator blocks carry the sentinel pseudo-address.
	if recipient == "" || recipient == authz.BlockOwnerEmail {
		return
	}
	if err := n.sender.Send(ctx, recipient, msg.Subject, msg.Body); err != nil {
		log.Ctx(ctx).Error().
			Err(err).
			Str("recipient", recipient).
			Str("subject", msg.Subject).
			Msg("Failed to send booking email")
	}
}
