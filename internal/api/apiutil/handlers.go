package apiutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/ulisao/NuevoAnden/internal/bookings"
	"github.com/ulisao/NuevoAnden/internal/payments"
)

type HandlerError struct {
	Status  int
	Message string
	Err     error
}

func (e HandlerError) Error() string {
	return e.Message
}

func (e HandlerError) Unwrap() error {
	return e.Err
}

func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	if err := encoder.Encode(payload); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteDomainError maps the booking and payment error taxonomy onto HTTP
// responses. LimitExceeded and SlotTaken get distinct messages so the
// client can suggest the right corrective action.
func WriteDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr bookings.ValidationError
	var handlerErr HandlerError

	switch {
	case errors.As(err, &validationErr):
		http.Error(w, validationErr.Error(), http.StatusBadRequest)
	case errors.As(err, &handlerErr):
		if handlerErr.Err != nil {
			log.Ctx(r.Context()).Error().Err(handlerErr.Err).Msg(handlerErr.Message)
		}
		http.Error(w, handlerErr.Message, handlerErr.Status)
	case errors.Is(err, bookings.ErrAuthRequired):
		http.Error(w, "Authentication required", http.StatusUnauthorized)
	case errors.Is(err, bookings.ErrPermissionDenied):
		http.Error(w, "You do not have permission to do that", http.StatusForbidden)
	case errors.Is(err, bookings.ErrNotFound):
		http.Error(w, "Reservation not found", http.StatusNotFound)
	case errors.Is(err, bookings.ErrPastSlot):
		http.Error(w, "Slots in the past cannot be reserved", http.StatusUnprocessableEntity)
	case errors.Is(err, bookings.ErrLimitExceeded):
		http.Error(w, "Active reservation limit reached; cancel one of your reservations to book again", http.StatusConflict)
	case errors.Is(err, bookings.ErrSlotTaken):
		http.Error(w, "That hour is already reserved; please pick another slot", http.StatusConflict)
	case errors.Is(err, payments.ErrMisconfigured):
		http.Error(w, "Payments are not available right now", http.StatusServiceUnavailable)
	case errors.Is(err, payments.ErrGateway):
		log.Ctx(r.Context()).Error().Err(err).Msg("Payment gateway call failed")
		http.Error(w, "Payment provider is unavailable; your reservation was not confirmed", http.StatusBadGateway)
	default:
		log.Ctx(r.Context()).Error().Err(err).Msg("Unhandled error")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
