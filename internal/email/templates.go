package email

import (
	"fmt"
	"strings"
)

type Message struct {
	Subject string
	Body    string
}

// BookingDetails feeds the confirmation and cancellation templates.
type BookingDetails struct {
	FacilityName string
	UserName     string
	CourtLabel   string
	Date         string
	Hour         int64
}

func (d BookingDetails) timeRange() string {
	return fmt.Sprintf("%02d:00 - %02d:00", d.Hour, d.Hour+1)
}

func BuildBookingConfirmation(details BookingDetails) Message {
	facility := strings.TrimSpace(details.FacilityName)
	if facility == "" {
		facility = "the facility"
	}
	court := strings.TrimSpace(details.CourtLabel)
	if court == "" {
		court = "your court"
	}

	lines := []string{
		greeting(details.UserName),
		"",
		"Your court reservation is confirmed.",
		"",
		fmt.Sprintf("Court: %s", court),
		fmt.Sprintf("Date: %s", details.Date),
		fmt.Sprintf("Time: %s", details.timeRange()),
		"",
		"See you on the pitch!",
		facility,
	}

	return Message{
		Subject: fmt.Sprintf("Reservation confirmed - %s %s", details.Date, details.timeRange()),
		Body:    strings.Join(lines, "\n"),
	}
}

func BuildBookingCancellation(details BookingDetails) Message {
	facility := strings.TrimSpace(details.FacilityName)
	if facility == "" {
		facility = "the facility"
	}
	court := strings.TrimSpace(details.CourtLabel)
	if court == "" {
		court = "your court"
	}

	lines := []string{
		greeting(details.UserName),
		"",
		"Your court reservation has been cancelled.",
		"",
		fmt.Sprintf("Court: %s", court),
		fmt.Sprintf("Date: %s", details.Date),
		fmt.Sprintf("Time: %s", details.timeRange()),
		"",
		"The slot is available again for other players.",
		facility,
	}

	return Message{
		Subject: fmt.Sprintf("Reservation cancelled - %s %s", details.Date, details.timeRange()),
		Body:    strings.Join(lines, "\n"),
	}
}

func greeting(userName string) string {
	name := strings.TrimSpace(userName)
	if name == "" {
		return "Hi,"
	}
	return fmt.Sprintf("Hi %s,", name)
}
