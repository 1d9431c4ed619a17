package scan

import (
	"errors"
	"net/url"
	"strings"
)

// TicketIDParam is the query parameter carrying the ticket id in QR payloads
// and deep links.
const TicketIDParam = "ticketId"

var (
	// ErrInvalidQR means the payload is not a URL carrying a ticket id.
	ErrInvalidQR = errors.New("invalid QR code")
	// ErrEmptyPayload is returned for blank decoder output, which is ignored.
	ErrEmptyPayload = errors.New("empty scan payload")
)

// ExtractTicketID pulls the ticket id out of a decoded QR payload. The payload
// must be an absolute URL whose query string has a non-empty ticketId.
func ExtractTicketID(payload string) (string, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return "", ErrInvalidQR
	}
	u, err := url.Parse(payload)
	if err != nil || u.Scheme == "" {
		return "", ErrInvalidQR
	}
	return TicketIDFromQuery(u.Query())
}

// TicketIDFromQuery reads the ticket id from deep-link query parameters.
func TicketIDFromQuery(q url.Values) (string, error) {
	id := strings.TrimSpace(q.Get(TicketIDParam))
	if id == "" {
		return "", ErrInvalidQR
	}
	return id, nil
}
