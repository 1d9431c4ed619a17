package client

import "time"

// Event is an organizer-created event as returned by the backend.
type Event struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Address       string    `json:"address"`
	GoogleMapsURL string    `json:"googleMapsUrl"`
	QRCodeURL     string    `json:"qrCodeUrl"`
	ShortURL      string    `json:"shortUrl,omitempty"`
	NumberOfDays  int       `json:"numberOfDays"`
	StartDate     time.Time `json:"startDate"`
	EndDate       time.Time `json:"endDate"`
	Tickets       []Ticket  `json:"tickets,omitempty"`
}

// Ticket is an admission credential for one event.
type Ticket struct {
	ID                  string     `json:"id"`
	TicketNumber        string     `json:"ticketNumber"`
	Attended            bool       `json:"attended"`
	AttendanceTimestamp *time.Time `json:"attendanceTimestamp"`
	QRCodeURL           string     `json:"qrCodeUrl"`
	AttendanceURL       string     `json:"attendanceUrl,omitempty"`
	Event               *Event     `json:"event,omitempty"`
}

// EventInput is the body of an event creation request.
type EventInput struct {
	Title         string    `json:"title"`
	Address       string    `json:"address"`
	GoogleMapsURL string    `json:"googleMapsUrl,omitempty"`
	NumberOfDays  int       `json:"numberOfDays"`
	StartDate     time.Time `json:"startDate"`
	EndDate       time.Time `json:"endDate"`
}

// Validate applies the checks the backend does not repeat.
func (in EventInput) Validate() error {
	if in.Title == "" {
		return ErrTitleRequired
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return ErrInvalidEventWindow
	}
	if in.EndDate.Before(in.StartDate) {
		return ErrInvalidEventWindow
	}
	if in.NumberOfDays < 0 {
		return ErrInvalidNumberOfDays
	}
	return nil
}

// LoginCredentials is the body of a login request.
type LoginCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterCredentials is the body of a registration request.
type RegisterCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// AuthResponse carries the bearer token issued by the backend.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
}

type listEnvelope[T any] struct {
	Data []T `json:"data"`
}
