package mockbackend

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

type eventJSON struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Address       string       `json:"address"`
	GoogleMapsURL string       `json:"googleMapsUrl"`
	QRCodeURL     string       `json:"qrCodeUrl"`
	ShortURL      string       `json:"shortUrl"`
	NumberOfDays  int          `json:"numberOfDays"`
	StartDate     time.Time    `json:"startDate"`
	EndDate       time.Time    `json:"endDate"`
	Tickets       []ticketJSON `json:"tickets,omitempty"`
}

type ticketJSON struct {
	ID                  string     `json:"id"`
	TicketNumber        string     `json:"ticketNumber"`
	Attended            bool       `json:"attended"`
	AttendanceTimestamp *time.Time `json:"attendanceTimestamp"`
	QRCodeURL           string     `json:"qrCodeUrl"`
	AttendanceURL       string     `json:"attendanceUrl"`
	Event               *eventJSON `json:"event,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	if err := s.AddUser(req.Email, req.Password, req.Name, RoleUser); err != nil {
		if errors.Is(err, ErrUserExists) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	token, err := s.IssueToken(req.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Token error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"access_token": token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	s.mu.Lock()
	u, ok := s.users[strings.ToLower(req.Email)]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(u.passwordHash, []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := s.signToken(u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Token error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": token})
}

func (s *Server) handleListEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	events := s.sortedEventsLocked()
	out := make([]eventJSON, 0, len(events))
	for _, e := range events {
		out = append(out, s.eventViewLocked(e, false))
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	e, ok := s.events[id]
	var view eventJSON
	if ok {
		view = s.eventViewLocked(e, true)
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Event not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	if c := claimsFrom(r); c == nil || c.Role != RoleAdmin {
		writeError(w, http.StatusForbidden, "Only administrators can create events")
		return
	}

	var req struct {
		Title         string    `json:"title"`
		Address       string    `json:"address"`
		GoogleMapsURL string    `json:"googleMapsUrl"`
		NumberOfDays  int       `json:"numberOfDays"`
		StartDate     time.Time `json:"startDate"`
		EndDate       time.Time `json:"endDate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.EndDate.Before(req.StartDate) {
		writeError(w, http.StatusBadRequest, "endDate must not be before startDate")
		return
	}

	s.mu.Lock()
	e := &event{
		id:            uuid.NewString(),
		title:         req.Title,
		address:       req.Address,
		googleMapsURL: req.GoogleMapsURL,
		numberOfDays:  req.NumberOfDays,
		startDate:     req.StartDate.UTC(),
		endDate:       req.EndDate.UTC(),
		createdAt:     s.clock.Now(),
	}
	if e.numberOfDays == 0 {
		e.numberOfDays = daysBetween(e.startDate, e.endDate)
	}
	s.events[e.id] = e
	view := s.eventViewLocked(e, false)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	eventID := mux.Vars(r)["eventId"]

	s.mu.Lock()
	t, err := s.issueTicketLocked(eventID)
	var view ticketJSON
	if err == nil {
		view = s.ticketViewLocked(t)
	}
	s.mu.Unlock()

	if err != nil {
		writeError(w, http.StatusNotFound, "Event not found")
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	s.mu.Lock()
	t, ok := s.tickets[vars["ticketId"]]
	ok = ok && t.eventID == vars["eventId"]
	var view ticketJSON
	if ok {
		view = s.ticketViewLocked(t)
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Ticket not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetTicketByID(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	t, ok := s.tickets[mux.Vars(r)["ticketId"]]
	var view ticketJSON
	if ok {
		view = s.ticketViewLocked(t)
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Ticket not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleMarkAttendance is a conditional update: it refuses to mark a ticket
// twice, so concurrent scanners cannot both admit the same holder.
func (s *Server) handleMarkAttendance(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	t, ok := s.tickets[mux.Vars(r)["ticketId"]]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Ticket not found")
		return
	}
	if t.attended {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "Ticket already marked as attended")
		return
	}
	now := s.clock.Now()
	t.attended = true
	t.attendanceTimestamp = &now
	view := s.ticketViewLocked(t)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, view)
}

func (s *Server) eventViewLocked(e *event, withTickets bool) eventJSON {
	view := eventJSON{
		ID:            e.id,
		Title:         e.title,
		Address:       e.address,
		GoogleMapsURL: e.googleMapsURL,
		QRCodeURL:     qrImageURL(s.publicURL + "/events/" + e.id),
		ShortURL:      s.publicURL + "/e/" + e.id,
		NumberOfDays:  e.numberOfDays,
		StartDate:     e.startDate,
		EndDate:       e.endDate,
	}
	if withTickets {
		view.Tickets = make([]ticketJSON, 0, len(e.ticketIDs))
		for _, id := range e.ticketIDs {
			t := s.tickets[id]
			view.Tickets = append(view.Tickets, ticketJSON{
				ID:                  t.id,
				TicketNumber:        t.number,
				Attended:            t.attended,
				AttendanceTimestamp: t.attendanceTimestamp,
				QRCodeURL:           qrImageURL(s.ScanURL(t.id)),
				AttendanceURL:       s.ScanURL(t.id),
			})
		}
	}
	return view
}

func (s *Server) ticketViewLocked(t *ticket) ticketJSON {
	ev := s.eventViewLocked(s.events[t.eventID], false)
	return ticketJSON{
		ID:                  t.id,
		TicketNumber:        t.number,
		Attended:            t.attended,
		AttendanceTimestamp: t.attendanceTimestamp,
		QRCodeURL:           qrImageURL(s.ScanURL(t.id)),
		AttendanceURL:       s.ScanURL(t.id),
		Event:               &ev,
	}
}

func qrImageURL(data string) string {
	return "https://api.qrserver.com/v1/create-qr-code/?" + url.Values{"data": {data}}.Encode()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"statusCode": status,
		"message":    message,
		"error":      http.StatusText(status),
	})
}
