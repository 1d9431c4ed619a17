// Package mockbackend is an in-memory implementation of the ticketing
// backend's REST contract, used for local development and tests.
package mockbackend

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"tixie.local/checkin/internal/clock"
)

const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"

	tokenTTL = 24 * time.Hour
)

var (
	ErrUserExists    = errors.New("user already exists")
	ErrEventNotFound = errors.New("event not found")
)

type user struct {
	id           string
	email        string
	name         string
	role         string
	passwordHash []byte
}

type event struct {
	id            string
	title         string
	address       string
	googleMapsURL string
	numberOfDays  int
	startDate     time.Time
	endDate       time.Time
	createdAt     time.Time
	ticketIDs     []string
}

type ticket struct {
	id                  string
	number              string
	eventID             string
	attended            bool
	attendanceTimestamp *time.Time
}

// Server holds the backend state and serves the REST routes.
type Server struct {
	mu      sync.Mutex
	users   map[string]*user
	events  map[string]*event
	tickets map[string]*ticket

	signingKey []byte
	publicURL  string
	clock      clock.Clock
	logger     *slog.Logger
	router     *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithClock sets the clock used for attendance timestamps and token expiry.
func WithClock(clk clock.Clock) Option {
	return func(s *Server) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// WithPublicURL sets the base URL embedded in ticket QR payloads.
func WithPublicURL(u string) Option {
	return func(s *Server) {
		s.publicURL = strings.TrimRight(u, "/")
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New returns an empty backend signing tokens with signingKey.
func New(signingKey []byte, opts ...Option) *Server {
	s := &Server{
		users:      make(map[string]*user),
		events:     make(map[string]*event),
		tickets:    make(map[string]*ticket),
		signingKey: signingKey,
		publicURL:  "http://localhost:5173",
		clock:      clock.NewSystem(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// AddUser registers an account directly, bypassing the HTTP API.
func (s *Server) AddUser(email, password, name, role string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(email)
	if _, ok := s.users[key]; ok {
		return ErrUserExists
	}
	s.users[key] = &user{
		id:           uuid.NewString(),
		email:        email,
		name:         name,
		role:         role,
		passwordHash: hash,
	}
	return nil
}

// AddEvent creates an event directly and returns its id. Unlike the HTTP
// route it accepts windows in the past.
func (s *Server) AddEvent(title string, start, end time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &event{
		id:           uuid.NewString(),
		title:        title,
		numberOfDays: daysBetween(start, end),
		startDate:    start.UTC(),
		endDate:      end.UTC(),
		createdAt:    s.clock.Now(),
	}
	s.events[e.id] = e
	return e.id
}

// AddTicket issues a ticket for eventID and returns its id.
func (s *Server) AddTicket(eventID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.issueTicketLocked(eventID)
	if err != nil {
		return "", err
	}
	return t.id, nil
}

// TicketAttendance reports the stored attendance state of a ticket.
func (s *Server) TicketAttendance(ticketID string) (attended bool, at *time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, found := s.tickets[ticketID]
	if !found {
		return false, nil, false
	}
	return t.attended, t.attendanceTimestamp, true
}

// ScanURL is the QR payload for ticketID.
func (s *Server) ScanURL(ticketID string) string {
	return s.publicURL + "/scan?" + url.Values{"ticketId": {ticketID}}.Encode()
}

func (s *Server) issueTicketLocked(eventID string) (*ticket, error) {
	e, ok := s.events[eventID]
	if !ok {
		return nil, ErrEventNotFound
	}
	t := &ticket{
		id:      uuid.NewString(),
		number:  fmt.Sprintf("%04d", len(e.ticketIDs)+1),
		eventID: eventID,
	}
	s.tickets[t.id] = t
	e.ticketIDs = append(e.ticketIDs, t.id)
	return t, nil
}

func (s *Server) sortedEventsLocked() []*event {
	out := make([]*event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].startDate.Equal(out[j].startDate) {
			return out[i].createdAt.Before(out[j].createdAt)
		}
		return out[i].startDate.Before(out[j].startDate)
	})
	return out
}

func daysBetween(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start).Hours()/24) + 1
}
