package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tixie.local/checkin/common"
	"tixie.local/checkin/internal/mockbackend"
	"tixie.local/checkin/internal/session"
)

type headerLog struct {
	mu      sync.Mutex
	headers []http.Header
}

func (h *headerLog) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		h.headers = append(h.headers, r.Header.Clone())
		h.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (h *headerLog) last() http.Header {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.headers[len(h.headers)-1]
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(t *testing.T) (*Client, *session.Session, *mockbackend.Server, *headerLog) {
	t.Helper()
	backend := mockbackend.New([]byte("secret"), mockbackend.WithLogger(quietLogger()))
	require.NoError(t, backend.AddUser("admin@tixie.local", "pw", "Admin", mockbackend.RoleAdmin))
	require.NoError(t, backend.AddUser("staff@tixie.local", "pw", "Staff", mockbackend.RoleUser))

	log := &headerLog{}
	srv := httptest.NewServer(log.wrap(backend))
	t.Cleanup(srv.Close)

	sess := session.New(&session.MemoryStore{}, session.WithLogger(quietLogger()))
	c := New(srv.URL+"/", WithCredentials(sess), WithLocale("es"), WithLogger(quietLogger()))
	return c, sess, backend, log
}

func login(t *testing.T, c *Client, sess *session.Session, email string) {
	t.Helper()
	resp, err := c.Login(context.Background(), LoginCredentials{Email: email, Password: "pw"})
	require.NoError(t, err)
	require.NoError(t, sess.Login(resp.AccessToken))
}

func TestClient_LoginAndHeaders(t *testing.T) {
	c, sess, _, log := setup(t)
	ctx := context.Background()

	login(t, c, sess, "admin@tixie.local")
	assert.True(t, sess.IsAdmin())
	assert.Empty(t, log.last().Get("Authorization"), "login is sent before a token exists")

	_, err := c.ListEvents(ctx)
	require.NoError(t, err)

	h := log.last()
	assert.Equal(t, "es", h.Get("Accept-Language"))
	assert.True(t, strings.HasPrefix(h.Get("Authorization"), "Bearer "))
}

func TestClient_LoginBadCredentials(t *testing.T) {
	c, sess, _, _ := setup(t)

	_, err := c.Login(context.Background(), LoginCredentials{Email: "admin@tixie.local", Password: "nope"})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, sess.IsAuthenticated())
}

func TestClient_Register(t *testing.T) {
	c, sess, _, _ := setup(t)

	resp, err := c.Register(context.Background(), RegisterCredentials{Email: "new@tixie.local", Password: "pw", Name: "New"})
	require.NoError(t, err)
	require.NoError(t, sess.Login(resp.AccessToken))
	assert.False(t, sess.IsAdmin())

	_, err = c.Register(context.Background(), RegisterCredentials{Email: "new@tixie.local", Password: "pw"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestClient_EventAndTicketFlow(t *testing.T) {
	c, sess, backend, _ := setup(t)
	ctx := context.Background()
	login(t, c, sess, "admin@tixie.local")

	start := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	event, err := c.CreateEvent(ctx, EventInput{
		Title:     "Gala",
		Address:   "Main hall",
		StartDate: start,
		EndDate:   start.Add(4 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "Gala", event.Title)
	assert.True(t, event.StartDate.Equal(start))

	events, err := c.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ticket, err := c.CreateTicket(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, backend.ScanURL(ticket.ID), ticket.AttendanceURL)
	assert.False(t, ticket.Attended)
	assert.Nil(t, ticket.AttendanceTimestamp)

	byComposite, err := c.GetTicket(ctx, event.ID, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, byComposite.ID)

	byID, err := c.GetTicketByID(ctx, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, byID.Event)
	assert.Equal(t, event.ID, byID.Event.ID)

	marked, err := c.MarkAttendance(ctx, ticket.ID)
	require.NoError(t, err)
	assert.True(t, marked.Attended)
	assert.NotNil(t, marked.AttendanceTimestamp)

	_, err = c.MarkAttendance(ctx, ticket.ID)
	assert.ErrorIs(t, err, ErrConflict)

	detail, err := c.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, detail.Tickets, 1)
	assert.True(t, detail.Tickets[0].Attended)

	_, err = c.GetEvent(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_CreateEventForbiddenForStaff(t *testing.T) {
	c, sess, _, _ := setup(t)
	login(t, c, sess, "staff@tixie.local")

	start := time.Now().Add(time.Hour)
	_, err := c.CreateEvent(context.Background(), EventInput{Title: "x", StartDate: start, EndDate: start.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.True(t, sess.IsAuthenticated(), "403 keeps the session")
}

func TestClient_CreateEventValidatesLocally(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()
	c := New(srv.URL, WithLogger(quietLogger()))

	start := time.Now()
	_, err := c.CreateEvent(context.Background(), EventInput{Title: "x", StartDate: start, EndDate: start.Add(-time.Minute)})
	assert.ErrorIs(t, err, ErrInvalidEventWindow)

	_, err = c.CreateEvent(context.Background(), EventInput{StartDate: start, EndDate: start})
	assert.ErrorIs(t, err, ErrTitleRequired)

	_, err = c.GetTicketByID(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingID)

	assert.Zero(t, hits.Load())
}

func TestClient_UnauthorizedClearsSession(t *testing.T) {
	c, sess, _, _ := setup(t)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &session.Claims{
		Role:             session.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "intruder"},
	}).SignedString([]byte("wrong-key"))
	require.NoError(t, err)
	require.NoError(t, sess.Login(forged))
	require.True(t, sess.IsAdmin(), "the client-side gate trusts any decodable token")

	_, err = c.ListEvents(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, sess.IsAuthenticated())
	assert.False(t, sess.IsAdmin())
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"message":["upstream","down"]}`))
	}))
	defer srv.Close()
	c := New(srv.URL, WithLogger(quietLogger()))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.GetTicketByID(ctx, "t-1")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "upstream; down", apiErr.Message)
	}

	_, err := c.GetTicketByID(ctx, "t-1")
	assert.ErrorIs(t, err, common.ErrCircuitBreakerOpen)
	assert.Equal(t, int32(3), hits.Load())
}

func TestClient_NotFoundDoesNotTripBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()
	c := New(srv.URL, WithLogger(quietLogger()))

	for i := 0; i < 6; i++ {
		_, err := c.GetTicketByID(context.Background(), "t-1")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, int32(6), hits.Load())
}

func TestAPIError(t *testing.T) {
	err := &APIError{StatusCode: http.StatusForbidden}
	assert.Equal(t, "backend returned 403 Forbidden", err.Error())
	assert.ErrorIs(t, err, ErrForbidden)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.False(t, err.Temporary())
	assert.True(t, (&APIError{StatusCode: 503}).Temporary())
}
