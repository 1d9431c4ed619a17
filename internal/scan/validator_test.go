package scan

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tixie.local/checkin/internal/client"
	"tixie.local/checkin/internal/clock"
	"tixie.local/checkin/internal/i18n"
	"tixie.local/checkin/internal/mockbackend"
	"tixie.local/checkin/internal/session"
)

var testNow = time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)

const payloadT1 = "https://tickets.example/scan?ticketId=t-1"

// MockBackend mocks the ticket endpoints of the REST client
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) GetTicketByID(ctx context.Context, ticketID string) (*client.Ticket, error) {
	args := m.Called(ticketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.Ticket), args.Error(1)
}

func (m *MockBackend) MarkAttendance(ctx context.Context, ticketID string) (*client.Ticket, error) {
	args := m.Called(ticketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.Ticket), args.Error(1)
}

type funcBackend struct {
	get  func(ctx context.Context, id string) (*client.Ticket, error)
	mark func(ctx context.Context, id string) (*client.Ticket, error)
}

func (f *funcBackend) GetTicketByID(ctx context.Context, id string) (*client.Ticket, error) {
	return f.get(ctx, id)
}

func (f *funcBackend) MarkAttendance(ctx context.Context, id string) (*client.Ticket, error) {
	return f.mark(ctx, id)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ticketFor(start, end time.Time, attended bool) *client.Ticket {
	return &client.Ticket{
		ID:           "t-1",
		TicketNumber: "0001",
		Attended:     attended,
		Event:        &client.Event{ID: "e-1", Title: "Gala", StartDate: start, EndDate: end},
	}
}

func newValidator(backend Backend, clk clock.Clock, opts ...Option) *Validator {
	return NewValidator(backend, clk, append([]Option{WithLogger(quietLogger())}, opts...)...)
}

func TestValidator_AcceptsTicketInWindow(t *testing.T) {
	backend := new(MockBackend)
	marked := ticketFor(testNow.Add(-time.Hour), testNow.Add(time.Hour), true)
	at := testNow
	marked.AttendanceTimestamp = &at
	backend.On("GetTicketByID", "t-1").Return(ticketFor(testNow.Add(-time.Hour), testNow.Add(time.Hour), false), nil)
	backend.On("MarkAttendance", "t-1").Return(marked, nil)

	v := newValidator(backend, clock.NewManual(testNow))
	res, err := v.Scan(context.Background(), payloadT1)

	require.NoError(t, err)
	assert.True(t, res.Accepted())
	assert.Empty(t, res.Reason)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "t-1", res.TicketID)
	assert.Same(t, marked, res.Ticket)
	assert.Equal(t, StateIdle, v.State())
	backend.AssertExpectations(t)
}

func TestValidator_Rejections(t *testing.T) {
	start := testNow.Add(-time.Hour)
	end := testNow.Add(time.Hour)

	tests := []struct {
		name   string
		ticket *client.Ticket
		err    error
		reason Reason
	}{
		{"already attended", ticketFor(start, end, true), nil, ReasonAlreadyUsed},
		{"attended wins over ended", ticketFor(start.Add(-48*time.Hour), end.Add(-48*time.Hour), true), nil, ReasonAlreadyUsed},
		{"event ended", ticketFor(start.Add(-48*time.Hour), end.Add(-48*time.Hour), false), nil, ReasonEventEnded},
		{"event not started", ticketFor(start.Add(48*time.Hour), end.Add(48*time.Hour), false), nil, ReasonEventNotStarted},
		{"ticket not found", nil, client.ErrNotFound, ReasonInvalidTicket},
		{"no event in response", &client.Ticket{ID: "t-1"}, nil, ReasonInvalidTicket},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := new(MockBackend)
			backend.On("GetTicketByID", "t-1").Return(tt.ticket, tt.err)

			v := newValidator(backend, clock.NewManual(testNow))
			res, err := v.Scan(context.Background(), payloadT1)

			require.NoError(t, err)
			assert.Equal(t, StatusRejected, res.Status)
			assert.Equal(t, tt.reason, res.Reason)
			backend.AssertNotCalled(t, "MarkAttendance", mock.Anything)
		})
	}
}

func TestValidator_NotStartedCarriesStartDate(t *testing.T) {
	start := testNow.Add(24 * time.Hour)
	backend := new(MockBackend)
	backend.On("GetTicketByID", "t-1").Return(ticketFor(start, start.Add(time.Hour), false), nil)

	v := newValidator(backend, clock.NewManual(testNow))
	res, err := v.Scan(context.Background(), payloadT1)

	require.NoError(t, err)
	require.NotNil(t, res.StartDate)
	assert.True(t, res.StartDate.Equal(start))
	assert.Contains(t, res.Notice(i18n.NewPrinter(i18n.Match("es"))), "2025-06-02 18:00")
}

func TestValidator_WindowBoundsAreInclusive(t *testing.T) {
	for _, tc := range []struct {
		name       string
		start, end time.Time
	}{
		{"at start", testNow, testNow.Add(time.Hour)},
		{"at end", testNow.Add(-time.Hour), testNow},
	} {
		t.Run(tc.name, func(t *testing.T) {
			backend := new(MockBackend)
			backend.On("GetTicketByID", "t-1").Return(ticketFor(tc.start, tc.end, false), nil)
			backend.On("MarkAttendance", "t-1").Return(ticketFor(tc.start, tc.end, true), nil)

			v := newValidator(backend, clock.NewManual(testNow))
			res, err := v.Scan(context.Background(), payloadT1)
			require.NoError(t, err)
			assert.True(t, res.Accepted())
		})
	}
}

func TestValidator_MutationFailure(t *testing.T) {
	backend := new(MockBackend)
	boom := &client.APIError{StatusCode: 500, Message: "db down"}
	backend.On("GetTicketByID", "t-1").Return(ticketFor(testNow.Add(-time.Hour), testNow.Add(time.Hour), false), nil)
	backend.On("MarkAttendance", "t-1").Return(nil, boom)

	v := newValidator(backend, clock.NewManual(testNow))
	res, err := v.Scan(context.Background(), payloadT1)

	require.NoError(t, err)
	assert.Equal(t, ReasonMutationFailed, res.Reason)
	assert.ErrorIs(t, res.Err, boom)
	assert.Equal(t, StateIdle, v.State())
}

func TestValidator_InvalidQRMakesNoCalls(t *testing.T) {
	for _, payload := range []string{
		"hello world",
		"/scan?ticketId=t-1",
		"https://tickets.example/scan",
		"https://tickets.example/scan?ticketId=",
		"%zz://broken",
	} {
		t.Run(payload, func(t *testing.T) {
			backend := new(MockBackend)
			v := newValidator(backend, clock.NewManual(testNow))

			res, err := v.Scan(context.Background(), payload)
			require.NoError(t, err)
			assert.Equal(t, ReasonInvalidQR, res.Reason)
			assert.ErrorIs(t, res.Err, ErrInvalidQR)
			backend.AssertNotCalled(t, "GetTicketByID", mock.Anything)
			backend.AssertNotCalled(t, "MarkAttendance", mock.Anything)
		})
	}
}

func TestValidator_EmptyPayloadIsIgnored(t *testing.T) {
	backend := new(MockBackend)
	clk := clock.NewManual(testNow)
	v := newValidator(backend, clk)

	_, err := v.Scan(context.Background(), "  \n")
	assert.ErrorIs(t, err, ErrEmptyPayload)
	assert.True(t, v.Snapshot().LastScan.IsZero(), "blank frames do not start the cooldown")
}

func TestValidator_Cooldown(t *testing.T) {
	backend := new(MockBackend)
	backend.On("GetTicketByID", "t-1").Return(nil, client.ErrNotFound)
	clk := clock.NewManual(testNow)
	v := newValidator(backend, clk, WithCooldown(time.Second))
	ctx := context.Background()

	_, err := v.Scan(ctx, payloadT1)
	require.NoError(t, err)

	_, err = v.Scan(ctx, payloadT1)
	assert.ErrorIs(t, err, ErrSuppressed)

	clk.Advance(999 * time.Millisecond)
	_, err = v.Scan(ctx, payloadT1)
	assert.ErrorIs(t, err, ErrSuppressed)

	clk.Advance(time.Millisecond)
	_, err = v.Scan(ctx, payloadT1)
	assert.NoError(t, err)

	backend.AssertNumberOfCalls(t, "GetTicketByID", 2)
}

func TestValidator_CooldownAppliesToInvalidQR(t *testing.T) {
	backend := new(MockBackend)
	v := newValidator(backend, clock.NewManual(testNow))

	_, err := v.Scan(context.Background(), "not a url")
	require.NoError(t, err)
	_, err = v.Scan(context.Background(), payloadT1)
	assert.ErrorIs(t, err, ErrSuppressed)
}

func TestValidator_CooldownRestartsAtOutcome(t *testing.T) {
	clk := clock.NewManual(testNow)
	backend := &funcBackend{
		get: func(context.Context, string) (*client.Ticket, error) {
			clk.Advance(5 * time.Second) // slow backend
			return nil, client.ErrNotFound
		},
	}
	v := newValidator(backend, clk, WithCooldown(time.Second))

	_, err := v.Scan(context.Background(), payloadT1)
	require.NoError(t, err)

	clk.Advance(500 * time.Millisecond)
	_, err = v.Scan(context.Background(), payloadT1)
	assert.ErrorIs(t, err, ErrSuppressed)
}

func TestValidator_DropsScansWhileValidating(t *testing.T) {
	entered := make(chan struct{}, 4)
	release := make(chan struct{})
	var calls sync.WaitGroup
	backend := &funcBackend{
		get: func(context.Context, string) (*client.Ticket, error) {
			entered <- struct{}{}
			<-release
			return ticketFor(testNow.Add(-time.Hour), testNow.Add(time.Hour), false), nil
		},
		mark: func(context.Context, string) (*client.Ticket, error) {
			return ticketFor(testNow.Add(-time.Hour), testNow.Add(time.Hour), true), nil
		},
	}
	v := newValidator(backend, clock.NewManual(testNow), WithCooldown(0))

	var first Result
	calls.Add(1)
	go func() {
		defer calls.Done()
		first, _ = v.Scan(context.Background(), payloadT1)
	}()
	<-entered
	assert.Equal(t, StateValidating, v.State())

	_, err := v.Scan(context.Background(), payloadT1)
	assert.ErrorIs(t, err, ErrSuppressed)
	_, err = v.Validate(context.Background(), "t-2")
	assert.ErrorIs(t, err, ErrSuppressed)

	close(release)
	calls.Wait()
	assert.True(t, first.Accepted())
	assert.Equal(t, StateIdle, v.State())

	res, err := v.Scan(context.Background(), payloadT1)
	require.NoError(t, err)
	assert.True(t, res.Accepted())
}

func TestValidator_ValidateByID(t *testing.T) {
	backend := new(MockBackend)
	backend.On("GetTicketByID", "t-9").Return(nil, client.ErrNotFound)
	v := newValidator(backend, clock.NewManual(testNow), WithCooldown(0))

	res, err := v.Validate(context.Background(), "t-9")
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidTicket, res.Reason)
	assert.ErrorIs(t, res.Err, client.ErrNotFound)

	res, err = v.Validate(context.Background(), " ")
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidQR, res.Reason)
}

func TestValidator_SinksSeeEveryOutcome(t *testing.T) {
	backend := new(MockBackend)
	backend.On("GetTicketByID", "t-1").Return(ticketFor(testNow.Add(-time.Hour), testNow.Add(time.Hour), true), nil)

	var mu sync.Mutex
	var seen []Result
	record := SinkFunc(func(_ context.Context, r Result) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, r)
		return nil
	})
	failing := SinkFunc(func(context.Context, Result) error { return errors.New("disk full") })

	v := newValidator(backend, clock.NewManual(testNow), WithCooldown(0), WithSinks(failing, record))
	res, err := v.Scan(context.Background(), payloadT1)
	require.NoError(t, err)
	_, err = v.Scan(context.Background(), "garbage")
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Equal(t, res.ID, seen[0].ID)
	assert.Equal(t, ReasonAlreadyUsed, seen[0].Reason)
	assert.Equal(t, ReasonInvalidQR, seen[1].Reason)

	snap := v.Snapshot()
	require.NotNil(t, snap.Last)
	assert.Equal(t, seen[1].ID, snap.Last.ID)
}

func TestValidator_AgainstMockBackend(t *testing.T) {
	backend := mockbackend.New([]byte("secret"),
		mockbackend.WithClock(clock.NewFixed(testNow)),
		mockbackend.WithLogger(quietLogger()),
	)
	require.NoError(t, backend.AddUser("staff@tixie.local", "pw", "Staff", mockbackend.RoleUser))
	eventID := backend.AddEvent("Gala", testNow.Add(-time.Hour), testNow.Add(time.Hour))
	ticketID, err := backend.AddTicket(eventID)
	require.NoError(t, err)

	srv := httptest.NewServer(backend)
	defer srv.Close()

	token, err := backend.IssueToken("staff@tixie.local")
	require.NoError(t, err)
	sess := session.New(nil, session.WithLogger(quietLogger()))
	require.NoError(t, sess.Login(token))
	c := client.New(srv.URL, client.WithCredentials(sess), client.WithLogger(quietLogger()))

	v := newValidator(c, clock.NewManual(testNow), WithCooldown(0))
	res, err := v.Scan(context.Background(), backend.ScanURL(ticketID))
	require.NoError(t, err)
	require.True(t, res.Accepted(), "reason %s: %v", res.Reason, res.Err)
	require.NotNil(t, res.Ticket)
	assert.True(t, res.Ticket.Attended)
	require.NotNil(t, res.Ticket.AttendanceTimestamp)

	attended, at, ok := backend.TicketAttendance(ticketID)
	require.True(t, ok)
	assert.True(t, attended)
	require.NotNil(t, at)
	assert.True(t, at.Equal(testNow))

	res, err = v.Scan(context.Background(), backend.ScanURL(ticketID))
	require.NoError(t, err)
	assert.Equal(t, ReasonAlreadyUsed, res.Reason)

	res, err = v.Validate(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidTicket, res.Reason)
}
