// Package scan turns decoded QR payloads into attendance decisions.
//
// A Validator runs one scan at a time. While a scan is in flight, and for a
// cooldown after the previous one finished, new scans are dropped rather
// than queued: a video decoder reports the same code on many consecutive
// frames and only the first one should count.
package scan

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tixie.local/checkin/internal/client"
	"tixie.local/checkin/internal/clock"
)

// DefaultCooldown is the minimum gap between two accepted scan attempts.
const DefaultCooldown = time.Second

var (
	// ErrSuppressed is returned for scans dropped by the reentrancy flag or
	// the cooldown.
	ErrSuppressed = errors.New("scan suppressed")

	errMissingEvent = errors.New("ticket response has no event")
)

// Backend is the part of the REST client the validator needs.
type Backend interface {
	GetTicketByID(ctx context.Context, ticketID string) (*client.Ticket, error)
	MarkAttendance(ctx context.Context, ticketID string) (*client.Ticket, error)
}

// Validator is the scan state machine. It is safe for concurrent use.
type Validator struct {
	backend  Backend
	clock    clock.Clock
	cooldown time.Duration
	sinks    []Sink
	logger   *slog.Logger

	mu       sync.Mutex
	state    State
	lastScan time.Time
	last     *Result
}

// Option configures a Validator.
type Option func(*Validator)

// WithCooldown overrides DefaultCooldown. Zero disables the cooldown but
// keeps the reentrancy guard.
func WithCooldown(d time.Duration) Option {
	return func(v *Validator) {
		if d >= 0 {
			v.cooldown = d
		}
	}
}

// WithSinks adds sinks that receive every terminal result.
func WithSinks(sinks ...Sink) Option {
	return func(v *Validator) {
		v.sinks = append(v.sinks, sinks...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// NewValidator returns an idle validator.
func NewValidator(backend Backend, clk clock.Clock, opts ...Option) *Validator {
	v := &Validator{
		backend:  backend,
		clock:    clk,
		cooldown: DefaultCooldown,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Scan handles one decoded QR payload.
func (v *Validator) Scan(ctx context.Context, payload string) (Result, error) {
	if isBlank(payload) {
		return Result{}, ErrEmptyPayload
	}
	scannedAt, ok := v.begin()
	if !ok {
		return Result{}, ErrSuppressed
	}

	ticketID, err := ExtractTicketID(payload)
	if err != nil {
		return v.finish(ctx, reject(scannedAt, "", ReasonInvalidQR, err)), nil
	}
	return v.finish(ctx, v.validate(ctx, ticketID, scannedAt)), nil
}

// Validate handles a ticket id that arrived without a QR payload, such as a
// deep link. It is subject to the same guard as Scan.
func (v *Validator) Validate(ctx context.Context, ticketID string) (Result, error) {
	scannedAt, ok := v.begin()
	if !ok {
		return Result{}, ErrSuppressed
	}
	if isBlank(ticketID) {
		return v.finish(ctx, reject(scannedAt, "", ReasonInvalidQR, ErrInvalidQR)), nil
	}
	return v.finish(ctx, v.validate(ctx, ticketID, scannedAt)), nil
}

// Snapshot describes the validator for monitoring.
type Snapshot struct {
	State    State
	Cooldown time.Duration
	LastScan time.Time
	Last     *Result
}

// Snapshot returns the current state and the most recent result.
func (v *Validator) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	st := Snapshot{State: v.state, Cooldown: v.cooldown, LastScan: v.lastScan}
	if v.last != nil {
		last := *v.last
		st.Last = &last
	}
	return st
}

// State returns the current workflow state.
func (v *Validator) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

func (v *Validator) begin() (time.Time, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.clock.Now()
	if v.state == StateValidating {
		v.logger.Debug("scan dropped, validation in flight")
		return time.Time{}, false
	}
	if !v.lastScan.IsZero() && now.Sub(v.lastScan) < v.cooldown {
		v.logger.Debug("scan dropped, cooldown", "since_last_ms", now.Sub(v.lastScan).Milliseconds())
		return time.Time{}, false
	}
	v.state = StateValidating
	v.lastScan = now
	return now, true
}

func (v *Validator) finish(ctx context.Context, r Result) Result {
	r.ID = uuid.NewString()

	v.mu.Lock()
	v.state = StateIdle
	v.lastScan = v.clock.Now()
	last := r
	v.last = &last
	v.mu.Unlock()

	// The caller may have gone away; the outcome still gets recorded.
	sinkCtx := context.WithoutCancel(ctx)
	for _, sink := range v.sinks {
		if err := sink.Record(sinkCtx, r); err != nil {
			v.logger.Error("scan sink failed", "scan_id", r.ID, "error", err)
		}
	}
	return r
}

func (v *Validator) validate(ctx context.Context, ticketID string, scannedAt time.Time) Result {
	ticket, err := v.backend.GetTicketByID(ctx, ticketID)
	if err != nil {
		return reject(scannedAt, ticketID, ReasonInvalidTicket, err)
	}
	if ticket.Attended {
		r := reject(scannedAt, ticketID, ReasonAlreadyUsed, nil)
		r.Ticket = ticket
		return r
	}
	if ticket.Event == nil {
		return reject(scannedAt, ticketID, ReasonInvalidTicket, errMissingEvent)
	}

	now := v.clock.Now()
	if now.After(ticket.Event.EndDate) {
		r := reject(scannedAt, ticketID, ReasonEventEnded, nil)
		r.Ticket = ticket
		return r
	}
	if now.Before(ticket.Event.StartDate) {
		start := ticket.Event.StartDate
		r := reject(scannedAt, ticketID, ReasonEventNotStarted, nil)
		r.StartDate = &start
		r.Ticket = ticket
		return r
	}

	marked, err := v.backend.MarkAttendance(ctx, ticketID)
	if err != nil {
		r := reject(scannedAt, ticketID, ReasonMutationFailed, err)
		r.Ticket = ticket
		return r
	}
	return Result{
		TicketID:  ticketID,
		Status:    StatusAccepted,
		Ticket:    marked,
		ScannedAt: scannedAt,
	}
}

func reject(scannedAt time.Time, ticketID string, reason Reason, err error) Result {
	return Result{
		TicketID:  ticketID,
		Status:    StatusRejected,
		Reason:    reason,
		ScannedAt: scannedAt,
		Err:       err,
	}
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
