// Package session holds the client-side view of who is logged in.
//
// The role predicate exposed here gates what the tools offer to the operator.
// It is not a security boundary: tokens are decoded without signature
// verification and the backend enforces authorization on every request
// regardless of what IsAdmin returns.
package session

import (
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"
)

// ErrNoToken is returned by Token when nobody is logged in.
var ErrNoToken = errors.New("not authenticated")

// Session is the token plus the user derived from it. The zero value is not
// usable; create one with New.
type Session struct {
	mu     sync.RWMutex
	store  Store
	token  *oauth2.Token
	user   *User
	logger *slog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New returns an empty session persisting through store.
func New(store Store, opts ...Option) *Session {
	if store == nil {
		store = &MemoryStore{}
	}
	s := &Session{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hydrate restores the session from the persisted token, if any.
func (s *Session) Hydrate() error {
	raw, err := s.store.Load()
	if err != nil {
		return err
	}
	if raw == "" {
		return nil
	}
	return s.apply(raw, false)
}

// Login replaces the session with token and persists it. A token whose
// claims cannot be decoded leaves the session empty.
func (s *Session) Login(token string) error {
	return s.apply(token, true)
}

// Logout drops the token, the derived user and the persisted copy.
func (s *Session) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked()
}

// Invalidate is called when the backend rejects the token with 401.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return
	}
	s.logger.Warn("session token rejected by backend, clearing")
	if err := s.clearLocked(); err != nil {
		s.logger.Error("failed to clear persisted token", "error", err)
	}
}

// IsAuthenticated reports whether a token is held.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != nil
}

// IsAdmin reports whether the current token claims the administrator role.
func (s *Session) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.user.IsAdmin()
}

// User returns the projection of the current token's claims.
func (s *Session) User() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

// Token implements oauth2.TokenSource. When no token is held it looks at the
// store again, so a token saved by another process (ticketctl login) is
// picked up without a restart.
func (s *Session) Token() (*oauth2.Token, error) {
	s.mu.RLock()
	if s.token != nil {
		tok := *s.token
		s.mu.RUnlock()
		return &tok, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		raw, err := s.store.Load()
		if err != nil {
			return nil, err
		}
		if raw == "" {
			return nil, ErrNoToken
		}
		if err := s.applyLocked(raw, false); err != nil {
			return nil, err
		}
		s.logger.Info("picked up stored session token")
	}
	tok := *s.token
	return &tok, nil
}

func (s *Session) apply(raw string, persist bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(raw, persist)
}

func (s *Session) applyLocked(raw string, persist bool) error {
	claims, err := Decode(raw)
	if err != nil {
		if clearErr := s.clearLocked(); clearErr != nil {
			s.logger.Error("failed to clear persisted token", "error", clearErr)
		}
		return err
	}

	if persist {
		if err := s.store.Save(raw); err != nil {
			return err
		}
	}

	tok := &oauth2.Token{AccessToken: raw, TokenType: "Bearer"}
	if claims.ExpiresAt != nil {
		tok.Expiry = claims.ExpiresAt.Time
	}
	user := claims.user()
	s.token = tok
	s.user = &user
	s.logger.Debug("session updated", "subject", user.Subject, "role", user.Role)
	return nil
}

func (s *Session) clearLocked() error {
	s.token = nil
	s.user = nil
	return s.store.Clear()
}
