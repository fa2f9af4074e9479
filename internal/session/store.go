// Package session holds the authenticated driver for the lifetime of a login.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"deliveryFieldOps/internal/auth"
	"deliveryFieldOps/internal/channel"
	"deliveryFieldOps/internal/logging"
	"deliveryFieldOps/models"
)

// DefaultTimeout bounds an authenticate round trip when none is configured.
const DefaultTimeout = 10 * time.Second

// State is the authentication state of a Store.
type State int

const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrAuthenticationInProgress is returned when Authenticate is called while
	// another call has not settled.
	ErrAuthenticationInProgress = errors.New("session: authentication already in progress")
	// ErrInvalidReply is returned when the server reply is neither a Session nor an error.
	ErrInvalidReply = errors.New("session: invalid authentication reply")
)

// AuthError carries the server's rejection message verbatim.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// Requester is the request/reply half of the channel.
type Requester interface {
	Request(ctx context.Context, event string, payload any) (json.RawMessage, error)
}

type credentials struct {
	UserName string `json:"userName"`
	Secret   string `json:"secret"`
}

// Store owns the single in-memory Session.
type Store struct {
	ch      Requester
	timeout time.Duration
	log     *slog.Logger

	mu      sync.RWMutex
	state   State
	session *models.Session
}

// New returns an empty Store. A non-positive timeout selects DefaultTimeout.
func New(ch Requester, timeout time.Duration, log *slog.Logger) *Store {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Store{ch: ch, timeout: timeout, log: log}
}

// Authenticate sends the credentials and stores the Session from the reply. A
// reply carrying errorMessage fails with *AuthError. A failure keeps whatever
// Session was held before the call.
func (s *Store) Authenticate(ctx context.Context, userName, secret string) (*models.Session, error) {
	s.mu.Lock()
	if s.state == Authenticating {
		s.mu.Unlock()
		return nil, ErrAuthenticationInProgress
	}
	s.state = Authenticating
	s.mu.Unlock()

	sess, err := s.authenticate(ctx, userName, secret)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = Unauthenticated
		if s.session != nil {
			s.state = Authenticated
		}
		s.log.Warn("authentication failed", "user", userName, "error", err)
		return nil, err
	}
	s.state = Authenticated
	s.session = sess
	s.log.Info("authenticated", "user", sess.UserName)
	out := *sess
	return &out, nil
}

func (s *Store) authenticate(ctx context.Context, userName, secret string) (*models.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.ch.Request(ctx, channel.EventAuthenticate, credentials{UserName: userName, Secret: secret})
	if err != nil {
		return nil, err
	}
	var rejection struct {
		ErrorMessage *string `json:"errorMessage"`
	}
	if err := json.Unmarshal(data, &rejection); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReply, err)
	}
	if rejection.ErrorMessage != nil {
		return nil, &AuthError{Message: *rejection.ErrorMessage}
	}
	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReply, err)
	}
	return &sess, nil
}

// Session returns a copy of the current Session.
func (s *Store) Session() (models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return models.Session{}, false
	}
	return *s.session, true
}

// State returns the current authentication state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// UpdateLocation sets the Session location. Without a Session it does nothing
// and reports false.
func (s *Store) UpdateLocation(loc models.Location) (models.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return models.Session{}, false
	}
	s.session.Location = loc
	return *s.session, true
}

// Clear drops the Session.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		s.log.Info("session cleared", "user", s.session.UserName)
	}
	s.session = nil
	if s.state == Authenticated {
		s.state = Unauthenticated
	}
}

// ExpiresAt reports when the server-issued session token lapses, if it carries an expiry.
func (s *Store) ExpiresAt() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return time.Time{}, false
	}
	return auth.ExpiresAt(s.session.Token)
}
