// Package auth implements cookie sessions kept in the cache client,
// credentials login and the authenticate middleware.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-while/checkweb/internal/cache"
	"github.com/go-while/checkweb/internal/models"
	"github.com/google/uuid"
)

const (
	SessionCookie     = "ss-id"
	PermSessionCookie = "ss-pid"
	SessionOptCookie  = "ss-opt"
	SessionHeader     = "X-ss-id"
	PermOption        = "perm"

	sessionKeyPrefix = "urn:iauthsession:"
)

var ErrNotAuthenticated = errors.New("not authenticated")

// SessionKey returns the cache key of a session id
func SessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

// NewSessionID returns a fresh random session id
func NewSessionID() string {
	return uuid.NewString()
}

// SessionStore keeps AuthUserSessions in a cache client
type SessionStore struct {
	cache      cache.Client
	expiry     time.Duration
	permExpiry time.Duration
	now        func() time.Time
}

// NewSessionStore creates a store with the given sliding expiries
func NewSessionStore(client cache.Client, expiry, permExpiry time.Duration) *SessionStore {
	return &SessionStore{
		cache:      client,
		expiry:     expiry,
		permExpiry: permExpiry,
		now:        time.Now,
	}
}

func (s *SessionStore) ttl(perm bool) time.Duration {
	if perm {
		return s.permExpiry
	}
	return s.expiry
}

// Get loads the session; ErrNotAuthenticated when missing or anonymous
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*models.AuthUserSession, error) {
	if sessionID == "" {
		return nil, ErrNotAuthenticated
	}
	var session models.AuthUserSession
	found, err := s.cache.Get(ctx, SessionKey(sessionID), &session)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !found || !session.IsAuthenticated {
		return nil, ErrNotAuthenticated
	}
	return &session, nil
}

// Save stores the session under its own id. perm selects the remember-me
// expiry and is kept on the session for later refreshes.
func (s *SessionStore) Save(ctx context.Context, session *models.AuthUserSession, perm bool) error {
	if session.ID == "" {
		return errors.New("session has no id")
	}
	now := s.now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.LastModified = now
	session.Perm = perm
	if err := s.cache.Set(ctx, SessionKey(session.ID), session, s.ttl(perm)); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Touch slides the expiry of a stored session. A session removed in the
// meantime is not written back; ErrNotAuthenticated is returned instead.
func (s *SessionStore) Touch(ctx context.Context, session *models.AuthUserSession) error {
	if session.ID == "" {
		return ErrNotAuthenticated
	}
	session.LastModified = s.now().UTC()
	ok, err := s.cache.Replace(ctx, SessionKey(session.ID), session, s.ttl(session.Perm))
	if err != nil {
		return fmt.Errorf("failed to refresh session: %w", err)
	}
	if !ok {
		return ErrNotAuthenticated
	}
	return nil
}

// Remove drops the session
func (s *SessionStore) Remove(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.cache.Remove(ctx, SessionKey(sessionID)); err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}
