// Package session keeps authenticated admin sessions on the server side.
//
// The client only holds an opaque session identifier, signed with the process secret.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

// CookieName is the name of the session cookie.
const CookieName = "aggregator_admin_session"

// DefaultTTL is the session lifetime used when none is configured.
const DefaultTTL = 12 * time.Hour

type session struct {
	username string
	expires  time.Time
}

// Store maps session identifiers to authenticated usernames.
type Store struct {
	codec  *securecookie.SecureCookie
	ttl    time.Duration
	secure bool

	mu       sync.RWMutex
	sessions map[string]session

	now func() time.Time
}

type options struct {
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// Options represents an optional function to override Store default values.
type Options func(*options)

// WithTTL sets how long a session stays valid after login.
func WithTTL(ttl time.Duration) Options {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithSecureCookie marks the cookie as HTTPS only.
func WithSecureCookie(secure bool) Options {
	return func(o *options) {
		o.secure = secure
	}
}

// New creates a session store signing cookies with secret.
func New(secret []byte, args ...Options) (*Store, error) {
	if len(secret) == 0 {
		return nil, errors.New("session secret must not be empty")
	}

	opts := options{
		ttl: DefaultTTL,
		now: time.Now,
	}
	for _, opt := range args {
		opt(&opts)
	}

	codec := securecookie.New(secret, nil)
	codec.MaxAge(int(opts.ttl.Seconds()))

	return &Store{
		codec:    codec,
		ttl:      opts.ttl,
		secure:   opts.secure,
		sessions: make(map[string]session),
		now:      opts.now,
	}, nil
}

// Create starts a session for username and sets its cookie on w.
func (s *Store) Create(w http.ResponseWriter, username string) error {
	id := uuid.NewString()
	value, err := s.codec.Encode(CookieName, id)
	if err != nil {
		return fmt.Errorf("could not sign session cookie: %v", err)
	}

	now := s.now()
	s.mu.Lock()
	s.pruneLocked(now)
	s.sessions[id] = session{username: username, expires: now.Add(s.ttl)}
	s.mu.Unlock()

	http.SetCookie(w, s.cookie(value, int(s.ttl.Seconds())))
	return nil
}

// User returns the username of the valid session attached to r.
func (s *Store) User(r *http.Request) (string, bool) {
	id, ok := s.id(r)
	if !ok {
		return "", false
	}

	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}

	if !s.now().Before(sess.expires) {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
		return "", false
	}
	return sess.username, true
}

// Destroy ends the session attached to r, if any, and expires its cookie.
func (s *Store) Destroy(w http.ResponseWriter, r *http.Request) {
	if id, ok := s.id(r); ok {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
	}
	http.SetCookie(w, s.cookie("", -1))
}

// Len returns the number of sessions held, including expired ones not yet pruned.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) id(r *http.Request) (string, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return "", false
	}

	var id string
	if err := s.codec.Decode(CookieName, c.Value, &id); err != nil {
		slog.Debug("Rejected session cookie", "err", err)
		return "", false
	}
	return id, true
}

func (s *Store) pruneLocked(now time.Time) {
	for id, sess := range s.sessions {
		if !now.Before(sess.expires) {
			delete(s.sessions, id)
		}
	}
}

func (s *Store) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/admin",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
