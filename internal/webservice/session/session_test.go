package session_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/periscope/aggregator-api/internal/webservice/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestNew(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		secret []byte

		wantErr bool
	}{
		"Valid secret": {secret: testSecret},

		// Error cases
		"Empty secret": {secret: nil, wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s, err := session.New(tc.secret)
			if tc.wantErr {
				require.Error(t, err, "New should fail")
				return
			}
			require.NoError(t, err, "New should not fail")
			assert.Equal(t, 0, s.Len(), "A new store should hold no session")
		})
	}
}

func TestUser(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		cookie func(t *testing.T, valid *http.Cookie) *http.Cookie
		ttl    time.Duration
		elapse time.Duration

		wantUser string
		wantOK   bool
	}{
		"Valid session": {wantUser: "admin", wantOK: true},
		"Session just before expiry": {
			ttl: time.Hour, elapse: 59 * time.Minute,
			wantUser: "admin", wantOK: true,
		},

		// Anonymous cases
		"No cookie": {
			cookie: func(*testing.T, *http.Cookie) *http.Cookie { return nil },
		},
		"Tampered cookie": {
			cookie: func(_ *testing.T, c *http.Cookie) *http.Cookie {
				suffix := "AA"
				if strings.HasSuffix(c.Value, suffix) {
					suffix = "BB"
				}
				tampered := *c
				tampered.Value = c.Value[:len(c.Value)-2] + suffix
				return &tampered
			},
		},
		"Cookie signed with another secret": {
			cookie: func(t *testing.T, _ *http.Cookie) *http.Cookie {
				t.Helper()
				other, err := session.New([]byte("another secret of enough length!"))
				require.NoError(t, err, "Setup: New should not fail")
				return createCookie(t, other, "admin")
			},
		},
		"Garbage cookie": {
			cookie: func(*testing.T, *http.Cookie) *http.Cookie {
				return &http.Cookie{Name: session.CookieName, Value: "garbage"}
			},
		},
		"Expired session": {ttl: time.Hour, elapse: time.Hour},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			clock := newFakeClock()
			s, err := session.New(testSecret, session.WithTTL(tc.ttl), session.WithClock(clock.Now))
			require.NoError(t, err, "Setup: New should not fail")

			c := createCookie(t, s, "admin")
			if tc.cookie != nil {
				c = tc.cookie(t, c)
			}
			clock.Advance(tc.elapse)

			r := httptest.NewRequest(http.MethodGet, "/admin/", nil)
			if c != nil {
				r.AddCookie(c)
			}

			user, ok := s.User(r)
			assert.Equal(t, tc.wantOK, ok, "Unexpected session validity")
			assert.Equal(t, tc.wantUser, user, "Unexpected session user")
		})
	}
}

func TestCreateSetsCookie(t *testing.T) {
	t.Parallel()

	s, err := session.New(testSecret, session.WithTTL(time.Hour), session.WithSecureCookie(true))
	require.NoError(t, err, "Setup: New should not fail")

	c := createCookie(t, s, "admin")
	assert.Equal(t, "/admin", c.Path, "Cookie should be scoped to the admin surface")
	assert.True(t, c.HttpOnly, "Cookie should not be readable from scripts")
	assert.True(t, c.Secure, "Cookie should be HTTPS only when configured")
	assert.Equal(t, 3600, c.MaxAge, "Cookie lifetime should follow the TTL")
	assert.Equal(t, 1, s.Len(), "Store should hold the session")
}

func TestDestroy(t *testing.T) {
	t.Parallel()

	s, err := session.New(testSecret)
	require.NoError(t, err, "Setup: New should not fail")
	c := createCookie(t, s, "admin")

	r := httptest.NewRequest(http.MethodPost, "/admin/logout", nil)
	r.AddCookie(c)
	w := httptest.NewRecorder()
	s.Destroy(w, r)

	expired := w.Result().Cookies()
	require.Len(t, expired, 1, "Destroy should send one cookie")
	assert.Negative(t, expired[0].MaxAge, "Destroy should expire the cookie")
	assert.Equal(t, 0, s.Len(), "Store should forget the session")

	// Replaying the old cookie must not authenticate.
	r = httptest.NewRequest(http.MethodGet, "/admin/", nil)
	r.AddCookie(c)
	_, ok := s.User(r)
	assert.False(t, ok, "Destroyed session should not be valid")

	// Destroying without a session still expires the cookie.
	w = httptest.NewRecorder()
	s.Destroy(w, httptest.NewRequest(http.MethodPost, "/admin/logout", nil))
	assert.Len(t, w.Result().Cookies(), 1, "Destroy should always expire the cookie")
}

func TestExpiredSessionsArePruned(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	s, err := session.New(testSecret, session.WithTTL(time.Minute), session.WithClock(clock.Now))
	require.NoError(t, err, "Setup: New should not fail")

	createCookie(t, s, "first")
	createCookie(t, s, "second")
	require.Equal(t, 2, s.Len(), "Setup: both sessions should be held")

	clock.Advance(2 * time.Minute)
	createCookie(t, s, "third")
	assert.Equal(t, 1, s.Len(), "Expired sessions should be pruned on the next login")
}

func createCookie(t *testing.T, s *session.Store, username string) *http.Cookie {
	t.Helper()

	w := httptest.NewRecorder()
	require.NoError(t, s.Create(w, username), "Setup: Create should not fail")
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1, "Setup: Create should set one cookie")
	return cookies[0]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
