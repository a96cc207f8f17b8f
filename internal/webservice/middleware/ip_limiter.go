// Package middleware provides HTTP middleware for rate limiting based on client IP addresses.
package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// defaultIdleTTL is how long a client IP may stay silent before its limiter is forgotten.
const defaultIdleTTL = 10 * time.Minute

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPLimiter is a middleware that limits the rate of requests based on the client's IP address.
type IPLimiter struct {
	clients   map[string]*client
	mu        sync.Mutex
	rate      rate.Limit
	burst     int
	idleTTL   time.Duration
	lastPrune time.Time

	now func() time.Time
}

type options struct {
	idleTTL time.Duration
	now     func() time.Time
}

// Options represents an optional function to override IPLimiter default values.
type Options func(*options)

// New creates a new IPLimiter with the specified rate limit and burst size.
// rate.Limit is the maximum number of requests allowed per second.
// burst is the maximum number of requests allowed in a burst.
func New(r rate.Limit, b int, args ...Options) *IPLimiter {
	opts := options{
		idleTTL: defaultIdleTTL,
		now:     time.Now,
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &IPLimiter{
		clients:   make(map[string]*client),
		rate:      r,
		burst:     b,
		idleTTL:   opts.idleTTL,
		lastPrune: opts.now(),
		now:       opts.now,
	}
}

func (l *IPLimiter) getLimiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastPrune) >= l.idleTTL {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) >= l.idleTTL {
				delete(l.clients, k)
			}
		}
		l.lastPrune = now
	}

	c, exists := l.clients[ip]
	if !exists {
		c = &client{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter
}

// Allow reports whether a request from the client of r may proceed now.
// Requests whose client IP cannot be determined are denied.
func (l *IPLimiter) Allow(r *http.Request) bool {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return false
	}
	return l.getLimiter(ip).Allow()
}

// RateLimitMiddleware is an HTTP middleware that applies rate limiting based on the client's IP address.
// It checks the rate limit for the IP address and allows or denies the request accordingly.
func (l *IPLimiter) RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := net.SplitHostPort(r.RemoteAddr); err != nil {
			http.Error(w, "Unable to determine IP", http.StatusBadRequest)
			return
		}
		if !l.Allow(r) {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
