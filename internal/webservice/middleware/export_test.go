package middleware

import "time"

// WithClock is an option to set the time source of the limiter.
func WithClock(now func() time.Time) Options {
	return func(opts *options) {
		opts.now = now
	}
}

// WithIdleTTL is an option to set how long idle clients are kept.
func WithIdleTTL(d time.Duration) Options {
	return func(opts *options) {
		opts.idleTTL = d
	}
}

// Tracked returns the number of client IPs currently tracked.
func (l *IPLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
