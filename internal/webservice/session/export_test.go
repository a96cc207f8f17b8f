package session

import "time"

// WithClock is an option to set the time source of the store.
func WithClock(now func() time.Time) Options {
	return func(o *options) {
		o.now = now
	}
}
