package database

import (
	"context"
	"time"
)

type (
	DBClient     = dbClient
	DBCollection = dbCollection
)

// ErrNotConnected is the error returned once the manager is closed.
var ErrNotConnected = errNotConnected

// WithOpen is an option to override the default MongoDB client constructor.
func WithOpen(open func(ctx context.Context, cfg Config) (DBClient, DBCollection, error)) Options {
	return func(opts *options) {
		opts.open = open
	}
}

// WithCloseTimeout is an option to override how long Close waits for the client to disconnect.
func WithCloseTimeout(d time.Duration) Options {
	return func(opts *options) {
		opts.closeTimeout = d
	}
}
