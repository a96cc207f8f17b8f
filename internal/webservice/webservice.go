// Package webservice provides the HTTP server exposing the aggregator data API and its admin surface.
package webservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/periscope/aggregator-api/internal/constants"
	"github.com/periscope/aggregator-api/internal/metrics"
	"github.com/periscope/aggregator-api/internal/webservice/admin"
	"github.com/periscope/aggregator-api/internal/webservice/handlers"
	endpointmetrics "github.com/periscope/aggregator-api/internal/webservice/metrics"
	"github.com/periscope/aggregator-api/internal/webservice/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// Store is the record access the server needs.
type Store interface {
	handlers.Sampler
	admin.RecordStore
}

// watcher is implemented by stores able to reload their records while serving.
type watcher interface {
	Watch(context.Context) (<-chan struct{}, <-chan error, error)
}

// Server is a struct that holds the HTTP servers and their configuration.
type Server struct {
	httpServer    *http.Server
	metricsServer *metrics.Server
	store         Store

	mu          sync.RWMutex
	primaryAddr net.Addr

	// This context is used to interrupt any action.
	// It must be the parent of gracefulCtx.
	ctx    context.Context
	cancel context.CancelFunc

	// This context is cancelled to initiate a graceful shutdown.
	gracefulCtx    context.Context
	gracefulCancel context.CancelFunc
}

// StaticConfig holds the static configuration for the server.
type StaticConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	MaxHeaderBytes int

	ListenHost string
	ListenPort int

	MetricsHost string
	MetricsPort int

	// RateLimit is the number of public API requests allowed per second and client IP, after RateBurst.
	// Zero disables the limit.
	RateLimit float64
	RateBurst int
}

type options struct {
	registry *prometheus.Registry
}

// Options represents an optional function to override Server default values.
type Options func(*options)

// New creates a new Server over store, with the admin surface configured by ac.
func New(ctx context.Context, store Store, sc StaticConfig, ac admin.Config, args ...Options) (*Server, error) {
	opts := options{}
	for _, opt := range args {
		opt(&opts)
	}
	if opts.registry == nil {
		opts.registry = metrics.NewRegistry()
	}

	adminHandler, err := admin.New(store, ac)
	if err != nil {
		return nil, fmt.Errorf("failed to configure admin surface: %v", err)
	}

	public := func(h http.Handler) http.Handler { return endpointmetrics.HandlerApplyLabels(h) }
	if sc.RateLimit > 0 {
		limiter := middleware.New(rate.Limit(sc.RateLimit), max(sc.RateBurst, 1))
		public = func(h http.Handler) http.Handler {
			return endpointmetrics.HandlerApplyLabels(limiter.RateLimitMiddleware(h))
		}
	}

	mux := http.NewServeMux()
	mux.Handle("GET /{$}", public(http.HandlerFunc(handlers.RootHandler)))
	mux.Handle("GET /aggregator-data", public(handlers.NewSample(store, constants.SampleLimit)))
	mux.Handle("GET /version", http.HandlerFunc(handlers.VersionHandler))
	mux.Handle("/admin", adminHandler)
	mux.Handle("/admin/", adminHandler)

	var handler http.Handler = mux
	if sc.RequestTimeout > 0 {
		handler = http.TimeoutHandler(mux, sc.RequestTimeout, "")
	}
	handler = endpointmetrics.NewEndpointMiddleware(opts.registry).Wrap(constants.CmdName, handler)

	ctx, cancel := context.WithCancel(ctx)
	gCtx, gCancel := context.WithCancel(ctx)

	return &Server{
		httpServer: &http.Server{
			Addr:           net.JoinHostPort(sc.ListenHost, strconv.Itoa(sc.ListenPort)),
			ReadTimeout:    sc.ReadTimeout,
			WriteTimeout:   sc.WriteTimeout,
			Handler:        handler,
			MaxHeaderBytes: sc.MaxHeaderBytes,
		},
		metricsServer: metrics.New(metrics.Config{
			Host:         sc.MetricsHost,
			Port:         sc.MetricsPort,
			ReadTimeout:  sc.ReadTimeout,
			WriteTimeout: sc.WriteTimeout,
		}, opts.registry),
		store: store,

		ctx:    ctx,
		cancel: cancel,

		gracefulCtx:    gCtx,
		gracefulCancel: gCancel,
	}, nil
}

// Run starts the HTTP servers and blocks until they stop.
func (s *Server) Run() error {
	// already asked to quit?
	select {
	case <-s.gracefulCtx.Done():
		return errors.New("server is already shutting down")
	default:
	}

	var watchErr <-chan error
	if w, ok := s.store.(watcher); ok {
		var err error
		if _, watchErr, err = w.Watch(s.gracefulCtx); err != nil {
			return fmt.Errorf("failed to start watching records: %v", err)
		}
	}

	l, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to listen on %s: %v", s.httpServer.Addr, err)
	}
	if err := s.metricsServer.Listen(); err != nil {
		l.Close()
		s.cancel()
		return fmt.Errorf("failed to listen for metrics: %v", err)
	}

	s.mu.Lock()
	s.primaryAddr = l.Addr()
	s.mu.Unlock()
	slog.Info("Starting server", "addr", l.Addr().String(), "metrics_addr", s.metricsServer.Addr())

	serverErr := make(chan error, 2)
	go func() {
		if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	go func() {
		if err := s.metricsServer.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("metrics server: %v", err)
		}
	}()

	for {
		select {
		case <-s.gracefulCtx.Done():
			slog.Info("Graceful shutdown initiated")
			// use parent ctx so if you call s.cancel() elsewhere it unblocks Shutdown immediately
			err := errors.Join(s.httpServer.Shutdown(s.ctx), s.metricsServer.Shutdown(s.ctx))
			s.cancel()
			if err != nil {
				slog.Error("Graceful shutdown failed", "err", err)
				return err
			}
			slog.Info("Server shut down gracefully")
			return nil

		case err := <-serverErr:
			slog.Error("Server encountered error", "err", err)
			s.cancel()
			return errors.Join(err, s.httpServer.Close(), s.metricsServer.Close())

		case err, ok := <-watchErr:
			if !ok {
				// The watcher stops on its own once shutdown started.
				watchErr = nil
				continue
			}
			slog.Error("Record watcher encountered unrecoverable error", "err", err)
			s.cancel()
			return errors.Join(err, s.httpServer.Close(), s.metricsServer.Close())
		}
	}
}

// Quit shuts down the HTTP servers, gracefully unless force is set.
func (s *Server) Quit(force bool) {
	defer s.cancel()

	if force {
		s.httpServer.Close()
		s.metricsServer.Close()
	} else {
		s.gracefulCancel()
	}
	slog.Info("Server quit")
}

// Addr returns the address the API is served on, or an empty string before Run.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.primaryAddr == nil {
		return ""
	}
	return s.primaryAddr.String()
}

// MetricsAddr returns the address metrics are served on, or an empty string before Run.
func (s *Server) MetricsAddr() string {
	return s.metricsServer.Addr()
}
