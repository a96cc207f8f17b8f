// Package metrics provides middleware for collecting metrics in the web service, to be interpreted by Prometheus.
package metrics

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type label string

// LabelPath is the label used for the route in metrics.
const LabelPath label = "path"

// unmatched is the path label of requests which never reached a route.
const unmatched = "unmatched"

// EndpointMiddleware collects HTTP request metrics for the routes of a mux.
type EndpointMiddleware struct {
	buckets  []float64
	registry prometheus.Registerer
}

// NewEndpointMiddleware creates a new EndpointMiddleware with the provided registry.
func NewEndpointMiddleware(registry prometheus.Registerer) *EndpointMiddleware {
	return &EndpointMiddleware{
		// Mainly used for HTTP request durations which will skew small unless something is wrong. Max of 10.24.
		buckets:  prometheus.ExponentialBuckets(0.005, 2, 12),
		registry: registry,
	}
}

// Wrap instruments handler under handlerName.
//
// Requests are labelled with the route pattern which served them rather than the raw URL path,
// so that record identifiers do not explode the label cardinality.
func (m *EndpointMiddleware) Wrap(handlerName string, handler http.Handler) http.Handler {
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"handler": handlerName}, m.registry)
	labels := []string{"method", "code", string(LabelPath)}

	requestsTotal := promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_endpoint_requests_total",
			Help: "Tracks the number of HTTP requests to the endpoint.",
		}, labels,
	)
	requestDuration := promauto.With(reg).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_endpoint_request_duration_seconds",
			Help:    "Tracks the latencies for HTTP requests to the endpoint.",
			Buckets: m.buckets,
		},
		labels,
	)

	withPath := promhttp.WithLabelFromCtx(string(LabelPath), pathLabelFromCtx)
	instrumented := promhttp.InstrumentHandlerCounter(
		requestsTotal,
		promhttp.InstrumentHandlerDuration(requestDuration, handler, withPath),
		withPath,
	)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		holder := &pathHolder{}
		holder.value.Store(unmatched)
		r = r.WithContext(context.WithValue(r.Context(), LabelPath, holder))
		instrumented.ServeHTTP(w, r)
	})
}

// pathHolder is filled in by the innermost handler once routing happened.
// Handlers may run on another goroutine when a timeout handler sits in between.
type pathHolder struct {
	value atomic.Value
}

func pathLabelFromCtx(ctx context.Context) string {
	if h, ok := ctx.Value(LabelPath).(*pathHolder); ok {
		return h.value.Load().(string)
	}
	return unmatched
}

// ApplyLabels records the route pattern of r, or its path when no pattern matched, as the path label.
func ApplyLabels(r *http.Request) {
	h, ok := r.Context().Value(LabelPath).(*pathHolder)
	if !ok {
		return
	}
	if r.Pattern != "" {
		h.value.Store(r.Pattern)
		return
	}
	h.value.Store(r.URL.Path)
}

// HandlerApplyLabels is a middleware helper function to apply labels to an HTTP handler.
func HandlerApplyLabels(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ApplyLabels(r)
		handler.ServeHTTP(w, r)
	})
}
