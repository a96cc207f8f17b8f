package webservice

import "github.com/prometheus/client_golang/prometheus"

// WithRegistry is an option to collect the server metrics in reg.
func WithRegistry(reg *prometheus.Registry) Options {
	return func(o *options) {
		o.registry = reg
	}
}
