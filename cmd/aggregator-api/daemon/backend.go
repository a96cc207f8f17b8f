package daemon

import (
	"fmt"
	"strings"
)

// Backend selects the record store served by the daemon.
type Backend string

const (
	// BackendMongo serves records from MongoDB.
	BackendMongo Backend = "mongo"
	// BackendMemory serves records loaded from a fixture file.
	BackendMemory Backend = "memory"
)

// String implements pflag.Value.
func (b *Backend) String() string {
	return string(*b)
}

// Set implements pflag.Value.
func (b *Backend) Set(s string) error {
	switch v := Backend(strings.ToLower(strings.TrimSpace(s))); v {
	case BackendMongo, BackendMemory:
		*b = v
		return nil
	}
	return fmt.Errorf("unknown backend %q, expected %q or %q", s, BackendMongo, BackendMemory)
}

// Type implements pflag.Value.
func (b *Backend) Type() string {
	return "backend"
}

// UnmarshalText decodes the backend from configuration files and the environment.
func (b *Backend) UnmarshalText(text []byte) error {
	return b.Set(string(text))
}
