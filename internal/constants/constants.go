// Package constants is responsible for defining the constants used in the application.
// It also provides a utility function to get the per-user configuration path.
package constants

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

var (
	// Version is the version of the application.
	Version = "Dev"
)

const (
	// CmdName is the name of the service command.
	CmdName = "aggregator-api"

	// DefaultAppFolder is the name of the per-user configuration folder.
	DefaultAppFolder = "aggregator-api"

	// DefaultLogLevel is the default log level selected without any verbosity flags.
	DefaultLogLevel = slog.LevelWarn
)

// Storage constants.
const (
	// DefaultDatabaseName is the database holding the aggregator data.
	DefaultDatabaseName = "periscope"

	// DefaultCollection is the collection holding the aggregator records.
	DefaultCollection = "aggregator_data"

	// DefaultQueryTimeout bounds every store query.
	DefaultQueryTimeout = 10 * time.Second
)

// API constants.
const (
	// WelcomeMessage is returned by the root route.
	WelcomeMessage = "Welcome to Aggregator Data API"

	// SampleLimit is the maximum number of records returned by the sampling route.
	SampleLimit = 3
)

// Admin constants.
const (
	// DefaultAdminUsername is the admin login used when none is configured.
	DefaultAdminUsername = "admin"

	// DefaultAdminPassword is the admin password used when none is configured.
	DefaultAdminPassword = "admin123"
)

type options struct {
	baseDir func() (string, error)
}

type option func(*options)

// GetDefaultConfigPath is the per-user directory searched for a configuration file.
// It returns an empty string when the user configuration directory cannot be determined.
func GetDefaultConfigPath(opts ...option) string {
	o := options{baseDir: os.UserConfigDir}
	for _, opt := range opts {
		opt(&o)
	}

	dir, err := o.baseDir()
	if err != nil || dir == "" {
		return ""
	}
	return filepath.Join(dir, DefaultAppFolder)
}
