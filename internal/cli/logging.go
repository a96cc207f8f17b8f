package cli

import (
	"io"
	"log/slog"

	"github.com/periscope/aggregator-api/internal/constants"
)

// Level maps the count of verbose flags to a log level.
func Level(verbosity int) slog.Level {
	switch {
	case verbosity <= 0:
		return constants.DefaultLogLevel
	case verbosity == 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// SetVerbosity sets the logging level of the default logger from the verbose flag count.
//
// This function has the same behaviors as slog.SetLogLoggerLevel.
func SetVerbosity(verbosity int) {
	slog.SetLogLoggerLevel(Level(verbosity))
}

// SetSlog installs the default logger: JSON lines on w when jsonLogs is set,
// the standard text logger otherwise.
func SetSlog(w io.Writer, verbosity int, jsonLogs bool) {
	if !jsonLogs {
		SetVerbosity(verbosity)
		return
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: Level(verbosity)})))
}
