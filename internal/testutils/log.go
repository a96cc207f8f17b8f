package testutils

import (
	"context"
	"log/slog"
	"sync"
	"testing"
)

// LogRecorder is a slog.Handler which keeps every record at or above its level.
type LogRecorder struct {
	level slog.Level

	mu      sync.Mutex
	records []slog.Record
}

// NewLogRecorder returns a recorder keeping records at level and above, and a logger writing to it.
func NewLogRecorder(level slog.Level) (*LogRecorder, *slog.Logger) {
	r := &LogRecorder{level: level}
	return r, slog.New(r)
}

// Enabled implements slog.Handler.
func (h *LogRecorder) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle implements slog.Handler.
func (h *LogRecorder) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

// WithAttrs implements slog.Handler. Attributes are not tracked.
func (h *LogRecorder) WithAttrs([]slog.Attr) slog.Handler { return h }

// WithGroup implements slog.Handler. Groups are not tracked.
func (h *LogRecorder) WithGroup(string) slog.Handler { return h }

// Count returns how many records were logged at exactly level.
func (h *LogRecorder) Count(level slog.Level) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	var n int
	for _, r := range h.records {
		if r.Level == level {
			n++
		}
	}
	return n
}

// Messages returns the messages logged at exactly level, in order.
func (h *LogRecorder) Messages(level slog.Level) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var msgs []string
	for _, r := range h.records {
		if r.Level == level {
			msgs = append(msgs, r.Message)
		}
	}
	return msgs
}

// Dump writes every recorded entry to the test log. Useful on assertion failures.
func (h *LogRecorder) Dump(t *testing.T) {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, r := range h.records {
		var attrs []any
		r.Attrs(func(a slog.Attr) bool {
			attrs = append(attrs, a.String())
			return true
		})
		t.Logf("%v %s %v", r.Level, r.Message, attrs)
	}
}
