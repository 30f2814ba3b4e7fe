package testutil

import (
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

// NewTestLogger returns a logger that discards output and a hook capturing
// every entry it logs.
func NewTestLogger(t *testing.T) (*logrus.Logger, *TestLogHook) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)

	hook := NewTestLogHook(t, logrus.AllLevels...)
	logger.AddHook(hook)
	return logger, hook
}

// TestLogHook represents a test log hook
type TestLogHook struct {
	t       *testing.T
	mu      sync.RWMutex
	levels  []logrus.Level
	entries []*logrus.Entry
}

// NewTestLogHook creates a new log hook
func NewTestLogHook(t *testing.T, levels ...logrus.Level) *TestLogHook {
	return &TestLogHook{
		t:       t,
		levels:  levels,
		entries: make([]*logrus.Entry, 0),
	}
}

// Levels returns the hook levels
func (h *TestLogHook) Levels() []logrus.Level {
	return h.levels
}

// Fire implements logrus.Hook
func (h *TestLogHook) Fire(entry *logrus.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
	return nil
}

// Entries returns the captured log entries
func (h *TestLogHook) Entries() []*logrus.Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]*logrus.Entry{}, h.entries...)
}

// Clear clears the captured entries
func (h *TestLogHook) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = make([]*logrus.Entry, 0)
}

// RequireEntry asserts that an entry exists
func (h *TestLogHook) RequireEntry(t *testing.T, level logrus.Level, message string) {
	t.Helper()
	for _, entry := range h.Entries() {
		if entry.Level == level && entry.Message == message {
			return
		}
	}
	t.Errorf("Log entry not found: [%s] %s", level, message)
}

// RequireNoEntry asserts that an entry does not exist
func (h *TestLogHook) RequireNoEntry(t *testing.T, level logrus.Level, message string) {
	t.Helper()
	for _, entry := range h.Entries() {
		if entry.Level == level && entry.Message == message {
			t.Errorf("Unexpected log entry found: [%s] %s", level, message)
			return
		}
	}
}
