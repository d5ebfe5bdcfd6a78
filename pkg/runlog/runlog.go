// Package runlog implements the per-run execution log returned to callers of
// a provisioning run.
package runlog

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Level is the severity of a log entry.
type Level string

const (
	// LevelInfo marks progress and idempotent no-op entries.
	LevelInfo Level = "INFO"

	// LevelError marks failed steps.
	LevelError Level = "ERROR"
)

// Entry is a single timestamped log line. Entries are never modified after
// they are appended.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
}

// Log is an append-only sequence of entries owned by exactly one run.
// It is not safe for concurrent writers; the engine appends from a single
// goroutine and hands the log to the caller when the run returns.
type Log struct {
	entries []Entry
	now     func() time.Time
	mirror  zerolog.Logger
}

// Option configures a Log.
type Option func(*Log)

// WithClock overrides the clock used to timestamp entries.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// WithMirror forwards every appended entry to a structured logger.
func WithMirror(logger zerolog.Logger) Option {
	return func(l *Log) {
		l.mirror = logger
	}
}

// New creates an empty log.
func New(opts ...Option) *Log {
	l := &Log{
		entries: make([]Entry, 0, 64),
		now:     func() time.Time { return time.Now().UTC() },
		mirror:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append adds an entry at the given level.
func (l *Log) Append(level Level, message string) {
	entry := Entry{
		Timestamp: l.now(),
		Level:     level,
		Message:   message,
	}
	l.entries = append(l.entries, entry)

	if level == LevelError {
		l.mirror.Error().Msg(message)
	} else {
		l.mirror.Info().Msg(message)
	}
}

// Info appends an info entry.
func (l *Log) Info(message string) {
	l.Append(LevelInfo, message)
}

// Infof appends a formatted info entry.
func (l *Log) Infof(format string, args ...interface{}) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Log) Error(message string) {
	l.Append(LevelError, message)
}

// Errorf appends a formatted error entry.
func (l *Log) Errorf(format string, args ...interface{}) {
	l.Append(LevelError, fmt.Sprintf(format, args...))
}

// Entries returns a copy of the entries appended so far.
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	return len(l.entries)
}

// Count returns the number of entries at the given level.
func (l *Log) Count(level Level) int {
	n := 0
	for i := range l.entries {
		if l.entries[i].Level == level {
			n++
		}
	}
	return n
}
