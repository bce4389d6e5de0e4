// Package logging writes leveled progress and warning lines for the CLI.
package logging

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Level orders log severities.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config value onto a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level %q: must be one of: debug, info, warn, error", s)
	}
}

// Logger writes one line per call and is safe for concurrent use. A nil
// *Logger discards everything.
type Logger struct {
	mu    sync.Mutex
	w     io.Writer
	level Level
	now   func() time.Time
}

// New creates a logger that writes lines at or above level to w.
func New(w io.Writer, level Level) *Logger {
	return &Logger{w: w, level: level, now: time.Now}
}

// Enabled reports whether lines at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return l != nil && l.w != nil && level >= l.level
}

// Debugf logs a timestamped diagnostic line.
func (l *Logger) Debugf(format string, args ...any) {
	if !l.Enabled(LevelDebug) {
		return
	}
	l.write("debug: ["+l.now().Format(time.RFC3339)+"] ", format, args...)
}

// Infof logs a progress line.
func (l *Logger) Infof(format string, args ...any) {
	if !l.Enabled(LevelInfo) {
		return
	}
	l.write("", format, args...)
}

// Warnf logs a recoverable problem.
func (l *Logger) Warnf(format string, args ...any) {
	if !l.Enabled(LevelWarn) {
		return
	}
	l.write("warning: ", format, args...)
}

// Errorf logs a failure.
func (l *Logger) Errorf(format string, args ...any) {
	if !l.Enabled(LevelError) {
		return
	}
	l.write("error: ", format, args...)
}

func (l *Logger) write(prefix, format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	line = strings.TrimRight(line, "\n")
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "%s%s\n", prefix, line)
}
