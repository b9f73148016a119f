package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger wraps log.Logger with file persistence. A nil *Logger discards
// everything, so callers never need to guard.
type Logger struct {
	mu    sync.Mutex
	file  *os.File
	std   *log.Logger
	debug bool
}

// New creates a file-based logger rooted at dir.
func New(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("contactsterm-%s.log", time.Now().Format("20060102"))
	path := filepath.Join(dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	lg := &Logger{file: file}
	lg.std = log.New(file, "", log.LstdFlags|log.Lmicroseconds)
	return lg, nil
}

// NewWriter logs to w instead of a dated file. Used by tests.
func NewWriter(w io.Writer) *Logger {
	return &Logger{std: log.New(w, "", 0)}
}

// SetDebug toggles Debug output.
func (l *Logger) SetDebug(on bool) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.debug = on
	l.mu.Unlock()
}

// Close flushes and closes underlying file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.std = nil
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

func (l *Logger) Debug(format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	on := l.debug
	l.mu.Unlock()
	if on {
		l.output("DEBUG", format, args...)
	}
}

// Info logs informational messages.
func (l *Logger) Info(format string, args ...any) {
	l.output("INFO", format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.output("WARN", format, args...)
}

// Error logs error messages.
func (l *Logger) Error(format string, args ...any) {
	l.output("ERROR", format, args...)
}

func (l *Logger) output(level, format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.std == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.std.Printf("[%s] %s", level, msg)
}
