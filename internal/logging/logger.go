package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/oriys/tasklet/internal/domain"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Request log file rotation.
const (
	fileMaxSizeMB  = 100
	fileMaxBackups = 5
	fileMaxAgeDays = 28
)

// Logger writes one entry per request handled on the execution side: a
// human-readable console line and, when a file is set, a JSON line to a
// rotating file.
type Logger struct {
	mu      sync.Mutex
	enabled bool
	console io.Writer
	file    *lumberjack.Logger
}

var defaultLogger = &Logger{enabled: true, console: os.Stdout}

// Default returns the process-wide request logger.
func Default() *Logger {
	return defaultLogger
}

// NewLogger returns a request logger printing to console. A nil console
// disables console output.
func NewLogger(console io.Writer) *Logger {
	return &Logger{enabled: true, console: console}
}

// SetOutput appends JSON entries to path, rotating it by size.
func (l *Logger) SetOutput(path string) error {
	if path == "" {
		return fmt.Errorf("request log path is empty")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Close()
	}
	l.file = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    fileMaxSizeMB,
		MaxBackups: fileMaxBackups,
		MaxAge:     fileMaxAgeDays,
		LocalTime:  true,
	}
	return nil
}

// SetEnabled turns request logging on or off.
func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	l.enabled = enabled
	l.mu.Unlock()
}

// Log writes a request entry. A zero At is stamped with the current time.
func (l *Logger) Log(rec *domain.InvocationRecord) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}

	if l.console != nil {
		status := "✓"
		if rec.Raised || rec.Error != "" {
			status = "✗"
		}
		fmt.Fprintf(l.console, "[request] %s %s %s %s %dms\n",
			status, rec.RequestID, rec.Address, rec.Mode, rec.DurationMs)
		if rec.Error != "" {
			fmt.Fprintf(l.console, "[request]   error: %s\n", rec.Error)
		}
	}

	if l.file != nil {
		data, _ := json.Marshal(rec)
		l.file.Write(append(data, '\n'))
	}
}

// Close closes the log file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}
