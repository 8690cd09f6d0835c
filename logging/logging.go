// Package logging provides leveled structured console output.
//
// Components receive a child logger via WithComponent so every line
// carries its origin. Internal error detail that must never reach
// clients is logged here.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"taskhub/errors"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel converts a configuration string into a Level.
// Unknown strings default to info.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger writes leveled key=value log lines to a single writer.
type Logger struct {
	mu        sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
}

// New creates a Logger writing to stdout at info level.
func New() *Logger {
	return &Logger{
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// WithComponent returns a child logger tagged with the component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats a map of fields as sorted key=value pairs.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return " " + strings.Join(parts, " ")
}

// log writes a line: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// --- Domain event helpers ---
// Called from the gateway and dispatcher so that lifecycle events share
// a consistent shape.

// ConnectionOpened logs a promoted connection.
func (l *Logger) ConnectionOpened(connID, userID string) {
	l.Info("connection_opened", map[string]interface{}{
		"conn": connID,
		"user": userID,
	})
}

// ConnectionClosed logs a disconnect.
func (l *Logger) ConnectionClosed(connID, userID string) {
	l.Info("connection_closed", map[string]interface{}{
		"conn": connID,
		"user": userID,
	})
}

// HandshakeRejected logs a failed connection handshake.
func (l *Logger) HandshakeRejected(reason string) {
	l.Warn("handshake_rejected", map[string]interface{}{
		"reason": reason,
	})
}

// Dispatched logs a dispatched mutation event.
func (l *Logger) Dispatched(event, taskID string, targets int) {
	l.Debug("dispatched", map[string]interface{}{
		"event":   event,
		"task":    taskID,
		"targets": targets,
	})
}

// HandlerError logs a mutation handler failure with full detail,
// including the root cause when the error wraps one.
func (l *Logger) HandlerError(op, actorID string, err error) {
	fields := map[string]interface{}{
		"op":    op,
		"actor": actorID,
		"error": err.Error(),
	}
	if cause := errors.Cause(err); cause != err {
		fields["cause"] = cause.Error()
	}
	l.Error("handler_error", fields)
}
