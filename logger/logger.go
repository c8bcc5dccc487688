package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	TRACE LogLevel = iota // Low-level transport details, per-tick fan-out
	DEBUG                 // Subscription changes, payload dumps
	INFO                  // High-level events (advertising, channel start/stop)
	WARN                  // Warnings
	ERROR                 // Errors
)

var (
	currentLevel LogLevel = INFO
	mu           sync.RWMutex
	log          = newBackend()
)

func newBackend() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
		DisableSorting:   true,
	})
	// Filtering happens in this package so TRACE maps onto logrus's
	// trace level without the backend dropping messages first.
	l.SetLevel(logrus.TraceLevel)
	return l
}

// SetLevel sets the global log level
func SetLevel(level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	currentLevel = level
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// ParseLevel converts a string to a LogLevel
func ParseLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "TRACE":
		return TRACE
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

func write(level LogLevel, prefix, format string, args ...interface{}) {
	if level > GetLevel() {
		return
	}

	var entry *logrus.Entry
	if prefix != "" {
		entry = log.WithField("prefix", prefix)
	} else {
		entry = logrus.NewEntry(log)
	}

	msg := fmt.Sprintf(format, args...)
	switch level {
	case TRACE:
		entry.Trace(msg)
	case DEBUG:
		entry.Debug(msg)
	case INFO:
		entry.Info(msg)
	case WARN:
		entry.Warn(msg)
	case ERROR:
		entry.Error(msg)
	}
}

// Trace logs a trace message (low-level transport details)
func Trace(prefix, format string, args ...interface{}) {
	write(TRACE, prefix, format, args...)
}

// Debug logs a debug message (subscription changes, payload dumps)
func Debug(prefix, format string, args ...interface{}) {
	write(DEBUG, prefix, format, args...)
}

// Info logs an info message (high-level events)
func Info(prefix, format string, args ...interface{}) {
	write(INFO, prefix, format, args...)
}

// Warn logs a warning message
func Warn(prefix, format string, args ...interface{}) {
	write(WARN, prefix, format, args...)
}

// Error logs an error message
func Error(prefix, format string, args ...interface{}) {
	write(ERROR, prefix, format, args...)
}

// ToJSON converts any value to a pretty-printed JSON string for logging
func ToJSON(v interface{}) string {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("<error: %v>", err)
	}
	return string(jsonBytes)
}

// DebugJSON logs a debug message with a JSON representation
func DebugJSON(prefix, label string, v interface{}) {
	if GetLevel() > DEBUG {
		return
	}
	write(DEBUG, prefix, "%s:\n%s", label, ToJSON(v))
}
