package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel defines the severity of the log entry.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String makes LogLevel satisfy the fmt.Stringer interface.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo // Default to INFO for unknown
	}
}

// ValidLevelNames lists the level names accepted by ParseLevel, in the
// spelling used by poller configuration files.
var ValidLevelNames = []string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"}

// ParseLevel maps a poller level name to a LogLevel. WARNING and WARN are
// both accepted, CRITICAL maps to LevelError.
func ParseLevel(name string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARNING", "WARN":
		return LevelWarn, nil
	case "ERROR", "CRITICAL":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level: %s. Valid levels are: %s", name, strings.Join(ValidLevelNames, ", "))
	}
}

// LogEntry is the structured log entry delivered in capture mode.
type LogEntry struct {
	Timestamp  time.Time
	Level      LogLevel
	Subsystem  string
	Message    string
	Err        error
	Attributes []slog.Attr
}

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
	captureLevel  LogLevel
	captureChan   chan LogEntry
	isCaptureMode bool
)

const captureChannelBufferSize = 2048

// InitForCLI initializes the logging system to write text records to output.
func InitForCLI(filterLevel LogLevel, output io.Writer) {
	opts := &slog.HandlerOptions{
		Level: filterLevel.SlogLevel(),
	}

	mu.Lock()
	defer mu.Unlock()
	closeCaptureLocked()
	isCaptureMode = false
	defaultLogger = slog.New(slog.NewTextHandler(output, opts))
	slog.SetDefault(defaultLogger)
}

// InitForCapture switches logging into capture mode: entries at or above
// filterLevel are delivered on the returned channel instead of being written.
// The channel is closed by CloseCapture or by the next Init call.
func InitForCapture(filterLevel LogLevel, channelBufferSize int) <-chan LogEntry {
	if channelBufferSize <= 0 {
		channelBufferSize = captureChannelBufferSize
	}

	mu.Lock()
	defer mu.Unlock()
	closeCaptureLocked()
	isCaptureMode = true
	captureLevel = filterLevel
	captureChan = make(chan LogEntry, channelBufferSize)
	defaultLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: filterLevel.SlogLevel()}))
	return captureChan
}

// CloseCapture closes the capture channel. Safe to call when capture mode is
// not active.
func CloseCapture() {
	mu.Lock()
	defer mu.Unlock()
	closeCaptureLocked()
	isCaptureMode = false
}

func closeCaptureLocked() {
	if captureChan != nil {
		close(captureChan)
		captureChan = nil
	}
}

func logInternal(level LogLevel, subsystem string, err error, messageFmt string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()

	if isCaptureMode {
		if level < captureLevel || captureChan == nil {
			return
		}
	} else if defaultLogger == nil || !defaultLogger.Enabled(context.Background(), level.SlogLevel()) {
		return
	}

	msg := messageFmt
	if len(args) > 0 {
		msg = fmt.Sprintf(messageFmt, args...)
	}
	now := time.Now()

	if isCaptureMode {
		entry := LogEntry{
			Timestamp: now,
			Level:     level,
			Subsystem: subsystem,
			Message:   msg,
			Err:       err,
		}
		select {
		case captureChan <- entry:
		default:
			fmt.Fprintf(os.Stderr, "[LOGGING_CRITICAL] capture channel full. Dropping: %s [%s] %s\n", now.Format(time.RFC3339), level, msg)
		}
		return
	}

	slogAttrs := []slog.Attr{slog.String("subsystem", subsystem)}
	if err != nil {
		slogAttrs = append(slogAttrs, slog.String("error", err.Error()))
	}

	defaultLogger.LogAttrs(context.Background(), level.SlogLevel(), msg, slogAttrs...)
}

// Debug logs a debug message.
func Debug(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelDebug, subsystem, nil, messageFmt, args...)
}

// Info logs an informational message.
func Info(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelInfo, subsystem, nil, messageFmt, args...)
}

// Warn logs a warning message.
func Warn(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelWarn, subsystem, nil, messageFmt, args...)
}

// Error logs an error message.
func Error(subsystem string, err error, messageFmt string, args ...interface{}) {
	logInternal(LevelError, subsystem, err, messageFmt, args...)
}
