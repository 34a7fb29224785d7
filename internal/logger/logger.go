package logger

import (
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"codeberg.org/mutker/housemon/internal/errors"
	"github.com/rs/zerolog"
)

const (
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
)

var (
	log     = zerolog.New(io.Discard)
	logFile *os.File
)

type LogLevel int8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// ParseLevel maps a configured level name onto a LogLevel.
func ParseLevel(level string) (LogLevel, bool) {
	switch level {
	case "debug":
		return DebugLevel, true
	case "info":
		return InfoLevel, true
	case "warn", "warning":
		return WarnLevel, true
	case "error":
		return ErrorLevel, true
	default:
		return InfoLevel, false
	}
}

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// Init initializes the logger. When path is non-empty, log lines are also
// appended to that file.
func Init(level LogLevel, isService bool, path string) error {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	if isService {
		output.TimeFormat = ""
		output.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	var w io.Writer = output
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
			return err
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, defaultFilePerm)
		if err != nil {
			return err
		}
		logFile = f
		w = zerolog.MultiLevelWriter(output, f)
	}

	log = zerolog.New(w).With().Timestamp().Logger()
	SetLogLevel(level)

	return nil
}

// Close releases the log file, if one was opened by Init.
func Close() error {
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	zerolog.SetGlobalLevel(zerolog.Level(level))
}

// IsService checks if the application is running as a service
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
}

// Debug logs a debug message
func Debug() *LogEvent {
	return &LogEvent{log.Debug()}
}

// Info logs an info message
func Info() *LogEvent {
	return &LogEvent{log.Info()}
}

// Warn logs a warning message
func Warn() *LogEvent {
	return &LogEvent{log.Warn()}
}

// Error logs an error message
func Error() *LogEvent {
	return &LogEvent{log.Error()}
}

// ErrorWithCode logs an error message with a specific error code
func ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(log.Error(), err)
}

// Fatal logs a fatal message and exits the program
func Fatal() *LogEvent {
	return &LogEvent{log.Fatal()}
}

// FatalWithCode logs a fatal message with a specific error code and exits the program
func FatalWithCode(err errors.Error) *LogEvent {
	return withCode(log.Fatal(), err)
}

func withCode(e *zerolog.Event, err errors.Error) *LogEvent {
	return &LogEvent{e.
		Str("error_code", string(err.Code())).
		Str("error_message", err.Error()).
		AnErr("error", err.Unwrap())}
}

// component is a Logger bound to a named subsystem.
type component struct {
	name string
}

// For returns a Logger that tags every event with the component name.
func For(name string) Logger {
	return component{name: name}
}

func (c component) Debug() *LogEvent {
	return &LogEvent{log.Debug().Str("component", c.name)}
}

func (c component) Info() *LogEvent {
	return &LogEvent{log.Info().Str("component", c.name)}
}

func (c component) Warn() *LogEvent {
	return &LogEvent{log.Warn().Str("component", c.name)}
}

func (c component) Error() *LogEvent {
	return &LogEvent{log.Error().Str("component", c.name)}
}

func (c component) ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(log.Error().Str("component", c.name), err)
}
