// Package logging provides structured logging for the CLI.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rescale/photoup/internal/constants"
)

// Logger wraps zerolog with mode-specific behavior.
type Logger struct {
	zlog   zerolog.Logger
	mode   string    // "cli" or "quiet"
	output io.Writer // current console writer
	file   *lumberjack.Logger
}

// NewLogger creates a new logger for the specified mode.
// CLI mode logs to stdout; stderr is reserved for progress bars.
func NewLogger(mode string) *Logger {
	var out io.Writer = os.Stdout
	if mode != "cli" {
		out = os.Stderr
	}

	l := &Logger{mode: mode}
	l.SetOutput(out)
	return l
}

// NewDefaultCLILogger creates a default CLI logger.
func NewDefaultCLILogger() *Logger {
	return NewLogger("cli")
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() *Logger {
	return &Logger{
		zlog:   zerolog.Nop(),
		mode:   "quiet",
		output: io.Discard,
	}
}

// EnableFile adds a rotating JSON log file next to the console output.
// An empty path disables file logging.
func (l *Logger) EnableFile(path string) {
	if path == "" {
		return
	}
	l.file = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    constants.LogMaxSizeMB,
		MaxBackups: constants.LogMaxBackups,
		MaxAge:     constants.LogMaxAgeDays,
		Compress:   true,
	}
	l.rebuild()
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Info returns an info level event.
func (l *Logger) Info() *zerolog.Event {
	return l.zlog.Info()
}

// Error returns an error level event.
func (l *Logger) Error() *zerolog.Event {
	return l.zlog.Error()
}

// Debug returns a debug level event.
func (l *Logger) Debug() *zerolog.Event {
	return l.zlog.Debug()
}

// Warn returns a warn level event.
func (l *Logger) Warn() *zerolog.Event {
	return l.zlog.Warn()
}

// With creates a child logger with additional context.
func (l *Logger) With() zerolog.Context {
	return l.zlog.With()
}

// SetOutput changes the console writer, e.g. to print above progress bars.
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
	l.rebuild()
}

// Output returns the current console writer.
func (l *Logger) Output() io.Writer {
	return l.output
}

func (l *Logger) rebuild() {
	console := zerolog.ConsoleWriter{
		Out:        l.output,
		TimeFormat: "15:04:05",
	}

	var w io.Writer = console
	if l.file != nil {
		// File gets raw JSON; console gets the pretty format.
		w = zerolog.MultiLevelWriter(console, l.file)
	}

	l.zlog = zerolog.New(w).With().Timestamp().Logger()
}

// Debugf logs a debug message with printf-style formatting.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zlog.Debug().Msgf(format, args...)
}

// Infof logs an info message with printf-style formatting.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.zlog.Info().Msgf(format, args...)
}

// Errorf logs an error message with printf-style formatting.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.zlog.Error().Msgf(format, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zlog.Warn().Msgf(format, args...)
}

// SetGlobalLevel sets the global log level.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// ParseLevel maps a config string ("debug", "info", ...) to a zerolog level.
// Unknown values fall back to info.
func ParseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return level
}

// RetryLogger adapts Logger to retryablehttp's LeveledLogger interface.
type RetryLogger struct {
	L *Logger
}

func (r RetryLogger) Error(msg string, keysAndValues ...interface{}) {
	r.L.Error().Str("kv", fmt.Sprint(keysAndValues...)).Msg(msg)
}

// Info is dropped; retryablehttp logs every request at info.
func (r RetryLogger) Info(msg string, keysAndValues ...interface{}) {}

func (r RetryLogger) Debug(msg string, keysAndValues ...interface{}) {
	r.L.Debug().Str("kv", fmt.Sprint(keysAndValues...)).Msg(msg)
}

func (r RetryLogger) Warn(msg string, keysAndValues ...interface{}) {
	r.L.Warn().Str("kv", fmt.Sprint(keysAndValues...)).Msg(msg)
}

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	})
}
