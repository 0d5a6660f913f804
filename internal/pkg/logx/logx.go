/*
Package logx provides a structured logging wrapper based on zerolog.

The global logger writes JSON in production and a console format in development. Every line
carries the service name. Component loggers add a "component" field; the package level helpers
take alternating key-value pairs.
*/
package logx

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ServiceName is attached to every log line.
const ServiceName = "messenger"

// InitGlobalLogger installs the global logger writing to stdout (JSON) or stderr (console).
// Development logs at Debug level, everything else at Info.
func InitGlobalLogger(isDevelopment bool) {
	if isDevelopment {
		SetOutput(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}, zerolog.DebugLevel)
		return
	}
	SetOutput(os.Stdout, zerolog.InfoLevel)
}

// SetOutput replaces the global logger with one writing to w at level.
func SetOutput(w io.Writer, level zerolog.Level) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	log.Logger = zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", ServiceName).
		Caller().
		Logger()
}

// Logger returns a pointer to the global zerolog.Logger instance.
func Logger() *zerolog.Logger {
	return &log.Logger
}

// Component returns a child of the global logger tagged with the given component name.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}

// emit writes msg at event with fields, skipping the exported helper in the caller field.
// An odd field count drops the fields and reports the misuse instead of panicking in zerolog.
func emit(event *zerolog.Event, msg string, fields []any) {
	if len(fields)%2 != 0 {
		Logger().Warn().
			Int("fields_count", len(fields)).
			Str("log_message", msg).
			Msg("logx: odd number of fields, fields ignored")
		fields = nil
	}

	event.Fields(fields).CallerSkipFrame(2).Msg(msg)
}

func Debug(msg string, fields ...any) { emit(Logger().Debug(), msg, fields) }

func Info(msg string, fields ...any) { emit(Logger().Info(), msg, fields) }

func Warn(msg string, fields ...any) { emit(Logger().Warn(), msg, fields) }

// Error logs err with msg and fields.
func Error(err error, msg string, fields ...any) { emit(Logger().Error().Err(err), msg, fields) }

// Fatal logs like Error and exits the process with status 1.
func Fatal(err error, msg string, fields ...any) { emit(Logger().Fatal().Err(err), msg, fields) }
