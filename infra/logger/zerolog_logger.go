package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger implements Logger on top of rs/zerolog. Every line carries
// the component that wrote it.
type ZerologLogger struct {
	log zerolog.Logger
}

// output picks the writer from APP_ENV: human readable console lines in
// "dev", JSON lines otherwise. Logs go to stderr so CLI output on stdout
// stays machine readable.
func output() io.Writer {
	if strings.EqualFold(os.Getenv("APP_ENV"), "dev") {
		return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return os.Stderr
}

// NewZerologLogger returns a logger for component writing to stderr.
func NewZerologLogger(component string) Logger {
	return NewWithWriter(component, output())
}

// NewWithWriter returns a logger for component writing to w.
func NewWithWriter(component string, w io.Writer) *ZerologLogger {
	return &ZerologLogger{log: zerolog.New(w).With().Timestamp().Str("component", component).Logger()}
}

// With returns a child logger adding key=value to every line, for example
// the carrier a worker serves.
func (l *ZerologLogger) With(key, value string) *ZerologLogger {
	return &ZerologLogger{log: l.log.With().Str(key, value).Logger()}
}

func (l *ZerologLogger) Debugf(format string, args ...any) { l.log.Debug().Msgf(format, args...) }

// Debugw logs msg with fields attached as top level keys.
func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	l.log.Debug().Fields(fields).Msg(msg)
}

func (l *ZerologLogger) Infof(format string, args ...any)  { l.log.Info().Msgf(format, args...) }
func (l *ZerologLogger) Warnf(format string, args ...any)  { l.log.Warn().Msgf(format, args...) }
func (l *ZerologLogger) Errorf(format string, args ...any) { l.log.Error().Msgf(format, args...) }
