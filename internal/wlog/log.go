// Package wlog is the structured logging façade used by the process-level
// packages (pkg/server, pkg/runtime, cmd/*). Library packages under pkg/*
// that are meant to be embedded (httpcodec, transport, client, websocket,
// router) never log; they return *errors.Error values instead and let the
// caller decide what to do with them.
package wlog

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger with the small set of call shapes the
// pipeline needs, matching the log call shapes the teacher's examples/
// and cmd/ programs already use (Printf-style with a named component).
type Logger struct {
	z zerolog.Logger
}

var (
	defaultOnce sync.Once
	defaultLog  *Logger
)

// Default returns the process-wide logger, writing human-readable output
// to stderr. Its output cannot be redirected; callers that need another
// sink (e.g. a JSON sink in production) build their own Logger with New.
func Default() *Logger {
	defaultOnce.Do(func() {
		defaultLog = New(os.Stderr)
	})
	return defaultLog
}

// New builds a Logger writing to w in a console-friendly format, mirroring
// zerolog's ConsoleWriter usage in cloudflared's connector logging.
func New(w io.Writer) *Logger {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	z := zerolog.New(cw).With().Timestamp().Logger()
	return &Logger{z: z}
}

// WithField returns a child logger with one structured field attached,
// used to scope log lines to a connection id, route, or socket id.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{z: l.z.With().Interface(key, value).Logger()}
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.z.Debug().Msgf(format, args...)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.z.Info().Msgf(format, args...)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.z.Warn().Msgf(format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.z.Error().Msgf(format, args...)
}
