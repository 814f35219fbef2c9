// Package logging wraps logrus behind the teacher's Logger interface
// shape (pkg/mcast/definition/default_logger.go), so every component
// depends on an interface instead of a concrete logging library.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the interface every harness component takes via
// constructor injection (spec §9: "no global mutable state").
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})
	ToggleDebug(value bool) bool
	// WithField returns a child logger carrying an extra structured
	// field, e.g. node id or test run id.
	WithField(key string, value interface{}) Logger
}

// logrusLogger is the default Logger, backed by a *logrus.Logger
// rather than stdlib's log.Logger.
type logrusLogger struct {
	entry *logrus.Entry
}

// New builds a Logger writing to w at Info level.
func New(w io.Writer) Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

// NewStderr is the default logger used if the caller does not provide
// its own (mirrors the teacher's NewDefaultLogger).
func NewStderr() Logger {
	return New(os.Stderr)
}

func (l *logrusLogger) Info(v ...interface{})                 { l.entry.Logln(logrus.InfoLevel, v...) }
func (l *logrusLogger) Infof(f string, v ...interface{})      { l.entry.Logf(logrus.InfoLevel, f, v...) }
func (l *logrusLogger) Warn(v ...interface{})                 { l.entry.Logln(logrus.WarnLevel, v...) }
func (l *logrusLogger) Warnf(f string, v ...interface{})      { l.entry.Logf(logrus.WarnLevel, f, v...) }
func (l *logrusLogger) Error(v ...interface{})                { l.entry.Logln(logrus.ErrorLevel, v...) }
func (l *logrusLogger) Errorf(f string, v ...interface{})     { l.entry.Logf(logrus.ErrorLevel, f, v...) }
func (l *logrusLogger) Debug(v ...interface{})                { l.entry.Logln(logrus.DebugLevel, v...) }
func (l *logrusLogger) Debugf(f string, v ...interface{})     { l.entry.Logf(logrus.DebugLevel, f, v...) }
func (l *logrusLogger) Fatal(v ...interface{})                { l.entry.Logln(logrus.FatalLevel, v...) }
func (l *logrusLogger) Fatalf(f string, v ...interface{})     { l.entry.Logf(logrus.FatalLevel, f, v...) }

func (l *logrusLogger) ToggleDebug(value bool) bool {
	if value {
		l.entry.Logger.SetLevel(logrus.DebugLevel)
	} else {
		l.entry.Logger.SetLevel(logrus.InfoLevel)
	}
	return value
}

func (l *logrusLogger) WithField(key string, value interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value)}
}
