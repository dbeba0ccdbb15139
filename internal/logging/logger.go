// Package logging adapts sirupsen/logrus to the core.Logger capability so
// every pipeline stage logs through the same structured, leveled sink.
package logging

import (
	"github.com/sirupsen/logrus"
)

// Logger wraps a *logrus.Logger (or Entry) to satisfy core.Logger. Odd
// positional args are paired into logrus fields; a trailing unpaired arg is
// logged under "extra".
type Logger struct {
	entry *logrus.Entry
}

// New builds a Logger around a freshly configured logrus.Logger that always
// uses a plain text formatter with full timestamps, so output stays readable
// in a terminal.
func New(level logrus.Level) *Logger {
	base := logrus.New()
	base.SetLevel(level)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &Logger{entry: logrus.NewEntry(base)}
}

// WithField returns a Logger whose subsequent entries all carry field=value,
// used by each pipeline stage to tag its log lines (e.g. component=processor).
func (l *Logger) WithField(field string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(field, value)}
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.entry.WithFields(fields(args)).Debug(msg) }
func (l *Logger) Info(msg string, args ...interface{})  { l.entry.WithFields(fields(args)).Info(msg) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.entry.WithFields(fields(args)).Warn(msg) }
func (l *Logger) Error(msg string, args ...interface{}) { l.entry.WithFields(fields(args)).Error(msg) }

func fields(args []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(args)/2+1)
	i := 0
	for ; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = "field"
		}
		f[key] = args[i+1]
	}
	if i < len(args) {
		f["extra"] = args[i]
	}
	return f
}
