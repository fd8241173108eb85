// Package logging builds the relay's logrus logger.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// LevelForVerbosity maps the number of -v flags to a log level:
// none is info, one is debug, two or more is trace.
func LevelForVerbosity(verbosity int) logrus.Level {
	switch {
	case verbosity <= 0:
		return logrus.InfoLevel
	case verbosity == 1:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

// New returns a text logger writing to out at the level selected by verbosity.
func New(out io.Writer, verbosity int) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(LevelForVerbosity(verbosity))
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	return logger
}

// Discard returns a logger that drops everything. Handy as a default for
// library callers that did not configure one.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
