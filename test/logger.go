package test

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

// NewLogger returns a logger for tests. Output is discarded unless TEST_LOGS
// is set: 1 logs at info, 2 at debug and 3 at trace level.
func NewLogger() *logrus.Logger {
	l := logrus.New()
	configure(l)
	return l
}

// NewLoggerWithHook is NewLogger with a hook recording every entry at any
// level, for tests asserting on what was logged.
func NewLoggerWithHook() (*logrus.Logger, *logtest.Hook) {
	l := logrus.New()
	configure(l)
	if l.Out == io.Discard {
		l.SetLevel(logrus.TraceLevel)
	}
	return l, logtest.NewLocal(l)
}

func configure(l *logrus.Logger) {
	switch os.Getenv("TEST_LOGS") {
	case "":
		l.SetOutput(io.Discard)
	case "2":
		l.SetLevel(logrus.DebugLevel)
	case "3":
		l.SetLevel(logrus.TraceLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}
}
