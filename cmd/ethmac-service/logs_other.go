//go:build !windows

package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

// hookLogger leaves logging to stdout, where the service manager collects it.
func hookLogger(l *logrus.Logger) {
	l.SetOutput(os.Stdout)
}
