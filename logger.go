package ethmac

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethmac/ethmac/config"
	"github.com/sirupsen/logrus"
)

var logFormats = []string{"text", "json"}

// configLogger applies the logging section to l. It runs at startup and on
// every config reload.
func configLogger(l *logrus.Logger, c *config.C) error {
	logLevel, err := logrus.ParseLevel(strings.ToLower(c.GetString("logging.level", "info")))
	if err != nil {
		return fmt.Errorf("%s; possible levels: %s", err, logrus.AllLevels)
	}

	formatter, err := logFormatter(c)
	if err != nil {
		return err
	}

	if !c.InitialLoad() && logLevel != l.GetLevel() {
		l.WithField("from", l.GetLevel()).WithField("to", logLevel).Info("Changing log level")
	}
	l.SetLevel(logLevel)
	l.SetFormatter(formatter)
	return nil
}

func logFormatter(c *config.C) (logrus.Formatter, error) {
	disableTimestamp := c.GetBool("logging.disable_timestamp", false)
	timestampFormat := c.GetString("logging.timestamp_format", "")
	fullTimestamp := timestampFormat != ""
	if timestampFormat == "" {
		timestampFormat = time.RFC3339
	}

	switch logFormat := strings.ToLower(c.GetString("logging.format", "text")); logFormat {
	case "text":
		return &logrus.TextFormatter{
			TimestampFormat:  timestampFormat,
			FullTimestamp:    fullTimestamp,
			DisableTimestamp: disableTimestamp,
		}, nil
	case "json":
		return &logrus.JSONFormatter{
			TimestampFormat:  timestampFormat,
			DisableTimestamp: disableTimestamp,
		}, nil
	default:
		return nil, fmt.Errorf("unknown log format `%s`. possible formats: %s", logFormat, logFormats)
	}
}
