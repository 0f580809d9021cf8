package netif

import (
	"errors"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
)

type optionValues struct {
	l            *logrus.Logger
	registry     metrics.Registry
	pollInterval time.Duration
	queueSize    int
	maxFrameSize int
}

func (o *optionValues) apply(options []Option) {
	for _, option := range options {
		option(o)
	}
}

func (o *optionValues) validate() error {
	if o.l == nil {
		return errors.New("logger is required")
	}
	if o.pollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if o.queueSize <= 0 {
		return errors.New("queue size must be positive")
	}
	return nil
}

func defaultOptions() optionValues {
	return optionValues{
		l:            logrus.StandardLogger(),
		pollInterval: time.Millisecond,
		queueSize:    512,
		maxFrameSize: 1514,
	}
}

// Option can be passed to [New].
type Option func(*optionValues)

func WithLogger(l *logrus.Logger) Option {
	return func(o *optionValues) { o.l = l }
}

func WithMetricsRegistry(r metrics.Registry) Option {
	return func(o *optionValues) { o.registry = r }
}

// WithPollInterval sets how long Run sleeps while nothing moves.
func WithPollInterval(d time.Duration) Option {
	return func(o *optionValues) { o.pollInterval = d }
}

// WithQueueSize sets how many outbound packets the stack may queue before
// the device takes them.
func WithQueueSize(n int) Option {
	return func(o *optionValues) { o.queueSize = n }
}
