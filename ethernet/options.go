package ethernet

import (
	"errors"
	"time"

	"github.com/ethmac/ethmac/dmamem"
	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
)

// Direction tells a [FrameHook] which way a frame travelled.
type Direction uint8

const (
	DirectionReceived Direction = iota
	DirectionTransmitted
)

func (d Direction) String() string {
	if d == DirectionReceived {
		return "rx"
	}
	return "tx"
}

// FrameHook observes every frame handed to the stack and every frame queued
// for transmission. It must not retain frame.
type FrameHook func(dir Direction, frame []byte)

type optionValues struct {
	l               *logrus.Logger
	registry        metrics.Registry
	bringUp         BringUp
	memory          *dmamem.Space
	hooks           []FrameHook
	teardownTimeout time.Duration
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
	if o.bringUp == nil {
		return errors.New("bring-up is required")
	}
	if o.teardownTimeout <= 0 {
		return errors.New("teardown timeout must be positive")
	}
	return nil
}

func defaultOptions() optionValues {
	return optionValues{
		l:               logrus.StandardLogger(),
		bringUp:         &DefaultBringUp{},
		teardownTimeout: time.Second,
	}
}

// Option can be passed to [New] to influence device creation.
type Option func(*optionValues)

// WithLogger sets the logger. The standard logrus logger is used otherwise.
func WithLogger(l *logrus.Logger) Option {
	return func(o *optionValues) { o.l = l }
}

// WithMetricsRegistry registers the device counters in r instead of the
// default go-metrics registry.
func WithMetricsRegistry(r metrics.Registry) Option {
	return func(o *optionValues) { o.registry = r }
}

// WithBringUp replaces the [DefaultBringUp] sequence.
func WithBringUp(b BringUp) Option {
	return func(o *optionValues) { o.bringUp = b }
}

// WithMemory builds the rings in mem, which must be the memory the DMA engine
// addresses. The device does not release it on Close. Without this option the
// device maps memory of its own.
func WithMemory(mem *dmamem.Space) Option {
	return func(o *optionValues) { o.memory = mem }
}

// WithFrameHook adds a hook observing frames in both directions.
func WithFrameHook(h FrameHook) Option {
	return func(o *optionValues) { o.hooks = append(o.hooks, h) }
}

// WithTeardownTimeout bounds how long Close waits for the DMA to stop.
// Defaults to one second.
func WithTeardownTimeout(d time.Duration) Option {
	return func(o *optionValues) { o.teardownTimeout = d }
}
