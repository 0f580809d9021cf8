package ethernet

import (
	"errors"

	"github.com/ethmac/ethmac/ring"
	"github.com/rcrowley/go-metrics"
)

type deviceMetrics struct {
	rxFrames metrics.Counter
	rxBytes  metrics.Counter
	rxErrors map[error]metrics.Counter
	rxOther  metrics.Counter

	txFrames     metrics.Counter
	txBytes      metrics.Counter
	txCompleted  metrics.Counter
	txErrors     metrics.Counter
	txPollDemand metrics.Counter
}

// receiveErrorNames names the counters of classified receive errors.
var receiveErrorNames = map[error]string{
	ring.ErrCRC:             "crc",
	ring.ErrReceive:         "receive",
	ring.ErrWatchdogTimeout: "watchdog_timeout",
	ring.ErrLateCollision:   "late_collision",
	ring.ErrGiantFrame:      "giant_frame",
	ring.ErrOverflow:        "overflow",
	ring.ErrDescriptor:      "descriptor",
	ring.ErrChecksum:        "checksum",
}

func newDeviceMetrics(r metrics.Registry) *deviceMetrics {
	m := &deviceMetrics{
		rxFrames:     metrics.GetOrRegisterCounter("ethernet.rx.frames", r),
		rxBytes:      metrics.GetOrRegisterCounter("ethernet.rx.bytes", r),
		rxErrors:     make(map[error]metrics.Counter, len(receiveErrorNames)),
		rxOther:      metrics.GetOrRegisterCounter("ethernet.rx.errors.other", r),
		txFrames:     metrics.GetOrRegisterCounter("ethernet.tx.frames", r),
		txBytes:      metrics.GetOrRegisterCounter("ethernet.tx.bytes", r),
		txCompleted:  metrics.GetOrRegisterCounter("ethernet.tx.completed", r),
		txErrors:     metrics.GetOrRegisterCounter("ethernet.tx.errors", r),
		txPollDemand: metrics.GetOrRegisterCounter("ethernet.tx.poll_demand", r),
	}
	for err, name := range receiveErrorNames {
		m.rxErrors[err] = metrics.GetOrRegisterCounter("ethernet.rx.errors."+name, r)
	}
	return m
}

// receiveError counts a dropped frame. Exhaustion is not an error and is not
// counted.
func (m *deviceMetrics) receiveError(err error) {
	if errors.Is(err, ring.ErrExhausted) {
		return
	}
	for kind, c := range m.rxErrors {
		if errors.Is(err, kind) {
			c.Inc(1)
			return
		}
	}
	m.rxOther.Inc(1)
}
