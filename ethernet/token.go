package ethernet

import (
	"errors"
	"fmt"

	"github.com/ethmac/ethmac/ring"
)

type rxToken struct {
	dev  *Device
	used bool
}

// Consume hands the frame at the head of the receive ring to f and recycles
// its descriptors. Errors from f are returned as they are; every other
// failure matches [ErrTruncated] and the classified ring error.
func (t *rxToken) Consume(f func(frame []byte) error) error {
	if t.used {
		return ErrTokenConsumed
	}
	t.used = true

	d := t.dev
	err := d.rx.Receive(func(frame []byte) error {
		d.metrics.rxFrames.Inc(1)
		d.metrics.rxBytes.Inc(int64(len(frame)))
		d.observe(DirectionReceived, frame)
		return f(frame)
	})
	if err == nil {
		return nil
	}

	var pe *ring.ProcessingError
	if errors.As(err, &pe) {
		return pe.Err
	}

	d.metrics.receiveError(err)
	return fmt.Errorf("%w: %w", ErrTruncated, err)
}

type txToken struct {
	dev  *Device
	used bool
}

// Consume lets f fill a zeroed frame of n bytes, queues it and kicks the
// transmit DMA. Nothing is queued when f fails.
func (t *txToken) Consume(n int, f func(frame []byte) error) error {
	if t.used {
		return ErrTokenConsumed
	}
	t.used = true

	d := t.dev
	if n <= 0 || n > d.tx.BufferSize() {
		return fmt.Errorf("%w: cannot transmit a frame of %d bytes", ErrUnknown, n)
	}

	frame := make([]byte, n)
	if err := f(frame); err != nil {
		return err
	}

	completed, failed := d.tx.Completed(), d.tx.Errors()
	if err := d.tx.Insert(frame); err != nil {
		return fmt.Errorf("%w: %w", ErrUnknown, err)
	}
	d.metrics.txFrames.Inc(1)
	d.metrics.txBytes.Inc(int64(n))
	d.metrics.txCompleted.Inc(int64(d.tx.Completed() - completed))
	d.metrics.txErrors.Inc(int64(d.tx.Errors() - failed))
	d.observe(DirectionTransmitted, frame)

	if startSend(d.dma) {
		d.metrics.txPollDemand.Inc(1)
	}
	return nil
}
