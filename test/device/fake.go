package device

import (
	"fmt"
	"sync"

	"github.com/ethmac/ethmac/ethernet"
)

// Fake is an in-memory ethernet.NetDevice. Frames queued with Deliver are
// handed out by Receive and transmitted frames are kept until Sent drains
// them.
type Fake struct {
	MTU int

	mu       sync.Mutex
	rx       []delivery
	tx       [][]byte
	txClosed bool
}

type delivery struct {
	frame []byte
	err   error
}

var _ ethernet.NetDevice = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{MTU: ethernet.MTU}
}

// Deliver queues a copy of frame for Receive.
func (f *Fake) Deliver(frame []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rx = append(f.rx, delivery{frame: append([]byte(nil), frame...)})
}

// DeliverError queues a receive that fails with err the way a dropped frame
// does.
func (f *Fake) DeliverError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rx = append(f.rx, delivery{err: err})
}

// Sent returns and forgets the frames transmitted so far.
func (f *Fake) Sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	sent := f.tx
	f.tx = nil
	return sent
}

// SetTransmitBlocked makes Transmit report that no slot is free.
func (f *Fake) SetTransmitBlocked(blocked bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txClosed = blocked
}

func (f *Fake) Capabilities() ethernet.Capabilities {
	return ethernet.Capabilities{MaxTransmissionUnit: f.MTU}
}

func (f *Fake) Receive() (ethernet.RxToken, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.rx) == 0 {
		return nil, false
	}
	d := f.rx[0]
	f.rx = f.rx[1:]
	return &rxToken{d: d}, true
}

func (f *Fake) Transmit() (ethernet.TxToken, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.txClosed {
		return nil, false
	}
	return &txToken{f: f}, true
}

type rxToken struct {
	d    delivery
	used bool
}

func (t *rxToken) Consume(fn func(frame []byte) error) error {
	if t.used {
		return ethernet.ErrTokenConsumed
	}
	t.used = true
	if t.d.err != nil {
		return fmt.Errorf("%w: %w", ethernet.ErrTruncated, t.d.err)
	}
	return fn(t.d.frame)
}

type txToken struct {
	f    *Fake
	used bool
}

func (t *txToken) Consume(n int, fn func(frame []byte) error) error {
	if t.used {
		return ethernet.ErrTokenConsumed
	}
	t.used = true
	if n <= 0 || n > t.f.MTU {
		return fmt.Errorf("%w: cannot transmit a frame of %d bytes", ethernet.ErrUnknown, n)
	}

	frame := make([]byte, n)
	if err := fn(frame); err != nil {
		return err
	}

	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	t.f.tx = append(t.f.tx, frame)
	return nil
}
