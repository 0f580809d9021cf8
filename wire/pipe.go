package wire

import (
	"io"
	"sync"
	"sync/atomic"
)

// pipeDepth is the number of frames a pipe direction buffers before it starts
// dropping.
const pipeDepth = 256

type pipeShared struct {
	done      chan struct{}
	closeOnce sync.Once
}

func (s *pipeShared) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// PipeEnd is one end of a pipe created by [NewPipe].
type PipeEnd struct {
	in     <-chan []byte
	out    chan<- []byte
	shared *pipeShared

	dropped atomic.Uint64
}

// NewPipe returns two connected ports. A frame written to one end is read
// from the other. Like a cable without flow control a full direction drops
// frames instead of blocking the writer. Closing either end closes both.
func NewPipe() (*PipeEnd, *PipeEnd) {
	ab := make(chan []byte, pipeDepth)
	ba := make(chan []byte, pipeDepth)
	shared := &pipeShared{done: make(chan struct{})}
	return &PipeEnd{in: ba, out: ab, shared: shared},
		&PipeEnd{in: ab, out: ba, shared: shared}
}

func (p *PipeEnd) Read(b []byte) (int, error) {
	select {
	case frame := <-p.in:
		return copy(b, frame), nil
	case <-p.shared.done:
		return 0, io.EOF
	}
}

func (p *PipeEnd) Write(b []byte) (int, error) {
	select {
	case <-p.shared.done:
		return 0, ErrClosed
	default:
	}

	frame := append([]byte(nil), b...)
	select {
	case p.out <- frame:
	default:
		p.dropped.Add(1)
	}
	return len(b), nil
}

// Dropped returns the number of frames written to this end that were lost
// because the other end did not keep up.
func (p *PipeEnd) Dropped() uint64 {
	return p.dropped.Load()
}

func (p *PipeEnd) Close() error {
	p.shared.close()
	return nil
}

// Discard is a port that accepts every frame and never receives one.
type Discard struct {
	shared pipeShared
}

// NewDiscard returns a port that drops every frame written to it.
func NewDiscard() *Discard {
	return &Discard{shared: pipeShared{done: make(chan struct{})}}
}

func (d *Discard) Read([]byte) (int, error) {
	<-d.shared.done
	return 0, io.EOF
}

func (d *Discard) Write(b []byte) (int, error) {
	select {
	case <-d.shared.done:
		return 0, ErrClosed
	default:
		return len(b), nil
	}
}

func (d *Discard) Close() error {
	d.shared.close()
	return nil
}
