// Package sim emulates the MAC, DMA engine and PHY of the Ethernet peripheral
// so the driver can run on a host. The engine works on the same register
// blocks and DMA memory the driver uses and moves frames between the
// descriptor rings and a [wire.Port].
package sim

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/ethmac/ethmac/dmamem"
	"github.com/ethmac/ethmac/hw"
	"github.com/ethmac/ethmac/ring"
	"github.com/ethmac/ethmac/wire"
	"github.com/sirupsen/logrus"
)

// Config tunes the engine.
type Config struct {
	// Interval is how long Run sleeps when a step found nothing to do.
	Interval time.Duration
	// AutoNegotiationPolls is the number of status reads auto-negotiation
	// takes to complete.
	AutoNegotiationPolls int
	// PHYAddress is the management address the PHY answers on.
	PHYAddress uint8
}

func DefaultConfig() Config {
	return Config{
		Interval:             50 * time.Microsecond,
		AutoNegotiationPolls: 3,
	}
}

// Frame is a frame on its way into the receive ring.
type Frame struct {
	Data []byte
	// Errors are RDES0 error bits reported on the last descriptor.
	Errors uint32
	// Checksum overrides the checksum offload result. When unavailable the
	// engine computes it from Data if checksum offload is enabled.
	Checksum ring.ChecksumStatus
}

// Stats counts what the engine did.
type Stats struct {
	Transmitted uint64
	Received    uint64
	Missed      uint64
	Filtered    uint64
}

// framesPerStep bounds the work of a single Step in each direction.
const framesPerStep = 64

// incomingDepth is the number of frames buffered between the wire and the
// receive process.
const incomingDepth = 256

// Engine is the simulated peripheral. Step must only be called from one
// goroutine at a time; Run does that in a loop.
type Engine struct {
	l      *logrus.Entry
	config Config
	p      *hw.Peripheral
	mem    *dmamem.Space
	port   wire.Port
	phy    *phy

	incoming chan Frame

	// Bus addresses of the descriptors the DMA processes look at next.
	txAddr uint32
	rxAddr uint32

	transmitted atomic.Uint64
	received    atomic.Uint64
	missed      atomic.Uint64
	filtered    atomic.Uint64
}

// New returns an engine driving p and mem. Transmitted frames are written to
// port and frames read from port are received. port may be nil when frames
// are only injected.
func New(l *logrus.Logger, config Config, p *hw.Peripheral, mem *dmamem.Space, port wire.Port) *Engine {
	return &Engine{
		l:        l.WithField("subsystem", "sim"),
		config:   config,
		p:        p,
		mem:      mem,
		port:     port,
		phy:      newPHY(config.AutoNegotiationPolls),
		incoming: make(chan Frame, incomingDepth),
	}
}

// Inject queues f as if it had arrived on the wire. It blocks while the
// queue is full.
func (e *Engine) Inject(f Frame) {
	e.incoming <- f
}

func (e *Engine) Stats() Stats {
	return Stats{
		Transmitted: e.transmitted.Load(),
		Received:    e.received.Load(),
		Missed:      e.missed.Load(),
		Filtered:    e.filtered.Load(),
	}
}

// Run steps the engine until ctx is done. Frames are read from the port on a
// separate goroutine that ends when the port is closed.
func (e *Engine) Run(ctx context.Context) error {
	if e.port != nil {
		go e.readPort(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !e.Step() {
			time.Sleep(e.config.Interval)
		}
	}
}

func (e *Engine) readPort(ctx context.Context) {
	for {
		buf := make([]byte, wire.MaxFrameSize)
		n, err := e.port.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, wire.ErrClosed) && ctx.Err() == nil {
				e.l.WithError(err).Error("Failed to read from wire")
			}
			return
		}

		select {
		case e.incoming <- Frame{Data: buf[:n]}:
		case <-ctx.Done():
			return
		}
	}
}

// Step services pending management transactions, resets, and both DMA
// processes once. It reports whether anything happened.
func (e *Engine) Step() bool {
	busy := e.serviceMDIO()
	busy = e.serviceReset() || busy
	e.p.DMA.OMR.ClearBits(hw.DMAOMRFTF)
	busy = e.transmit() || busy
	busy = e.receive() || busy
	return busy
}

func (e *Engine) serviceMDIO() bool {
	mac := &e.p.MAC
	ar := mac.MIIAR.Get()
	if ar&hw.MACMIIARMB == 0 {
		return false
	}

	addr := uint8((ar & hw.MACMIIARPAMask) >> hw.MACMIIARPAShift)
	reg := uint8((ar & hw.MACMIIARMRMask) >> hw.MACMIIARMRShift)
	write := ar&hw.MACMIIARMW != 0

	switch {
	case addr != e.config.PHYAddress:
		if !write {
			// Nobody drives the bus, the pull-up reads as all ones.
			mac.MIIDR.Set(0xffff)
		}
	case write:
		e.phy.write(reg, uint16(mac.MIIDR.Get()))
	default:
		mac.MIIDR.Set(uint32(e.phy.read(reg)))
	}

	mac.MIIAR.ClearBits(hw.MACMIIARMB)
	return true
}

func (e *Engine) serviceReset() bool {
	dma := &e.p.DMA
	if !dma.BMR.HasBits(hw.DMABMRSR) {
		return false
	}

	dma.OMR.Set(0)
	dma.SR.Set(0)
	dma.TPDR.Set(0)
	dma.RPDR.Set(0)
	dma.MFBOCR.Set(0)
	dma.BMR.Set(0x00020101)
	e.l.Debug("DMA reset")
	return true
}
