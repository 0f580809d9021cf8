// Package ethernet drives the MAC/DMA peripheral through its receive and
// transmit descriptor rings and exposes the frames through the [NetDevice]
// polling contract.
package ethernet

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ethmac/ethmac/dmamem"
	"github.com/ethmac/ethmac/hw"
	"github.com/ethmac/ethmac/ring"
	"github.com/sirupsen/logrus"
)

// MTU is the largest frame advertised to the protocol stack.
const MTU = ring.MTU

// Device composes the two descriptor rings with the MAC and DMA register
// blocks. It is not safe for concurrent use; a single poll loop drives it.
type Device struct {
	l       *logrus.Entry
	metrics *deviceMetrics
	hooks   []FrameHook

	rx  *ring.RxRing
	tx  *ring.TxRing
	mac *hw.MAC
	dma *hw.DMA

	mem             *dmamem.Space
	ownsMemory      bool
	teardownTimeout time.Duration

	addr   net.HardwareAddr
	link   Link
	closed bool
}

var _ NetDevice = (*Device)(nil)

// New brings the peripheral up, installs the rings and starts the DMA engine.
// A failing bring-up is returned as an [*InitializationError].
//
// There are multiple options that can be passed to influence device creation:
//   - [WithLogger]
//   - [WithMetricsRegistry]
//   - [WithBringUp]
//   - [WithMemory]
//   - [WithFrameHook]
//   - [WithTeardownTimeout]
//
// Remember to call [Device.Close] to stop the DMA engine.
func New(rxConfig ring.RxConfig, txConfig ring.TxConfig, rcc *hw.RCC, syscfg *hw.SYSCFG,
	mac *hw.MAC, dma *hw.DMA, addr net.HardwareAddr, options ...Option) (*Device, error) {

	var err error
	opts := defaultOptions()
	opts.apply(options)
	if err = opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	if len(addr) != 6 {
		return nil, fmt.Errorf("invalid hardware address %q", addr.String())
	}

	dev := &Device{
		l:               opts.l.WithField("subsystem", "ethernet"),
		metrics:         newDeviceMetrics(opts.registry),
		hooks:           opts.hooks,
		mac:             mac,
		dma:             dma,
		mem:             opts.memory,
		teardownTimeout: opts.teardownTimeout,
		addr:            append(net.HardwareAddr(nil), addr...),
	}

	if err = opts.bringUp.Init(rcc, syscfg, mac, dma); err != nil {
		return nil, &InitializationError{Err: err}
	}
	if l, ok := opts.bringUp.(interface{ Link() Link }); ok {
		dev.link = l.Link()
	}

	if dev.mem == nil {
		dev.mem, err = dmamem.New(rxConfig.MemorySize()+txConfig.MemorySize(), dmamem.DefaultBase)
		if err != nil {
			return nil, err
		}
		dev.ownsMemory = true

		defer func() {
			if err != nil {
				_ = dev.mem.Close()
			}
		}()
	}

	if dev.rx, err = ring.NewRxRing(dev.mem, rxConfig); err != nil {
		return nil, fmt.Errorf("create receive ring: %w", err)
	}
	if dev.tx, err = ring.NewTxRing(dev.mem, txConfig); err != nil {
		return nil, fmt.Errorf("create transmit ring: %w", err)
	}

	dev.rx.Arm()
	dma.RDLAR.Set(dev.rx.FrontOfQueue())
	dma.TDLAR.Set(dev.tx.FrontOfQueue())
	mac.SetAddress([6]byte(addr))

	opts.bringUp.Start(mac, dma)

	dev.l.WithFields(logrus.Fields{
		"hwaddr":         dev.addr.String(),
		"link":           dev.link.String(),
		"rxDescriptors":  dev.rx.Len(),
		"txDescriptors":  dev.tx.Len(),
		"dmaMemoryBytes": dev.mem.Used(),
	}).Info("Ethernet device started")

	return dev, nil
}

// Capabilities reports the MTU.
func (d *Device) Capabilities() Capabilities {
	return Capabilities{MaxTransmissionUnit: MTU}
}

// Receive returns a token for the frame at the head of the receive ring, or
// false when no frame has started arriving.
func (d *Device) Receive() (RxToken, bool) {
	if d.closed || !d.rx.NewDataReceived() {
		return nil, false
	}
	return &rxToken{dev: d}, true
}

// Transmit returns a token for the next transmit slot, or false while that
// slot is still owned by hardware.
func (d *Device) Transmit() (TxToken, bool) {
	if d.closed || !d.tx.DescriptorAvailable() {
		return nil, false
	}
	return &txToken{dev: d}, true
}

// HardwareAddr returns the station address programmed into the MAC.
func (d *Device) HardwareAddr() net.HardwareAddr {
	return d.addr
}

// Link returns the link negotiated during bring-up.
func (d *Device) Link() Link {
	return d.link
}

// InFlight returns the number of frames queued for transmission and not yet
// released.
func (d *Device) InFlight() int {
	return d.tx.InFlight()
}

// Close stops the transmit and receive DMA processes, waits for both to report
// stopped and then releases the transmit buffers and, if the device mapped it,
// the DMA memory. When the DMA does not stop in time the memory is left alone
// and an error matching [ErrTeardownTimeout] is returned; Close may be called
// again.
func (d *Device) Close() error {
	if d.closed {
		return nil
	}

	d.dma.OMR.ClearBits(hw.DMAOMRST | hw.DMAOMRSR)
	d.mac.CR.ClearBits(hw.MACCRTE | hw.MACCRRE)

	err := pollUntil(d.teardownTimeout, func() (bool, error) {
		return d.dma.TransmitState() == hw.TxStopped && d.dma.ReceiveState() == hw.RxStopped, nil
	})
	if err != nil {
		return fmt.Errorf("%w: transmit %s, receive %s",
			ErrTeardownTimeout, d.dma.TransmitState(), d.dma.ReceiveState())
	}

	dropped := d.tx.Flush()
	d.closed = true
	d.l.WithField("droppedFrames", dropped).Info("Ethernet device stopped")

	var errs []error
	if d.ownsMemory {
		if err := d.mem.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Device) observe(dir Direction, frame []byte) {
	for _, h := range d.hooks {
		h(dir, frame)
	}
}

// startSend makes sure the transmit DMA process picks up a newly queued
// descriptor. A suspended process is resumed with a poll demand; a running one
// finds the descriptor on its own. A stopped process or a reserved state means
// the driver and the hardware disagree about the ring and is fatal.
func startSend(dma *hw.DMA) (demanded bool) {
	state := dma.TransmitState()
	switch {
	case state == hw.TxStopped:
		panic("transmit dma process is stopped")
	case state == hw.TxSuspended:
		dma.TPDR.Set(hw.PollDemand)
		return true
	case state.Running():
		return false
	default:
		panic(fmt.Sprintf("unexpected transmit process state %s", state))
	}
}
