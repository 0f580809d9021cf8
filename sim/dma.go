package sim

import (
	"github.com/ethmac/ethmac/hw"
	"github.com/ethmac/ethmac/ring"
	"gvisor.dev/gvisor/pkg/tcpip/header"
)

// maxUntaggedFrame is the longest frame, including the FCS, the MAC accepts
// without flagging it as giant.
const maxUntaggedFrame = 1518

func (e *Engine) txDescriptor(addr uint32) (*ring.TxDescriptor, bool) {
	b, err := e.mem.Slice(addr, ring.DescriptorSize)
	if err != nil {
		e.l.WithError(err).WithField("address", addr).Error("Transmit descriptor outside of DMA memory")
		return nil, false
	}
	return &ring.TxDescriptors(b, 1)[0], true
}

func (e *Engine) rxDescriptor(addr uint32) (*ring.RxDescriptor, bool) {
	b, err := e.mem.Slice(addr, ring.DescriptorSize)
	if err != nil {
		e.l.WithError(err).WithField("address", addr).Error("Receive descriptor outside of DMA memory")
		return nil, false
	}
	return &ring.RxDescriptors(b, 1)[0], true
}

// transmit runs the transmit process until it suspends or framesPerStep
// frames went out.
func (e *Engine) transmit() bool {
	dma := &e.p.DMA
	state := dma.TransmitState()

	if !dma.OMR.HasBits(hw.DMAOMRST) || !e.p.MAC.CR.HasBits(hw.MACCRTE) {
		if state != hw.TxStopped {
			dma.SetTransmitState(hw.TxStopped)
			dma.SR.SetBits(hw.DMASRTPSS)
			return true
		}
		return false
	}

	switch state {
	case hw.TxStopped:
		e.txAddr = dma.TDLAR.Get()
	case hw.TxSuspended:
		if dma.TPDR.Swap(0) == 0 {
			return false
		}
	}

	busy := state == hw.TxStopped
	for sent := 0; sent < framesPerStep; sent++ {
		dma.SetTransmitState(hw.TxRunningFetching)
		dma.CHTDR.Set(e.txAddr)

		d, ok := e.txDescriptor(e.txAddr)
		if !ok {
			dma.SetTransmitState(hw.TxStopped)
			dma.SR.SetBits(hw.DMASRTPSS)
			return true
		}

		status := d.Status.Load()
		if status&ring.TDES0OWN == 0 {
			dma.SetTransmitState(hw.TxSuspended)
			dma.SR.SetBits(hw.DMASRTBUS)
			// The driver may have handed over the descriptor after the load
			// above but before it saw the suspended state.
			if d.Status.Load()&ring.TDES0OWN == 0 {
				return busy
			}
			dma.SetTransmitState(hw.TxRunningFetching)
			status = d.Status.Load()
		}

		dma.SetTransmitState(hw.TxRunningReading)
		buffer := d.Buffer1.Load()
		dma.CHTBAR.Set(buffer)
		frame, err := e.mem.Slice(buffer, int(d.Control.Load()&ring.TDES1TBS1Mask))
		if err == nil && e.port != nil {
			_, err = e.port.Write(frame)
		}

		dma.SetTransmitState(hw.TxRunningClosing)
		closed := status &^ ring.TDES0OWN
		if err != nil {
			e.l.WithError(err).Debug("Failed to transmit frame")
			closed |= ring.TDES0ES
		} else {
			e.transmitted.Add(1)
		}
		d.Status.Store(closed)
		dma.SR.SetBits(hw.DMASRTS | hw.DMASRNIS)
		busy = true

		switch {
		case status&ring.TDES0TER != 0:
			e.txAddr = dma.TDLAR.Get()
		case status&ring.TDES0TCH != 0:
			e.txAddr = d.Buffer2.Load()
		default:
			e.txAddr += ring.DescriptorSize
		}
	}

	return busy
}

// receive moves queued frames into the receive ring.
func (e *Engine) receive() bool {
	dma := &e.p.DMA
	state := dma.ReceiveState()

	if !dma.OMR.HasBits(hw.DMAOMRSR) || !e.p.MAC.CR.HasBits(hw.MACCRRE) {
		if state != hw.RxStopped {
			dma.SetReceiveState(hw.RxStopped)
			dma.SR.SetBits(hw.DMASRRPSS)
			return true
		}
		return false
	}

	busy := false
	if state == hw.RxStopped {
		e.rxAddr = dma.RDLAR.Get()
		dma.SetReceiveState(hw.RxRunningWaiting)
		busy = true
	}
	dma.RPDR.Set(0)

	for n := 0; n < framesPerStep; n++ {
		var f Frame
		select {
		case f = <-e.incoming:
		default:
			return busy
		}
		busy = true

		if !e.accept(f.Data) {
			e.filtered.Add(1)
			continue
		}
		e.store(f)
	}
	return busy
}

// accept applies the MAC address filter.
func (e *Engine) accept(frame []byte) bool {
	if len(frame) < header.EthernetMinimumSize {
		return false
	}
	if e.p.MAC.FFR.Get()&(hw.MACFFRPM|hw.MACFFRRA) != 0 {
		return true
	}
	// Group addresses, broadcast included, have the low bit of the first
	// octet set.
	if frame[0]&1 != 0 {
		return true
	}
	return [6]byte(frame[:6]) == e.p.MAC.Address()
}

// store writes f into the descriptors starting at rxAddr, or counts it as
// missed when hardware does not own enough of them.
func (e *Engine) store(f Frame) {
	dma := &e.p.DMA
	dma.SetReceiveState(hw.RxRunningFetching)
	dma.CHRDR.Set(e.rxAddr)

	var (
		chain []*ring.RxDescriptor
		next  = e.rxAddr
		room  int
	)
	for room < len(f.Data) {
		d, ok := e.rxDescriptor(next)
		if !ok || d.Status.Load()&ring.RDES0OWN == 0 || (len(chain) > 0 && next == e.rxAddr) {
			e.miss()
			return
		}
		chain = append(chain, d)
		room += d.BufferSize()
		next = e.nextRx(d, next)
	}

	dma.SetReceiveState(hw.RxRunningTransfer)
	data := f.Data
	for _, d := range chain {
		b, err := e.mem.Slice(d.Buffer1.Load(), min(len(data), d.BufferSize()))
		if err != nil {
			e.l.WithError(err).Error("Receive buffer outside of DMA memory")
			e.miss()
			return
		}
		data = data[copy(b, data):]
	}

	dma.SetReceiveState(hw.RxRunningClosing)
	firstExtra, ext := e.checksum(f)
	d0 := chain[0]
	d0.ExtStatus.Store(ext)

	errs := f.Errors
	if len(f.Data) > maxUntaggedFrame {
		errs |= ring.RDES0GF
	}
	if errs != 0 {
		errs |= ring.RDES0ES
	}

	for i, d := range chain {
		var status uint32
		if i == 0 {
			status |= ring.RDES0FS | firstExtra
		}
		if i == len(chain)-1 {
			status |= ring.RDES0LS | errs | uint32(len(f.Data))<<ring.RDES0FLShift&ring.RDES0FLMask
		}
		d.Status.Store(status)
	}

	e.rxAddr = next
	e.received.Add(1)
	dma.SR.SetBits(hw.DMASRRS | hw.DMASRNIS)
	dma.SetReceiveState(hw.RxRunningWaiting)
}

func (e *Engine) nextRx(d *ring.RxDescriptor, addr uint32) uint32 {
	control := d.Control.Load()
	switch {
	case control&ring.RDES1RER != 0:
		return e.p.DMA.RDLAR.Get()
	case control&ring.RDES1RCH != 0:
		return d.Buffer2.Load()
	}
	return addr + ring.DescriptorSize
}

func (e *Engine) miss() {
	dma := &e.p.DMA
	e.missed.Add(1)

	v := dma.MFBOCR.Get()
	if v&hw.DMAMFBOCRMFCMask == hw.DMAMFBOCRMFCMask {
		v |= hw.DMAMFBOCROMFC
	} else {
		v++
	}
	dma.MFBOCR.Set(v)
	dma.SR.SetBits(hw.DMASRRBUS)
	dma.SetReceiveState(hw.RxSuspended)
}

// checksum returns the RDES0 bits for the first descriptor and the RDES4
// word describing the checksum offload result.
func (e *Engine) checksum(f Frame) (uint32, uint32) {
	switch f.Checksum {
	case ring.ChecksumVerified:
		return ring.RDES0ESA, ring.RDES4IPV4
	case ring.ChecksumBypassed:
		return ring.RDES0ESA, ring.RDES4IPCB
	case ring.ChecksumHeaderError:
		return ring.RDES0ESA, ring.RDES4IPV4 | ring.RDES4IPHE
	case ring.ChecksumPayloadError:
		return ring.RDES0ESA, ring.RDES4IPV4 | ring.RDES4IPPE
	case ring.ChecksumHeaderAndPayloadError:
		return ring.RDES0ESA, ring.RDES4IPV4 | ring.RDES4IPHE | ring.RDES4IPPE
	}

	if !e.p.MAC.CR.HasBits(hw.MACCRIPCO) {
		return 0, 0
	}

	payload := f.Data[header.EthernetMinimumSize:]
	switch header.Ethernet(f.Data).Type() {
	case header.IPv4ProtocolNumber:
		ip := header.IPv4(payload)
		if len(payload) < header.IPv4MinimumSize || int(ip.HeaderLength()) > len(payload) ||
			ip.CalculateChecksum() != 0xffff {
			return ring.RDES0ESA, ring.RDES4IPV4 | ring.RDES4IPHE
		}
		return ring.RDES0ESA, ring.RDES4IPV4
	case header.IPv6ProtocolNumber:
		return ring.RDES0ESA, ring.RDES4IPV6
	}
	return 0, 0
}
