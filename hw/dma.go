package hw

import "fmt"

// DMA is the Ethernet DMA controller register block. Field order and the
// reserved gap match the peripheral's memory map.
type DMA struct {
	BMR    Register32 // 0x00 bus mode
	TPDR   Register32 // 0x04 transmit poll demand
	RPDR   Register32 // 0x08 receive poll demand
	RDLAR  Register32 // 0x0C receive descriptor list address
	TDLAR  Register32 // 0x10 transmit descriptor list address
	SR     Register32 // 0x14 status
	OMR    Register32 // 0x18 operation mode
	IER    Register32 // 0x1C interrupt enable
	MFBOCR Register32 // 0x20 missed frame and buffer overflow counter
	RSWTR  Register32 // 0x24 receive status watchdog timer
	_      [8]uint32
	CHTDR  Register32 // 0x48 current host transmit descriptor
	CHRDR  Register32 // 0x4C current host receive descriptor
	CHTBAR Register32 // 0x50 current host transmit buffer address
	CHRBAR Register32 // 0x54 current host receive buffer address
}

// DMABMR bits.
const (
	DMABMRSR   uint32 = 1 << 0 // software reset
	DMABMRDA   uint32 = 1 << 1
	DMABMREDFE uint32 = 1 << 7 // enhanced descriptor format
	DMABMRFB   uint32 = 1 << 16
	DMABMRUSP  uint32 = 1 << 23
	DMABMRAAB  uint32 = 1 << 25 // address aligned beats

	DMABMRPBLShift        = 8
	DMABMRPBLMask  uint32 = 0x3f << DMABMRPBLShift
	DMABMRRDPShift        = 17
	DMABMRRDPMask  uint32 = 0x3f << DMABMRRDPShift
)

// PollDemand is written to TPDR or RPDR to make a suspended DMA process
// re-read its current descriptor.
const PollDemand uint32 = 1

// DMASR bits.
const (
	DMASRTS   uint32 = 1 << 0 // transmit
	DMASRTPSS uint32 = 1 << 1 // transmit process stopped
	DMASRTBUS uint32 = 1 << 2 // transmit buffer unavailable
	DMASRROS  uint32 = 1 << 4 // receive overflow
	DMASRRS   uint32 = 1 << 6 // receive
	DMASRRBUS uint32 = 1 << 7 // receive buffer unavailable
	DMASRRPSS uint32 = 1 << 8 // receive process stopped
	DMASRNIS  uint32 = 1 << 16

	DMASRRPSShift        = 17
	DMASRRPSMask  uint32 = 0x7 << DMASRRPSShift
	DMASRTPSShift        = 20
	DMASRTPSMask  uint32 = 0x7 << DMASRTPSShift
)

// DMAOMR bits.
const (
	DMAOMRSR  uint32 = 1 << 1  // start/stop receive
	DMAOMROSF uint32 = 1 << 2  // operate on second frame
	DMAOMRST  uint32 = 1 << 13 // start/stop transmission
	DMAOMRFTF uint32 = 1 << 20 // flush transmit FIFO
	DMAOMRTSF uint32 = 1 << 21 // transmit store and forward
	DMAOMRRSF uint32 = 1 << 25 // receive store and forward
)

// DMAMFBOCR fields.
const (
	DMAMFBOCRMFCMask uint32 = 0xffff
	DMAMFBOCROMFC    uint32 = 1 << 16
)

// TransmitProcessState is the DMASR TPS field.
type TransmitProcessState uint32

const (
	TxStopped         TransmitProcessState = 0
	TxRunningFetching TransmitProcessState = 1
	TxRunningWaiting  TransmitProcessState = 2
	TxRunningReading  TransmitProcessState = 3
	TxSuspended       TransmitProcessState = 6
	TxRunningClosing  TransmitProcessState = 7
)

// Running reports whether the transmit process is in any of its running
// sub-states.
func (s TransmitProcessState) Running() bool {
	switch s {
	case TxRunningFetching, TxRunningWaiting, TxRunningReading, TxRunningClosing:
		return true
	}
	return false
}

func (s TransmitProcessState) String() string {
	switch s {
	case TxStopped:
		return "stopped"
	case TxRunningFetching:
		return "running (fetching descriptor)"
	case TxRunningWaiting:
		return "running (waiting for status)"
	case TxRunningReading:
		return "running (reading data)"
	case TxSuspended:
		return "suspended"
	case TxRunningClosing:
		return "running (closing descriptor)"
	default:
		return fmt.Sprintf("reserved (%d)", uint32(s))
	}
}

// ReceiveProcessState is the DMASR RPS field.
type ReceiveProcessState uint32

const (
	RxStopped         ReceiveProcessState = 0
	RxRunningFetching ReceiveProcessState = 1
	rxReservedTwo     ReceiveProcessState = 2
	RxRunningWaiting  ReceiveProcessState = 3
	RxSuspended       ReceiveProcessState = 4
	RxRunningClosing  ReceiveProcessState = 5
	rxReservedSix     ReceiveProcessState = 6
	RxRunningTransfer ReceiveProcessState = 7
)

func (s ReceiveProcessState) String() string {
	switch s {
	case RxStopped:
		return "stopped"
	case RxRunningFetching:
		return "running (fetching descriptor)"
	case RxRunningWaiting:
		return "running (waiting for frame)"
	case RxSuspended:
		return "suspended"
	case RxRunningClosing:
		return "running (closing descriptor)"
	case RxRunningTransfer:
		return "running (transferring data)"
	case rxReservedTwo, rxReservedSix:
		return fmt.Sprintf("reserved (%d)", uint32(s))
	default:
		return fmt.Sprintf("invalid (%d)", uint32(s))
	}
}

// TransmitState returns the transmit process state reported in SR.
func (d *DMA) TransmitState() TransmitProcessState {
	return TransmitProcessState(d.SR.Field(DMASRTPSMask, DMASRTPSShift))
}

// ReceiveState returns the receive process state reported in SR.
func (d *DMA) ReceiveState() ReceiveProcessState {
	return ReceiveProcessState(d.SR.Field(DMASRRPSMask, DMASRRPSShift))
}

// SetTransmitState publishes s in SR. Only the DMA engine writes this field.
func (d *DMA) SetTransmitState(s TransmitProcessState) {
	d.SR.ReplaceBits(uint32(s)<<DMASRTPSShift, DMASRTPSMask)
}

// SetReceiveState publishes s in SR. Only the DMA engine writes this field.
func (d *DMA) SetReceiveState(s ReceiveProcessState) {
	d.SR.ReplaceBits(uint32(s)<<DMASRRPSShift, DMASRRPSMask)
}
