package ring

import (
	"fmt"
	"unsafe"

	"gvisor.dev/gvisor/pkg/atomicbitops"
)

// DescriptorSize is the number of bytes of an enhanced RX or TX descriptor.
const DescriptorSize = 32

// descriptorAlignment is the alignment of a descriptor table in DMA memory.
const descriptorAlignment = DescriptorSize

// maxBufferSize is the largest value the 13-bit buffer size fields hold.
const maxBufferSize = 1<<13 - 1

// Owner tells which side may currently access a descriptor.
type Owner uint8

const (
	OwnerSoftware Owner = iota
	OwnerHardware
)

func (o Owner) String() string {
	if o == OwnerHardware {
		return "hardware"
	}
	return "software"
}

// descOwn is the OWN bit, bit 31 of RDES0 and TDES0.
const descOwn uint32 = 1 << 31

// RDES0 bits.
const (
	RDES0OWN  uint32 = descOwn
	RDES0AFM  uint32 = 1 << 30 // destination address filter fail
	RDES0ES   uint32 = 1 << 15 // error summary
	RDES0DE   uint32 = 1 << 14 // descriptor error
	RDES0SAF  uint32 = 1 << 13 // source address filter fail
	RDES0LE   uint32 = 1 << 12 // length error
	RDES0OE   uint32 = 1 << 11 // overflow error
	RDES0VLAN uint32 = 1 << 10
	RDES0FS   uint32 = 1 << 9 // first descriptor of a frame
	RDES0LS   uint32 = 1 << 8 // last descriptor of a frame
	RDES0GF   uint32 = 1 << 7 // giant frame
	RDES0LCO  uint32 = 1 << 6 // late collision
	RDES0FT   uint32 = 1 << 5 // frame type
	RDES0RWT  uint32 = 1 << 4 // receive watchdog timeout
	RDES0RE   uint32 = 1 << 3 // receive error
	RDES0DBE  uint32 = 1 << 2 // dribble bit error
	RDES0CE   uint32 = 1 << 1 // CRC error
	RDES0ESA  uint32 = 1 << 0 // RDES4 extended status valid

	RDES0FLShift        = 16
	RDES0FLMask  uint32 = 0x3fff << RDES0FLShift
)

// RDES1 bits.
const (
	RDES1DIC uint32 = 1 << 31 // disable interrupt on completion
	RDES1RER uint32 = 1 << 15 // receive end of ring
	RDES1RCH uint32 = 1 << 14 // second address chained

	RDES1RBS1Mask  uint32 = maxBufferSize
	RDES1RBS2Shift        = 16
	RDES1RBS2Mask  uint32 = maxBufferSize << RDES1RBS2Shift
)

// RDES4 bits, valid when RDES0ESA is set.
const (
	RDES4IPHE uint32 = 1 << 3 // IP header error
	RDES4IPPE uint32 = 1 << 4 // IP payload error
	RDES4IPCB uint32 = 1 << 5 // IP checksum bypassed
	RDES4IPV4 uint32 = 1 << 6
	RDES4IPV6 uint32 = 1 << 7
)

// TDES0 bits.
const (
	TDES0OWN uint32 = descOwn
	TDES0IC  uint32 = 1 << 30 // interrupt on completion
	TDES0LS  uint32 = 1 << 29 // last segment
	TDES0FS  uint32 = 1 << 28 // first segment
	TDES0DC  uint32 = 1 << 27 // disable CRC
	TDES0DP  uint32 = 1 << 26 // disable pad
	TDES0TER uint32 = 1 << 21 // transmit end of ring
	TDES0TCH uint32 = 1 << 20 // second address chained
	TDES0ES  uint32 = 1 << 15 // error summary
	TDES0UF  uint32 = 1 << 1  // underflow
	TDES0DB  uint32 = 1 << 0  // deferred

	TDES0CICShift        = 22
	TDES0CICMask  uint32 = 0x3 << TDES0CICShift
)

// TDES1 bits.
const (
	TDES1TBS1Mask  uint32 = maxBufferSize
	TDES1TBS2Shift        = 16
	TDES1TBS2Mask  uint32 = maxBufferSize << TDES1TBS2Shift
)

// RxDescriptor is an enhanced receive descriptor as laid out in DMA memory.
type RxDescriptor struct {
	Status    atomicbitops.Uint32 // RDES0
	Control   atomicbitops.Uint32 // RDES1
	Buffer1   atomicbitops.Uint32 // RDES2
	Buffer2   atomicbitops.Uint32 // RDES3
	ExtStatus atomicbitops.Uint32 // RDES4
	_         atomicbitops.Uint32 // RDES5
	TimeLow   atomicbitops.Uint32 // RDES6
	TimeHigh  atomicbitops.Uint32 // RDES7
}

// TxDescriptor is an enhanced transmit descriptor as laid out in DMA memory.
type TxDescriptor struct {
	Status   atomicbitops.Uint32 // TDES0
	Control  atomicbitops.Uint32 // TDES1
	Buffer1  atomicbitops.Uint32 // TDES2
	Buffer2  atomicbitops.Uint32 // TDES3
	_        atomicbitops.Uint32 // TDES4
	_        atomicbitops.Uint32 // TDES5
	TimeLow  atomicbitops.Uint32 // TDES6
	TimeHigh atomicbitops.Uint32 // TDES7
}

// RxDescriptors lays a table of RX descriptors over mem, which must be
// exactly n*[DescriptorSize] bytes and 4 byte aligned.
func RxDescriptors(mem []byte, n int) []RxDescriptor {
	checkTable(mem, n)
	return unsafe.Slice((*RxDescriptor)(unsafe.Pointer(&mem[0])), n)
}

// TxDescriptors lays a table of TX descriptors over mem, which must be
// exactly n*[DescriptorSize] bytes and 4 byte aligned.
func TxDescriptors(mem []byte, n int) []TxDescriptor {
	checkTable(mem, n)
	return unsafe.Slice((*TxDescriptor)(unsafe.Pointer(&mem[0])), n)
}

func checkTable(mem []byte, n int) {
	if n <= 0 || len(mem) != n*DescriptorSize {
		panic(fmt.Sprintf("memory size (%v) does not match required size "+
			"for %d descriptors", len(mem), n))
	}
	if uintptr(unsafe.Pointer(&mem[0]))%4 != 0 {
		panic("descriptor table is not 4 byte aligned")
	}
}

// Owner reports who owns the descriptor.
func (d *RxDescriptor) Owner() Owner {
	return ownerOf(d.Status.Load())
}

// Arm hands the descriptor to hardware with all status cleared.
func (d *RxDescriptor) Arm() {
	d.ExtStatus.Store(0)
	d.Status.Store(RDES0OWN)
}

// BufferSize returns the capacity of the descriptor's buffer.
func (d *RxDescriptor) BufferSize() int {
	return int(d.Control.Load() & RDES1RBS1Mask)
}

// EndOfRing reports whether hardware wraps to the table start after this
// descriptor.
func (d *RxDescriptor) EndOfRing() bool {
	return d.Control.Load()&RDES1RER != 0
}

// Owner reports who owns the descriptor.
func (d *TxDescriptor) Owner() Owner {
	return ownerOf(d.Status.Load())
}

// EndOfRing reports whether hardware wraps to the table start after this
// descriptor.
func (d *TxDescriptor) EndOfRing() bool {
	return d.Status.Load()&TDES0TER != 0
}

// BufferSize returns the number of bytes to transmit from Buffer1.
func (d *TxDescriptor) BufferSize() int {
	return int(d.Control.Load() & TDES1TBS1Mask)
}

func ownerOf(status uint32) Owner {
	if status&descOwn != 0 {
		return OwnerHardware
	}
	return OwnerSoftware
}
