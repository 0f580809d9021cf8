package hw

import "encoding/binary"

// MAC is the Ethernet MAC register block up to the first address filter.
type MAC struct {
	CR     Register32 // 0x00 configuration
	FFR    Register32 // 0x04 frame filter
	HTHR   Register32 // 0x08 hash table high
	HTLR   Register32 // 0x0C hash table low
	MIIAR  Register32 // 0x10 MII address
	MIIDR  Register32 // 0x14 MII data
	FCR    Register32 // 0x18 flow control
	VLANTR Register32 // 0x1C VLAN tag
	_      [2]uint32
	RWUFFR Register32 // 0x28 remote wakeup frame filter
	PMTCSR Register32 // 0x2C PMT control and status
	_      uint32
	DBGR   Register32 // 0x34 debug
	SR     Register32 // 0x38 interrupt status
	IMR    Register32 // 0x3C interrupt mask
	A0HR   Register32 // 0x40 address 0 high
	A0LR   Register32 // 0x44 address 0 low
}

// MACCR bits.
const (
	MACCRRE   uint32 = 1 << 2  // receiver enable
	MACCRTE   uint32 = 1 << 3  // transmitter enable
	MACCRAPCS uint32 = 1 << 7  // automatic pad/CRC stripping
	MACCRRD   uint32 = 1 << 9  // retry disable
	MACCRIPCO uint32 = 1 << 10 // IPv4 checksum offload
	MACCRDM   uint32 = 1 << 11 // duplex mode
	MACCRFES  uint32 = 1 << 14 // fast ethernet speed
	MACCRCSTF uint32 = 1 << 25 // CRC stripping for type frames
)

// MACFFR bits.
const (
	MACFFRPM uint32 = 1 << 0  // promiscuous
	MACFFRRA uint32 = 1 << 31 // receive all
)

// MACMIIAR bits.
const (
	MACMIIARMB uint32 = 1 << 0 // MII busy
	MACMIIARMW uint32 = 1 << 1 // MII write

	MACMIIARCRShift        = 2
	MACMIIARCRMask  uint32 = 0x7 << MACMIIARCRShift
	MACMIIARMRShift        = 6
	MACMIIARMRMask  uint32 = 0x1f << MACMIIARMRShift
	MACMIIARPAShift        = 11
	MACMIIARPAMask  uint32 = 0x1f << MACMIIARPAShift

	// MACMIIARCRDiv102 selects HCLK/102, valid for 150-216MHz.
	MACMIIARCRDiv102 uint32 = 0x4 << MACMIIARCRShift
)

// MACA0HRMO is always read as one.
const MACA0HRMO uint32 = 1 << 31

// SetAddress programs the station address: the first four octets go to A0LR,
// the last two to the low half of A0HR, both little endian.
func (m *MAC) SetAddress(addr [6]byte) {
	m.A0HR.Set(MACA0HRMO | uint32(binary.LittleEndian.Uint16(addr[4:])))
	m.A0LR.Set(binary.LittleEndian.Uint32(addr[:4]))
}

// Address reads the station address back from A0HR and A0LR.
func (m *MAC) Address() [6]byte {
	var addr [6]byte
	binary.LittleEndian.PutUint32(addr[:4], m.A0LR.Get())
	binary.LittleEndian.PutUint16(addr[4:], uint16(m.A0HR.Get()))
	return addr
}
