package hw

// IEEE 802.3 clause 22 registers and the vendor registers of the LAN8742A.
const (
	PHYRegBCR    uint8 = 0x00 // basic control
	PHYRegBSR    uint8 = 0x01 // basic status
	PHYRegID1    uint8 = 0x02
	PHYRegID2    uint8 = 0x03
	PHYRegANAR   uint8 = 0x04 // auto-negotiation advertisement
	PHYRegANLPAR uint8 = 0x05 // link partner ability
	PHYRegSCSR   uint8 = 0x1f // special control/status
)

// PHY BCR bits.
const (
	PHYBCRReset           uint16 = 1 << 15
	PHYBCRLoopback        uint16 = 1 << 14
	PHYBCRSpeed100        uint16 = 1 << 13
	PHYBCRAutoNegotiation uint16 = 1 << 12
	PHYBCRPowerDown       uint16 = 1 << 11
	PHYBCRRestartAutoNeg  uint16 = 1 << 9
	PHYBCRFullDuplex      uint16 = 1 << 8
)

// PHY BSR bits.
const (
	PHYBSRAutoNegComplete uint16 = 1 << 5
	PHYBSRLinkUp          uint16 = 1 << 2
)

// PHY SCSR fields.
const (
	PHYSCSRAutoDone     uint16 = 1 << 12
	PHYSCSRSpeedMask    uint16 = 0x7 << 2
	PHYSCSRSpeed10Half  uint16 = 0x1 << 2
	PHYSCSRSpeed100Half uint16 = 0x2 << 2
	PHYSCSRSpeed10Full  uint16 = 0x5 << 2
	PHYSCSRSpeed100Full uint16 = 0x6 << 2
)

// LAN8742A identifiers.
const (
	LAN8742AID1 uint16 = 0x0007
	LAN8742AID2 uint16 = 0xc131
)
