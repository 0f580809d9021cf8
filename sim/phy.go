package sim

import "github.com/ethmac/ethmac/hw"

// phy models a LAN8742A behind the management interface. Reset and
// auto-negotiation take a number of register polls to complete.
type phy struct {
	bcr uint16
	bsr uint16

	resetPolls   int
	autoNegPolls int
	autoNegDelay int

	// speed is the SCSR speed indication reported once negotiated.
	speed uint16
}

const phyBSRDefault uint16 = 0x7809 // 10/100 capable, auto-negotiation able, extended registers

func newPHY(autoNegDelay int) *phy {
	return &phy{
		bcr:          hw.PHYBCRAutoNegotiation | hw.PHYBCRSpeed100 | hw.PHYBCRFullDuplex,
		bsr:          phyBSRDefault,
		autoNegDelay: autoNegDelay,
		speed:        hw.PHYSCSRSpeed100Full,
	}
}

func (p *phy) read(reg uint8) uint16 {
	switch reg {
	case hw.PHYRegBCR:
		if p.resetPolls > 0 {
			if p.resetPolls--; p.resetPolls == 0 {
				p.bcr &^= hw.PHYBCRReset
			}
		}
		return p.bcr

	case hw.PHYRegBSR:
		if p.autoNegPolls > 0 {
			if p.autoNegPolls--; p.autoNegPolls == 0 {
				p.bsr |= hw.PHYBSRAutoNegComplete | hw.PHYBSRLinkUp
			}
		}
		return p.bsr

	case hw.PHYRegID1:
		return hw.LAN8742AID1
	case hw.PHYRegID2:
		return hw.LAN8742AID2

	case hw.PHYRegSCSR:
		if p.bsr&hw.PHYBSRAutoNegComplete == 0 {
			return 0
		}
		return hw.PHYSCSRAutoDone | p.speed
	}
	return 0
}

func (p *phy) write(reg uint8, v uint16) {
	if reg != hw.PHYRegBCR {
		return
	}

	if v&hw.PHYBCRReset != 0 {
		p.bcr = hw.PHYBCRReset | hw.PHYBCRAutoNegotiation | hw.PHYBCRSpeed100 | hw.PHYBCRFullDuplex
		p.bsr = phyBSRDefault
		p.resetPolls = 1
		p.autoNegPolls = 0
		return
	}

	p.bcr = v &^ hw.PHYBCRRestartAutoNeg
	if v&hw.PHYBCRRestartAutoNeg != 0 && v&hw.PHYBCRAutoNegotiation != 0 {
		p.bsr &^= hw.PHYBSRAutoNegComplete | hw.PHYBSRLinkUp
		p.autoNegPolls = max(p.autoNegDelay, 1)
	}
}
