package ethernet

import (
	"fmt"

	"github.com/ethmac/ethmac/hw"
)

// Link is the negotiated speed and duplex mode.
type Link struct {
	Speed      int // Mbit/s
	FullDuplex bool
}

func (l Link) String() string {
	if l.Speed == 0 {
		return "down"
	}
	duplex := "half"
	if l.FullDuplex {
		duplex = "full"
	}
	return fmt.Sprintf("%dMbit/s %s duplex", l.Speed, duplex)
}

// linkFromSCSR decodes the speed indication of the special control/status
// register.
func linkFromSCSR(v uint16) (Link, error) {
	switch v & hw.PHYSCSRSpeedMask {
	case hw.PHYSCSRSpeed10Half:
		return Link{Speed: 10}, nil
	case hw.PHYSCSRSpeed10Full:
		return Link{Speed: 10, FullDuplex: true}, nil
	case hw.PHYSCSRSpeed100Half:
		return Link{Speed: 100}, nil
	case hw.PHYSCSRSpeed100Full:
		return Link{Speed: 100, FullDuplex: true}, nil
	}
	return Link{}, fmt.Errorf("unknown phy speed indication %#x", v&hw.PHYSCSRSpeedMask)
}
