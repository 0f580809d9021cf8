package hw

import (
	"errors"
	"fmt"
	"runtime"
	"time"
)

// ErrMDIOTimeout is returned when the MII busy bit does not clear in time.
var ErrMDIOTimeout = errors.New("mdio transaction timed out")

// DefaultMDIOTimeout bounds a single management transaction.
const DefaultMDIOTimeout = 100 * time.Millisecond

// MDIO drives the station management interface through MACMIIAR and
// MACMIIDR.
type MDIO struct {
	MAC        *MAC
	ClockRange uint32
	Timeout    time.Duration
}

// Read returns register reg of the PHY at address phy.
func (m MDIO) Read(phy, reg uint8) (uint16, error) {
	if err := m.wait(); err != nil {
		return 0, fmt.Errorf("read phy %d reg %d: %w", phy, reg, err)
	}
	m.MAC.MIIAR.Set(m.command(phy, reg) | MACMIIARMB)
	if err := m.wait(); err != nil {
		return 0, fmt.Errorf("read phy %d reg %d: %w", phy, reg, err)
	}
	return uint16(m.MAC.MIIDR.Get()), nil
}

// Write stores v into register reg of the PHY at address phy.
func (m MDIO) Write(phy, reg uint8, v uint16) error {
	if err := m.wait(); err != nil {
		return fmt.Errorf("write phy %d reg %d: %w", phy, reg, err)
	}
	m.MAC.MIIDR.Set(uint32(v))
	m.MAC.MIIAR.Set(m.command(phy, reg) | MACMIIARMW | MACMIIARMB)
	if err := m.wait(); err != nil {
		return fmt.Errorf("write phy %d reg %d: %w", phy, reg, err)
	}
	return nil
}

func (m MDIO) command(phy, reg uint8) uint32 {
	cr := m.ClockRange
	if cr == 0 {
		cr = MACMIIARCRDiv102
	}
	return uint32(phy)<<MACMIIARPAShift&MACMIIARPAMask |
		uint32(reg)<<MACMIIARMRShift&MACMIIARMRMask |
		cr&MACMIIARCRMask
}

func (m MDIO) wait() error {
	timeout := m.Timeout
	if timeout == 0 {
		timeout = DefaultMDIOTimeout
	}
	deadline := time.Now().Add(timeout)
	for m.MAC.MIIAR.HasBits(MACMIIARMB) {
		if time.Now().After(deadline) {
			return ErrMDIOTimeout
		}
		runtime.Gosched()
	}
	return nil
}
