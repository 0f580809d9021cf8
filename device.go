package ethmac

import (
	"fmt"
	"net"
	"time"

	"github.com/ethmac/ethmac/config"
	"github.com/ethmac/ethmac/dmamem"
	"github.com/ethmac/ethmac/ethernet"
	"github.com/ethmac/ethmac/ring"
	"github.com/ethmac/ethmac/sim"
)

// defaultHardwareAddr is a locally administered unicast address.
var defaultHardwareAddr = net.HardwareAddr{0x02, 0x00, 0x00, 0xab, 0xcd, 0xef}

// deviceConfig is everything read from the device, phy and sim sections.
type deviceConfig struct {
	hwaddr          net.HardwareAddr
	rx              ring.RxConfig
	tx              ring.TxConfig
	memorySize      int
	memoryBase      uint32
	teardownTimeout time.Duration
	bringUp         *ethernet.DefaultBringUp
	sim             sim.Config
}

func newDeviceConfig(c *config.C) (*deviceConfig, error) {
	hwaddr, err := c.GetHardwareAddr("device.hwaddr", defaultHardwareAddr)
	if err != nil {
		return nil, err
	}
	if hwaddr[0]&1 != 0 {
		return nil, fmt.Errorf("device.hwaddr: %s is a group address", hwaddr)
	}

	dc := &deviceConfig{
		hwaddr:          hwaddr,
		teardownTimeout: c.GetDuration("device.teardown_timeout", time.Second),
		memoryBase:      c.GetUint32("device.dma_base", dmamem.DefaultBase),
	}

	rx := ring.DefaultRxConfig()
	rx.NumberOfDescriptors = c.GetInt("device.rx.descriptors", rx.NumberOfDescriptors)
	rx.DefaultDescriptorBufferSize = c.GetInt("device.rx.descriptor_buffer_size", rx.DefaultDescriptorBufferSize)
	// The last region has to hold a whole frame.
	rx.BufferSize = rx.DefaultDescriptorBufferSize*(rx.NumberOfDescriptors-1) + ring.MTU
	rx.BufferSize = c.GetInt("device.rx.buffer_size", rx.BufferSize)
	if err := rx.Validate(); err != nil {
		return nil, fmt.Errorf("device.rx: %w", err)
	}
	dc.rx = rx

	tx := ring.DefaultTxConfig()
	tx.NumberOfDescriptors = c.GetInt("device.tx.descriptors", tx.NumberOfDescriptors)
	tx.BufferSize = c.GetInt("device.tx.buffer_size", tx.BufferSize)
	tx.Wait, err = ring.ParseWaitStrategy(
		c.GetString("device.tx.wait", "spin"),
		c.GetDuration("device.tx.wait_interval", 10*time.Microsecond),
	)
	if err != nil {
		return nil, fmt.Errorf("device.tx.wait: %w", err)
	}
	if err := tx.Validate(); err != nil {
		return nil, fmt.Errorf("device.tx: %w", err)
	}
	dc.tx = tx

	need := rx.MemorySize() + tx.MemorySize()
	dc.memorySize = c.GetInt("device.dma_memory", 0)
	switch {
	case dc.memorySize == 0:
		dc.memorySize = need
	case dc.memorySize < need:
		return nil, fmt.Errorf("device.dma_memory: %d bytes can not hold the rings, %d are needed", dc.memorySize, need)
	}

	phyAddr := c.GetInt("phy.address", 0)
	if phyAddr < 0 || phyAddr > 31 {
		return nil, fmt.Errorf("phy.address: %d is not within 0 and 31", phyAddr)
	}
	dc.bringUp = &ethernet.DefaultBringUp{
		PHYAddress:             uint8(phyAddr),
		DMAResetTimeout:        c.GetDuration("device.reset_timeout", 0),
		PHYResetTimeout:        c.GetDuration("phy.reset_timeout", 0),
		AutoNegotiationTimeout: c.GetDuration("phy.autoneg_timeout", 0),
		MDIOTimeout:            c.GetDuration("phy.mdio_timeout", 0),
	}

	dc.sim = sim.DefaultConfig()
	dc.sim.Interval = c.GetDuration("sim.interval", dc.sim.Interval)
	dc.sim.AutoNegotiationPolls = c.GetInt("sim.autoneg_polls", dc.sim.AutoNegotiationPolls)
	dc.sim.PHYAddress = uint8(c.GetInt("sim.phy_address", phyAddr))

	return dc, nil
}
