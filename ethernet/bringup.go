package ethernet

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethmac/ethmac/hw"
)

// BringUp is the one-shot peripheral initialization run by [New]. Init runs
// before the rings are installed; Start enables the MAC and DMA afterwards.
type BringUp interface {
	Init(rcc *hw.RCC, syscfg *hw.SYSCFG, mac *hw.MAC, dma *hw.DMA) error
	Start(mac *hw.MAC, dma *hw.DMA)
}

// DefaultBringUp initializes an RMII attached LAN8742A style PHY with
// auto-negotiation. The zero value uses PHY address 0 and default timeouts.
type DefaultBringUp struct {
	PHYAddress             uint8
	DMAResetTimeout        time.Duration
	PHYResetTimeout        time.Duration
	AutoNegotiationTimeout time.Duration
	MDIOTimeout            time.Duration

	link Link
}

const (
	defaultDMAResetTimeout        = 500 * time.Millisecond
	defaultPHYResetTimeout        = 500 * time.Millisecond
	defaultAutoNegotiationTimeout = 3 * time.Second

	bringUpPollInterval = 100 * time.Microsecond
)

// Link returns the link negotiated by the last successful Init.
func (b *DefaultBringUp) Link() Link {
	return b.link
}

func (b *DefaultBringUp) Init(rcc *hw.RCC, syscfg *hw.SYSCFG, mac *hw.MAC, dma *hw.DMA) error {
	// RMII has to be selected while the MAC is held in reset.
	rcc.APB2ENR.SetBits(hw.RCCAPB2ENRSYSCFGEN)
	rcc.AHB1RSTR.SetBits(hw.RCCAHB1RSTRETHMACRST)
	syscfg.PMC.SetBits(hw.SYSCFGPMCMIIRMIISEL)
	rcc.AHB1ENR.SetBits(hw.RCCAHB1ENRETHMACEN | hw.RCCAHB1ENRETHMACTXEN | hw.RCCAHB1ENRETHMACRXEN)
	rcc.AHB1RSTR.ClearBits(hw.RCCAHB1RSTRETHMACRST)

	dma.BMR.SetBits(hw.DMABMRSR)
	err := pollUntil(orDefault(b.DMAResetTimeout, defaultDMAResetTimeout), func() (bool, error) {
		return !dma.BMR.HasBits(hw.DMABMRSR), nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDMAResetTimeout, err)
	}

	mac.CR.SetBits(hw.MACCRCSTF | hw.MACCRIPCO | hw.MACCRRD | hw.MACCRAPCS)
	mac.FFR.Set(0)
	mac.FCR.Set(0)

	link, err := b.negotiate(mac)
	if err != nil {
		return err
	}
	b.link = link

	cr := mac.CR.Get() &^ (hw.MACCRFES | hw.MACCRDM)
	if link.Speed == 100 {
		cr |= hw.MACCRFES
	}
	if link.FullDuplex {
		cr |= hw.MACCRDM
	}
	mac.CR.Set(cr)

	dma.BMR.Set(hw.DMABMRAAB | hw.DMABMRFB | hw.DMABMRUSP | hw.DMABMREDFE |
		32<<hw.DMABMRRDPShift | 32<<hw.DMABMRPBLShift)
	dma.OMR.Set(hw.DMAOMRTSF | hw.DMAOMRRSF | hw.DMAOMROSF)

	return nil
}

func (b *DefaultBringUp) negotiate(mac *hw.MAC) (Link, error) {
	mdio := hw.MDIO{MAC: mac, Timeout: b.MDIOTimeout}
	phy := b.PHYAddress

	id, err := mdio.Read(phy, hw.PHYRegID1)
	if err != nil {
		return Link{}, err
	}
	if id == 0 || id == 0xffff {
		return Link{}, fmt.Errorf("%w at address %d", ErrPHYNotFound, phy)
	}

	if err := mdio.Write(phy, hw.PHYRegBCR, hw.PHYBCRReset); err != nil {
		return Link{}, err
	}
	err = pollUntil(orDefault(b.PHYResetTimeout, defaultPHYResetTimeout), func() (bool, error) {
		v, err := mdio.Read(phy, hw.PHYRegBCR)
		return v&hw.PHYBCRReset == 0, err
	})
	if err != nil {
		return Link{}, fmt.Errorf("%w: %w", ErrPHYResetTimeout, err)
	}

	if err := mdio.Write(phy, hw.PHYRegBCR, hw.PHYBCRAutoNegotiation|hw.PHYBCRRestartAutoNeg); err != nil {
		return Link{}, err
	}
	err = pollUntil(orDefault(b.AutoNegotiationTimeout, defaultAutoNegotiationTimeout), func() (bool, error) {
		v, err := mdio.Read(phy, hw.PHYRegBSR)
		return v&hw.PHYBSRAutoNegComplete != 0, err
	})
	if err != nil {
		return Link{}, fmt.Errorf("%w: %w", ErrAutoNegotiationTimeout, err)
	}

	scsr, err := mdio.Read(phy, hw.PHYRegSCSR)
	if err != nil {
		return Link{}, err
	}
	return linkFromSCSR(scsr)
}

func (b *DefaultBringUp) Start(mac *hw.MAC, dma *hw.DMA) {
	mac.CR.SetBits(hw.MACCRTE)
	dma.OMR.SetBits(hw.DMAOMRFTF)
	mac.CR.SetBits(hw.MACCRRE)
	dma.OMR.SetBits(hw.DMAOMRST | hw.DMAOMRSR)
}

var errPollTimeout = errors.New("timed out")

// pollUntil calls done until it reports true, returns an error, or timeout
// elapses.
func pollUntil(timeout time.Duration, done func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := done()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %s", errPollTimeout, timeout)
		}
		time.Sleep(bringUpPollInterval)
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
