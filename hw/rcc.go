package hw

// RCC holds the reset and clock control registers the Ethernet bring-up
// touches. It is not a complete RCC block.
type RCC struct {
	AHB1RSTR Register32
	AHB1ENR  Register32
	APB2ENR  Register32
}

// RCC bits.
const (
	RCCAHB1ENRETHMACEN   uint32 = 1 << 25
	RCCAHB1ENRETHMACTXEN uint32 = 1 << 26
	RCCAHB1ENRETHMACRXEN uint32 = 1 << 27
	RCCAHB1RSTRETHMACRST uint32 = 1 << 25
	RCCAPB2ENRSYSCFGEN   uint32 = 1 << 14
)

// SYSCFG holds the system configuration registers used by the bring-up.
type SYSCFG struct {
	MEMRMP Register32 // 0x00 memory remap
	PMC    Register32 // 0x04 peripheral mode configuration
}

// SYSCFGPMCMIIRMIISEL selects the RMII interface when set.
const SYSCFGPMCMIIRMIISEL uint32 = 1 << 23

// Peripheral groups every register block the Ethernet driver needs.
type Peripheral struct {
	RCC    RCC
	SYSCFG SYSCFG
	MAC    MAC
	DMA    DMA
}

// NewPeripheral returns a register set in its reset state.
func NewPeripheral() *Peripheral {
	p := &Peripheral{}
	p.MAC.A0HR.Set(MACA0HRMO | 0xffff)
	p.MAC.A0LR.Set(0xffffffff)
	p.DMA.BMR.Set(0x00020101)
	return p
}
