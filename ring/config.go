package ring

import "fmt"

// MTU is the largest frame, in bytes, the rings are sized for.
const MTU = 1536

// RxConfig describes the receive ring. The backing buffer is split into
// NumberOfDescriptors regions: every region but the last holds
// DefaultDescriptorBufferSize bytes and the last one holds the remainder.
// Frames never wrap from the last descriptor to the first, so the last region
// must be able to hold a whole frame.
type RxConfig struct {
	BufferSize                  int
	NumberOfDescriptors         int
	DefaultDescriptorBufferSize int
}

// DefaultRxConfig returns 128 descriptors of 64 bytes with a last region
// large enough for one MTU sized frame.
func DefaultRxConfig() RxConfig {
	const (
		descriptors = 128
		regionSize  = 64
	)
	return RxConfig{
		BufferSize:                  regionSize*(descriptors-1) + MTU,
		NumberOfDescriptors:         descriptors,
		DefaultDescriptorBufferSize: regionSize,
	}
}

// Validate returns an [ErrConfigInvalid] if the ring cannot be built.
func (c RxConfig) Validate() error {
	if c.NumberOfDescriptors <= 0 {
		return fmt.Errorf("%w: rx descriptor count %d is too small", ErrConfigInvalid, c.NumberOfDescriptors)
	}
	if c.DefaultDescriptorBufferSize <= 0 || c.DefaultDescriptorBufferSize > maxBufferSize {
		return fmt.Errorf("%w: rx descriptor buffer size %d is not within 1 and %d",
			ErrConfigInvalid, c.DefaultDescriptorBufferSize, maxBufferSize)
	}
	last := c.DescriptorBufferSize(c.NumberOfDescriptors - 1)
	if last <= 0 {
		return fmt.Errorf("%w: rx buffer size %d leaves no room for the last descriptor",
			ErrConfigInvalid, c.BufferSize)
	}
	if last > maxBufferSize {
		return fmt.Errorf("%w: last rx descriptor buffer of %d bytes is larger than %d",
			ErrConfigInvalid, last, maxBufferSize)
	}
	return nil
}

// DescriptorBufferSize returns the size of region i.
func (c RxConfig) DescriptorBufferSize(i int) int {
	defaults := c.NumberOfDescriptors - 1
	if i == defaults {
		return c.BufferSize - defaults*c.DefaultDescriptorBufferSize
	}
	return c.DefaultDescriptorBufferSize
}

// DescriptorBufferOffset returns the offset of region i in the backing buffer.
func (c RxConfig) DescriptorBufferOffset(i int) int {
	return i * c.DefaultDescriptorBufferSize
}

// MemorySize returns the DMA memory needed by the ring, alignment included.
func (c RxConfig) MemorySize() int {
	return c.NumberOfDescriptors*DescriptorSize + descriptorAlignment + c.BufferSize + 4
}

// TxConfig describes the transmit ring.
type TxConfig struct {
	NumberOfDescriptors int
	// BufferSize is the largest frame a single descriptor can carry.
	BufferSize int
	// Wait decides how Insert waits for a busy slot. Nil spins.
	Wait WaitStrategy
}

// DefaultTxConfig returns 64 descriptors of MTU sized buffers.
func DefaultTxConfig() TxConfig {
	return TxConfig{
		NumberOfDescriptors: 64,
		BufferSize:          MTU,
		Wait:                SpinWait{},
	}
}

// Validate returns an [ErrConfigInvalid] if the ring cannot be built.
func (c TxConfig) Validate() error {
	if c.NumberOfDescriptors <= 0 {
		return fmt.Errorf("%w: tx descriptor count %d is too small", ErrConfigInvalid, c.NumberOfDescriptors)
	}
	if c.BufferSize <= 0 || c.BufferSize > maxBufferSize {
		return fmt.Errorf("%w: tx buffer size %d is not within 1 and %d",
			ErrConfigInvalid, c.BufferSize, maxBufferSize)
	}
	return nil
}

// MemorySize returns the DMA memory needed by the ring, alignment included.
func (c TxConfig) MemorySize() int {
	slot := (c.BufferSize + 3) &^ 3
	return c.NumberOfDescriptors*DescriptorSize + descriptorAlignment + c.NumberOfDescriptors*slot + 4
}
