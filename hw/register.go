// Package hw models the memory mapped register blocks of an STM32F7 class
// Ethernet peripheral. Every register is a 32-bit word accessed atomically so
// that the driver and a concurrently running DMA engine observe each store in
// program order.
package hw

import (
	"gvisor.dev/gvisor/pkg/atomicbitops"
)

// Register32 is a single 32-bit peripheral register.
type Register32 struct {
	v atomicbitops.Uint32
}

// Get loads the register.
func (r *Register32) Get() uint32 {
	return r.v.Load()
}

// Set stores v into the register.
func (r *Register32) Set(v uint32) {
	r.v.Store(v)
}

// Swap stores v and returns the previous contents.
func (r *Register32) Swap(v uint32) uint32 {
	return r.v.Swap(v)
}

// SetBits sets every bit in mask, leaving the others untouched.
func (r *Register32) SetBits(mask uint32) {
	r.ReplaceBits(mask, mask)
}

// ClearBits clears every bit in mask, leaving the others untouched.
func (r *Register32) ClearBits(mask uint32) {
	r.ReplaceBits(0, mask)
}

// HasBits reports whether all bits in mask are set.
func (r *Register32) HasBits(mask uint32) bool {
	return r.v.Load()&mask == mask
}

// ReplaceBits replaces the bits selected by mask with the matching bits of
// value as one atomic read-modify-write.
func (r *Register32) ReplaceBits(value, mask uint32) {
	for {
		old := r.v.Load()
		if r.v.CompareAndSwap(old, old&^mask|value&mask) {
			return
		}
	}
}

// Field extracts the bits selected by mask, shifted down by shift.
func (r *Register32) Field(mask uint32, shift uint) uint32 {
	return (r.v.Load() & mask) >> shift
}
