// Package dmamem provides a bus addressed memory space shared between the
// driver and a DMA engine. Descriptors and buffers handed to the engine carry
// 32-bit bus addresses; Slice translates them back into memory.
package dmamem

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrOutOfMemory is returned when an allocation does not fit into the
	// remaining space.
	ErrOutOfMemory = errors.New("dma memory exhausted")

	// ErrBadAddress is returned when a bus address range lies outside the
	// space.
	ErrBadAddress = errors.New("bus address outside dma memory")

	// ErrClosed is returned when the space was already released.
	ErrClosed = errors.New("dma memory closed")
)

// DefaultBase is the bus address of the first byte of a [Space] when no other
// base is given. It matches the start of SRAM1 on STM32F7 parts.
const DefaultBase uint32 = 0x2002_0000

// Space is a contiguous block of memory addressed by 32-bit bus addresses.
// Allocations are never freed individually; the whole space is released with
// [Space.Close].
type Space struct {
	mu      sync.Mutex
	base    uint32
	mem     []byte
	next    int
	release func([]byte) error
}

// New maps size bytes of zeroed memory starting at bus address base.
func New(size int, base uint32) (*Space, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid dma memory size %d", size)
	}
	if uint64(base)+uint64(size) > 1<<32 {
		return nil, fmt.Errorf("dma memory of %d bytes at %#x exceeds the 32-bit bus", size, base)
	}

	mem, release, err := mapMemory(size)
	if err != nil {
		return nil, fmt.Errorf("map dma memory: %w", err)
	}

	return &Space{
		base:    base,
		mem:     mem,
		release: release,
	}, nil
}

// Alloc carves size bytes aligned to align out of the space and returns their
// bus address together with the backing memory.
func (s *Space) Alloc(size, align int) (uint32, []byte, error) {
	if size <= 0 {
		return 0, nil, fmt.Errorf("invalid allocation size %d", size)
	}
	if align <= 0 || align&(align-1) != 0 {
		return 0, nil, fmt.Errorf("alignment %d is not a power of 2", align)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mem == nil {
		return 0, nil, ErrClosed
	}

	// base is aligned to at least a page so aligning the offset is enough.
	start := (s.next + align - 1) &^ (align - 1)
	if start+size > len(s.mem) {
		return 0, nil, fmt.Errorf("%w: %d bytes requested, %d available",
			ErrOutOfMemory, size, len(s.mem)-start)
	}
	s.next = start + size

	return s.base + uint32(start), s.mem[start : start+size : start+size], nil
}

// Slice returns the n bytes starting at bus address addr.
func (s *Space) Slice(addr uint32, n int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mem == nil {
		return nil, ErrClosed
	}
	if n < 0 || addr < s.base || uint64(addr-s.base)+uint64(n) > uint64(len(s.mem)) {
		return nil, fmt.Errorf("%w: %#x+%d", ErrBadAddress, addr, n)
	}
	off := int(addr - s.base)
	return s.mem[off : off+n : off+n], nil
}

// Base returns the bus address of the first byte.
func (s *Space) Base() uint32 {
	return s.base
}

// Size returns the total size in bytes.
func (s *Space) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mem)
}

// Used returns the number of bytes handed out so far, alignment padding
// included.
func (s *Space) Used() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Close releases the memory. Any slice previously returned becomes invalid.
func (s *Space) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mem == nil {
		return nil
	}
	mem := s.mem
	s.mem = nil
	if err := s.release(mem); err != nil {
		return fmt.Errorf("release dma memory: %w", err)
	}
	return nil
}
