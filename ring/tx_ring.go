package ring

import (
	"fmt"
)

// slotState tracks whether a transmit slot holds a frame.
type slotState uint8

const (
	slotEmpty slotState = iota
	// slotQueued holds a frame that was handed to hardware and has not been
	// released yet. Whether hardware is done with it is told by OWN alone.
	slotQueued
)

// txSlot is the software half of a transmit descriptor.
type txSlot struct {
	state slotState
	frame []byte

	// dma is the slot's region in DMA memory the frame is staged into.
	dma  []byte
	addr uint32
}

// TxRing is the transmit descriptor ring. Each descriptor has a slot that
// owns the frame handed to hardware until a cleanup pass sees the descriptor
// released again.
type TxRing struct {
	descriptors []TxDescriptor
	slots       []txSlot
	tableAddr   uint32
	bufferSize  int
	wait        WaitStrategy

	// next is the index of the slot receiving the next frame.
	next int

	inFlight  int
	completed uint64
	errors    uint64
}

// NewTxRing allocates the descriptor table and one staging buffer per slot
// from mem. All descriptors start out owned by software.
func NewTxRing(mem Allocator, config TxConfig) (*TxRing, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	n := config.NumberOfDescriptors
	tableAddr, table, err := mem.Alloc(n*DescriptorSize, descriptorAlignment)
	if err != nil {
		return nil, fmt.Errorf("allocate tx descriptor table: %w", err)
	}

	slotSize := (config.BufferSize + 3) &^ 3
	buffersAddr, buffers, err := mem.Alloc(n*slotSize, 4)
	if err != nil {
		return nil, fmt.Errorf("allocate tx buffers: %w", err)
	}

	wait := config.Wait
	if wait == nil {
		wait = SpinWait{}
	}

	r := &TxRing{
		descriptors: TxDescriptors(table, n),
		slots:       make([]txSlot, n),
		tableAddr:   tableAddr,
		bufferSize:  config.BufferSize,
		wait:        wait,
	}

	for i := range r.descriptors {
		off := i * slotSize
		r.slots[i] = txSlot{
			dma:  buffers[off : off+config.BufferSize : off+config.BufferSize],
			addr: buffersAddr + uint32(off),
		}

		d := &r.descriptors[i]
		d.Buffer1.Store(r.slots[i].addr)
		d.Buffer2.Store(0)
		d.Control.Store(0)
		d.Status.Store(r.endOfRing(i))
	}

	return r, nil
}

func (r *TxRing) endOfRing(i int) uint32 {
	if i == len(r.descriptors)-1 {
		return TDES0TER
	}
	return 0
}

// FrontOfQueue returns the bus address of the first descriptor, the value
// for the transmit descriptor list address register.
func (r *TxRing) FrontOfQueue() uint32 {
	return r.tableAddr
}

// Len returns the number of descriptors.
func (r *TxRing) Len() int {
	return len(r.descriptors)
}

// Next returns the index of the slot receiving the next frame.
func (r *TxRing) Next() int {
	return r.next
}

// BufferSize returns the largest frame Insert accepts.
func (r *TxRing) BufferSize() int {
	return r.bufferSize
}

// InFlight returns the number of slots holding a frame.
func (r *TxRing) InFlight() int {
	return r.inFlight
}

// Completed returns the number of frames released after transmission.
func (r *TxRing) Completed() uint64 {
	return r.completed
}

// Errors returns the number of released frames hardware flagged with an
// error summary.
func (r *TxRing) Errors() uint64 {
	return r.errors
}

// DescriptorAvailable reports whether the slot at the cursor is owned by
// software.
func (r *TxRing) DescriptorAvailable() bool {
	return r.descriptors[r.next].Owner() == OwnerSoftware
}

// Insert takes ownership of frame and queues it for transmission. When the
// slot at the cursor is still owned by hardware Insert waits for it using the
// ring's [WaitStrategy]; callers normally check [TxRing.DescriptorAvailable]
// first. A cleanup pass runs after the frame was queued.
//
// Only frames that cannot be described fail: empty ones and ones larger than
// the configured buffer size.
func (r *TxRing) Insert(frame []byte) error {
	if len(frame) == 0 {
		return ErrFrameEmpty
	}
	if len(frame) > r.bufferSize {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(frame), r.bufferSize)
	}

	i := r.next
	d := &r.descriptors[i]
	r.wait.Wait(func() bool { return d.Owner() == OwnerSoftware })

	s := &r.slots[i]
	if s.state == slotQueued {
		r.release(i)
	}

	copy(s.dma, frame)
	s.frame = frame
	s.state = slotQueued
	r.inFlight++

	d.Control.Store(uint32(len(frame)) & TDES1TBS1Mask)
	d.Buffer1.Store(s.addr)
	d.Status.Store(TDES0OWN | TDES0IC | TDES0FS | TDES0LS | r.endOfRing(i))

	r.next = (i + 1) % len(r.descriptors)

	r.Cleanup()
	return nil
}

// Cleanup releases the frames of every slot hardware has handed back and
// returns how many it released. Calling it again without new completions
// releases nothing.
func (r *TxRing) Cleanup() int {
	released := 0
	for i := range r.slots {
		if r.slots[i].state == slotQueued && r.descriptors[i].Owner() == OwnerSoftware {
			r.release(i)
			released++
		}
	}
	return released
}

// Flush releases every queued frame whether or not it was sent and takes all
// descriptors back from hardware. It must only be called once the transmit
// DMA is stopped. It returns the number of frames that were still owned by
// hardware.
func (r *TxRing) Flush() int {
	dropped := 0
	for i := range r.slots {
		d := &r.descriptors[i]
		if d.Owner() == OwnerHardware {
			dropped++
		}
		d.Status.Store(r.endOfRing(i))
		if s := &r.slots[i]; s.state == slotQueued {
			s.frame = nil
			s.state = slotEmpty
			r.inFlight--
		}
	}
	r.next = 0
	return dropped
}

func (r *TxRing) release(i int) {
	if r.descriptors[i].Status.Load()&TDES0ES != 0 {
		r.errors++
	}
	s := &r.slots[i]
	s.frame = nil
	s.state = slotEmpty
	r.inFlight--
	r.completed++
}
