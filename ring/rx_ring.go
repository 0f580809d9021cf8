package ring

import (
	"fmt"
)

// Allocator hands out DMA visible memory together with its bus address.
// [*dmamem.Space] is the usual implementation.
type Allocator interface {
	Alloc(size, align int) (uint32, []byte, error)
}

// RxRing is the receive descriptor ring. Hardware fills the regions of a
// frame front to back and clears OWN on each descriptor it closes; software
// consumes the frame once the descriptor carrying the last segment is back.
type RxRing struct {
	config      RxConfig
	descriptors []RxDescriptor
	tableAddr   uint32
	buffer      []byte

	// next is the index of the descriptor expected to start the next frame.
	next int
}

// NewRxRing allocates the descriptor table and the backing buffer from mem
// and binds every descriptor to its region. All descriptors start out owned
// by software; call [RxRing.Arm] before starting the receive DMA.
func NewRxRing(mem Allocator, config RxConfig) (*RxRing, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	n := config.NumberOfDescriptors
	tableAddr, table, err := mem.Alloc(n*DescriptorSize, descriptorAlignment)
	if err != nil {
		return nil, fmt.Errorf("allocate rx descriptor table: %w", err)
	}
	bufferAddr, buffer, err := mem.Alloc(config.BufferSize, 4)
	if err != nil {
		return nil, fmt.Errorf("allocate rx buffer: %w", err)
	}

	r := &RxRing{
		config:      config,
		descriptors: RxDescriptors(table, n),
		tableAddr:   tableAddr,
		buffer:      buffer,
	}

	for i := range r.descriptors {
		control := uint32(config.DescriptorBufferSize(i)) & RDES1RBS1Mask
		if i == n-1 {
			control |= RDES1RER
		}

		d := &r.descriptors[i]
		d.Buffer1.Store(bufferAddr + uint32(config.DescriptorBufferOffset(i)))
		d.Buffer2.Store(0)
		d.Control.Store(control)
		d.ExtStatus.Store(0)
		d.Status.Store(0)
	}

	return r, nil
}

// Arm hands every descriptor to hardware and rewinds the cursor. It must only
// be called while the receive DMA is stopped.
func (r *RxRing) Arm() {
	for i := range r.descriptors {
		r.descriptors[i].Arm()
	}
	r.next = 0
}

// FrontOfQueue returns the bus address of the first descriptor, the value
// for the receive descriptor list address register.
func (r *RxRing) FrontOfQueue() uint32 {
	return r.tableAddr
}

// Len returns the number of descriptors.
func (r *RxRing) Len() int {
	return len(r.descriptors)
}

// Next returns the index of the descriptor expected to start the next frame.
func (r *RxRing) Next() int {
	return r.next
}

// NewDataReceived reports whether the descriptor at the cursor was released
// by hardware and starts a frame. It never blocks.
func (r *RxRing) NewDataReceived() bool {
	s := RxStatus(r.descriptors[r.next].Status.Load())
	return s.Owner() == OwnerSoftware && s.FirstSegment()
}

// Receive hands the next complete frame to consume.
//
// It returns [ErrExhausted] without side effects when no frame or only part of
// one has arrived. Frames flagged by hardware are dropped and reported with a
// [*ChecksumError] or one of the frame integrity errors; an error returned by
// consume comes back as a [*ProcessingError]. In all of these cases every
// descriptor of the frame is handed back to hardware and the cursor moves past
// the frame.
//
// consume must neither modify nor retain the slice; its memory is reused by
// hardware as soon as Receive returns.
//
// Receive panics if a frame runs past the last descriptor, which means the
// last region is too small for the frames the hardware accepts.
func (r *RxRing) Receive(consume func(frame []byte) error) error {
	start := r.next
	first := RxStatus(r.descriptors[start].Status.Load())
	if first.Owner() == OwnerHardware || !first.FirstSegment() {
		return ErrExhausted
	}

	var err error
	if cs := first.Checksum(r.descriptors[start].ExtStatus.Load()); cs.IsError() {
		err = &ChecksumError{Status: cs}
	}

	last, status := start, first
	for !status.LastSegment() {
		last++
		if last >= len(r.descriptors) {
			panic(fmt.Sprintf("frame starting at rx descriptor %d runs past the last of %d descriptors: "+
				"the last descriptor buffer must be large enough to hold a frame without wrap-around",
				start, len(r.descriptors)))
		}
		status = RxStatus(r.descriptors[last].Status.Load())
		if status.Owner() == OwnerHardware {
			// Hardware is still writing this frame.
			return ErrExhausted
		}
	}

	if err == nil {
		err = status.Err()
	}

	if err == nil {
		offset := r.config.DescriptorBufferOffset(start)
		end := r.config.DescriptorBufferOffset(last) + r.config.DescriptorBufferSize(last)
		length := status.FrameLength()
		if offset+length > end {
			err = ErrDescriptor
		} else if perr := consume(r.buffer[offset : offset+length : offset+length]); perr != nil {
			err = &ProcessingError{Err: perr}
		}
	}

	for i := start; i <= last; i++ {
		r.descriptors[i].Arm()
	}
	r.next = (last + 1) % len(r.descriptors)

	return err
}
