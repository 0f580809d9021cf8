package ring

import (
	"testing"

	"github.com/ethmac/ethmac/dmamem"
	"github.com/stretchr/testify/require"
)

func newTestSpace(t *testing.T, size int) *dmamem.Space {
	t.Helper()
	s, err := dmamem.New(size, dmamem.DefaultBase)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestRxRing(t *testing.T, config RxConfig) *RxRing {
	t.Helper()
	r, err := NewRxRing(newTestSpace(t, config.MemorySize()), config)
	require.NoError(t, err)
	r.Arm()
	return r
}

func newTestTxRing(t *testing.T, config TxConfig) (*TxRing, *dmamem.Space) {
	t.Helper()
	s := newTestSpace(t, config.MemorySize())
	r, err := NewTxRing(s, config)
	require.NoError(t, err)
	return r, s
}

// deliver plays the DMA engine: it writes frame into the regions starting at
// descriptor start and releases each descriptor it filled. lastFlags are
// added to the status of the last descriptor. It returns the number of
// descriptors used.
func deliver(r *RxRing, start int, frame []byte, lastFlags uint32) int {
	remaining := frame
	for i := start; ; i++ {
		d := &r.descriptors[i]
		off := r.config.DescriptorBufferOffset(i)
		n := copy(r.buffer[off:off+d.BufferSize()], remaining)
		remaining = remaining[n:]

		status := uint32(0)
		if i == start {
			status |= RDES0FS
		}
		if len(remaining) == 0 {
			status |= RDES0LS | uint32(len(frame))<<RDES0FLShift | lastFlags
			d.Status.Store(status)
			return i - start + 1
		}
		d.Status.Store(status)
	}
}

// complete plays the DMA engine finishing transmission of slot i.
func complete(r *TxRing, i int, flags uint32) {
	d := &r.descriptors[i]
	d.Status.Store(d.Status.Load()&^TDES0OWN | flags)
}

func frameOf(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}
