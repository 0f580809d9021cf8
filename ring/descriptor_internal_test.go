package ring

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestDescriptor_Size(t *testing.T) {
	var rx RxDescriptor
	var tx TxDescriptor
	assert.EqualValues(t, DescriptorSize, unsafe.Sizeof(rx))
	assert.EqualValues(t, DescriptorSize, unsafe.Sizeof(tx))
}

func TestDescriptor_MemoryLayout(t *testing.T) {
	var rx RxDescriptor
	assert.EqualValues(t, 4, unsafe.Offsetof(rx.Control))
	assert.EqualValues(t, 8, unsafe.Offsetof(rx.Buffer1))
	assert.EqualValues(t, 16, unsafe.Offsetof(rx.ExtStatus))
	assert.EqualValues(t, 28, unsafe.Offsetof(rx.TimeHigh))

	var tx TxDescriptor
	assert.EqualValues(t, 4, unsafe.Offsetof(tx.Control))
	assert.EqualValues(t, 8, unsafe.Offsetof(tx.Buffer1))
	assert.EqualValues(t, 24, unsafe.Offsetof(tx.TimeLow))
}

func TestDescriptors_Table(t *testing.T) {
	mem := make([]byte, 3*DescriptorSize)
	rx := RxDescriptors(mem, 3)
	assert.Len(t, rx, 3)

	rx[1].Status.Store(RDES0OWN)
	assert.Equal(t, OwnerHardware, ownerOf(*(*uint32)(unsafe.Pointer(&mem[DescriptorSize]))))

	assert.Panics(t, func() { TxDescriptors(mem, 2) })
	assert.Panics(t, func() { RxDescriptors(nil, 0) })
}

func TestRxStatus(t *testing.T) {
	s := RxStatus(RDES0FS | RDES0LS | 1514<<RDES0FLShift | RDES0ESA)
	assert.Equal(t, OwnerSoftware, s.Owner())
	assert.True(t, s.FirstSegment())
	assert.True(t, s.LastSegment())
	assert.Equal(t, 1514, s.FrameLength())
	assert.NoError(t, s.Err())

	tests := []struct {
		ext  uint32
		want ChecksumStatus
	}{
		{ext: RDES4IPV4, want: ChecksumVerified},
		{ext: RDES4IPV6 | RDES4IPCB, want: ChecksumBypassed},
		{ext: RDES4IPV4 | RDES4IPHE, want: ChecksumHeaderError},
		{ext: RDES4IPV4 | RDES4IPPE, want: ChecksumPayloadError},
		{ext: RDES4IPHE | RDES4IPPE, want: ChecksumHeaderAndPayloadError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.Checksum(tt.ext), tt.want.String())
	}

	assert.Equal(t, ChecksumUnavailable, RxStatus(RDES0FS).Checksum(RDES4IPHE))
	assert.False(t, ChecksumBypassed.IsError())
	assert.True(t, ChecksumPayloadError.IsError())
}
