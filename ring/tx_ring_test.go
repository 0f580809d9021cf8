package ring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallTxConfig(n int) TxConfig {
	return TxConfig{
		NumberOfDescriptors: n,
		BufferSize:          128,
		Wait:                YieldWait{},
	}
}

func TestTxRing_New(t *testing.T) {
	r, s := newTestTxRing(t, smallTxConfig(4))

	assert.Equal(t, 4, r.Len())
	assert.Equal(t, s.Base(), r.FrontOfQueue())
	assert.True(t, r.DescriptorAvailable())
	for i := range r.descriptors {
		assert.Equal(t, OwnerSoftware, r.descriptors[i].Owner())
		assert.Equal(t, i == 3, r.descriptors[i].EndOfRing())
	}
}

func TestTxRing_New_InvalidConfig(t *testing.T) {
	_, err := NewTxRing(newTestSpace(t, 4096), TxConfig{NumberOfDescriptors: 0, BufferSize: 64})
	assert.ErrorIs(t, err, ErrConfigInvalid)
}

func TestTxRing_Insert(t *testing.T) {
	r, s := newTestTxRing(t, smallTxConfig(4))
	frame := frameOf(60)

	require.NoError(t, r.Insert(frame))

	d := &r.descriptors[0]
	assert.Equal(t, OwnerHardware, d.Owner())
	assert.Equal(t, TDES0OWN|TDES0IC|TDES0FS|TDES0LS, d.Status.Load())
	assert.Equal(t, 60, d.BufferSize())

	staged, err := s.Slice(d.Buffer1.Load(), d.BufferSize())
	require.NoError(t, err)
	assert.Equal(t, frame, staged)

	assert.Equal(t, 1, r.Next())
	assert.Equal(t, 1, r.InFlight())
	assert.Equal(t, slotQueued, r.slots[0].state)
}

func TestTxRing_Insert_Invalid(t *testing.T) {
	r, _ := newTestTxRing(t, smallTxConfig(4))

	assert.ErrorIs(t, r.Insert(nil), ErrFrameEmpty)
	err := r.Insert(frameOf(129))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.EqualError(t, err, "frame exceeds transmit buffer size: 129 > 128")
	assert.Equal(t, 0, r.Next())
	assert.Equal(t, 0, r.InFlight())
}

func TestTxRing_EndOfRingKept(t *testing.T) {
	r, _ := newTestTxRing(t, smallTxConfig(2))
	require.NoError(t, r.Insert(frameOf(1)))
	require.NoError(t, r.Insert(frameOf(1)))

	assert.True(t, r.descriptors[1].EndOfRing())
	assert.Equal(t, TDES0OWN|TDES0IC|TDES0FS|TDES0LS|TDES0TER, r.descriptors[1].Status.Load())
	assert.Equal(t, 0, r.Next())
}

func TestTxRing_Wraparound(t *testing.T) {
	const m = 4
	r, _ := newTestTxRing(t, smallTxConfig(m))

	for i := 0; i < m; i++ {
		require.NoError(t, r.Insert(frameOf(10+i)))
	}
	assert.False(t, r.DescriptorAvailable())
	assert.Equal(t, m, r.InFlight())

	done := make(chan error)
	go func() {
		done <- r.Insert(frameOf(99))
	}()

	select {
	case <-done:
		t.Fatal("insert into a full ring returned before a slot was freed")
	case <-time.After(50 * time.Millisecond):
	}

	complete(r, 0, 0)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("insert did not return after slot 0 was freed")
	}

	assert.Equal(t, 1, r.Next())
	assert.Equal(t, 99, r.descriptors[0].BufferSize())
	assert.Equal(t, OwnerHardware, r.descriptors[0].Owner())
	assert.EqualValues(t, 1, r.Completed())
	assert.Equal(t, m, r.InFlight())
}

func TestTxRing_CleanupIdempotent(t *testing.T) {
	r, _ := newTestTxRing(t, smallTxConfig(4))
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Insert(frameOf(8)))
	}

	complete(r, 0, 0)
	complete(r, 1, TDES0ES|TDES0UF)

	assert.Equal(t, 2, r.Cleanup())
	assert.Equal(t, 0, r.Cleanup())
	assert.EqualValues(t, 2, r.Completed())
	assert.EqualValues(t, 1, r.Errors())
	assert.Equal(t, 1, r.InFlight())
	assert.Nil(t, r.slots[0].frame)
	assert.Equal(t, slotEmpty, r.slots[1].state)
	assert.Equal(t, slotQueued, r.slots[2].state)
}

func TestTxRing_InsertReleasesCompletedSlot(t *testing.T) {
	r, _ := newTestTxRing(t, smallTxConfig(1))
	require.NoError(t, r.Insert(frameOf(8)))
	complete(r, 0, 0)

	// The cleanup pass of the first insert ran before completion; the second
	// insert reclaims the slot itself.
	require.NoError(t, r.Insert(frameOf(9)))
	assert.EqualValues(t, 1, r.Completed())
	assert.Equal(t, 1, r.InFlight())
}

func TestTxRing_Flush(t *testing.T) {
	r, _ := newTestTxRing(t, smallTxConfig(4))
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Insert(frameOf(8)))
	}
	complete(r, 0, 0)

	assert.Equal(t, 2, r.Flush())
	assert.Equal(t, 0, r.InFlight())
	assert.Equal(t, 0, r.Next())
	for i := range r.descriptors {
		assert.Equal(t, OwnerSoftware, r.descriptors[i].Owner())
	}
	assert.True(t, r.descriptors[3].EndOfRing())
}
