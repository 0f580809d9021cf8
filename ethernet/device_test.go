package ethernet

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/ethmac/ethmac/dmamem"
	"github.com/ethmac/ethmac/hw"
	"github.com/ethmac/ethmac/ring"
	"github.com/ethmac/ethmac/test"
	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAddr = net.HardwareAddr{0x00, 0x08, 0xdc, 0xab, 0xcd, 0xef}

type recordingBringUp struct {
	err     error
	inits   int
	starts  int
	started func(mac *hw.MAC, dma *hw.DMA)
}

func (b *recordingBringUp) Init(*hw.RCC, *hw.SYSCFG, *hw.MAC, *hw.DMA) error {
	b.inits++
	return b.err
}

func (b *recordingBringUp) Start(mac *hw.MAC, dma *hw.DMA) {
	b.starts++
	if b.started != nil {
		b.started(mac, dma)
	}
}

func testRxConfig() ring.RxConfig {
	return ring.RxConfig{BufferSize: 32*3 + MTU, NumberOfDescriptors: 4, DefaultDescriptorBufferSize: 32}
}

func testTxConfig() ring.TxConfig {
	return ring.TxConfig{NumberOfDescriptors: 2, BufferSize: MTU, Wait: ring.YieldWait{}}
}

func newTestDevice(t *testing.T, options ...Option) (*Device, *hw.Peripheral, metrics.Registry) {
	t.Helper()
	p := hw.NewPeripheral()
	r := metrics.NewRegistry()
	options = append([]Option{
		WithLogger(test.NewLogger()),
		WithMetricsRegistry(r),
		WithBringUp(&recordingBringUp{}),
		WithTeardownTimeout(20 * time.Millisecond),
	}, options...)

	dev, err := New(testRxConfig(), testTxConfig(), &p.RCC, &p.SYSCFG, &p.MAC, &p.DMA, testAddr, options...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })
	return dev, p, r
}

// deliver plays the DMA engine writing a single descriptor frame into the
// descriptor at the head of the receive ring.
func deliver(t *testing.T, dev *Device, p *hw.Peripheral, frame []byte, flags uint32) {
	t.Helper()
	table, err := dev.mem.Slice(p.DMA.RDLAR.Get(), dev.rx.Len()*ring.DescriptorSize)
	require.NoError(t, err)
	d := &ring.RxDescriptors(table, dev.rx.Len())[dev.rx.Next()]
	require.Equal(t, ring.OwnerHardware, d.Owner())

	buf, err := dev.mem.Slice(d.Buffer1.Load(), d.BufferSize())
	require.NoError(t, err)
	copy(buf, frame)
	d.Status.Store(ring.RDES0FS | ring.RDES0LS | uint32(len(frame))<<ring.RDES0FLShift | flags)
}

func counter(r metrics.Registry, name string) int64 {
	c, ok := r.Get(name).(metrics.Counter)
	if !ok {
		return -1
	}
	return c.Count()
}

func TestNew(t *testing.T) {
	b := &recordingBringUp{}
	var rdlar, tdlar uint32
	b.started = func(mac *hw.MAC, dma *hw.DMA) {
		rdlar, tdlar = dma.RDLAR.Get(), dma.TDLAR.Get()
	}
	dev, p, _ := newTestDevice(t, WithBringUp(b))

	assert.Equal(t, 1, b.inits)
	assert.Equal(t, 1, b.starts)

	// Rings and address are in place before the DMA is started.
	assert.Equal(t, dev.rx.FrontOfQueue(), rdlar)
	assert.Equal(t, dev.tx.FrontOfQueue(), tdlar)
	assert.Equal(t, uint32(0xabdc0800), p.MAC.A0LR.Get())
	assert.Equal(t, hw.MACA0HRMO|0xefcd, p.MAC.A0HR.Get())
	assert.Equal(t, testAddr, dev.HardwareAddr())

	assert.Equal(t, Capabilities{MaxTransmissionUnit: 1536}, dev.Capabilities())
	assert.True(t, dev.ownsMemory)
}

func TestNew_InitializationError(t *testing.T) {
	p := hw.NewPeripheral()
	b := &recordingBringUp{err: ErrPHYNotFound}

	_, err := New(testRxConfig(), testTxConfig(), &p.RCC, &p.SYSCFG, &p.MAC, &p.DMA, testAddr,
		WithLogger(test.NewLogger()), WithMetricsRegistry(metrics.NewRegistry()), WithBringUp(b))

	assert.ErrorIs(t, err, ErrInitialization)
	assert.ErrorIs(t, err, ErrPHYNotFound)
	var ie *InitializationError
	require.ErrorAs(t, err, &ie)
	assert.EqualError(t, err, "ethernet initialization failed: no phy responding")
	assert.Equal(t, 0, b.starts)
	assert.Zero(t, p.DMA.RDLAR.Get())
}

func TestNew_InvalidInput(t *testing.T) {
	p := hw.NewPeripheral()
	_, err := New(testRxConfig(), testTxConfig(), &p.RCC, &p.SYSCFG, &p.MAC, &p.DMA, net.HardwareAddr{1, 2, 3},
		WithBringUp(&recordingBringUp{}))
	assert.EqualError(t, err, `invalid hardware address "01:02:03"`)

	_, err = New(testRxConfig(), testTxConfig(), &p.RCC, &p.SYSCFG, &p.MAC, &p.DMA, testAddr,
		WithBringUp(nil))
	assert.EqualError(t, err, "invalid options: bring-up is required")

	_, err = New(ring.RxConfig{}, testTxConfig(), &p.RCC, &p.SYSCFG, &p.MAC, &p.DMA, testAddr,
		WithLogger(test.NewLogger()), WithMetricsRegistry(metrics.NewRegistry()), WithBringUp(&recordingBringUp{}))
	assert.ErrorIs(t, err, ring.ErrConfigInvalid)
}

func TestStartSend(t *testing.T) {
	tests := []struct {
		state    hw.TransmitProcessState
		demanded bool
		panics   bool
	}{
		{state: hw.TxStopped, panics: true},
		{state: hw.TxRunningFetching},
		{state: hw.TxRunningWaiting},
		{state: hw.TxRunningReading},
		{state: hw.TxRunningClosing},
		{state: hw.TxSuspended, demanded: true},
		{state: 4, panics: true},
		{state: 5, panics: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.state.String(), func(t *testing.T) {
			var dma hw.DMA
			dma.SetTransmitState(tt.state)

			if tt.panics {
				assert.Panics(t, func() { startSend(&dma) })
				assert.Zero(t, dma.TPDR.Get())
				return
			}
			assert.Equal(t, tt.demanded, startSend(&dma))
			if tt.demanded {
				assert.Equal(t, hw.PollDemand, dma.TPDR.Get())
			} else {
				assert.Zero(t, dma.TPDR.Get())
			}
		})
	}
}

func TestDevice_Receive(t *testing.T) {
	dev, p, r := newTestDevice(t)

	_, ok := dev.Receive()
	assert.False(t, ok)

	frame := []byte("a frame within a single region")
	deliver(t, dev, p, frame, 0)

	tok, ok := dev.Receive()
	require.True(t, ok)
	var got []byte
	require.NoError(t, tok.Consume(func(b []byte) error {
		got = append([]byte(nil), b...)
		return nil
	}))
	assert.Equal(t, frame, got)
	assert.Equal(t, 1, dev.rx.Next())
	assert.EqualValues(t, 1, counter(r, "ethernet.rx.frames"))
	assert.EqualValues(t, len(frame), counter(r, "ethernet.rx.bytes"))

	assert.ErrorIs(t, tok.Consume(func([]byte) error { return nil }), ErrTokenConsumed)
	_, ok = dev.Receive()
	assert.False(t, ok)
}

func TestDevice_ReceiveErrors(t *testing.T) {
	dev, p, r := newTestDevice(t)

	deliver(t, dev, p, make([]byte, 20), ring.RDES0ES|ring.RDES0CE|ring.RDES0OE)
	tok, ok := dev.Receive()
	require.True(t, ok)
	err := tok.Consume(func([]byte) error {
		t.Fatal("consumer called for a corrupt frame")
		return nil
	})
	assert.ErrorIs(t, err, ErrTruncated)
	assert.ErrorIs(t, err, ring.ErrCRC)
	assert.NotErrorIs(t, err, ring.ErrOverflow)
	assert.EqualValues(t, 1, counter(r, "ethernet.rx.errors.crc"))

	// Errors of the consumer are passed through without wrapping.
	deliver(t, dev, p, make([]byte, 20), 0)
	parseErr := errors.New("unparsable")
	tok, ok = dev.Receive()
	require.True(t, ok)
	assert.Equal(t, parseErr, tok.Consume(func([]byte) error { return parseErr }))
	assert.Equal(t, 2, dev.rx.Next())
}

func TestDevice_FrameHook(t *testing.T) {
	var dirs []Direction
	var lengths []int
	dev, p, _ := newTestDevice(t, WithFrameHook(func(dir Direction, b []byte) {
		dirs = append(dirs, dir)
		lengths = append(lengths, len(b))
	}))
	p.DMA.SetTransmitState(hw.TxRunningWaiting)

	deliver(t, dev, p, make([]byte, 10), 0)
	tok, ok := dev.Receive()
	require.True(t, ok)
	require.NoError(t, tok.Consume(func([]byte) error { return nil }))

	txTok, ok := dev.Transmit()
	require.True(t, ok)
	require.NoError(t, txTok.Consume(60, func([]byte) error { return nil }))

	assert.Equal(t, []Direction{DirectionReceived, DirectionTransmitted}, dirs)
	assert.Equal(t, []int{10, 60}, lengths)
}

func TestDevice_Transmit(t *testing.T) {
	dev, p, r := newTestDevice(t)
	p.DMA.SetTransmitState(hw.TxSuspended)

	tok, ok := dev.Transmit()
	require.True(t, ok)
	require.NoError(t, tok.Consume(64, func(b []byte) error {
		assert.Equal(t, make([]byte, 64), b)
		copy(b, "hello")
		return nil
	}))

	assert.Equal(t, 1, dev.InFlight())
	assert.Equal(t, hw.PollDemand, p.DMA.TPDR.Get())
	assert.EqualValues(t, 1, counter(r, "ethernet.tx.frames"))
	assert.EqualValues(t, 64, counter(r, "ethernet.tx.bytes"))
	assert.EqualValues(t, 1, counter(r, "ethernet.tx.poll_demand"))
	assert.ErrorIs(t, tok.Consume(1, func([]byte) error { return nil }), ErrTokenConsumed)

	// The second slot is still free, the ring of two is full afterwards.
	p.DMA.SetTransmitState(hw.TxRunningFetching)
	tok, ok = dev.Transmit()
	require.True(t, ok)
	require.NoError(t, tok.Consume(64, func([]byte) error { return nil }))
	_, ok = dev.Transmit()
	assert.False(t, ok)
}

func TestDevice_TransmitFailures(t *testing.T) {
	dev, p, _ := newTestDevice(t)
	p.DMA.SetTransmitState(hw.TxSuspended)

	fillErr := errors.New("no route")
	tok, ok := dev.Transmit()
	require.True(t, ok)
	assert.Equal(t, fillErr, tok.Consume(64, func([]byte) error { return fillErr }))
	assert.Equal(t, 0, dev.InFlight())
	assert.Zero(t, p.DMA.TPDR.Get())

	tok, ok = dev.Transmit()
	require.True(t, ok)
	err := tok.Consume(MTU+1, func([]byte) error {
		t.Fatal("called for an oversized frame")
		return nil
	})
	assert.ErrorIs(t, err, ErrUnknown)
	assert.Equal(t, 0, dev.InFlight())
}

func TestDevice_Close(t *testing.T) {
	dev, p, _ := newTestDevice(t)
	p.DMA.OMR.SetBits(hw.DMAOMRST | hw.DMAOMRSR)
	p.MAC.CR.SetBits(hw.MACCRTE | hw.MACCRRE)

	// The DMA engine keeps running: teardown must not release memory.
	p.DMA.SetTransmitState(hw.TxRunningFetching)
	err := dev.Close()
	require.ErrorIs(t, err, ErrTeardownTimeout)
	assert.EqualError(t, err, "dma did not stop in time: transmit running (fetching descriptor), receive stopped")
	assert.False(t, p.DMA.OMR.HasBits(hw.DMAOMRST))
	assert.False(t, p.DMA.OMR.HasBits(hw.DMAOMRSR))
	assert.False(t, p.MAC.CR.HasBits(hw.MACCRTE))
	_, err = dev.mem.Slice(dev.mem.Base(), 1)
	assert.NoError(t, err)

	p.DMA.SetTransmitState(hw.TxStopped)
	require.NoError(t, dev.Close())
	_, err = dev.mem.Slice(dev.mem.Base(), 1)
	assert.ErrorIs(t, err, dmamem.ErrClosed)

	_, ok := dev.Receive()
	assert.False(t, ok)
	_, ok = dev.Transmit()
	assert.False(t, ok)
	assert.NoError(t, dev.Close())
}
