package netif_test

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/ethmac/ethmac/dmamem"
	"github.com/ethmac/ethmac/ethernet"
	"github.com/ethmac/ethmac/hw"
	"github.com/ethmac/ethmac/netif"
	"github.com/ethmac/ethmac/ring"
	"github.com/ethmac/ethmac/sim"
	"github.com/ethmac/ethmac/test"
	"github.com/ethmac/ethmac/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/adapters/gonet"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv4"
)

type station struct {
	dev   *ethernet.Device
	iface *netif.Interface
}

// newStation brings up a simulated peripheral cabled to port and attaches
// an interface with addr to it. Everything runs until ctx is done.
func newStation(t *testing.T, ctx context.Context, eg *errgroup.Group, port wire.Port, hwaddr net.HardwareAddr, addr string) *station {
	t.Helper()
	l := test.NewLogger()
	rxConfig := ring.DefaultRxConfig()
	txConfig := ring.TxConfig{NumberOfDescriptors: 16, BufferSize: ring.MTU, Wait: ring.YieldWait{}}

	mem, err := dmamem.New(rxConfig.MemorySize()+txConfig.MemorySize(), dmamem.DefaultBase)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })

	p := hw.NewPeripheral()
	engine := sim.New(l, sim.DefaultConfig(), p, mem, port)
	eg.Go(func() error {
		_ = engine.Run(ctx)
		return nil
	})

	dev, err := ethernet.New(rxConfig, txConfig, &p.RCC, &p.SYSCFG, &p.MAC, &p.DMA, hwaddr,
		ethernet.WithLogger(l),
		ethernet.WithMemory(mem),
	)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return p.DMA.TransmitState() != hw.TxStopped
	}, 5*time.Second, time.Millisecond)

	iface, err := netif.New(dev, hwaddr, netip.MustParsePrefix(addr),
		netif.WithLogger(l),
		netif.WithPollInterval(100*time.Microsecond),
	)
	require.NoError(t, err)

	eg.Go(func() error {
		if err := iface.Run(ctx); ctx.Err() == nil {
			return err
		}
		return nil
	})
	return &station{dev: dev, iface: iface}
}

func TestTwoStations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	eg, ctx := errgroup.WithContext(ctx)

	a, b := wire.NewPipe()
	alice := newStation(t, ctx, eg, a, net.HardwareAddr{0x02, 0, 0, 0, 0, 0xa}, "192.168.7.10/24")
	bob := newStation(t, ctx, eg, b, net.HardwareAddr{0x02, 0, 0, 0, 0, 0xb}, "192.168.7.11/24")

	eg.Go(func() error {
		return bob.iface.ServeEcho(ctx, netif.DefaultEchoPort)
	})

	defer func() {
		cancel()
		_ = a.Close()
		_ = b.Close()
		assert.NoError(t, eg.Wait())
		alice.iface.Close()
		bob.iface.Close()
		assert.NoError(t, alice.dev.Close())
		assert.NoError(t, bob.dev.Close())
	}()

	bobAddr := tcpip.FullAddress{
		NIC:  1,
		Addr: tcpip.AddrFrom4(bob.iface.Addr().Addr().As4()),
		Port: netif.DefaultEchoPort,
	}

	// The echo service may not be listening yet; retry until it answers.
	var reply []byte
	require.Eventually(t, func() bool {
		conn, err := gonet.DialUDP(alice.iface.Stack(), nil, &bobAddr, ipv4.ProtocolNumber)
		if err != nil {
			return false
		}
		defer conn.Close()

		if _, err := conn.Write([]byte("ping!")); err != nil {
			return false
		}
		_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		buf := make([]byte, 64)
		n, err := conn.Read(buf)
		if err != nil {
			return false
		}
		reply = buf[:n]
		return true
	}, 10*time.Second, 10*time.Millisecond)
	assert.Equal(t, "gnip!", string(reply))

	dialCtx, dialCancel := context.WithTimeout(ctx, 5*time.Second)
	defer dialCancel()
	conn, err := gonet.DialContextTCP(dialCtx, alice.iface.Stack(), bobAddr, ipv4.ProtocolNumber)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	buf := make([]byte, 64)
	var got []byte
	for len(got) < len("tcp: bac") {
		n, err := conn.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	assert.Equal(t, "tcp: bac", string(got))
}
