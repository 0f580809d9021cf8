package ethmac

import (
	"cmp"
	"net"
	"net/netip"
	"slices"
	"testing"
	"time"

	"github.com/ethmac/ethmac/config"
	"github.com/ethmac/ethmac/netif"
	"github.com/ethmac/ethmac/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/adapters/gonet"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv4"
)

func counter(counters []Counter, name string) int64 {
	for _, c := range counters {
		if c.Name == name {
			return c.Count
		}
	}
	return -1
}

func TestControl_Lifecycle(t *testing.T) {
	l := test.NewLogger()
	c := config.NewC(l)
	require.NoError(t, c.LoadString(`
device: {rx: {descriptors: 16}, tx: {descriptors: 4, wait: yield}}
interface: {addr: 10.9.0.2/24, poll_interval: 100us}
wire: {type: discard}
`))

	ctrl, err := Main(c, false, "test", l)
	require.NoError(t, err)
	assert.Equal(t, netip.MustParsePrefix("10.9.0.2/24"), ctrl.Interface().Addr())
	assert.Equal(t, net.HardwareAddr{0x02, 0x00, 0x00, 0xab, 0xcd, 0xef}, ctrl.Device().HardwareAddr())

	ctrl.Start()
	ctrl.Start()

	// Resolving the peer puts an ARP request on the wire.
	conn, err := gonet.DialUDP(ctrl.Interface().Stack(), nil, &tcpip.FullAddress{
		NIC:  1,
		Addr: tcpip.AddrFrom4([4]byte{10, 9, 0, 1}),
		Port: 9,
	}, ipv4.ProtocolNumber)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("discard me"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return ctrl.Stats().Transmitted > 0
	}, 5*time.Second, time.Millisecond)

	ctrl.Stop()
	ctrl.Stop()

	counters := ctrl.Counters()
	assert.True(t, slices.IsSortedFunc(counters, func(a, b Counter) int {
		return cmp.Compare(a.Name, b.Name)
	}))
	assert.GreaterOrEqual(t, counter(counters, "ethernet.tx.frames"), int64(1))
	assert.GreaterOrEqual(t, counter(counters, "netif.tx.frames"), int64(1))
	assert.Equal(t, int64(0), counter(counters, "ethernet.rx.errors.crc"))
	assert.Equal(t, int64(-1), counter(counters, "nope"))

	test.AssertDeepCopyEqual(t, counters, ctrl.Counters())
}

// freeUDPPort returns a loopback port that was free a moment ago.
func freeUDPPort(t *testing.T) netip.AddrPort {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

func TestControl_UDPWire(t *testing.T) {
	a, b := freeUDPPort(t), freeUDPPort(t)

	start := func(hwaddr, addr string, listen, peer netip.AddrPort) *Control {
		l := test.NewLogger()
		c := config.NewC(l)
		require.NoError(t, c.LoadString(`
device: {hwaddr: "`+hwaddr+`", tx: {wait: yield}}
interface: {addr: `+addr+`, poll_interval: 100us}
wire: {type: udp, udp: {listen: "`+listen.String()+`", peer: "`+peer.String()+`"}}
dns: {enabled: true, hostname: bob.local, port: 53}
`))
		ctrl, err := Main(c, false, "test", l)
		require.NoError(t, err)
		ctrl.Start()
		return ctrl
	}

	alice := start("02:00:00:00:00:0a", "10.7.0.10/24", a, b)
	defer alice.Stop()
	bob := start("02:00:00:00:00:0b", "10.7.0.11/24", b, a)
	defer bob.Stop()

	bobEcho := &tcpip.FullAddress{
		NIC:  1,
		Addr: tcpip.AddrFrom4([4]byte{10, 7, 0, 11}),
		Port: netif.DefaultEchoPort,
	}

	var reply []byte
	require.Eventually(t, func() bool {
		conn, err := gonet.DialUDP(alice.Interface().Stack(), nil, bobEcho, ipv4.ProtocolNumber)
		if err != nil {
			return false
		}
		defer conn.Close()

		if _, err := conn.Write([]byte("wire!")); err != nil {
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
	assert.Equal(t, "eriw!", string(reply))

	assert.Positive(t, alice.Stats().Received)
	assert.Positive(t, bob.Stats().Transmitted)
}
