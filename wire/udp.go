package wire

import (
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
)

// udpBatchSize is the number of datagrams read per system call.
const udpBatchSize = 16

// UDP carries every frame in one UDP datagram to a fixed peer. Two simulated
// devices on different hosts can be cabled together this way.
type UDP struct {
	conn *net.UDPConn
	pc   *ipv4.PacketConn
	peer netip.AddrPort
	l    *logrus.Logger

	readLock sync.Mutex
	msgs     []ipv4.Message
	pending  []int
}

// NewUDP listens on listen and sends frames to peer. Datagrams from any other
// source are discarded.
func NewUDP(l *logrus.Logger, listen, peer netip.AddrPort) (*UDP, error) {
	if !listen.Addr().Unmap().Is4() || !peer.Addr().Unmap().Is4() {
		return nil, fmt.Errorf("udp wire only supports ipv4, got %s and %s", listen, peer)
	}

	conn, err := net.ListenUDP("udp4", net.UDPAddrFromAddrPort(listen))
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", listen, err)
	}

	u := &UDP{
		conn: conn,
		pc:   ipv4.NewPacketConn(conn),
		peer: netip.AddrPortFrom(peer.Addr().Unmap(), peer.Port()),
		l:    l,
		msgs: make([]ipv4.Message, udpBatchSize),
	}
	for i := range u.msgs {
		u.msgs[i].Buffers = [][]byte{make([]byte, MaxFrameSize)}
	}

	l.WithFields(logrus.Fields{"listen": conn.LocalAddr().String(), "peer": u.peer}).Info("UDP wire ready")
	return u, nil
}

// LocalAddr returns the address the port receives on.
func (u *UDP) LocalAddr() netip.AddrPort {
	return u.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

func (u *UDP) Read(b []byte) (int, error) {
	u.readLock.Lock()
	defer u.readLock.Unlock()

	for {
		if len(u.pending) > 0 {
			m := &u.msgs[u.pending[0]]
			u.pending = u.pending[1:]
			return copy(b, m.Buffers[0][:m.N]), nil
		}

		n, err := u.pc.ReadBatch(u.msgs, 0)
		if err != nil {
			return 0, err
		}
		for i := 0; i < n; i++ {
			from, ok := u.msgs[i].Addr.(*net.UDPAddr)
			if !ok || from.AddrPort().Addr().Unmap() != u.peer.Addr() {
				u.l.WithField("from", u.msgs[i].Addr).Debug("Dropping datagram from unknown peer")
				continue
			}
			u.pending = append(u.pending, i)
		}
	}
}

func (u *UDP) Write(b []byte) (int, error) {
	return u.conn.WriteToUDPAddrPort(b, u.peer)
}

func (u *UDP) Close() error {
	return u.conn.Close()
}
