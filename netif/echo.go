package netif

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/adapters/gonet"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv4"
)

// DefaultEchoPort is the port the echo services listen on.
const DefaultEchoPort = 15

// tcpEchoPrefix starts every TCP echo reply.
const tcpEchoPrefix = "tcp: "

// PortInUseError is returned when a service is started on a port another
// service of the same interface already holds.
type PortInUseError struct {
	TCP  bool
	Port uint16
}

func (e *PortInUseError) Error() string {
	proto := "udp"
	if e.TCP {
		proto = "tcp"
	}
	return fmt.Sprintf("%s port %d already in use", proto, e.Port)
}

type portKey struct {
	tcp  bool
	port uint16
}

// ports tracks the ports held by services. A port is listening once its
// socket is bound.
type ports struct {
	sync.Mutex
	used map[portKey]bool
}

func (p *ports) claim(tcp bool, port uint16) (release func(), err error) {
	p.Lock()
	defer p.Unlock()
	k := portKey{tcp, port}
	if _, ok := p.used[k]; ok {
		return nil, &PortInUseError{TCP: tcp, Port: port}
	}
	if p.used == nil {
		p.used = map[portKey]bool{}
	}
	p.used[k] = false
	return func() {
		p.Lock()
		defer p.Unlock()
		delete(p.used, k)
	}, nil
}

func (p *ports) listening(tcp bool, port uint16) {
	p.Lock()
	defer p.Unlock()
	p.used[portKey{tcp, port}] = true
}

// reverseAllButLast returns a copy of b with every byte but the last in
// reverse order.
func reverseAllButLast(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	if len(out) < 2 {
		return out
	}
	for i, j := 0, len(out)-2; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// ListenUDP binds a UDP socket to port on the interface address.
func (i *Interface) ListenUDP(port uint16) (*gonet.UDPConn, func(), error) {
	release, err := i.ports.claim(false, port)
	if err != nil {
		return nil, nil, err
	}
	conn, err := gonet.DialUDP(i.ipstack, &tcpip.FullAddress{
		NIC:  nicID,
		Addr: tcpip.AddrFrom4(i.addr.Addr().As4()),
		Port: port,
	}, nil, ipv4.ProtocolNumber)
	if err != nil {
		release()
		return nil, nil, err
	}
	i.ports.listening(false, port)
	return conn, release, nil
}

// ListenTCP listens on port of the interface address.
func (i *Interface) ListenTCP(port uint16) (*gonet.TCPListener, func(), error) {
	release, err := i.ports.claim(true, port)
	if err != nil {
		return nil, nil, err
	}
	ln, err := gonet.ListenTCP(i.ipstack, tcpip.FullAddress{
		NIC:  nicID,
		Addr: tcpip.AddrFrom4(i.addr.Addr().As4()),
		Port: port,
	}, ipv4.ProtocolNumber)
	if err != nil {
		release()
		return nil, nil, err
	}
	i.ports.listening(true, port)
	return ln, release, nil
}

// ServeEcho answers on UDP and TCP port until ctx is done. UDP datagrams are
// sent back with all bytes but the last reversed; TCP replies carry the same
// transformation of every read behind "tcp: ".
func (i *Interface) ServeEcho(ctx context.Context, port uint16) error {
	udpConn, releaseUDP, err := i.ListenUDP(port)
	if err != nil {
		return err
	}
	defer releaseUDP()

	ln, releaseTCP, err := i.ListenTCP(port)
	if err != nil {
		_ = udpConn.Close()
		return err
	}
	defer releaseTCP()

	i.l.WithField("port", port).Info("Echo service started")

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		_ = udpConn.Close()
		_ = ln.Close()
		return nil
	})
	eg.Go(func() error {
		return i.serveUDPEcho(ctx, udpConn)
	})
	eg.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accept: %w", err)
			}
			eg.Go(func() error {
				i.serveTCPEcho(ctx, conn)
				return nil
			})
		}
	})

	return eg.Wait()
}

func (i *Interface) serveUDPEcho(ctx context.Context, conn *gonet.UDPConn) error {
	buf := make([]byte, 64*1024)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("udp echo read: %w", err)
		}

		i.metrics.udpEcho.Inc(1)
		if _, err := conn.WriteTo(reverseAllButLast(buf[:n]), addr); err != nil {
			i.l.WithError(err).WithField("remote", addr).Debug("Failed to send udp echo reply")
		}
	}
}

func (i *Interface) serveTCPEcho(ctx context.Context, conn net.Conn) {
	l := i.l.WithField("remote", conn.RemoteAddr())
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			i.metrics.tcpEcho.Inc(1)
			reply := append([]byte(tcpEchoPrefix), reverseAllButLast(buf[:n])...)
			if _, werr := conn.Write(reply); werr != nil {
				l.WithError(werr).Debug("Failed to send tcp echo reply")
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				l.WithError(err).Debug("TCP echo connection failed")
			}
			return
		}
	}
}
