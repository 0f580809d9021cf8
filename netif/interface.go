// Package netif attaches an [ethernet.NetDevice] to a gVisor network stack.
// Frames move between the device and the stack only when the interface is
// polled, so the device is never touched from more than one goroutine.
package netif

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/ethmac/ethmac/ethernet"
	"github.com/sirupsen/logrus"
	"gvisor.dev/gvisor/pkg/buffer"
	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/header"
	"gvisor.dev/gvisor/pkg/tcpip/link/channel"
	ethlink "gvisor.dev/gvisor/pkg/tcpip/link/ethernet"
	"gvisor.dev/gvisor/pkg/tcpip/network/arp"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv4"
	"gvisor.dev/gvisor/pkg/tcpip/stack"
	"gvisor.dev/gvisor/pkg/tcpip/transport/icmp"
	"gvisor.dev/gvisor/pkg/tcpip/transport/tcp"
	"gvisor.dev/gvisor/pkg/tcpip/transport/udp"
)

const nicID = 1

// pollBudget bounds the frames moved per direction in one Poll so neither
// direction starves the other.
const pollBudget = 32

// Interface is a device with an IPv4 address in a network stack.
type Interface struct {
	l       *logrus.Entry
	dev     ethernet.NetDevice
	link    *channel.Endpoint
	ipstack *stack.Stack
	addr    netip.Prefix
	hwaddr  net.HardwareAddr

	pollInterval time.Duration
	notify       notifier
	metrics      *interfaceMetrics
	ports        ports

	// pending is an outbound packet still waiting for a transmit token.
	pending *stack.PacketBuffer
}

// New builds a stack with ARP, IPv4, ICMP, UDP and TCP on top of dev, assigns
// prefix.Addr() to it and routes every destination through it. It returns
// [ethernet.ErrNoIP] when prefix is not a valid IPv4 prefix.
func New(dev ethernet.NetDevice, hwaddr net.HardwareAddr, prefix netip.Prefix, options ...Option) (*Interface, error) {
	o := defaultOptions()
	o.apply(options)
	if err := o.validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	if !prefix.IsValid() || !prefix.Addr().Is4() {
		return nil, ethernet.ErrNoIP
	}
	if len(hwaddr) != 6 {
		return nil, fmt.Errorf("invalid hardware address %q", hwaddr)
	}

	mtu := dev.Capabilities().MaxTransmissionUnit
	if mtu > o.maxFrameSize {
		mtu = o.maxFrameSize
	}

	i := &Interface{
		l:            o.l.WithField("subsystem", "netif"),
		dev:          dev,
		addr:         prefix,
		hwaddr:       hwaddr,
		pollInterval: o.pollInterval,
		notify:       make(notifier, 1),
		metrics:      newInterfaceMetrics(o.registry),
	}

	i.ipstack = stack.New(stack.Options{
		NetworkProtocols:   []stack.NetworkProtocolFactory{ipv4.NewProtocol, arp.NewProtocol},
		TransportProtocols: []stack.TransportProtocolFactory{tcp.NewProtocol, udp.NewProtocol, icmp.NewProtocol4},
	})
	sackEnabledOpt := tcpip.TCPSACKEnabled(true) // TCP SACK is disabled by default
	if tcpipErr := i.ipstack.SetTransportProtocolOption(tcp.ProtocolNumber, &sackEnabledOpt); tcpipErr != nil {
		return nil, fmt.Errorf("could not enable TCP SACK: %v", tcpipErr)
	}

	i.link = channel.New(o.queueSize, uint32(mtu), tcpip.LinkAddress(hwaddr))
	i.link.AddNotify(i.notify)
	if tcpipErr := i.ipstack.CreateNIC(nicID, ethlink.New(i.link)); tcpipErr != nil {
		return nil, fmt.Errorf("could not create netstack NIC: %v", tcpipErr)
	}

	pa := tcpip.ProtocolAddress{
		AddressWithPrefix: tcpip.AddressWithPrefix{
			Address:   tcpip.AddrFrom4(prefix.Addr().As4()),
			PrefixLen: prefix.Bits(),
		},
		Protocol: ipv4.ProtocolNumber,
	}
	if tcpipErr := i.ipstack.AddProtocolAddress(nicID, pa, stack.AddressProperties{}); tcpipErr != nil {
		return nil, fmt.Errorf("error creating IP: %s", tcpipErr)
	}
	i.ipstack.SetRouteTable([]tcpip.Route{{Destination: header.IPv4EmptySubnet, NIC: nicID}})

	i.l.WithFields(logrus.Fields{
		"addr":   prefix,
		"hwaddr": hwaddr,
		"mtu":    mtu,
	}).Info("Network interface configured")
	return i, nil
}

// notifier wakes Run whenever the stack queues an outbound packet.
type notifier chan struct{}

func (n notifier) WriteNotify() {
	select {
	case n <- struct{}{}:
	default:
	}
}

// Addr returns the interface address and prefix.
func (i *Interface) Addr() netip.Prefix {
	return i.addr
}

func (i *Interface) HardwareAddr() net.HardwareAddr {
	return i.hwaddr
}

// Stack exposes the network stack, for sockets of callers' own.
func (i *Interface) Stack() *stack.Stack {
	return i.ipstack
}

// Poll moves received frames into the stack and queued packets out to the
// device. It reports whether anything moved. Frames dropped by the device
// are counted and logged; any other device error is returned.
func (i *Interface) Poll() (bool, error) {
	rx, err := i.pollReceive()
	if err != nil {
		return rx, err
	}
	tx, err := i.pollTransmit()
	return rx || tx, err
}

func (i *Interface) pollReceive() (bool, error) {
	moved := false
	for n := 0; n < pollBudget; n++ {
		tok, ok := i.dev.Receive()
		if !ok {
			return moved, nil
		}

		err := tok.Consume(func(frame []byte) error {
			pkt := stack.NewPacketBuffer(stack.PacketBufferOptions{
				Payload: buffer.MakeWithData(frame),
			})
			// The ethernet link endpoint reads the protocol from the header.
			i.link.InjectInbound(0, pkt)
			pkt.DecRef()
			return nil
		})
		switch {
		case err == nil:
			i.metrics.rxFrames.Inc(1)
			moved = true
		case errors.Is(err, ethernet.ErrExhausted):
			// The rest of the frame is still being written.
			return moved, nil
		case errors.Is(err, ethernet.ErrTruncated):
			i.metrics.rxDropped.Inc(1)
			i.l.WithError(err).Debug("Dropped received frame")
			moved = true
		default:
			return moved, err
		}
	}
	return moved, nil
}

func (i *Interface) pollTransmit() (bool, error) {
	moved := false
	for n := 0; n < pollBudget; n++ {
		if i.pending == nil {
			i.pending = i.link.Read()
			if i.pending == nil {
				return moved, nil
			}
		}

		tok, ok := i.dev.Transmit()
		if !ok {
			i.metrics.txBusy.Inc(1)
			return moved, nil
		}

		view := i.pending.ToView()
		i.pending.DecRef()
		i.pending = nil

		err := tok.Consume(view.Size(), func(frame []byte) error {
			copy(frame, view.AsSlice())
			return nil
		})
		view.Release()
		if err != nil {
			i.metrics.txErrors.Inc(1)
			return moved, err
		}
		i.metrics.txFrames.Inc(1)
		moved = true
	}
	return moved, nil
}

// Run polls until ctx is done or the device fails. An idle interface sleeps
// for the poll interval or until the stack has something to send.
func (i *Interface) Run(ctx context.Context) error {
	timer := time.NewTimer(i.pollInterval)
	defer timer.Stop()

	for {
		moved, err := i.Poll()
		if err != nil {
			return err
		}
		if moved {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(i.pollInterval)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-i.notify:
		case <-timer.C:
		}
	}
}

// Close tears down the stack. The device is left to its owner.
func (i *Interface) Close() {
	if i.pending != nil {
		i.pending.DecRef()
		i.pending = nil
	}
	i.link.Close()
	i.ipstack.Destroy()
}
