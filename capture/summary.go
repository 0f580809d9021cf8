package capture

import (
	"fmt"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Summary describes frame on one line, for debug logs.
func Summary(frame []byte) string {
	packet := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Lazy)

	eth, ok := packet.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	if !ok {
		return fmt.Sprintf("malformed frame (%d bytes)", len(frame))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s > %s", eth.SrcMAC, eth.DstMAC)

	switch {
	case packet.Layer(layers.LayerTypeARP) != nil:
		arp := packet.Layer(layers.LayerTypeARP).(*layers.ARP)
		op := "reply"
		if arp.Operation == layers.ARPRequest {
			op = "request"
		}
		fmt.Fprintf(&b, " arp %s who-has %d.%d.%d.%d", op,
			arp.DstProtAddress[0], arp.DstProtAddress[1], arp.DstProtAddress[2], arp.DstProtAddress[3])

	case packet.Layer(layers.LayerTypeIPv4) != nil:
		ip := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		fmt.Fprintf(&b, " %s > %s", ip.SrcIP, ip.DstIP)
		switch {
		case packet.Layer(layers.LayerTypeUDP) != nil:
			udp := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
			fmt.Fprintf(&b, " udp %d > %d len %d", udp.SrcPort, udp.DstPort, len(udp.Payload))
		case packet.Layer(layers.LayerTypeTCP) != nil:
			tcp := packet.Layer(layers.LayerTypeTCP).(*layers.TCP)
			fmt.Fprintf(&b, " tcp %d > %d%s len %d", tcp.SrcPort, tcp.DstPort, tcpFlags(tcp), len(tcp.Payload))
		case packet.Layer(layers.LayerTypeICMPv4) != nil:
			icmp := packet.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4)
			fmt.Fprintf(&b, " icmp %s", icmp.TypeCode)
		default:
			fmt.Fprintf(&b, " proto %s", ip.Protocol)
		}

	default:
		fmt.Fprintf(&b, " type %s", eth.EthernetType)
	}

	fmt.Fprintf(&b, " (%d bytes)", len(frame))
	return b.String()
}

func tcpFlags(tcp *layers.TCP) string {
	var f []byte
	for _, flag := range []struct {
		set bool
		c   byte
	}{{tcp.SYN, 'S'}, {tcp.FIN, 'F'}, {tcp.RST, 'R'}, {tcp.PSH, 'P'}, {tcp.ACK, '.'}} {
		if flag.set {
			f = append(f, flag.c)
		}
	}
	if len(f) == 0 {
		return ""
	}
	return " [" + string(f) + "]"
}
