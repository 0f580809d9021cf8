package wire

import (
	"fmt"
	"net/netip"

	"github.com/ethmac/ethmac/config"
	"github.com/sirupsen/logrus"
)

// NewFromConfig builds the port selected by wire.type.
func NewFromConfig(c *config.C, l *logrus.Logger) (Port, error) {
	switch t := c.GetString("wire.type", "discard"); t {
	case "discard":
		return NewDiscard(), nil

	case "tap":
		var addrs []netip.Prefix
		for _, s := range c.GetStringSlice("wire.tap.addrs", nil) {
			p, err := netip.ParsePrefix(s)
			if err != nil {
				return nil, fmt.Errorf("wire.tap.addrs: %w", err)
			}
			addrs = append(addrs, p)
		}
		return NewTap(l, c.GetString("wire.tap.dev", "ethmac0"), c.GetInt("wire.tap.mtu", 1500), addrs)

	case "udp":
		listen, err := c.GetAddrPort("wire.udp.listen", netip.MustParseAddrPort("0.0.0.0:4789"))
		if err != nil {
			return nil, err
		}
		peer, err := c.GetAddrPort("wire.udp.peer", netip.AddrPort{})
		if err != nil {
			return nil, err
		}
		if !peer.IsValid() {
			return nil, fmt.Errorf("wire.udp.peer must be set")
		}
		return NewUDP(l, listen, peer)

	default:
		return nil, fmt.Errorf("unknown wire.type %q, possible types: %v", t, []string{"discard", "tap", "udp"})
	}
}
