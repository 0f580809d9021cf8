package config

import (
	"fmt"
	"net"
	"net/netip"
)

// GetPrefix parses the address and prefix length under k, e.g. 10.0.0.1/24.
// A missing key yields d.
func (c *C) GetPrefix(k string, d netip.Prefix) (netip.Prefix, error) {
	r := c.GetString(k, "")
	if r == "" {
		return d, nil
	}

	p, err := netip.ParsePrefix(r)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("%s: %w", k, err)
	}
	return p, nil
}

func (c *C) GetAddrPort(k string, d netip.AddrPort) (netip.AddrPort, error) {
	r := c.GetString(k, "")
	if r == "" {
		return d, nil
	}

	ap, err := netip.ParseAddrPort(r)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%s: %w", k, err)
	}
	return ap, nil
}

// GetHardwareAddr parses a 48 bit MAC address under k.
func (c *C) GetHardwareAddr(k string, d net.HardwareAddr) (net.HardwareAddr, error) {
	r := c.GetString(k, "")
	if r == "" {
		return d, nil
	}

	hw, err := net.ParseMAC(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", k, err)
	}
	if len(hw) != 6 {
		return nil, fmt.Errorf("%s: %q is not a 48 bit address", k, r)
	}
	return hw, nil
}
