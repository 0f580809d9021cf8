package wire

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"unsafe"

	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

type ifReq struct {
	Name  [16]byte
	Flags uint16
	pad   [22]byte
}

// Tap is a host TAP interface. Frames written to it are delivered to the host
// network stack and frames the host sends out of the interface are read from
// it.
type Tap struct {
	Device string
	file   *os.File
	l      *logrus.Logger
}

// NewTap creates (or attaches to) the TAP interface name, sets its MTU,
// assigns addrs and brings it up. An empty name lets the kernel choose one.
func NewTap(l *logrus.Logger, name string, mtu int, addrs []netip.Prefix) (*Tap, error) {
	fd, err := unix.Open("/dev/net/tun", os.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/net/tun: %w", err)
	}

	var req ifReq
	req.Flags = uint16(unix.IFF_TAP | unix.IFF_NO_PI)
	copy(req.Name[:], name)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(unix.TUNSETIFF), uintptr(unsafe.Pointer(&req))); errno != 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("create tap device: %w", errno)
	}

	// The runtime poller only unblocks pending reads on Close for non-blocking
	// descriptors.
	if err = unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}

	t := &Tap{
		Device: unix.ByteSliceToString(req.Name[:]),
		file:   os.NewFile(uintptr(fd), "/dev/net/tun"),
		l:      l,
	}

	if err = t.activate(mtu, addrs); err != nil {
		_ = t.Close()
		return nil, err
	}

	l.WithFields(logrus.Fields{"dev": t.Device, "mtu": mtu, "addrs": addrs}).Info("Tap device ready")
	return t, nil
}

func (t *Tap) activate(mtu int, addrs []netip.Prefix) error {
	link, err := netlink.LinkByName(t.Device)
	if err != nil {
		return fmt.Errorf("failed to get tap device link: %w", err)
	}

	if mtu > 0 {
		if err = netlink.LinkSetMTU(link, mtu); err != nil {
			return fmt.Errorf("failed to set tap mtu: %w", err)
		}
	}

	for _, p := range addrs {
		addr := &netlink.Addr{
			IPNet: &net.IPNet{
				IP:   p.Addr().AsSlice(),
				Mask: net.CIDRMask(p.Bits(), p.Addr().BitLen()),
			},
		}
		//AddrReplace still adds new IPs, but if their properties change it will change them as well
		if err = netlink.AddrReplace(link, addr); err != nil {
			return fmt.Errorf("failed to add %s to tap device: %w", p, err)
		}
	}

	if err = netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("failed to bring the tap device up: %w", err)
	}
	return nil
}

func (t *Tap) Read(b []byte) (int, error) {
	return t.file.Read(b)
}

func (t *Tap) Write(b []byte) (int, error) {
	return t.file.Write(b)
}

func (t *Tap) Close() error {
	if t.file != nil {
		return t.file.Close()
	}
	return nil
}
