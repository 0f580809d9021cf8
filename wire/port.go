// Package wire provides the far side of the simulated MAC: ports that carry
// whole Ethernet frames to another simulated device, a host TAP interface or
// a UDP peer.
package wire

import (
	"errors"
	"io"
)

// Port carries whole Ethernet frames. Every Read returns exactly one frame and
// every Write sends exactly one. Read blocks until a frame arrives or the port
// is closed, in which case it returns io.EOF.
type Port interface {
	io.ReadWriteCloser
}

var (
	// ErrClosed is returned when writing to a closed port.
	ErrClosed = errors.New("port closed")

	// ErrTapUnsupported is returned by NewTap on systems without TAP support.
	ErrTapUnsupported = errors.New("tap interfaces are not supported on this platform")
)

// MaxFrameSize is the largest frame a port reads, VLAN tag included.
const MaxFrameSize = 1522
