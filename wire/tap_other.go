//go:build !linux

package wire

import (
	"net/netip"

	"github.com/sirupsen/logrus"
)

// Tap is only available on Linux.
type Tap struct {
	Device string
}

func NewTap(_ *logrus.Logger, _ string, _ int, _ []netip.Prefix) (*Tap, error) {
	return nil, ErrTapUnsupported
}

func (*Tap) Read([]byte) (int, error)  { return 0, ErrTapUnsupported }
func (*Tap) Write([]byte) (int, error) { return 0, ErrTapUnsupported }
func (*Tap) Close() error              { return nil }
