// Package capture records and describes the frames passing through a device.
package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ethmac/ethmac/ethernet"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/sirupsen/logrus"
)

// SnapLength is the largest frame recorded in full.
const SnapLength = 1536

// PcapWriter writes frames to a pcap stream with Ethernet link type. It is
// safe for concurrent use.
type PcapWriter struct {
	l *logrus.Entry

	mu      sync.Mutex
	w       *pcapgo.Writer
	buf     *bufio.Writer
	closer  io.Closer
	now     func() time.Time
	written uint64
	failed  bool
}

// NewPcapWriter writes the pcap file header to w. When w is an io.Closer it
// is closed by Close.
func NewPcapWriter(l *logrus.Logger, w io.Writer) (*PcapWriter, error) {
	buf := bufio.NewWriter(w)
	pw := pcapgo.NewWriter(buf)
	if err := pw.WriteFileHeader(SnapLength, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}

	p := &PcapWriter{
		l:   l.WithField("subsystem", "capture"),
		w:   pw,
		buf: buf,
		now: time.Now,
	}
	if c, ok := w.(io.Closer); ok {
		p.closer = c
	}
	return p, nil
}

// Create truncates or creates the file at path and writes its header.
func Create(l *logrus.Logger, path string) (*PcapWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	p, err := NewPcapWriter(l, f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	l.WithField("path", path).Info("Capturing frames")
	return p, nil
}

// WriteFrame records one frame.
func (p *PcapWriter) WriteFrame(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := min(len(frame), SnapLength)
	err := p.w.WritePacket(gopacket.CaptureInfo{
		Timestamp:     p.now(),
		CaptureLength: n,
		Length:        len(frame),
	}, frame[:n])
	if err != nil {
		return err
	}
	p.written++
	return nil
}

// Hook returns a frame hook for [ethernet.WithFrameHook]. The first write
// error is logged and later ones are dropped silently.
func (p *PcapWriter) Hook() ethernet.FrameHook {
	return func(dir ethernet.Direction, frame []byte) {
		if err := p.WriteFrame(frame); err != nil {
			p.mu.Lock()
			defer p.mu.Unlock()
			if !p.failed {
				p.failed = true
				p.l.WithError(err).WithField("direction", dir).Error("Failed to write frame to capture")
			}
		}
	}
}

// Written returns the number of frames recorded.
func (p *PcapWriter) Written() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written
}

// Flush pushes buffered frames to the underlying writer.
func (p *PcapWriter) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Flush()
}

func (p *PcapWriter) Close() error {
	err := p.Flush()
	if p.closer != nil {
		err = errors.Join(err, p.closer.Close())
	}
	return err
}
