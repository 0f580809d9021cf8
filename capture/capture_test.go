package capture

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/ethmac/ethmac/ethernet"
	"github.com/ethmac/ethmac/test"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	localMAC  = net.HardwareAddr{0x02, 0, 0, 0, 0, 1}
	remoteMAC = net.HardwareAddr{0x02, 0, 0, 0, 0, 2}
)

func serialize(t *testing.T, l ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opt := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opt, l...))
	return buf.Bytes()
}

func udpFrame(t *testing.T, payload []byte) []byte {
	eth := &layers.Ethernet{SrcMAC: remoteMAC, DstMAC: localMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 0, 0, 2),
		DstIP:    net.IPv4(10, 0, 0, 1),
	}
	udp := &layers.UDP{SrcPort: 1234, DstPort: 15}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return serialize(t, eth, ip, udp, gopacket.Payload(payload))
}

func TestPcapWriter(t *testing.T) {
	var out bytes.Buffer
	w, err := NewPcapWriter(test.NewLogger(), &out)
	require.NoError(t, err)
	w.now = func() time.Time { return time.Unix(1700000000, 0) }

	frames := [][]byte{udpFrame(t, []byte("hello")), make([]byte, SnapLength+10)}
	hook := w.Hook()
	hook(ethernet.DirectionReceived, frames[0])
	hook(ethernet.DirectionTransmitted, frames[1])
	require.NoError(t, w.Close())
	assert.EqualValues(t, 2, w.Written())

	r, err := pcapgo.NewReader(&out)
	require.NoError(t, err)
	assert.Equal(t, layers.LinkTypeEthernet, r.LinkType())

	data, ci, err := r.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, frames[0], data)
	assert.True(t, ci.Timestamp.Equal(time.Unix(1700000000, 0)))

	data, ci, err = r.ReadPacketData()
	require.NoError(t, err)
	assert.Len(t, data, SnapLength)
	assert.Equal(t, SnapLength+10, ci.Length)
}

type failingWriter struct{ n int }

func (f *failingWriter) Write(b []byte) (int, error) {
	f.n++
	if f.n > 1 {
		return 0, errors.New("disk full")
	}
	return len(b), nil
}

func TestPcapWriter_HookError(t *testing.T) {
	fw := &failingWriter{}
	l, logs := test.NewLoggerWithHook()
	w, err := NewPcapWriter(l, fw)
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	hook := w.Hook()
	for i := 0; i < 200; i++ {
		hook(ethernet.DirectionReceived, make([]byte, 60))
	}
	assert.True(t, w.failed)
	require.Len(t, logs.AllEntries(), 1)
	assert.Equal(t, "Failed to write frame to capture", logs.LastEntry().Message)
	assert.Equal(t, ethernet.DirectionReceived, logs.LastEntry().Data["direction"])
	assert.Error(t, w.Close())
}

// Serialized frames are padded to the 60 byte Ethernet minimum.
func TestSummary(t *testing.T) {
	assert.Equal(t,
		"02:00:00:00:00:02 > 02:00:00:00:00:01 10.0.0.2 > 10.0.0.1 udp 1234 > 15 len 5 (60 bytes)",
		Summary(udpFrame(t, []byte("hello"))))

	arp := serialize(t,
		&layers.Ethernet{SrcMAC: remoteMAC, DstMAC: layers.EthernetBroadcast, EthernetType: layers.EthernetTypeARP},
		&layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPRequest,
			SourceHwAddress:   remoteMAC,
			SourceProtAddress: []byte{10, 0, 0, 2},
			DstHwAddress:      make([]byte, 6),
			DstProtAddress:    []byte{10, 0, 0, 1},
		})
	assert.Equal(t, "02:00:00:00:00:02 > ff:ff:ff:ff:ff:ff arp request who-has 10.0.0.1 (60 bytes)", Summary(arp))

	tcp := &layers.TCP{SrcPort: 40000, DstPort: 15, SYN: true, Window: 1024}
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: net.IPv4(10, 0, 0, 2), DstIP: net.IPv4(10, 0, 0, 1)}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	syn := serialize(t, &layers.Ethernet{SrcMAC: remoteMAC, DstMAC: localMAC, EthernetType: layers.EthernetTypeIPv4}, ip, tcp)
	assert.Contains(t, Summary(syn), "tcp 40000 > 15 [S] len 0")

	assert.Equal(t, "malformed frame (5 bytes)", Summary([]byte{1, 2, 3, 4, 5}))
}
