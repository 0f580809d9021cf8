package ethernet

// NetDevice is the polling contract a protocol stack drives. Receive and
// Transmit never block; they return false when the device has nothing to
// offer. Tokens must be consumed before the next call on the device and are
// valid for one Consume only.
type NetDevice interface {
	Capabilities() Capabilities
	Receive() (RxToken, bool)
	Transmit() (TxToken, bool)
}

// RxToken grants access to exactly one received frame.
type RxToken interface {
	// Consume calls f with the frame. The slice is only valid during the call.
	// An error returned by f is passed back unchanged.
	Consume(f func(frame []byte) error) error
}

// TxToken grants one frame's worth of transmit space.
type TxToken interface {
	// Consume calls f with a zeroed buffer of n bytes and queues the buffer for
	// transmission when f returns nil.
	Consume(n int, f func(frame []byte) error) error
}

// Capabilities describes what the device supports.
type Capabilities struct {
	MaxTransmissionUnit int
}
