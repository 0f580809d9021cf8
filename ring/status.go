package ring

// RxStatus is a snapshot of RDES0. Reading the word once and decoding the
// snapshot keeps every decision about one descriptor consistent.
type RxStatus uint32

func (s RxStatus) Owner() Owner {
	return ownerOf(uint32(s))
}

func (s RxStatus) FirstSegment() bool {
	return uint32(s)&RDES0FS != 0
}

func (s RxStatus) LastSegment() bool {
	return uint32(s)&RDES0LS != 0
}

// FrameLength is only meaningful on the last descriptor of a frame.
func (s RxStatus) FrameLength() int {
	return int((uint32(s) & RDES0FLMask) >> RDES0FLShift)
}

// ExtendedStatusValid reports whether RDES4 carries checksum offload results.
func (s RxStatus) ExtendedStatusValid() bool {
	return uint32(s)&RDES0ESA != 0
}

// receiveErrors lists the error bits of a last descriptor in the order they
// are reported.
var receiveErrors = []struct {
	bit uint32
	err error
}{
	{RDES0CE, ErrCRC},
	{RDES0RE, ErrReceive},
	{RDES0RWT, ErrWatchdogTimeout},
	{RDES0LCO, ErrLateCollision},
	{RDES0GF, ErrGiantFrame},
	{RDES0OE, ErrOverflow},
	{RDES0DE, ErrDescriptor},
}

// Err returns the first frame error flagged in the snapshot, or nil.
func (s RxStatus) Err() error {
	for _, e := range receiveErrors {
		if uint32(s)&e.bit != 0 {
			return e.err
		}
	}
	return nil
}

// ChecksumStatus is the checksum offload result reported for a frame.
type ChecksumStatus uint8

const (
	// ChecksumUnavailable means hardware did not report extended status.
	ChecksumUnavailable ChecksumStatus = iota
	ChecksumVerified
	ChecksumBypassed
	ChecksumHeaderError
	ChecksumPayloadError
	ChecksumHeaderAndPayloadError
)

// Checksum decodes the checksum result from a status snapshot and the
// matching RDES4 word.
func (s RxStatus) Checksum(ext uint32) ChecksumStatus {
	if !s.ExtendedStatusValid() {
		return ChecksumUnavailable
	}
	switch {
	case ext&RDES4IPCB != 0:
		return ChecksumBypassed
	case ext&(RDES4IPHE|RDES4IPPE) == RDES4IPHE|RDES4IPPE:
		return ChecksumHeaderAndPayloadError
	case ext&RDES4IPHE != 0:
		return ChecksumHeaderError
	case ext&RDES4IPPE != 0:
		return ChecksumPayloadError
	}
	return ChecksumVerified
}

// IsError reports whether the result marks the frame as corrupt.
func (c ChecksumStatus) IsError() bool {
	return c >= ChecksumHeaderError
}

func (c ChecksumStatus) String() string {
	switch c {
	case ChecksumUnavailable:
		return "unavailable"
	case ChecksumVerified:
		return "verified"
	case ChecksumBypassed:
		return "bypassed"
	case ChecksumHeaderError:
		return "header error"
	case ChecksumPayloadError:
		return "payload error"
	case ChecksumHeaderAndPayloadError:
		return "header and payload error"
	}
	return "unknown"
}
