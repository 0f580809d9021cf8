package ring

import (
	"errors"
	"fmt"
)

// ErrExhausted is returned when no complete frame is waiting in the receive
// ring. It is transient; poll again later.
var ErrExhausted = errors.New("no frame available")

// Frame integrity errors reported by hardware on the last descriptor of a
// frame. The frame is dropped and its descriptors recycled.
var (
	ErrCRC             = errors.New("crc error")
	ErrReceive         = errors.New("receive error")
	ErrWatchdogTimeout = errors.New("receive watchdog timeout")
	ErrLateCollision   = errors.New("late collision")
	ErrGiantFrame      = errors.New("giant frame")
	ErrOverflow        = errors.New("receive overflow")
	ErrDescriptor      = errors.New("descriptor error")
)

// ErrChecksum matches every [*ChecksumError].
var ErrChecksum = errors.New("checksum error")

// ChecksumError is returned for frames whose checksum offload result is an
// error.
type ChecksumError struct {
	Status ChecksumStatus
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("%s: %s", ErrChecksum, e.Status)
}

func (e *ChecksumError) Is(target error) bool {
	return target == ErrChecksum
}

// ProcessingError wraps an error returned by the consumer of a received
// frame. The frame itself was intact.
type ProcessingError struct {
	Err error
}

func (e *ProcessingError) Error() string {
	return "process frame: " + e.Err.Error()
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Errors returned by the transmit ring for frames it cannot describe.
var (
	ErrFrameEmpty    = errors.New("frame is empty")
	ErrFrameTooLarge = errors.New("frame exceeds transmit buffer size")
)

// ErrConfigInvalid is returned for ring configurations that cannot be built.
var ErrConfigInvalid = errors.New("invalid ring configuration")
