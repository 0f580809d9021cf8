package ethernet

import (
	"errors"
	"fmt"

	"github.com/ethmac/ethmac/ring"
)

// Errors reported through the device contract.
var (
	// ErrExhausted means no complete frame was waiting.
	ErrExhausted = ring.ErrExhausted
	// ErrChecksum matches frames dropped because of a checksum offload error.
	ErrChecksum = ring.ErrChecksum
	// ErrTruncated is returned by [RxToken.Consume] for every frame that could
	// not be handed to the consumer. The classified cause is wrapped as well.
	ErrTruncated = errors.New("frame truncated")
	// ErrNoIP is returned when an interface is attached without an address.
	ErrNoIP = errors.New("no ip address configured")
	// ErrUnknown wraps device faults without a more specific class.
	ErrUnknown = errors.New("unknown device error")
)

var (
	ErrInitialization  = errors.New("ethernet initialization failed")
	ErrTokenConsumed   = errors.New("token already consumed")
	ErrDeviceClosed    = errors.New("device was closed")
	ErrTeardownTimeout = errors.New("dma did not stop in time")
)

// Bring-up failures, wrapped in an [*InitializationError].
var (
	ErrDMAResetTimeout        = errors.New("dma software reset did not complete")
	ErrPHYNotFound            = errors.New("no phy responding")
	ErrPHYResetTimeout        = errors.New("phy reset did not complete")
	ErrAutoNegotiationTimeout = errors.New("auto-negotiation did not complete")
)

// InitializationError is returned by [New] when peripheral bring-up fails.
type InitializationError struct {
	Err error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInitialization, e.Err)
}

func (e *InitializationError) Unwrap() error {
	return e.Err
}

func (e *InitializationError) Is(target error) bool {
	return target == ErrInitialization
}
