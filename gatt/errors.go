package gatt

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotFound indicates the addressed device is unknown to the
	// adapter. Terminal; retrying without rediscovery cannot succeed.
	ErrDeviceNotFound = errors.New("device does not exist, check adapter name and address")

	// ErrInvalidated indicates an operation on a Service or Characteristic
	// that was invalidated by a disconnect or re-resolution. Obtain a fresh
	// reference through the Device tree after the next successful connect.
	ErrInvalidated = errors.New("resource invalidated")

	// ErrNotConnected indicates an operation that requires an established
	// connection.
	ErrNotConnected = errors.New("not connected")

	// ErrConnectionLost indicates the link dropped before the session was
	// established.
	ErrConnectionLost = errors.New("connection lost")
)

// CapabilityError reports that a required characteristic was absent after
// service resolution. It is distinct from generic connect failures so callers
// can tell a reachable-but-incompatible peripheral from a connection problem.
type CapabilityError struct {
	Capability string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("required capability %q missing", e.Capability)
}

// Is allows errors.Is to match any CapabilityError, or a specific capability
// when the target names one.
func (e *CapabilityError) Is(target error) bool {
	t, ok := target.(*CapabilityError)
	if !ok {
		return false
	}
	return t.Capability == "" || t.Capability == e.Capability
}
