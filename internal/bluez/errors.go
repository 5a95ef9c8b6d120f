package bluez

import (
	"errors"
	"fmt"
)

// D-Bus error names and org.bluez.Error.Failed messages the connection state
// machine classifies. bluetoothd reuses the generic Failed name for several
// distinct conditions and disambiguates via the message text.
const (
	errNameUnknownObject = "org.freedesktop.DBus.Error.UnknownObject"
	errNameNoReply       = "org.freedesktop.DBus.Error.NoReply"
	errNameFailed        = "org.bluez.Error.Failed"

	msgInProgress       = "Operation already in progress"
	msgConnectionAbort  = "Software caused connection abort"
	msgAlreadyNotifying = "Already notifying"
)

// Error is a structured host-stack failure carrying the D-Bus error name and
// its optional message.
type Error struct {
	Name    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// Is allows errors.Is comparison by name, ignoring the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Name == t.Name && (t.Message == "" || e.Message == t.Message)
}

func named(err error) (*Error, bool) {
	var berr *Error
	if errors.As(err, &berr) {
		return berr, true
	}
	return nil, false
}

// IsUnknownObject reports whether err means the addressed object path is not
// present on the bus (device unknown to the adapter).
func IsUnknownObject(err error) bool {
	berr, ok := named(err)
	return ok && berr.Name == errNameUnknownObject
}

// IsNoReply reports whether the stack timed out without answering.
func IsNoReply(err error) bool {
	berr, ok := named(err)
	return ok && berr.Name == errNameNoReply
}

// IsInProgress reports whether another connect on the same device is already
// running inside the stack.
func IsInProgress(err error) bool {
	berr, ok := named(err)
	return ok && berr.Name == errNameFailed && berr.Message == msgInProgress
}

// IsConnectionAbort reports the transient low-level abort bluetoothd emits
// when the link drops mid-establishment. Callers may retry.
func IsConnectionAbort(err error) bool {
	berr, ok := named(err)
	return ok && berr.Name == errNameFailed && berr.Message == msgConnectionAbort
}

// IsAlreadyNotifying reports that StartNotify found the subscription already
// active, which callers treat as success.
func IsAlreadyNotifying(err error) bool {
	berr, ok := named(err)
	return ok && berr.Name == errNameFailed && berr.Message == msgAlreadyNotifying
}
