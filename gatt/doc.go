// Package gatt implements a client-side GATT session core on top of the
// bluez.Bus host-stack interface: a resource tree of discovered devices,
// services and characteristics, a connection state machine with
// error-classified retries, and a serialized dispatcher for asynchronous
// host-stack signals.
//
// All core state is owned by the DeviceManager event loop (Run). Public
// calls are posted onto that loop and their outcomes are delivered through
// listener callbacks, never through synchronous errors across the
// asynchronous boundary. Listener callbacks run on the loop, one at a time,
// in host-delivery order; resource objects handed to callbacks must be
// treated as read-only.
package gatt
