package gatt

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/nuimo/internal/bluez"
)

// State is the connection lifecycle state of a Device.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ConnectionListener receives the lifecycle and data callbacks of one Device.
// All methods run on the manager event loop, one at a time; implementations
// may call back into the Device from inside a callback.
type ConnectionListener interface {
	ConnectionStarted(d *Device)
	Connected(d *Device)
	ConnectFailed(d *Device, err error)
	DisconnectionStarted(d *Device)
	Disconnected(d *Device)

	CharacteristicValueUpdated(d *Device, c *Characteristic, value []byte)
	CharacteristicWriteCompleted(d *Device, c *Characteristic, err error)
}

// DeviceOptions configures one Device. The zero value is completed by
// DefaultDeviceOptions.
type DeviceOptions struct {
	// ConnectAttempts bounds consecutive transient connect failures before
	// the attempt is reported as failed.
	ConnectAttempts int `yaml:"connect_attempts" default:"5"`

	// RetryDelay is the pause between transient connect retries.
	RetryDelay time.Duration `yaml:"retry_delay" default:"0s"`

	// DisconnectTimeout bounds how long a disconnect request may stay
	// unconfirmed before the device is treated as disconnected anyway.
	DisconnectTimeout time.Duration `yaml:"disconnect_timeout" default:"10s"`

	// Capabilities declares the characteristics the session requires. A
	// connect only completes once every capability resolved to a live
	// characteristic.
	Capabilities []Capability `yaml:"-"`
}

// DefaultDeviceOptions returns DeviceOptions with defaults applied.
func DefaultDeviceOptions() DeviceOptions {
	var opts DeviceOptions
	defaults.SetDefaults(&opts)
	return opts
}

// Device is one remote peripheral tracked by a DeviceManager. All mutable
// fields except state are owned by the manager event loop.
type Device struct {
	manager *DeviceManager
	logger  *logrus.Entry

	address string
	path    string
	opts    DeviceOptions

	state   atomic.Int32
	retries int
	dialing bool

	services     *orderedmap.OrderedMap[string, *Service]
	capabilities map[string]*Characteristic

	listener        ConnectionListener
	disconnectTimer *time.Timer
}

func newDevice(m *DeviceManager, address string, opts DeviceOptions) *Device {
	return &Device{
		manager:  m,
		logger:   m.logger.WithField("device", address),
		address:  address,
		path:     bluez.DevicePath(m.opts.Adapter, address),
		opts:     opts,
		services: orderedmap.New[string, *Service](),
	}
}

// Address returns the hardware address the device was created with.
func (d *Device) Address() string { return d.address }

// Path returns the host-stack object path of the device.
func (d *Device) Path() string { return d.path }

// State returns the current lifecycle state. Safe from any goroutine.
func (d *Device) State() State { return State(d.state.Load()) }

// SetListener installs the connection listener. Call before Connect; the
// listener is invoked from the manager event loop.
func (d *Device) SetListener(l ConnectionListener) {
	d.manager.post(func() { d.listener = l })
}

func (d *Device) setState(s State) {
	prev := State(d.state.Swap(int32(s)))
	if prev != s {
		d.logger.WithFields(logrus.Fields{"from": prev, "to": s}).Debug("connection state changed")
	}
}

func (d *Device) emit(fn func(ConnectionListener)) {
	if d.listener != nil {
		fn(d.listener)
	}
}

// Connect starts establishing a session. The call returns immediately; the
// outcome arrives via the listener (Connected or ConnectFailed). Calling
// Connect while a connect is already running or the session is up is a no-op.
func (d *Device) Connect() {
	d.manager.post(d.connectTask)
}

func (d *Device) connectTask() {
	switch d.State() {
	case StateConnecting, StateConnected:
		return
	}
	d.setState(StateConnecting)
	d.retries = 0
	d.emit(func(l ConnectionListener) { l.ConnectionStarted(d) })
	d.dialTask()
}

// dialTask performs one blocking Connect round trip off the loop and posts
// the classified outcome back.
func (d *Device) dialTask() {
	d.dialing = true
	go func() {
		err := d.manager.bus.Connect(d.path)
		d.manager.post(func() { d.dialFinished(err) })
	}()
}

func (d *Device) dialFinished(err error) {
	d.dialing = false
	if d.State() != StateConnecting {
		// Disconnect was requested while the dial was in flight.
		return
	}
	switch {
	case err == nil:
		d.linkUp()
	case bluez.IsInProgress(err):
		// The stack is already connecting this device; the Connected
		// property signal will complete the attempt.
		d.logger.Debug("connect already in progress")
	case bluez.IsUnknownObject(err):
		d.connectFailed(ErrDeviceNotFound)
	case bluez.IsConnectionAbort(err):
		d.retries++
		if d.retries < d.opts.ConnectAttempts {
			d.logger.WithField("attempt", d.retries+1).Debug("transient connect abort, retrying")
			if d.opts.RetryDelay > 0 {
				time.AfterFunc(d.opts.RetryDelay, func() { d.manager.post(d.retryDial) })
			} else {
				d.dialTask()
			}
			return
		}
		d.connectFailed(err)
	default:
		// NoReply and anything unclassified are terminal for this attempt.
		d.connectFailed(err)
	}
}

func (d *Device) retryDial() {
	if d.State() != StateConnecting {
		return
	}
	d.dialTask()
}

// connectFailed terminates a connect attempt. Anything already resolved or
// subscribed during the attempt is invalidated before the failure surfaces.
func (d *Device) connectFailed(err error) {
	d.logger.WithError(err).Warn("connect failed")
	d.invalidateServices()
	d.capabilities = nil
	d.setState(StateDisconnected)
	d.emit(func(l ConnectionListener) { l.ConnectFailed(d, err) })
}

// linkUp runs once the stack acknowledged the link. The session is complete
// only after service resolution; if the tree was already resolved (cached
// from a prior connection) the ServicesResolved signal will not fire again,
// so the property is checked explicitly.
func (d *Device) linkUp() {
	resolved, err := d.manager.bus.GetProperty(d.path, bluez.DeviceInterface, "ServicesResolved")
	if err != nil {
		d.logger.WithError(err).Debug("ServicesResolved read failed, waiting for signal")
		return
	}
	if r, ok := resolved.(bool); ok && r {
		d.servicesResolved()
	}
}

// servicesResolved rebuilds the resource tree, binds capabilities and
// completes the connect. Runs on the manager loop.
func (d *Device) servicesResolved() {
	if d.State() == StateConnected {
		return
	}
	objects, err := d.manager.bus.ListManagedObjects()
	if err != nil {
		d.connectFailed(err)
		return
	}
	d.invalidateServices()
	d.services = orderedmap.New[string, *Service]()
	for _, path := range childPaths(objects, d.path, bluez.ServiceInterface) {
		svc := &Service{
			device: d,
			path:   path,
			uuid:   uuidProp(objects[path][bluez.ServiceInterface]),
		}
		svc.resolveCharacteristics(objects)
		d.services.Set(path, svc)
	}

	caps := make(map[string]*Characteristic, len(d.opts.Capabilities))
	for _, want := range d.opts.Capabilities {
		c := d.findCapability(want)
		if c == nil {
			// The link is up but the peripheral lacks a required feature.
			d.connectFailed(&CapabilityError{Capability: want.Name})
			return
		}
		if want.Notify {
			if err := c.EnableNotifications(); err != nil {
				d.connectFailed(fmt.Errorf("enable notifications for %q: %w", want.Name, err))
				return
			}
		}
		caps[want.Name] = c
	}
	d.capabilities = caps

	d.setState(StateConnected)
	d.retries = 0
	d.logger.Info("connected")
	d.emit(func(l ConnectionListener) { l.Connected(d) })
}

func (d *Device) findCapability(want Capability) *Characteristic {
	for _, ref := range want.Candidates {
		for pair := d.services.Oldest(); pair != nil; pair = pair.Next() {
			if !equalUUID(pair.Value.uuid, ref.Service) {
				continue
			}
			if c, ok := pair.Value.CharacteristicByUUID(ref.Characteristic); ok {
				return c
			}
		}
	}
	return nil
}

// Disconnect tears the session down. The device transitions to
// Disconnecting immediately; Disconnected is emitted when the stack confirms
// or after DisconnectTimeout, whichever comes first.
func (d *Device) Disconnect() {
	d.manager.post(d.disconnectTask)
}

func (d *Device) disconnectTask() {
	switch d.State() {
	case StateDisconnected, StateDisconnecting:
		return
	}
	d.setState(StateDisconnecting)
	d.emit(func(l ConnectionListener) { l.DisconnectionStarted(d) })
	d.disconnectTimer = time.AfterFunc(d.opts.DisconnectTimeout, func() {
		d.manager.post(d.disconnectTimedOut)
	})
	go func() {
		if err := d.manager.bus.Disconnect(d.path); err != nil {
			d.logger.WithError(err).Debug("disconnect request failed, waiting for timeout or signal")
		}
	}()
}

func (d *Device) disconnectTimedOut() {
	if d.State() != StateDisconnecting {
		return
	}
	d.logger.Warn("disconnect unconfirmed, forcing disconnected state")
	d.confirmDisconnected()
}

// confirmDisconnected finalizes a disconnect from any state. Idempotent.
func (d *Device) confirmDisconnected() {
	if d.State() == StateDisconnected {
		return
	}
	if d.disconnectTimer != nil {
		d.disconnectTimer.Stop()
		d.disconnectTimer = nil
	}
	d.invalidateServices()
	d.capabilities = nil
	d.setState(StateDisconnected)
	d.logger.Info("disconnected")
	d.emit(func(l ConnectionListener) { l.Disconnected(d) })
}

func (d *Device) invalidateServices() {
	for pair := d.services.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value.invalidate()
	}
	d.services = orderedmap.New[string, *Service]()
}

// handleProperties reacts to Device1 property changes. Runs on the manager
// loop.
func (d *Device) handleProperties(changed bluez.Properties) {
	if v, ok := changed["ServicesResolved"]; ok {
		if resolved, ok := v.(bool); ok && resolved && d.State() == StateConnecting {
			d.servicesResolved()
		}
	}
	if v, ok := changed["Connected"]; ok {
		if connected, ok := v.(bool); ok && !connected {
			d.linkDown()
		}
	}
}

// linkDown handles the stack reporting the link gone, whether requested or
// spontaneous.
func (d *Device) linkDown() {
	switch d.State() {
	case StateDisconnected:
		return
	case StateConnecting:
		if d.dialing {
			// The pending dial result carries the failure classification.
			return
		}
		d.connectFailed(ErrConnectionLost)
		return
	}
	d.confirmDisconnected()
}

// characteristicByPath looks a live characteristic up by object path.
func (d *Device) characteristicByPath(path string) (*Characteristic, bool) {
	for pair := d.services.Oldest(); pair != nil; pair = pair.Next() {
		if c, ok := pair.Value.characteristics.Get(path); ok {
			return c, true
		}
	}
	return nil, false
}

// Services returns the resolved services in handle order. Only meaningful
// from a listener callback while connected.
func (d *Device) Services() []*Service {
	services := make([]*Service, 0, d.services.Len())
	for pair := d.services.Oldest(); pair != nil; pair = pair.Next() {
		services = append(services, pair.Value)
	}
	return services
}

// Capability returns the characteristic bound to a named capability, or nil
// when not connected. Only meaningful from a listener callback.
func (d *Device) Capability(name string) *Characteristic {
	return d.capabilities[name]
}
