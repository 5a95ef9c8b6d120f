// Package nuimo drives the Senic Nuimo controller over a GATT session:
// gesture notifications (button, touch, rotation, fly sensor) decoded into
// events, and LED matrix frames scheduled toward the display characteristic.
package nuimo

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"

	"github.com/srg/nuimo/gatt"
	"github.com/srg/nuimo/internal/ringchan"
)

// GATT identifiers of the Nuimo controller.
const (
	ServiceUUID            = "f29b1525-cb19-40f3-be5c-7241ecb82fd2"
	ButtonCharacteristic   = "f29b1529-cb19-40f3-be5c-7241ecb82fd2"
	TouchCharacteristic    = "f29b1527-cb19-40f3-be5c-7241ecb82fd2"
	RotationCharacteristic = "f29b1528-cb19-40f3-be5c-7241ecb82fd2"
	FlyCharacteristic      = "f29b1526-cb19-40f3-be5c-7241ecb82fd2"
	MatrixCharacteristic   = "f29b152d-cb19-40f3-be5c-7241ecb82fd2"

	// Early firmware exposes the LED matrix in a dedicated service.
	LegacyMatrixServiceUUID    = "f29b1523-cb19-40f3-be5c-7241ecb82fd1"
	LegacyMatrixCharacteristic = "f29b1524-cb19-40f3-be5c-7241ecb82fd1"

	genericAttributeServiceUUID  = "00001801-0000-1000-8000-00805f9b34fb"
	deviceInformationServiceUUID = "0000180a-0000-1000-8000-00805f9b34fb"
	batteryServiceUUID           = "0000180f-0000-1000-8000-00805f9b34fb"
)

// ServiceUUIDs is the advertisement filter for controller discovery. Nuimos
// advertise different subsets of these depending on firmware.
var ServiceUUIDs = []string{
	ServiceUUID,
	LegacyMatrixServiceUUID,
	genericAttributeServiceUUID,
	deviceInformationServiceUUID,
	batteryServiceUUID,
}

// Capability names bound on the underlying device.
const (
	capButton = "button"
	capTouch  = "touch"
	capRotate = "rotation"
	capFly    = "fly"
	capMatrix = "led_matrix"
)

func capabilities() []gatt.Capability {
	return []gatt.Capability{
		{Name: capButton, Notify: true, Candidates: []gatt.CharacteristicRef{
			{Service: ServiceUUID, Characteristic: ButtonCharacteristic},
		}},
		{Name: capTouch, Notify: true, Candidates: []gatt.CharacteristicRef{
			{Service: ServiceUUID, Characteristic: TouchCharacteristic},
		}},
		{Name: capRotate, Notify: true, Candidates: []gatt.CharacteristicRef{
			{Service: ServiceUUID, Characteristic: RotationCharacteristic},
		}},
		{Name: capFly, Notify: true, Candidates: []gatt.CharacteristicRef{
			{Service: ServiceUUID, Characteristic: FlyCharacteristic},
		}},
		{Name: capMatrix, Candidates: []gatt.CharacteristicRef{
			{Service: ServiceUUID, Characteristic: MatrixCharacteristic},
			{Service: LegacyMatrixServiceUUID, Characteristic: LegacyMatrixCharacteristic},
		}},
	}
}

var characteristicKinds = map[string]characteristicKind{
	ButtonCharacteristic:       kindButton,
	TouchCharacteristic:        kindTouch,
	RotationCharacteristic:     kindRotation,
	FlyCharacteristic:          kindFly,
	MatrixCharacteristic:       kindLEDMatrix,
	LegacyMatrixCharacteristic: kindLEDMatrix,
}

// ControllerListener receives controller lifecycle and input callbacks. All
// methods run on the manager event loop. Embed NopControllerListener to
// implement only a subset.
type ControllerListener interface {
	StartedConnecting(c *Controller)
	ConnectSucceeded(c *Controller)
	ConnectFailed(c *Controller, err error)
	StartedDisconnecting(c *Controller)
	DisconnectSucceeded(c *Controller)
	ReceivedGestureEvent(c *Controller, event GestureEvent)
	DisplayCompleted(c *Controller)
	DisplayFailed(c *Controller, err error)
}

// NopControllerListener implements ControllerListener with no-ops.
type NopControllerListener struct{}

func (NopControllerListener) StartedConnecting(*Controller)                  {}
func (NopControllerListener) ConnectSucceeded(*Controller)                   {}
func (NopControllerListener) ConnectFailed(*Controller, error)               {}
func (NopControllerListener) StartedDisconnecting(*Controller)               {}
func (NopControllerListener) DisconnectSucceeded(*Controller)                {}
func (NopControllerListener) ReceivedGestureEvent(*Controller, GestureEvent) {}
func (NopControllerListener) DisplayCompleted(*Controller)                   {}
func (NopControllerListener) DisplayFailed(*Controller, error)               {}

// DisplayOptions shapes one LED matrix display request. Zero values are
// completed by DefaultDisplayOptions.
type DisplayOptions struct {
	// Interval is how long the frame stays lit, up to 25.5 seconds. Zero
	// picks the default; a negative interval keeps the frame lit until it
	// is replaced.
	Interval time.Duration `yaml:"interval" default:"2s"`

	// Brightness scales LED intensity, 0.0 to 1.0. Out-of-range values are
	// clamped.
	Brightness float64 `yaml:"brightness" default:"1"`

	// Fading cross-fades from the previous frame instead of switching hard.
	Fading bool `yaml:"fading"`

	// SuppressDuplicates drops a frame identical to the one still displayed.
	SuppressDuplicates bool `yaml:"suppress_duplicates"`
}

// DefaultDisplayOptions returns DisplayOptions with defaults applied.
func DefaultDisplayOptions() DisplayOptions {
	var opts DisplayOptions
	defaults.SetDefaults(&opts)
	return opts
}

// Controller is one Nuimo device. It decodes the input characteristics into
// gesture events and schedules LED matrix writes.
type Controller struct {
	device *gatt.Device
	logger *logrus.Entry
	writer *matrixWriter

	matrixChar atomic.Pointer[gatt.Characteristic]

	mu        sync.Mutex
	listeners []ControllerListener

	events *ringchan.RingChannel[GestureEvent]
}

func newController(device *gatt.Device, logger *logrus.Logger, eventBuffer int) *Controller {
	if eventBuffer <= 0 {
		eventBuffer = 64
	}
	c := &Controller{
		device: device,
		logger: logger.WithField("controller", device.Address()),
		events: ringchan.New[GestureEvent](eventBuffer),
	}
	c.writer = newMatrixWriter(c.sendMatrix, c.displayFailed)
	device.SetListener(&deviceListener{controller: c})
	return c
}

// Address returns the controller's hardware address.
func (c *Controller) Address() string { return c.device.Address() }

// State returns the connection state. Safe from any goroutine.
func (c *Controller) State() gatt.State { return c.device.State() }

// Device exposes the underlying GATT device.
func (c *Controller) Device() *gatt.Device { return c.device }

// AddListener registers a listener for lifecycle and gesture callbacks.
func (c *Controller) AddListener(l ControllerListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// RemoveListener unregisters a previously added listener.
func (c *Controller) RemoveListener(l ControllerListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, have := range c.listeners {
		if have == l {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

// Events returns the gesture event stream, an alternative to listener
// callbacks. A slow consumer loses the oldest events rather than stalling
// delivery.
func (c *Controller) Events() <-chan GestureEvent { return c.events.C() }

func (c *Controller) eachListener(fn func(ControllerListener)) {
	c.mu.Lock()
	snapshot := make([]ControllerListener, len(c.listeners))
	copy(snapshot, c.listeners)
	c.mu.Unlock()
	for _, l := range snapshot {
		fn(l)
	}
}

// Connect starts establishing the session. The outcome arrives through the
// listeners.
func (c *Controller) Connect() { c.device.Connect() }

// Disconnect tears the session down.
func (c *Controller) Disconnect() { c.device.Disconnect() }

// DisplayMatrix schedules an LED matrix frame. Never blocks; a failed write
// is reported through DisplayFailed and the frame is dropped.
func (c *Controller) DisplayMatrix(m LedMatrix, opts DisplayOptions) {
	if opts.Interval == 0 {
		opts.Interval = DefaultDisplayOptions().Interval
	}
	c.writer.Write(displayRequest{
		matrix:     m,
		interval:   opts.Interval,
		brightness: opts.Brightness,
		fading:     opts.Fading,
		suppress:   opts.SuppressDuplicates,
	})
}

func (c *Controller) sendMatrix(payload []byte) error {
	char := c.matrixChar.Load()
	if char == nil {
		return gatt.ErrNotConnected
	}
	char.Write(payload)
	return nil
}

func (c *Controller) displayFailed(err error) {
	c.logger.WithError(err).Warn("matrix display failed")
	c.eachListener(func(l ControllerListener) { l.DisplayFailed(c, err) })
}

// deviceListener adapts gatt.ConnectionListener callbacks onto the
// controller. All methods run on the manager event loop.
type deviceListener struct {
	controller *Controller
}

func (dl *deviceListener) ConnectionStarted(*gatt.Device) {
	c := dl.controller
	c.eachListener(func(l ControllerListener) { l.StartedConnecting(c) })
}

func (dl *deviceListener) Connected(d *gatt.Device) {
	c := dl.controller
	c.matrixChar.Store(d.Capability(capMatrix))
	c.logger.Info("controller ready")
	c.eachListener(func(l ControllerListener) { l.ConnectSucceeded(c) })
}

func (dl *deviceListener) ConnectFailed(_ *gatt.Device, err error) {
	c := dl.controller
	c.logger.WithError(err).Warn("controller connect failed")
	c.eachListener(func(l ControllerListener) { l.ConnectFailed(c, err) })
}

func (dl *deviceListener) DisconnectionStarted(*gatt.Device) {
	c := dl.controller
	c.eachListener(func(l ControllerListener) { l.StartedDisconnecting(c) })
}

func (dl *deviceListener) Disconnected(*gatt.Device) {
	c := dl.controller
	c.matrixChar.Store(nil)
	c.writer.reset()
	c.eachListener(func(l ControllerListener) { l.DisconnectSucceeded(c) })
}

func (dl *deviceListener) CharacteristicValueUpdated(_ *gatt.Device, char *gatt.Characteristic, value []byte) {
	c := dl.controller
	kind, ok := characteristicKinds[char.UUID()]
	if !ok {
		return
	}
	event, ok := decodeGesture(kind, value)
	if !ok {
		c.logger.WithFields(logrus.Fields{"characteristic": char.UUID(), "len": len(value)}).Debug("undecodable notification dropped")
		return
	}
	c.eachListener(func(l ControllerListener) { l.ReceivedGestureEvent(c, event) })
	c.events.Send(event)
}

func (dl *deviceListener) CharacteristicWriteCompleted(_ *gatt.Device, char *gatt.Characteristic, err error) {
	c := dl.controller
	if characteristicKinds[char.UUID()] != kindLEDMatrix {
		return
	}
	if err != nil {
		c.displayFailed(err)
		c.writer.writeFailed()
		return
	}
	c.eachListener(func(l ControllerListener) { l.DisplayCompleted(c) })
	c.writer.writeCompleted()
}
