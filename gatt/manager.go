package gatt

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/cornelk/hashmap"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"

	"github.com/srg/nuimo/internal/bluez"
	"github.com/srg/nuimo/internal/ringchan"
)

// DiscoveryListener receives device discovery callbacks. Methods run on the
// manager event loop.
type DiscoveryListener interface {
	DeviceDiscovered(address, alias string)
}

// DiscoveryEvent is the channel form of a discovery callback, for consumers
// that prefer ranging over a channel to implementing DiscoveryListener.
type DiscoveryEvent struct {
	Address string
	Alias   string
}

// ManagerOptions configures a DeviceManager. Zero values are completed by
// DefaultManagerOptions.
type ManagerOptions struct {
	// Adapter is the host controller name, e.g. "hci0".
	Adapter string `yaml:"adapter" default:"hci0"`

	// TaskBuffer sizes the posted-call queue of the event loop.
	TaskBuffer int `yaml:"task_buffer" default:"128"`

	// EventBuffer sizes the discovery event ring.
	EventBuffer int `yaml:"event_buffer" default:"64"`

	// DeviceFilter restricts which discovered devices are reported. Nil
	// reports everything.
	DeviceFilter func(address, alias string) bool `yaml:"-"`
}

// DefaultManagerOptions returns ManagerOptions with defaults applied.
func DefaultManagerOptions() ManagerOptions {
	var opts ManagerOptions
	defaults.SetDefaults(&opts)
	return opts
}

var addressPattern = regexp.MustCompile(`^(?i:[0-9a-f]{2}(:[0-9a-f]{2}){5})$`)

// DeviceManager owns every Device of one adapter and runs the event loop
// that serializes host-stack signals and posted API calls.
type DeviceManager struct {
	bus    bluez.Bus
	logger *logrus.Entry
	opts   ManagerOptions

	adapterPath string
	devices     *hashmap.Map[string, *Device]
	tasks       chan func()

	// Loop-owned discovery state.
	discovering       bool
	discovered        map[string]bool
	discoveryListener DiscoveryListener

	events *ringchan.RingChannel[DiscoveryEvent]
}

// NewDeviceManager creates a manager over the given host-stack bus.
func NewDeviceManager(bus bluez.Bus, logger *logrus.Logger, opts ManagerOptions) *DeviceManager {
	def := DefaultManagerOptions()
	if opts.Adapter == "" {
		opts.Adapter = def.Adapter
	}
	if opts.TaskBuffer <= 0 {
		opts.TaskBuffer = def.TaskBuffer
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = def.EventBuffer
	}
	return &DeviceManager{
		bus:         bus,
		logger:      logger.WithField("adapter", opts.Adapter),
		opts:        opts,
		adapterPath: bluez.AdapterPath(opts.Adapter),
		devices:     hashmap.New[string, *Device](),
		tasks:       make(chan func(), opts.TaskBuffer),
		discovered:  map[string]bool{},
		events:      ringchan.New[DiscoveryEvent](opts.EventBuffer),
	}
}

// Adapter returns the adapter name the manager is bound to.
func (m *DeviceManager) Adapter() string { return m.opts.Adapter }

// Events returns the discovery event stream. Slow consumers lose the oldest
// events rather than stalling the loop.
func (m *DeviceManager) Events() <-chan DiscoveryEvent { return m.events.C() }

// SetDiscoveryListener installs the discovery callback target.
func (m *DeviceManager) SetDiscoveryListener(l DiscoveryListener) {
	m.post(func() { m.discoveryListener = l })
}

// Run drives the event loop until ctx is done or the bus signal stream
// closes. All listener callbacks happen on this goroutine.
func (m *DeviceManager) Run(ctx context.Context) error {
	m.logger.Debug("event loop started")
	defer m.logger.Debug("event loop stopped")
	signals := m.bus.Signals()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			m.handleSignal(sig)
		case task := <-m.tasks:
			task()
		}
	}
}

// post schedules fn on the event loop. Never blocks the caller: on queue
// overflow the send is handed to a goroutine, trading ordering of that one
// call for liveness.
func (m *DeviceManager) post(fn func()) {
	select {
	case m.tasks <- fn:
	default:
		m.logger.Warn("task queue full, posting asynchronously")
		go func() { m.tasks <- fn }()
	}
}

func (m *DeviceManager) handleSignal(sig bluez.Signal) {
	switch sig.Kind {
	case bluez.SignalObjectAdded:
		if props, ok := sig.Object[bluez.DeviceInterface]; ok {
			m.deviceSeen(sig.Path, props)
		}
	case bluez.SignalPropertyChanged:
		switch sig.Interface {
		case bluez.DeviceInterface:
			m.deviceSeen(sig.Path, sig.Changed)
			if address := bluez.AddressFromPath(m.opts.Adapter, sig.Path); address != "" {
				if d, ok := m.devices.Get(address); ok {
					d.handleProperties(sig.Changed)
				}
			}
		case bluez.CharacteristicInterface:
			if value, ok := sig.Changed["Value"].([]byte); ok {
				m.dispatchValue(sig.Path, value)
			}
		}
	}
}

// dispatchValue routes a characteristic notification to its owning device.
func (m *DeviceManager) dispatchValue(path string, value []byte) {
	m.devices.Range(func(_ string, d *Device) bool {
		if !strings.HasPrefix(path, d.path+"/") {
			return true
		}
		if c, ok := d.characteristicByPath(path); ok && !c.invalidated {
			d.emit(func(l ConnectionListener) { l.CharacteristicValueUpdated(d, c, value) })
		}
		return false
	})
}

// deviceSeen reports a device to the discovery listener, once per discovery
// session, applying the configured filter. Runs on the loop.
func (m *DeviceManager) deviceSeen(path string, props bluez.Properties) {
	if !m.discovering {
		return
	}
	address := bluez.AddressFromPath(m.opts.Adapter, path)
	if address == "" || m.discovered[address] {
		return
	}
	alias := m.aliasOf(path, props)
	if m.opts.DeviceFilter != nil && !m.opts.DeviceFilter(address, alias) {
		return
	}
	m.discovered[address] = true
	m.logger.WithFields(logrus.Fields{"address": address, "alias": alias}).Debug("device discovered")
	if m.discoveryListener != nil {
		m.discoveryListener.DeviceDiscovered(address, alias)
	}
	m.events.Send(DiscoveryEvent{Address: address, Alias: alias})
}

func (m *DeviceManager) aliasOf(path string, props bluez.Properties) string {
	if props != nil {
		if alias, ok := props["Alias"].(string); ok {
			return alias
		}
	}
	v, err := m.bus.GetProperty(path, bluez.DeviceInterface, "Alias")
	if err != nil {
		return ""
	}
	alias, _ := v.(string)
	return alias
}

// Device returns the tracked device for an address, creating it on first
// use. The address must be a colon-separated hardware address; capability
// declarations are validated up front.
func (m *DeviceManager) Device(address string, opts DeviceOptions) (*Device, error) {
	address = strings.ToLower(address)
	if !addressPattern.MatchString(address) {
		return nil, fmt.Errorf("invalid device address %q", address)
	}
	for _, c := range opts.Capabilities {
		if err := c.validate(); err != nil {
			return nil, err
		}
	}
	def := DefaultDeviceOptions()
	if opts.ConnectAttempts <= 0 {
		opts.ConnectAttempts = def.ConnectAttempts
	}
	if opts.DisconnectTimeout <= 0 {
		opts.DisconnectTimeout = def.DisconnectTimeout
	}
	d := newDevice(m, address, opts)
	if existing, loaded := m.devices.GetOrInsert(address, d); loaded {
		return existing, nil
	}
	return d, nil
}

// StartDiscovery begins scanning for LE devices advertising any of the given
// service UUIDs. Devices the stack already knows about are reported
// immediately; new ones follow as the stack sees them. The outcome of the
// request itself is returned synchronously.
func (m *DeviceManager) StartDiscovery(serviceUUIDs []string) error {
	filter := map[string]interface{}{
		"Transport": "le",
	}
	if len(serviceUUIDs) > 0 {
		filter["UUIDs"] = serviceUUIDs
	}
	if err := m.bus.SetDiscoveryFilter(m.adapterPath, filter); err != nil {
		return fmt.Errorf("set discovery filter: %w", err)
	}
	if err := m.bus.StartDiscovery(m.adapterPath); err != nil && !bluez.IsInProgress(err) {
		return fmt.Errorf("start discovery: %w", err)
	}
	objects, err := m.bus.ListManagedObjects()
	if err != nil {
		return fmt.Errorf("list known devices: %w", err)
	}
	m.post(func() {
		m.discovering = true
		m.discovered = map[string]bool{}
		// Sweep the snapshot so cached devices surface without waiting for
		// the stack to re-advertise them.
		for path, obj := range objects {
			if props, ok := obj[bluez.DeviceInterface]; ok {
				m.deviceSeen(path, props)
			}
		}
	})
	m.logger.Info("discovery started")
	return nil
}

// StopDiscovery stops scanning. Safe to call when not scanning.
func (m *DeviceManager) StopDiscovery() error {
	m.post(func() { m.discovering = false })
	if err := m.bus.StopDiscovery(m.adapterPath); err != nil {
		return fmt.Errorf("stop discovery: %w", err)
	}
	m.logger.Info("discovery stopped")
	return nil
}

// Close releases the bus. The event loop exits once the signal stream closes.
func (m *DeviceManager) Close() error {
	return m.bus.Close()
}
