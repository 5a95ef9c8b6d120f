package nuimo

import (
	"context"
	"strings"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"

	"github.com/srg/nuimo/gatt"
	"github.com/srg/nuimo/internal/bluez"
	"github.com/srg/nuimo/internal/ringchan"
)

// ManagerOptions configures a ControllerManager. Zero values are completed
// by DefaultManagerOptions.
type ManagerOptions struct {
	// Adapter is the host controller name, e.g. "hci0".
	Adapter string `yaml:"adapter" default:"hci0"`

	// ConnectAttempts bounds consecutive transient connect failures.
	ConnectAttempts int `yaml:"connect_attempts" default:"5"`

	// RetryDelay is the pause between transient connect retries.
	RetryDelay time.Duration `yaml:"retry_delay" default:"0s"`

	// DisconnectTimeout bounds an unconfirmed disconnect.
	DisconnectTimeout time.Duration `yaml:"disconnect_timeout" default:"10s"`

	// EventBuffer sizes the discovery and gesture event rings.
	EventBuffer int `yaml:"event_buffer" default:"64"`
}

// DefaultManagerOptions returns ManagerOptions with defaults applied.
func DefaultManagerOptions() ManagerOptions {
	var opts ManagerOptions
	defaults.SetDefaults(&opts)
	return opts
}

// ControllerManagerListener receives controller discovery callbacks. Methods
// run on the manager event loop.
type ControllerManagerListener interface {
	ControllerDiscovered(c *Controller)
}

// ControllerManager discovers Nuimo controllers on one adapter and hands out
// Controller sessions.
type ControllerManager struct {
	devices *gatt.DeviceManager
	logger  *logrus.Logger
	opts    ManagerOptions

	controllers *hashmap.Map[string, *Controller]
	listener    ControllerManagerListener

	discoveries *ringchan.RingChannel[*Controller]
}

// NewControllerManager creates a manager over the given host-stack bus.
func NewControllerManager(bus bluez.Bus, logger *logrus.Logger, opts ManagerOptions) *ControllerManager {
	def := DefaultManagerOptions()
	if opts.Adapter == "" {
		opts.Adapter = def.Adapter
	}
	if opts.ConnectAttempts <= 0 {
		opts.ConnectAttempts = def.ConnectAttempts
	}
	if opts.DisconnectTimeout <= 0 {
		opts.DisconnectTimeout = def.DisconnectTimeout
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = def.EventBuffer
	}
	m := &ControllerManager{
		logger:      logger,
		opts:        opts,
		controllers: hashmap.New[string, *Controller](),
		discoveries: ringchan.New[*Controller](opts.EventBuffer),
	}
	m.devices = gatt.NewDeviceManager(bus, logger, gatt.ManagerOptions{
		Adapter:     opts.Adapter,
		EventBuffer: opts.EventBuffer,
		// The firmware advertises the fixed alias "Nuimo".
		DeviceFilter: func(_, alias string) bool {
			return alias == "Nuimo"
		},
	})
	m.devices.SetDiscoveryListener(&discoveryAdapter{manager: m})
	return m
}

// Run drives the underlying event loop until ctx is done.
func (m *ControllerManager) Run(ctx context.Context) error {
	return m.devices.Run(ctx)
}

// StartDiscovery begins scanning for controllers. Known controllers are
// reported immediately, new ones as they advertise.
func (m *ControllerManager) StartDiscovery() error {
	return m.devices.StartDiscovery(ServiceUUIDs)
}

// StopDiscovery stops scanning.
func (m *ControllerManager) StopDiscovery() error {
	return m.devices.StopDiscovery()
}

// SetListener installs the discovery callback target.
func (m *ControllerManager) SetListener(l ControllerManagerListener) {
	m.listener = l
}

// Discoveries returns the stream of discovered controllers, an alternative
// to the listener callback.
func (m *ControllerManager) Discoveries() <-chan *Controller {
	return m.discoveries.C()
}

// Controller returns the session for a hardware address, creating it on
// first use.
func (m *ControllerManager) Controller(address string) (*Controller, error) {
	address = strings.ToLower(address)
	if c, ok := m.controllers.Get(address); ok {
		return c, nil
	}
	device, err := m.devices.Device(address, gatt.DeviceOptions{
		ConnectAttempts:   m.opts.ConnectAttempts,
		RetryDelay:        m.opts.RetryDelay,
		DisconnectTimeout: m.opts.DisconnectTimeout,
		Capabilities:      capabilities(),
	})
	if err != nil {
		return nil, err
	}
	c := newController(device, m.logger, m.opts.EventBuffer)
	if existing, loaded := m.controllers.GetOrInsert(address, c); loaded {
		return existing, nil
	}
	return c, nil
}

// Close releases the underlying bus.
func (m *ControllerManager) Close() error {
	return m.devices.Close()
}

type discoveryAdapter struct {
	manager *ControllerManager
}

func (a *discoveryAdapter) DeviceDiscovered(address, alias string) {
	m := a.manager
	c, err := m.Controller(address)
	if err != nil {
		m.logger.WithError(err).WithField("address", address).Warn("discovered device rejected")
		return
	}
	m.logger.WithFields(logrus.Fields{"address": address, "alias": alias}).Info("controller discovered")
	if m.listener != nil {
		m.listener.ControllerDiscovered(c)
	}
	m.discoveries.Send(c)
}
