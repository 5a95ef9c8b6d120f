package bluez

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

// SystemBus is the production Bus implementation talking to bluetoothd over
// the D-Bus system bus.
type SystemBus struct {
	conn    *dbus.Conn
	raw     chan *dbus.Signal
	signals chan Signal
	logger  *logrus.Logger
}

var _ Bus = (*SystemBus)(nil)

// NewSystemBus connects to the system bus and subscribes to the
// InterfacesAdded and PropertiesChanged signal streams.
func NewSystemBus(logger *logrus.Logger) (*SystemBus, error) {
	if logger == nil {
		logger = logrus.New()
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(objectManagerInterface),
		dbus.WithMatchMember("InterfacesAdded"),
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to match InterfacesAdded: %w", err)
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(propertiesInterface),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to match PropertiesChanged: %w", err)
	}

	b := &SystemBus{
		conn:    conn,
		raw:     make(chan *dbus.Signal, 64),
		signals: make(chan Signal, 64),
		logger:  logger,
	}
	conn.Signal(b.raw)

	// Single translator goroutine keeps host-delivery order intact.
	go b.translate()

	return b, nil
}

func (b *SystemBus) translate() {
	defer close(b.signals)
	for sig := range b.raw {
		switch sig.Name {
		case objectManagerInterface + ".InterfacesAdded":
			if len(sig.Body) < 2 {
				continue
			}
			path, ok := sig.Body[0].(dbus.ObjectPath)
			if !ok {
				continue
			}
			ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
			if !ok {
				b.logger.WithField("signal", sig.Name).Debug("unexpected signal body shape")
				continue
			}
			b.signals <- Signal{
				Kind:   SignalObjectAdded,
				Path:   string(path),
				Object: flattenObject(ifaces),
			}
		case propertiesInterface + ".PropertiesChanged":
			if len(sig.Body) < 2 {
				continue
			}
			iface, ok := sig.Body[0].(string)
			if !ok {
				continue
			}
			changed, ok := sig.Body[1].(map[string]dbus.Variant)
			if !ok {
				b.logger.WithField("signal", sig.Name).Debug("unexpected signal body shape")
				continue
			}
			b.signals <- Signal{
				Kind:      SignalPropertyChanged,
				Path:      string(sig.Path),
				Interface: iface,
				Changed:   flattenProperties(changed),
			}
		}
	}
}

func (b *SystemBus) object(path string) dbus.BusObject {
	return b.conn.Object(BusName, dbus.ObjectPath(path))
}

func (b *SystemBus) ListManagedObjects() (map[string]Object, error) {
	var out map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	err := b.conn.Object(BusName, "/").
		Call(objectManagerInterface+".GetManagedObjects", 0).
		Store(&out)
	if err != nil {
		return nil, asBusError(err)
	}

	objects := make(map[string]Object, len(out))
	for path, ifaces := range out {
		objects[string(path)] = flattenObject(ifaces)
	}
	return objects, nil
}

func (b *SystemBus) Connect(devicePath string) error {
	return asBusError(b.object(devicePath).Call(DeviceInterface+".Connect", 0).Err)
}

func (b *SystemBus) Disconnect(devicePath string) error {
	return asBusError(b.object(devicePath).Call(DeviceInterface+".Disconnect", 0).Err)
}

func (b *SystemBus) GetProperty(path, iface, name string) (interface{}, error) {
	var v dbus.Variant
	err := b.object(path).Call(propertiesInterface+".Get", 0, iface, name).Store(&v)
	if err != nil {
		return nil, asBusError(err)
	}
	return v.Value(), nil
}

func (b *SystemBus) SetDiscoveryFilter(adapterPath string, filter map[string]interface{}) error {
	variants := make(map[string]dbus.Variant, len(filter))
	for k, v := range filter {
		variants[k] = dbus.MakeVariant(v)
	}
	return asBusError(b.object(adapterPath).Call(AdapterInterface+".SetDiscoveryFilter", 0, variants).Err)
}

func (b *SystemBus) StartDiscovery(adapterPath string) error {
	return asBusError(b.object(adapterPath).Call(AdapterInterface+".StartDiscovery", 0).Err)
}

func (b *SystemBus) StopDiscovery(adapterPath string) error {
	return asBusError(b.object(adapterPath).Call(AdapterInterface+".StopDiscovery", 0).Err)
}

func (b *SystemBus) WriteCharacteristic(path string, value []byte) error {
	options := map[string]dbus.Variant{
		"offset": dbus.MakeVariant(uint16(0)),
	}
	return asBusError(b.object(path).Call(CharacteristicInterface+".WriteValue", 0, value, options).Err)
}

func (b *SystemBus) StartNotify(path string) error {
	return asBusError(b.object(path).Call(CharacteristicInterface+".StartNotify", 0).Err)
}

func (b *SystemBus) StopNotify(path string) error {
	return asBusError(b.object(path).Call(CharacteristicInterface+".StopNotify", 0).Err)
}

func (b *SystemBus) Signals() <-chan Signal {
	return b.signals
}

func (b *SystemBus) Close() error {
	b.conn.RemoveSignal(b.raw)
	close(b.raw)
	return b.conn.Close()
}

// asBusError converts godbus errors into the structured Error the connection
// state machine classifies; anything else passes through unchanged.
func asBusError(err error) error {
	if err == nil {
		return nil
	}
	var derr dbus.Error
	if !errors.As(err, &derr) {
		var derrp *dbus.Error
		if !errors.As(err, &derrp) {
			return err
		}
		derr = *derrp
	}
	msg := ""
	if len(derr.Body) > 0 {
		if s, ok := derr.Body[0].(string); ok {
			msg = s
		}
	}
	return &Error{Name: derr.Name, Message: msg}
}

func flattenObject(ifaces map[string]map[string]dbus.Variant) Object {
	obj := make(Object, len(ifaces))
	for name, props := range ifaces {
		obj[name] = flattenProperties(props)
	}
	return obj
}

func flattenProperties(props map[string]dbus.Variant) Properties {
	flat := make(Properties, len(props))
	for name, v := range props {
		flat[name] = v.Value()
	}
	return flat
}
