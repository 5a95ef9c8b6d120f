// Package bluez abstracts the host Bluetooth stack behind a narrow Bus
// interface modeled on bluetoothd's D-Bus object tree. The GATT core talks
// only to this interface; production code plugs in SystemBus, tests plug in
// a fake.
package bluez

// Well-known bluetoothd names.
const (
	BusName = "org.bluez"

	AdapterInterface        = "org.bluez.Adapter1"
	DeviceInterface         = "org.bluez.Device1"
	ServiceInterface        = "org.bluez.GattService1"
	CharacteristicInterface = "org.bluez.GattCharacteristic1"

	objectManagerInterface = "org.freedesktop.DBus.ObjectManager"
	propertiesInterface    = "org.freedesktop.DBus.Properties"
)

// Properties is a property bag for one interface of one object.
type Properties map[string]interface{}

// Object maps an interface name to the properties the object exposes on it.
type Object map[string]Properties

// SignalKind discriminates the two asynchronous event classes the stack emits.
type SignalKind int

const (
	// SignalObjectAdded corresponds to ObjectManager.InterfacesAdded.
	SignalObjectAdded SignalKind = iota
	// SignalPropertyChanged corresponds to Properties.PropertiesChanged.
	SignalPropertyChanged
)

// Signal is one asynchronous host-stack event. Signals arrive on the channel
// returned by Bus.Signals in host-delivery order.
type Signal struct {
	Kind SignalKind
	Path string

	// Object carries the new object's interfaces and properties for
	// SignalObjectAdded.
	Object Object

	// Interface and Changed carry the changed property set for
	// SignalPropertyChanged.
	Interface string
	Changed   Properties
}

// Bus is the host Bluetooth stack contract. All methods are safe for use
// from a single goroutine; Connect blocks until the stack acknowledges or
// rejects, everything else returns promptly.
type Bus interface {
	// ListManagedObjects returns a point-in-time snapshot of every object
	// the stack knows about, keyed by object path.
	ListManagedObjects() (map[string]Object, error)

	// Connect and Disconnect address a device object path. Connect blocks
	// until the link is up or the stack reports an error; the Connected
	// property signal still follows asynchronously.
	Connect(devicePath string) error
	Disconnect(devicePath string) error

	// GetProperty reads one property of one interface of an object.
	GetProperty(path, iface, name string) (interface{}, error)

	SetDiscoveryFilter(adapterPath string, filter map[string]interface{}) error
	StartDiscovery(adapterPath string) error
	StopDiscovery(adapterPath string) error

	// WriteCharacteristic performs an ATT write request and returns once the
	// peripheral acknowledged or the stack reports an error.
	WriteCharacteristic(path string, value []byte) error

	// StartNotify and StopNotify manage the CCCD subscription of a
	// characteristic object.
	StartNotify(path string) error
	StopNotify(path string) error

	// Signals returns the ordered stream of asynchronous events. The channel
	// is closed by Close.
	Signals() <-chan Signal

	Close() error
}
