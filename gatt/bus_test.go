package gatt

import (
	"fmt"
	"sync"

	"github.com/srg/nuimo/internal/bluez"
)

// fakeBus is an in-memory bluez.Bus for driving the state machine in tests.
type fakeBus struct {
	mu sync.Mutex

	objects map[string]bluez.Object
	props   map[string]interface{}

	connectErrs  []error
	connectCalls int
	disconnects  int

	startNotifyErrs map[string]error
	notifyStarts    []string
	notifyStops     []string

	writeErr error
	writes   [][]byte

	filter           map[string]interface{}
	discoveryActive  bool
	discoveryStarted int

	signals chan bluez.Signal
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		objects:         map[string]bluez.Object{},
		props:           map[string]interface{}{},
		startNotifyErrs: map[string]error{},
		signals:         make(chan bluez.Signal, 16),
	}
}

func propKey(path, iface, name string) string {
	return path + "|" + iface + "|" + name
}

func (b *fakeBus) setProperty(path, iface, name string, value interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.props[propKey(path, iface, name)] = value
}

func (b *fakeBus) addObject(path string, obj bluez.Object) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[path] = obj
}

func (b *fakeBus) ListManagedObjects() (map[string]bluez.Object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	snapshot := make(map[string]bluez.Object, len(b.objects))
	for path, obj := range b.objects {
		snapshot[path] = obj
	}
	return snapshot, nil
}

func (b *fakeBus) Connect(devicePath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connectCalls++
	if len(b.connectErrs) == 0 {
		return nil
	}
	err := b.connectErrs[0]
	b.connectErrs = b.connectErrs[1:]
	return err
}

func (b *fakeBus) Disconnect(devicePath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnects++
	return nil
}

func (b *fakeBus) GetProperty(path, iface, name string) (interface{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.props[propKey(path, iface, name)]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("no such property %s on %s", name, path)
}

func (b *fakeBus) SetDiscoveryFilter(adapterPath string, filter map[string]interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter = filter
	return nil
}

func (b *fakeBus) StartDiscovery(adapterPath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.discoveryActive = true
	b.discoveryStarted++
	return nil
}

func (b *fakeBus) StopDiscovery(adapterPath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.discoveryActive = false
	return nil
}

func (b *fakeBus) WriteCharacteristic(path string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes = append(b.writes, append([]byte(nil), value...))
	return b.writeErr
}

func (b *fakeBus) StartNotify(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifyStarts = append(b.notifyStarts, path)
	return b.startNotifyErrs[path]
}

func (b *fakeBus) StopNotify(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifyStops = append(b.notifyStops, path)
	return nil
}

func (b *fakeBus) Signals() <-chan bluez.Signal { return b.signals }

func (b *fakeBus) Close() error {
	close(b.signals)
	return nil
}

func (b *fakeBus) connectCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connectCalls
}

func (b *fakeBus) writeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.writes)
}

func (b *fakeBus) notifyStopCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.notifyStops)
}

// listenerRecorder captures connection callbacks for assertions.
type listenerRecorder struct {
	started       int
	connected     int
	failures      []error
	disconnecting int
	disconnected  int

	values []recordedValue
	writes []error
}

type recordedValue struct {
	characteristic *Characteristic
	value          []byte
}

func (r *listenerRecorder) ConnectionStarted(*Device)        { r.started++ }
func (r *listenerRecorder) Connected(*Device)                { r.connected++ }
func (r *listenerRecorder) ConnectFailed(_ *Device, err error) { r.failures = append(r.failures, err) }
func (r *listenerRecorder) DisconnectionStarted(*Device)     { r.disconnecting++ }
func (r *listenerRecorder) Disconnected(*Device)             { r.disconnected++ }

func (r *listenerRecorder) CharacteristicValueUpdated(_ *Device, c *Characteristic, value []byte) {
	r.values = append(r.values, recordedValue{characteristic: c, value: value})
}

func (r *listenerRecorder) CharacteristicWriteCompleted(_ *Device, _ *Characteristic, err error) {
	r.writes = append(r.writes, err)
}
