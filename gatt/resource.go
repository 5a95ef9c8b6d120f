package gatt

import (
	"sort"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/nuimo/internal/bluez"
)

// Service is one GATT service resolved under a Device. Services are
// reachable only through their owning Device and become unusable once
// invalidated by a disconnect or re-resolution.
type Service struct {
	device *Device
	path   string
	uuid   string

	characteristics *orderedmap.OrderedMap[string, *Characteristic]
	invalidated     bool
}

// UUID returns the protocol-defined service UUID (lowercase, dashed).
func (s *Service) UUID() string { return s.uuid }

// Path returns the host-stack object path of the service.
func (s *Service) Path() string { return s.path }

// Device returns the owning device.
func (s *Service) Device() *Device { return s.device }

// Characteristics returns the service's characteristics in resolution order.
func (s *Service) Characteristics() []*Characteristic {
	chars := make([]*Characteristic, 0, s.characteristics.Len())
	for pair := s.characteristics.Oldest(); pair != nil; pair = pair.Next() {
		chars = append(chars, pair.Value)
	}
	return chars
}

// CharacteristicByUUID returns the first characteristic with the given UUID.
func (s *Service) CharacteristicByUUID(uuid string) (*Characteristic, bool) {
	for pair := s.characteristics.Oldest(); pair != nil; pair = pair.Next() {
		if equalUUID(pair.Value.uuid, uuid) {
			return pair.Value, true
		}
	}
	return nil, false
}

// resolveCharacteristics populates the service's children from a managed
// objects snapshot. Runs on the manager loop.
func (s *Service) resolveCharacteristics(objects map[string]bluez.Object) {
	s.characteristics = orderedmap.New[string, *Characteristic]()
	for _, path := range childPaths(objects, s.path, bluez.CharacteristicInterface) {
		s.characteristics.Set(path, &Characteristic{
			service: s,
			path:    path,
			uuid:    uuidProp(objects[path][bluez.CharacteristicInterface]),
		})
	}
}

// invalidate marks the service and all its characteristics unusable.
// Idempotent.
func (s *Service) invalidate() {
	if s.invalidated {
		return
	}
	s.invalidated = true
	for pair := s.characteristics.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value.invalidate()
	}
}

// Characteristic is one GATT characteristic resolved under a Service. Its
// notification subscription is a scoped resource: acquired by
// EnableNotifications, released exactly once on invalidation.
type Characteristic struct {
	service *Service
	path    string
	uuid    string

	notifying   bool
	invalidated bool
}

// UUID returns the characteristic UUID (lowercase, dashed).
func (c *Characteristic) UUID() string { return c.uuid }

// Path returns the host-stack object path of the characteristic.
func (c *Characteristic) Path() string { return c.path }

// Service returns the owning service.
func (c *Characteristic) Service() *Service { return c.service }

// Notifying reports whether a notification subscription is active.
func (c *Characteristic) Notifying() bool { return c.notifying }

// EnableNotifications subscribes to value-change notifications. A
// subscription the host stack reports as already active counts as success.
func (c *Characteristic) EnableNotifications() error {
	if c.invalidated {
		return ErrInvalidated
	}
	if c.notifying {
		return nil
	}
	if err := c.service.device.manager.bus.StartNotify(c.path); err != nil && !bluez.IsAlreadyNotifying(err) {
		return err
	}
	c.notifying = true
	return nil
}

// Write issues an asynchronous characteristic write. The outcome is
// delivered through the connection listener's CharacteristicWriteCompleted;
// an acknowledgment that arrives after the characteristic was invalidated is
// dropped.
func (c *Characteristic) Write(value []byte) {
	d := c.service.device
	m := d.manager
	data := make([]byte, len(value))
	copy(data, value)
	m.post(func() {
		if c.invalidated {
			d.emit(func(l ConnectionListener) { l.CharacteristicWriteCompleted(d, c, ErrInvalidated) })
			return
		}
		if d.State() != StateConnected {
			d.emit(func(l ConnectionListener) { l.CharacteristicWriteCompleted(d, c, ErrNotConnected) })
			return
		}
		// The ATT round trip must not stall signal processing; completion is
		// posted back onto the loop to keep callback ordering intact.
		go func() {
			err := m.bus.WriteCharacteristic(c.path, data)
			m.post(func() {
				if c.invalidated {
					return
				}
				d.emit(func(l ConnectionListener) { l.CharacteristicWriteCompleted(d, c, err) })
			})
		}()
	})
}

// invalidate releases the notification subscription and marks the
// characteristic unusable. Idempotent; the release happens at most once.
func (c *Characteristic) invalidate() {
	if c.invalidated {
		return
	}
	c.invalidated = true
	if !c.notifying {
		return
	}
	c.notifying = false
	if err := c.service.device.manager.bus.StopNotify(c.path); err != nil {
		// Expected when the link is already down; the subscription died with it.
		c.service.device.logger.WithField("characteristic", c.uuid).WithError(err).Debug("StopNotify failed during invalidation")
	}
}

func equalUUID(a, b string) bool {
	return strings.EqualFold(a, b)
}

// childPaths returns the direct children of parent exposing iface, sorted by
// path. Attribute handles are hex-encoded in the path, so lexicographic
// order matches handle order.
func childPaths(objects map[string]bluez.Object, parent, iface string) []string {
	var paths []string
	for path, obj := range objects {
		if _, ok := obj[iface]; !ok {
			continue
		}
		if !bluez.IsChildPath(parent, path) {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func uuidProp(props bluez.Properties) string {
	if props == nil {
		return ""
	}
	if s, ok := props["UUID"].(string); ok {
		return s
	}
	return ""
}
