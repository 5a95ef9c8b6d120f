package gatt

import (
	"fmt"

	"github.com/google/uuid"
)

// CharacteristicRef addresses one characteristic by its owning service UUID
// and its own UUID.
type CharacteristicRef struct {
	Service        string
	Characteristic string
}

// Capability binds a peripheral feature name to the characteristic(s) that
// may carry it. Candidates are tried in order; the first one present in the
// resolved tree wins. This table replaces peripheral-specific subclassing:
// a profile is just configuration handed to the Device.
type Capability struct {
	Name string

	// Notify requests a notification subscription on the resolved
	// characteristic as part of connecting.
	Notify bool

	// Candidates lists acceptable locations, in preference order. Later
	// entries typically cover legacy firmware layouts.
	Candidates []CharacteristicRef
}

func (c Capability) validate() error {
	if c.Name == "" {
		return fmt.Errorf("capability has no name")
	}
	if len(c.Candidates) == 0 {
		return fmt.Errorf("capability %q has no candidate characteristics", c.Name)
	}
	for _, ref := range c.Candidates {
		if _, err := uuid.Parse(ref.Service); err != nil {
			return fmt.Errorf("capability %q: invalid service UUID %q: %w", c.Name, ref.Service, err)
		}
		if _, err := uuid.Parse(ref.Characteristic); err != nil {
			return fmt.Errorf("capability %q: invalid characteristic UUID %q: %w", c.Name, ref.Characteristic, err)
		}
	}
	return nil
}
