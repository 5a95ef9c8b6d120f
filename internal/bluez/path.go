package bluez

import (
	"fmt"
	"regexp"
	"strings"
)

// bluetoothd encodes the adapter name and hardware address into device object
// paths: /org/bluez/<adapter>/dev_AA_BB_CC_DD_EE_FF. Services and
// characteristics hang below the device path (".../serviceXXXX/charXXXX").

// AdapterPath returns the object path of a named adapter, e.g. "hci0".
func AdapterPath(adapter string) string {
	return "/org/bluez/" + adapter
}

// DevicePath returns the object path of a device on the given adapter.
// The address may use any case and ":" separators.
func DevicePath(adapter, address string) string {
	return fmt.Sprintf("%s/dev_%s", AdapterPath(adapter), strings.ToUpper(strings.ReplaceAll(address, ":", "_")))
}

var devicePathPattern = regexp.MustCompile(`^/org/bluez/([^/]+)/dev((_[A-Z0-9]{2}){6})$`)

// AddressFromPath extracts the hardware address from a device object path
// scoped to the given adapter. Returns "" if the path is not a device path of
// that adapter.
func AddressFromPath(adapter, path string) string {
	m := devicePathPattern.FindStringSubmatch(path)
	if m == nil || m[1] != adapter {
		return ""
	}
	return strings.ToLower(strings.ReplaceAll(m[2][1:], "_", ":"))
}

// IsChildPath reports whether path is a direct child of parent in the object
// tree (one path element below it).
func IsChildPath(parent, path string) bool {
	if !strings.HasPrefix(path, parent+"/") {
		return false
	}
	return !strings.Contains(path[len(parent)+1:], "/")
}
