package hidbpf

// Device is the HID device a load is performed for. It is provided by
// the device-discovery collaborator and is read-only to the loader.
type Device interface {
	// ID is the numeric HID id the kernel uses for the device.
	ID() uint32
	// Syspath is the absolute sysfs path of the device.
	Syspath() string
	// Sysname is the stable device name used to build pin paths.
	Sysname() string
	// Properties returns the device's (name, value) properties in
	// reporting order.
	Properties() []Property
}

// Property is a single udev-style (name, value) pair.
type Property struct {
	Name  string
	Value string
}

// MergeProperties combines device-reported properties with
// caller-supplied extras. An extra property always overrides a device
// property of the same name: device properties whose name appears in
// extra are dropped and all extras are appended in their given order.
func MergeProperties(device, extra []Property) []Property {
	overridden := make(map[string]struct{}, len(extra))
	for _, p := range extra {
		overridden[p.Name] = struct{}{}
	}

	merged := make([]Property, 0, len(device)+len(extra))
	for _, p := range device {
		if _, ok := overridden[p.Name]; ok {
			continue
		}
		merged = append(merged, p)
	}
	return append(merged, extra...)
}

// LookupProperty returns the first property named name.
func LookupProperty(props []Property, name string) (Property, bool) {
	for _, p := range props {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}
