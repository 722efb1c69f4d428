// Package sysfs builds hidbpf.Device values from HID device nodes in
// sysfs.
package sysfs

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/frobware/go-hidbpf"
)

// HIDDevicesDir is where the kernel lists HID devices by sysname.
const HIDDevicesDir = "/sys/bus/hid/devices"

// ErrNotHIDDevice is returned for a sysfs node whose name carries no
// HID id.
var ErrNotHIDDevice = errors.New("not a HID device")

// Device is a HID device read from sysfs. Properties are read once at
// construction.
type Device struct {
	id         uint32
	syspath    string
	sysname    string
	properties []hidbpf.Property
}

var _ hidbpf.Device = (*Device)(nil)

// NewDevice reads the HID device at syspath. Symlinks are resolved so
// /sys/bus/hid/devices/<sysname> and the canonical /sys/devices path
// yield the same Device.
func NewDevice(syspath string) (*Device, error) {
	resolved, err := filepath.EvalSymlinks(syspath)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", syspath, err)
	}

	sysname := filepath.Base(resolved)
	id, err := ParseID(sysname)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(resolved, "uevent"))
	if err != nil {
		return nil, fmt.Errorf("read uevent of %s: %w", sysname, err)
	}

	return &Device{
		id:         id,
		syspath:    resolved,
		sysname:    sysname,
		properties: parseUevent(data),
	}, nil
}

// Lookup finds a device by path or by bare sysname. A name without a
// path separator is looked up under devicesDir.
func Lookup(devicesDir, nameOrPath string) (*Device, error) {
	if !strings.ContainsRune(nameOrPath, filepath.Separator) {
		nameOrPath = filepath.Join(devicesDir, nameOrPath)
	}
	return NewDevice(nameOrPath)
}

// ParseID extracts the HID id from a sysname: the hexadecimal suffix
// after the last '.' ("0003:045E:07A5.000B" is 11).
func ParseID(sysname string) (uint32, error) {
	i := strings.LastIndexByte(sysname, '.')
	if i < 0 || i == len(sysname)-1 {
		return 0, fmt.Errorf("%s: %w", sysname, ErrNotHIDDevice)
	}
	id, err := strconv.ParseUint(sysname[i+1:], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %v", sysname, ErrNotHIDDevice, err)
	}
	return uint32(id), nil
}

// ID is the numeric HID id taken from the sysname suffix.
func (d *Device) ID() uint32 {
	return d.id
}

func (d *Device) Syspath() string {
	return d.syspath
}

func (d *Device) Sysname() string {
	return d.sysname
}

// Properties returns the uevent properties in file order.
func (d *Device) Properties() []hidbpf.Property {
	return d.properties
}

// parseUevent reads KEY=VALUE lines in file order. Lines without '='
// are ignored.
func parseUevent(data []byte) []hidbpf.Property {
	var props []hidbpf.Property
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		name, value, ok := strings.Cut(sc.Text(), "=")
		if !ok || name == "" {
			continue
		}
		props = append(props, hidbpf.Property{Name: name, Value: value})
	}
	return props
}
