package sysfs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/go-hidbpf"
	"github.com/frobware/go-hidbpf/sysfs"
)

const uevent = `DRIVER=hid-generic
HID_ID=0003:0000045E:000007A5
HID_NAME=Microsoft Wireless Mouse
HID_PHYS=usb-0000:00:14.0-2/input0
MODALIAS=hid:b0003g0001v0000045Ep000007A5
`

// fakeSysfs lays out a canonical device directory and a bus symlink
// to it, the way /sys/bus/hid/devices is populated.
func fakeSysfs(t *testing.T, sysname, contents string) (busDir, canonical string) {
	t.Helper()
	root := t.TempDir()
	canonical = filepath.Join(root, "devices", "pci0000:00", "usb1", sysname)
	require.NoError(t, os.MkdirAll(canonical, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(canonical, "uevent"), []byte(contents), 0o644))

	busDir = filepath.Join(root, "bus", "hid", "devices")
	require.NoError(t, os.MkdirAll(busDir, 0o755))
	require.NoError(t, os.Symlink(canonical, filepath.Join(busDir, sysname)))
	return busDir, canonical
}

func TestNewDevice(t *testing.T) {
	busDir, canonical := fakeSysfs(t, "0003:045E:07A5.000B", uevent)

	dev, err := sysfs.NewDevice(filepath.Join(busDir, "0003:045E:07A5.000B"))
	require.NoError(t, err)

	resolved, err := filepath.EvalSymlinks(canonical)
	require.NoError(t, err)
	assert.Equal(t, uint32(11), dev.ID())
	assert.Equal(t, "0003:045E:07A5.000B", dev.Sysname())
	assert.Equal(t, resolved, dev.Syspath())
	assert.Equal(t, []hidbpf.Property{
		{Name: "DRIVER", Value: "hid-generic"},
		{Name: "HID_ID", Value: "0003:0000045E:000007A5"},
		{Name: "HID_NAME", Value: "Microsoft Wireless Mouse"},
		{Name: "HID_PHYS", Value: "usb-0000:00:14.0-2/input0"},
		{Name: "MODALIAS", Value: "hid:b0003g0001v0000045Ep000007A5"},
	}, dev.Properties())
}

func TestNewDevice_IgnoresMalformedLines(t *testing.T) {
	busDir, _ := fakeSysfs(t, "0005:046D:B01A.0001", "garbage\n=nokey\nHID_NAME=a=b\n\n")

	dev, err := sysfs.NewDevice(filepath.Join(busDir, "0005:046D:B01A.0001"))
	require.NoError(t, err)
	assert.Equal(t, []hidbpf.Property{{Name: "HID_NAME", Value: "a=b"}}, dev.Properties())
}

func TestNewDevice_Errors(t *testing.T) {
	t.Run("missing path", func(t *testing.T) {
		_, err := sysfs.NewDevice(filepath.Join(t.TempDir(), "nope"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("not a HID node", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "input5")
		require.NoError(t, os.Mkdir(dir, 0o755))
		_, err := sysfs.NewDevice(dir)
		assert.ErrorIs(t, err, sysfs.ErrNotHIDDevice)
	})

	t.Run("missing uevent", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "0003:045E:07A5.000C")
		require.NoError(t, os.Mkdir(dir, 0o755))
		_, err := sysfs.NewDevice(dir)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestLookup(t *testing.T) {
	busDir, _ := fakeSysfs(t, "0003:045E:07A5.000B", uevent)

	byName, err := sysfs.Lookup(busDir, "0003:045E:07A5.000B")
	require.NoError(t, err)
	byPath, err := sysfs.Lookup("/nonexistent", filepath.Join(busDir, "0003:045E:07A5.000B"))
	require.NoError(t, err)
	assert.Equal(t, byName, byPath)
}

func TestParseID(t *testing.T) {
	tests := []struct {
		sysname string
		want    uint32
		wantErr bool
	}{
		{"0003:045E:07A5.000B", 11, false},
		{"0005:046D:B01A.0001", 1, false},
		{"0018:06CB:CD7D.00FF", 255, false},
		{"0003:045E:07A5", 0, true},
		{"0003:045E:07A5.", 0, true},
		{"0003:045E:07A5.XYZ", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.sysname, func(t *testing.T) {
			got, err := sysfs.ParseID(tt.sysname)
			if tt.wantErr {
				assert.ErrorIs(t, err, sysfs.ErrNotHIDDevice)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
