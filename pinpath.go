package hidbpf

import (
	"path/filepath"
	"strings"
)

// DefaultPinRoot is the bpffs directory under which every device gets
// its own pin subtree.
const DefaultPinRoot = "/sys/fs/bpf/hid"

var sanitizer = strings.NewReplacer(":", "_", ".", "_")

// Sanitize makes s usable as a single bpffs path element by replacing
// ':' and '.' with '_'.
func Sanitize(s string) string {
	return sanitizer.Replace(s)
}

// ObjectName returns the file stem of an object path
// ("/lib/foo.bpf.o" -> "foo.bpf").
func ObjectName(objectPath string) string {
	base := filepath.Base(objectPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// DevicePinDir returns <root>/<sanitize(sysname)>.
func DevicePinDir(root, sysname string) string {
	return filepath.Join(root, Sanitize(sysname))
}

// ObjectPinDir returns <root>/<sanitize(sysname)>/<sanitize(object)>,
// the subtree owned by one device/object load.
func ObjectPinDir(root, sysname, object string) string {
	return filepath.Join(DevicePinDir(root, sysname), Sanitize(object))
}

// ArtifactPinPath returns the pin path of a named artifact inside an
// object pin directory.
func ArtifactPinPath(objectDir, artifact string) string {
	return filepath.Join(objectDir, artifact)
}
