package config

import (
	"fmt"
	"path/filepath"
)

// Paths holds every path hid-bpf uses:
//
//	{pin_root}/              - per-device pin trees
//	{bpffs}/                 - bpffs mount point
//	{runtime}/state.db       - load ledger
//	{runtime}/.lock          - writer lock
//	{attach_object}          - tracing attach skeleton
//
// Paths is immutable after construction. Use NewPaths to create.
type Paths struct {
	pinRoot      string
	bpffs        string
	runtime      string
	attachObject string
}

// NewPaths validates c and derives Paths from it. Every path must be
// absolute.
func NewPaths(c PathsConfig) (Paths, error) {
	for _, p := range []struct{ key, value string }{
		{"pin_root", c.PinRoot},
		{"bpffs", c.BPFFS},
		{"runtime", c.Runtime},
		{"attach_object", c.AttachObject},
	} {
		if p.value == "" {
			return Paths{}, fmt.Errorf("paths.%s cannot be empty", p.key)
		}
		if !filepath.IsAbs(p.value) {
			return Paths{}, fmt.Errorf("paths.%s must be absolute, got %q", p.key, p.value)
		}
	}
	return Paths{
		pinRoot:      filepath.Clean(c.PinRoot),
		bpffs:        filepath.Clean(c.BPFFS),
		runtime:      filepath.Clean(c.Runtime),
		attachObject: filepath.Clean(c.AttachObject),
	}, nil
}

// DefaultPaths returns Paths built from the embedded defaults.
func DefaultPaths() Paths {
	p, err := NewPaths(DefaultConfig().Paths)
	if err != nil {
		panic(fmt.Sprintf("DefaultPaths: %v", err))
	}
	return p
}

// PinRoot returns the root of the per-device pin trees.
func (p Paths) PinRoot() string { return p.pinRoot }

// BPFFS returns the bpffs mount point.
func (p Paths) BPFFS() string { return p.bpffs }

// Runtime returns the runtime state directory.
func (p Paths) Runtime() string { return p.runtime }

// AttachObject returns the path of the tracing attach skeleton.
func (p Paths) AttachObject() string { return p.attachObject }

// DBPath returns the full path to the SQLite load ledger.
func (p Paths) DBPath() string {
	return filepath.Join(p.runtime, "state.db")
}

// Lock returns the writer lock file path.
func (p Paths) Lock() string {
	return filepath.Join(p.runtime, ".lock")
}
