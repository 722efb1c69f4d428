package bpffs

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
)

// Scanner provides read-only access to the pin layout below a pin
// root:
//
//	<root>/<device>/<object>/<artifact>
//
// Device and object directory names are already sanitised; the
// scanner never tries to map them back to sysnames.
type Scanner struct {
	root        string
	onMalformed func(path string, err error)
}

// NewScanner creates a Scanner for the given pin root.
func NewScanner(root string) *Scanner {
	return &Scanner{root: root}
}

// WithOnMalformed sets a callback for entries that do not fit the
// layout, such as plain files directly below the root. Returns the
// Scanner for chaining.
func (s *Scanner) WithOnMalformed(f func(path string, err error)) *Scanner {
	s.onMalformed = f
	return s
}

func (s *Scanner) reportMalformed(path string, err error) {
	if s.onMalformed != nil {
		s.onMalformed(path, err)
	}
}

// ObjectDir is the pin directory of one device/object load.
type ObjectDir struct {
	Path   string
	Device string
	Object string
}

// Pin is one pinned artifact inside an object directory.
type Pin struct {
	Path   string
	Device string
	Object string
	Name   string
}

// FSState is a materialised snapshot of the pin root.
type FSState struct {
	Objects []ObjectDir
	Pins    []Pin
}

// Devices returns an iterator over device directories below the root.
func (s *Scanner) Devices(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		entries, err := os.ReadDir(s.root)
		if err != nil {
			if os.IsNotExist(err) {
				return // nothing pinned yet
			}
			yield("", fmt.Errorf("read dir %s: %w", s.root, err))
			return
		}

		for _, entry := range entries {
			if ctx.Err() != nil {
				yield("", ctx.Err())
				return
			}
			if !entry.IsDir() {
				s.reportMalformed(filepath.Join(s.root, entry.Name()), fmt.Errorf("not a device directory"))
				continue
			}
			if !yield(entry.Name(), nil) {
				return
			}
		}
	}
}

// Objects returns an iterator over the object directories of one
// device directory.
func (s *Scanner) Objects(ctx context.Context, device string) iter.Seq2[ObjectDir, error] {
	return func(yield func(ObjectDir, error) bool) {
		dir := filepath.Join(s.root, device)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return
			}
			yield(ObjectDir{}, fmt.Errorf("read dir %s: %w", dir, err))
			return
		}

		for _, entry := range entries {
			if ctx.Err() != nil {
				yield(ObjectDir{}, ctx.Err())
				return
			}
			if !entry.IsDir() {
				s.reportMalformed(filepath.Join(dir, entry.Name()), fmt.Errorf("not an object directory"))
				continue
			}
			od := ObjectDir{
				Path:   filepath.Join(dir, entry.Name()),
				Device: device,
				Object: entry.Name(),
			}
			if !yield(od, nil) {
				return
			}
		}
	}
}

// Pins returns an iterator over the artifacts pinned in an object
// directory.
func (s *Scanner) Pins(ctx context.Context, od ObjectDir) iter.Seq2[Pin, error] {
	return func(yield func(Pin, error) bool) {
		entries, err := os.ReadDir(od.Path)
		if err != nil {
			if os.IsNotExist(err) {
				return
			}
			yield(Pin{}, fmt.Errorf("read dir %s: %w", od.Path, err))
			return
		}

		for _, entry := range entries {
			if ctx.Err() != nil {
				yield(Pin{}, ctx.Err())
				return
			}
			if entry.IsDir() {
				s.reportMalformed(filepath.Join(od.Path, entry.Name()), fmt.Errorf("unexpected directory"))
				continue
			}
			pin := Pin{
				Path:   filepath.Join(od.Path, entry.Name()),
				Device: od.Device,
				Object: od.Object,
				Name:   entry.Name(),
			}
			if !yield(pin, nil) {
				return
			}
		}
	}
}

// ScanDevice materialises the object directories and pins of one
// device directory.
func (s *Scanner) ScanDevice(ctx context.Context, device string) (*FSState, error) {
	state := &FSState{}
	for od, err := range s.Objects(ctx, device) {
		if err != nil {
			return nil, err
		}
		state.Objects = append(state.Objects, od)
		for pin, err := range s.Pins(ctx, od) {
			if err != nil {
				return nil, err
			}
			state.Pins = append(state.Pins, pin)
		}
	}
	return state, nil
}

// Scan materialises every device below the root.
func (s *Scanner) Scan(ctx context.Context) (*FSState, error) {
	state := &FSState{}
	for device, err := range s.Devices(ctx) {
		if err != nil {
			return nil, err
		}
		ds, err := s.ScanDevice(ctx, device)
		if err != nil {
			return nil, err
		}
		state.Objects = append(state.Objects, ds.Objects...)
		state.Pins = append(state.Pins, ds.Pins...)
	}
	return state, nil
}
