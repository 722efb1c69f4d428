// Package interpreter contains the interfaces of the kernel-extension
// loading collaborator and of the artifact ledger. Implementations in
// the sub-packages are the only code that performs actual I/O against
// the kernel or the database.
package interpreter

import (
	"context"
	"errors"
	"io"

	"github.com/frobware/go-hidbpf"
	"github.com/frobware/go-hidbpf/kernel"
)

// ErrNotFound is wrapped by loader errors that the underlying library
// reports as "not found" (missing kernel type, missing file).
var ErrNotFound = errors.New("not found")

// ObjectOpener opens compiled kernel-extension object files.
type ObjectOpener interface {
	Open(path string) (OpenObject, error)
}

// OpenObject is an object that has been parsed but not yet loaded into
// the kernel. Initial values of its maps may still be patched.
type OpenObject interface {
	// Path is the object file the object was opened from.
	Path() string
	Programs() []hidbpf.ProgramDescriptor
	Maps() []hidbpf.MapDescriptor
	// InitialValue returns the mutable initial-value buffer of the named
	// map. Writes to the returned slice are visible to Load.
	InitialValue(mapName string) ([]byte, bool)
	// Load instantiates the object in the kernel. The OpenObject must
	// not be used afterwards.
	Load() (Object, error)
}

// SectionVar is a named global variable of a data section as described
// by the object's type-debug metadata.
type SectionVar struct {
	Name   string
	Offset uint32
	Size   uint32
}

// Object is an object whose programs and maps live in the kernel.
// Closing it releases every handle; only pinned resources survive.
type Object interface {
	io.Closer

	Programs() []hidbpf.ProgramDescriptor
	Maps() []hidbpf.MapDescriptor
	Program(name string) (Program, bool)

	// DataSection returns the variables of the named data section
	// (".bss", ".data"), or false if the object has no such section.
	DataSection(name string) ([]SectionVar, bool)

	// MapKeys lists the keys currently present in a map with 32-bit keys.
	MapKeys(mapName string) ([]uint32, error)
	// Lookup returns a copy of the value stored under key.
	Lookup(mapName string, key uint32) ([]byte, error)
	// Update replaces the value stored under key.
	Update(mapName string, key uint32, value []byte) error

	// PinMap pins the named map at path.
	PinMap(mapName, path string) error
	// AttachStructOps attaches the named struct_ops map and pins the
	// resulting link at path.
	AttachStructOps(mapName, path string) error
}

// Program is a loaded program.
type Program interface {
	Name() string
	FD() int
	// Run executes a syscall program once with ctx as its context. The
	// kernel's view of the context after execution is copied back into
	// ctx. A non-nil error means the test-run request itself failed.
	Run(ctx []byte) error
}

// Pinner pins links known only by a raw file descriptor.
type Pinner interface {
	// PinLinkFD pins the link behind fd at path. It takes ownership of
	// fd and closes it in every case; the pin keeps the link alive.
	PinLinkFD(fd int, path string) error
}

// Features reports kernel capabilities.
type Features interface {
	// SyscallPrograms returns nil if BPF_PROG_TYPE_SYSCALL programs can
	// be loaded.
	SyscallPrograms() error
}

// PinInspector resolves what pins on bpffs refer to.
type PinInspector interface {
	InspectPin(path string) (kernel.PinnedObject, error)
}

// Kernel combines every operation the loader needs from the loading
// collaborator.
type Kernel interface {
	ObjectOpener
	Pinner
	Features
	PinInspector
}

// LedgerWriter records and forgets successful loads.
type LedgerWriter interface {
	SaveLoad(ctx context.Context, rec hidbpf.LoadRecord) error
	DeleteBySysname(ctx context.Context, sysname string) (int, error)
}

// LedgerReader reads recorded loads.
type LedgerReader interface {
	// GetLoad returns store.ErrNotFound if no record has the given id.
	GetLoad(ctx context.Context, id string) (hidbpf.LoadRecord, error)
	ListLoads(ctx context.Context) ([]hidbpf.LoadRecord, error)
	ListLoadsBySysname(ctx context.Context, sysname string) ([]hidbpf.LoadRecord, error)
}

// Store combines ledger operations.
type Store interface {
	io.Closer
	LedgerWriter
	LedgerReader
}
