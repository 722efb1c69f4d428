package hidbpf

import "strings"

// ProgramKind classifies a program in a kernel-extension object by the
// way the loader treats it.
type ProgramKind uint32

const (
	ProgramKindOther ProgramKind = iota
	ProgramKindTracing
	ProgramKindStructOps
	ProgramKindSyscall
)

// String returns the string representation of the program kind.
func (k ProgramKind) String() string {
	switch k {
	case ProgramKindTracing:
		return "tracing"
	case ProgramKindStructOps:
		return "struct_ops"
	case ProgramKindSyscall:
		return "syscall"
	default:
		return "other"
	}
}

// MarshalText implements encoding.TextMarshaler so ProgramKind
// serialises as its string name in JSON.
func (k ProgramKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// MapKind classifies a map in a kernel-extension object.
type MapKind uint32

const (
	MapKindOther MapKind = iota
	MapKindArray
	MapKindStructOps
)

// String returns the string representation of the map kind.
func (k MapKind) String() string {
	switch k {
	case MapKindArray:
		return "array"
	case MapKindStructOps:
		return "struct_ops"
	default:
		return "other"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k MapKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ProgramDescriptor is a read-only view of one program in an object.
type ProgramDescriptor struct {
	Name    string
	Kind    ProgramKind
	Section string
}

// MapDescriptor is a read-only view of one map in an object.
type MapDescriptor struct {
	Name string
	Kind MapKind
}

// IsCompilerInternal reports whether the map was synthesised by the
// compiler for a global data section (.bss, .data, .rodata, ...). Such
// maps carry a '.' in their name and are never pinned.
func (m MapDescriptor) IsCompilerInternal() bool {
	return strings.Contains(m.Name, ".")
}
