package ebpf

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/btf"
	"github.com/cilium/ebpf/link"

	"github.com/frobware/go-hidbpf"
	"github.com/frobware/go-hidbpf/interpreter"
)

// Open parses an object file without loading anything into the kernel.
func (k *kernelAdapter) Open(path string) (interpreter.OpenObject, error) {
	spec, err := ebpf.LoadCollectionSpec(path)
	if err != nil {
		return nil, fmt.Errorf("load collection spec %s: %w", path, notFound(err))
	}

	// Pinning is done explicitly once the object is attached.
	for _, ms := range spec.Maps {
		ms.Pinning = ebpf.PinNone
	}

	k.logger.Debug("opened object", "path", path, "programs", len(spec.Programs), "maps", len(spec.Maps))
	return &openObject{path: path, spec: spec, logger: k.logger}, nil
}

type openObject struct {
	path   string
	spec   *ebpf.CollectionSpec
	logger *slog.Logger
}

func (o *openObject) Path() string { return o.path }

func (o *openObject) Programs() []hidbpf.ProgramDescriptor {
	descs := make([]hidbpf.ProgramDescriptor, 0, len(o.spec.Programs))
	for name, ps := range o.spec.Programs {
		descs = append(descs, hidbpf.ProgramDescriptor{
			Name:    name,
			Kind:    programKind(ps.Type),
			Section: ps.SectionName,
		})
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })
	return descs
}

func (o *openObject) Maps() []hidbpf.MapDescriptor {
	return mapDescriptors(o.spec.Maps)
}

// InitialValue returns the value buffer of the first entry of a map's
// initial contents. For struct_ops maps this is the struct the kernel
// receives on load.
func (o *openObject) InitialValue(mapName string) ([]byte, bool) {
	ms, ok := o.spec.Maps[mapName]
	if !ok || len(ms.Contents) == 0 {
		return nil, false
	}
	buf, ok := ms.Contents[0].Value.([]byte)
	return buf, ok
}

func (o *openObject) Load() (interpreter.Object, error) {
	coll, err := ebpf.NewCollection(o.spec)
	if err != nil {
		var ve *ebpf.VerifierError
		if errors.As(err, &ve) {
			o.logger.Debug("verifier rejected object", "path", o.path, "log", fmt.Sprintf("%+v", ve))
		}
		return nil, fmt.Errorf("load collection %s: %w", o.path, notFound(err))
	}
	return &object{path: o.path, spec: o.spec, coll: coll}, nil
}

// object is a loaded collection. The spec is retained for the
// type-debug metadata of the data sections.
type object struct {
	path string
	spec *ebpf.CollectionSpec
	coll *ebpf.Collection
}

func (o *object) Close() error {
	o.coll.Close()
	return nil
}

func (o *object) Programs() []hidbpf.ProgramDescriptor {
	descs := make([]hidbpf.ProgramDescriptor, 0, len(o.coll.Programs))
	for name, p := range o.coll.Programs {
		d := hidbpf.ProgramDescriptor{Name: name, Kind: programKind(p.Type())}
		if ps, ok := o.spec.Programs[name]; ok {
			d.Section = ps.SectionName
		}
		descs = append(descs, d)
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })
	return descs
}

func (o *object) Maps() []hidbpf.MapDescriptor {
	return mapDescriptors(o.spec.Maps)
}

func (o *object) Program(name string) (interpreter.Program, bool) {
	p, ok := o.coll.Programs[name]
	if !ok {
		return nil, false
	}
	return &program{name: name, prog: p}, true
}

// DataSection returns the variables of the map backing a global data
// section. The map is matched by suffix because libbpf prefixes
// section maps with a truncated object name.
func (o *object) DataSection(name string) ([]interpreter.SectionVar, bool) {
	for mapName, ms := range o.spec.Maps {
		if mapName != name && !strings.HasSuffix(mapName, name) {
			continue
		}
		ds, ok := ms.Value.(*btf.Datasec)
		if !ok {
			continue
		}
		vars := make([]interpreter.SectionVar, 0, len(ds.Vars))
		for _, vsi := range ds.Vars {
			v, ok := vsi.Type.(*btf.Var)
			if !ok {
				continue
			}
			vars = append(vars, interpreter.SectionVar{
				Name:   v.Name,
				Offset: vsi.Offset,
				Size:   vsi.Size,
			})
		}
		return vars, true
	}
	return nil, false
}

func (o *object) lookupMap(name string) (*ebpf.Map, error) {
	m, ok := o.coll.Maps[name]
	if !ok {
		return nil, fmt.Errorf("map %q: %w", name, interpreter.ErrNotFound)
	}
	return m, nil
}

func (o *object) MapKeys(mapName string) ([]uint32, error) {
	m, err := o.lookupMap(mapName)
	if err != nil {
		return nil, err
	}

	var (
		keys  []uint32
		key   uint32
		value = make([]byte, m.ValueSize())
	)
	it := m.Iterate()
	for it.Next(&key, value) {
		keys = append(keys, key)
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("iterate map %q: %w", mapName, err)
	}
	return keys, nil
}

func (o *object) Lookup(mapName string, key uint32) ([]byte, error) {
	m, err := o.lookupMap(mapName)
	if err != nil {
		return nil, err
	}
	value := make([]byte, m.ValueSize())
	if err := m.Lookup(&key, value); err != nil {
		return nil, fmt.Errorf("lookup key %d in map %q: %w", key, mapName, err)
	}
	return value, nil
}

func (o *object) Update(mapName string, key uint32, value []byte) error {
	m, err := o.lookupMap(mapName)
	if err != nil {
		return err
	}
	if err := m.Update(&key, value, ebpf.UpdateAny); err != nil {
		return fmt.Errorf("update key %d in map %q: %w", key, mapName, err)
	}
	return nil
}

func (o *object) PinMap(mapName, path string) error {
	m, err := o.lookupMap(mapName)
	if err != nil {
		return err
	}
	if err := m.Pin(path); err != nil {
		return fmt.Errorf("pin map %q to %s: %w", mapName, path, err)
	}
	return nil
}

// AttachStructOps registers a struct_ops map with the kernel and pins
// the resulting link. The link handle is released once pinned; the pin
// keeps the registration alive.
func (o *object) AttachStructOps(mapName, path string) error {
	m, err := o.lookupMap(mapName)
	if err != nil {
		return err
	}

	lnk, err := link.AttachStructOps(link.StructOpsOptions{Map: m})
	if err != nil {
		return fmt.Errorf("attach struct_ops %q: %w", mapName, notFound(err))
	}
	defer lnk.Close()

	if err := lnk.Pin(path); err != nil {
		return fmt.Errorf("pin struct_ops link %q to %s: %w", mapName, path, err)
	}
	return nil
}

func programKind(t ebpf.ProgramType) hidbpf.ProgramKind {
	switch t {
	case ebpf.Tracing:
		return hidbpf.ProgramKindTracing
	case ebpf.StructOps:
		return hidbpf.ProgramKindStructOps
	case ebpf.Syscall:
		return hidbpf.ProgramKindSyscall
	default:
		return hidbpf.ProgramKindOther
	}
}

func mapKind(t ebpf.MapType) hidbpf.MapKind {
	switch t {
	case ebpf.Array:
		return hidbpf.MapKindArray
	case ebpf.StructOpsMap:
		return hidbpf.MapKindStructOps
	default:
		return hidbpf.MapKindOther
	}
}

func mapDescriptors(specs map[string]*ebpf.MapSpec) []hidbpf.MapDescriptor {
	descs := make([]hidbpf.MapDescriptor, 0, len(specs))
	for name, ms := range specs {
		descs = append(descs, hidbpf.MapDescriptor{Name: name, Kind: mapKind(ms.Type)})
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })
	return descs
}
